package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_RetrieveCaches(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/v1/memory/load", r.URL.Path)
		var req LoadRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "user-1", req.UserID)
		assert.Equal(t, 3, req.Options.MaxUserItems)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(LoadResponse{
			CoreMemory:     []Item{{ID: "1", Text: "prefers Go"}, {ID: "2", Text: "  "}},
			SemanticMemory: []Item{{ID: "3", Title: "Project", Text: "orchestrator"}},
			EpisodicMemory: []Item{{ID: "4", Text: "asked about quotas"}},
		})
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, Timeout: time.Second, CacheSize: 8, CacheTTL: time.Minute, MaxItems: 3}, zerolog.Nop())
	require.NoError(t, err)

	items, err := client.Retrieve(context.Background(), "user-1", "what do I like?")
	require.NoError(t, err)
	assert.Equal(t, []string{"prefers Go", "Project: orchestrator", "asked about quotas"}, items)

	again, err := client.Retrieve(context.Background(), "user-1", "what do I like?")
	require.NoError(t, err)
	assert.Equal(t, items, again)
	assert.Equal(t, int32(1), hits.Load())

	now := time.Now()
	client.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = client.Retrieve(context.Background(), "user-1", "what do I like?")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_RetrieveError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, Timeout: time.Second}, zerolog.Nop())
	require.NoError(t, err)

	_, err = client.Retrieve(context.Background(), "user-1", "q")
	assert.Error(t, err)
}
