package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"
	"resty.dev/v3"

	"jan-server/services/orchestrator-api/internal/utils/httpclients"
)

// Config configures the memory-tools client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
	MaxItems  int
}

// Client retrieves memories from the memory-tools service. Answers are kept
// in a small LRU keyed by user and query.
type Client struct {
	httpClient *resty.Client
	cache      *lru.Cache
	ttl        time.Duration
	maxItems   int
	now        func() time.Time
	log        zerolog.Logger
}

type cached struct {
	items   []string
	expires time.Time
}

// LoadRequest is the body of POST /v1/memory/load.
type LoadRequest struct {
	UserID  string      `json:"user_id"`
	Query   string      `json:"query"`
	Options LoadOptions `json:"options"`
}

type LoadOptions struct {
	MaxUserItems     int     `json:"max_user_items"`
	MaxProjectItems  int     `json:"max_project_items"`
	MaxEpisodicItems int     `json:"max_episodic_items"`
	MinSimilarity    float32 `json:"min_similarity"`
}

// LoadResponse carries the three memory kinds.
type LoadResponse struct {
	CoreMemory     []Item `json:"core_memory"`
	EpisodicMemory []Item `json:"episodic_memory"`
	SemanticMemory []Item `json:"semantic_memory"`
}

type Item struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// NewClient builds the client.
func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = 5
	}
	return &Client{
		httpClient: httpclients.NewClient("memory-tools", cfg.BaseURL, cfg.Timeout),
		cache:      cache,
		ttl:        cfg.CacheTTL,
		maxItems:   maxItems,
		now:        time.Now,
		log:        log.With().Str("component", "memory-client").Logger(),
	}, nil
}

// Retrieve returns memory snippets relevant to query.
func (c *Client) Retrieve(ctx context.Context, userID, query string) ([]string, error) {
	key := userID + "\x00" + query
	if c.ttl > 0 {
		if v, ok := c.cache.Get(key); ok {
			if entry := v.(cached); c.now().Before(entry.expires) {
				return entry.items, nil
			}
			c.cache.Remove(key)
		}
	}

	var loaded LoadResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(LoadRequest{
			UserID: userID,
			Query:  query,
			Options: LoadOptions{
				MaxUserItems:     c.maxItems,
				MaxProjectItems:  c.maxItems,
				MaxEpisodicItems: c.maxItems,
				MinSimilarity:    0.5,
			},
		}).
		SetResult(&loaded).
		Post("/v1/memory/load")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("memory load: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("memory load failed with status %d: %s", resp.StatusCode(), resp.String())
	}

	items := flatten(loaded)
	c.log.Debug().Str("user_id", userID).Int("items", len(items)).Msg("memory loaded")
	if c.ttl > 0 {
		c.cache.Add(key, cached{items: items, expires: c.now().Add(c.ttl)})
	}
	return items, nil
}

func flatten(resp LoadResponse) []string {
	var out []string
	add := func(items []Item) {
		for _, it := range items {
			text := strings.TrimSpace(it.Text)
			if text == "" {
				continue
			}
			if it.Title != "" {
				text = it.Title + ": " + text
			}
			out = append(out, text)
		}
	}
	add(resp.CoreMemory)
	add(resp.SemanticMemory)
	add(resp.EpisodicMemory)
	return out
}
