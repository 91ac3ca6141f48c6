package tool_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/orchestrator-api/internal/domain/tool"
)

func builtinRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	fixed := func() time.Time { return time.Date(2024, time.March, 15, 12, 30, 0, 0, time.UTC) }
	registry, err := tool.NewRegistry(tool.Builtins(fixed)...)
	require.NoError(t, err)
	return registry
}

func TestBuiltins_CurrentTime(t *testing.T) {
	registry := builtinRegistry(t)
	currentTime, ok := registry.Lookup("current_time")
	require.True(t, ok)
	assert.Equal(t, tool.ClassLookup, currentTime.Descriptor.Class)

	value, err := currentTime.Executor.Execute(context.Background(), "current_time", map[string]any{})
	require.NoError(t, err)
	out := value.(map[string]any)
	assert.Equal(t, "UTC", out["timezone"])
	assert.Equal(t, "2024-03-15T12:30:00Z", out["time"])
	assert.Equal(t, "Friday", out["weekday"])

	_, err = currentTime.Executor.Execute(context.Background(), "current_time", map[string]any{"timezone": "Mars/Olympus"})
	assert.Error(t, err)
}

func TestBuiltins_TextStats(t *testing.T) {
	registry := builtinRegistry(t)
	stats, ok := registry.Lookup("text_stats")
	require.True(t, ok)
	assert.Equal(t, tool.ClassCompute, stats.Descriptor.Class)

	value, err := stats.Executor.Execute(context.Background(), "text_stats", map[string]any{"text": "hello world\nsecond line"})
	require.NoError(t, err)
	out := value.(map[string]any)
	assert.Equal(t, 23, out["characters"])
	assert.Equal(t, 4, out["words"])
	assert.Equal(t, 2, out["lines"])

	_, err = stats.Executor.Execute(context.Background(), "text_stats", map[string]any{"text": 42})
	assert.Error(t, err)
}

func TestSchemaFor(t *testing.T) {
	schema := tool.SchemaFor(&tool.TextStatsArgs{})
	require.NotNil(t, schema)
	assert.Equal(t, "object", schema["type"])
	assert.NotContains(t, schema, "$schema")
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "text")
	assert.Equal(t, []any{"text"}, schema["required"])
}

func TestRegistry(t *testing.T) {
	registry := builtinRegistry(t)
	assert.Equal(t, []string{"current_time", "text_stats"}, registry.Names())

	found, unknown := registry.Select([]string{"text_stats", "web_search", "text_stats", ""})
	require.Len(t, found, 1)
	assert.Equal(t, "text_stats", found[0].Name)
	assert.Equal(t, []string{"web_search"}, unknown)

	_, err := tool.NewRegistry(append(tool.Builtins(nil), tool.Builtins(nil)[0])...)
	assert.ErrorIs(t, err, tool.ErrDuplicate)

	_, err = tool.NewRegistry(tool.Tool{Descriptor: tool.Descriptor{Name: "no_exec"}})
	assert.Error(t, err)
}

func TestTimeouts(t *testing.T) {
	defaults := tool.DefaultTimeouts()
	assert.Equal(t, 10*time.Second, defaults.For(tool.ClassLookup))
	assert.Equal(t, 20*time.Second, defaults.For(tool.ClassSearch))
	assert.Equal(t, 30*time.Second, defaults.For(tool.ClassCompute))

	custom := tool.Timeouts{Search: time.Second}
	assert.Equal(t, time.Second, custom.For(tool.ClassSearch))
	assert.Equal(t, 10*time.Second, custom.For(tool.ClassLookup))
}

func TestObservation(t *testing.T) {
	failed := tool.Call{Status: tool.ExecutionStatusFailed, Error: "timed out"}
	assert.Equal(t, "error: timed out", tool.Observation(failed, 100))

	empty := tool.Call{Status: tool.ExecutionStatusCompleted}
	assert.Equal(t, "[tool execution completed]", tool.Observation(empty, 100))

	structured := tool.Call{Status: tool.ExecutionStatusCompleted, Result: map[string]int{"n": 1}}
	assert.Equal(t, `{"n":1}`, tool.Observation(structured, 100))

	long := tool.Call{Status: tool.ExecutionStatusCompleted, Result: "abcdefghij"}
	assert.Equal(t, "abcd... [truncated]", tool.Observation(long, 4))
}
