package budget_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"jan-server/services/orchestrator-api/internal/domain/budget"
	"jan-server/services/orchestrator-api/internal/domain/llm"
)

// msg builds a message whose heuristic estimate is exactly tokens.
func msg(role llm.Role, label string, tokens int) llm.Message {
	content := label + strings.Repeat("x", tokens*4-len(label))
	return llm.Message{Role: role, Content: content}
}

func labels(messages []llm.Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Content[:2])
	}
	return out
}

func TestBudgeter_Trim(t *testing.T) {
	tests := []struct {
		name         string
		messages     []llm.Message
		maxTokens    int
		wantLabels   []string
		wantDropped  int
		wantTokens   int
		wantOverflow bool
	}{
		{
			name:       "empty input",
			messages:   nil,
			maxTokens:  100,
			wantLabels: []string{},
		},
		{
			name: "everything fits",
			messages: []llm.Message{
				msg(llm.RoleSystem, "s1", 10),
				msg(llm.RoleUser, "u1", 10),
				msg(llm.RoleAssistant, "a1", 10),
			},
			maxTokens:  100,
			wantLabels: []string{"s1", "u1", "a1"},
			wantTokens: 30,
		},
		{
			name: "oldest messages are dropped first",
			messages: []llm.Message{
				msg(llm.RoleSystem, "s1", 10),
				msg(llm.RoleUser, "u1", 20),
				msg(llm.RoleAssistant, "a1", 20),
				msg(llm.RoleUser, "u2", 20),
			},
			maxTokens:   55,
			wantLabels:  []string{"s1", "a1", "u2"},
			wantDropped: 1,
			wantTokens:  50,
		},
		{
			name: "system messages move to the front in original order",
			messages: []llm.Message{
				msg(llm.RoleUser, "u1", 5),
				msg(llm.RoleSystem, "s1", 5),
				msg(llm.RoleAssistant, "a1", 5),
				msg(llm.RoleSystem, "s2", 5),
				msg(llm.RoleUser, "u2", 5),
			},
			maxTokens:  100,
			wantLabels: []string{"s1", "s2", "u1", "a1", "u2"},
			wantTokens: 25,
		},
		{
			name: "walk stops at the first message that does not fit",
			messages: []llm.Message{
				msg(llm.RoleUser, "u1", 5),
				msg(llm.RoleAssistant, "a1", 50),
				msg(llm.RoleUser, "u2", 5),
			},
			maxTokens:   20,
			wantLabels:  []string{"u2"},
			wantDropped: 2,
			wantTokens:  5,
		},
		{
			name: "oversized single message leaves only system messages",
			messages: []llm.Message{
				msg(llm.RoleSystem, "s1", 10),
				msg(llm.RoleUser, "u1", 500),
			},
			maxTokens:   100,
			wantLabels:  []string{"s1"},
			wantDropped: 1,
			wantTokens:  10,
		},
		{
			name: "system messages over budget are kept and flagged",
			messages: []llm.Message{
				msg(llm.RoleSystem, "s1", 80),
				msg(llm.RoleSystem, "s2", 80),
				msg(llm.RoleUser, "u1", 1),
			},
			maxTokens:    100,
			wantLabels:   []string{"s1", "s2"},
			wantDropped:  1,
			wantTokens:   160,
			wantOverflow: true,
		},
	}

	b := budget.New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.Trim(tt.messages, tt.maxTokens)
			assert.Equal(t, tt.wantLabels, labels(got.Messages))
			assert.Equal(t, tt.wantDropped, got.DroppedCount)
			assert.Equal(t, tt.wantTokens, got.EstimatedTokens)
			assert.Equal(t, tt.wantOverflow, got.Overflow)
		})
	}
}

func TestBudgeter_TrimKeepsRelativeOrder(t *testing.T) {
	var messages []llm.Message
	messages = append(messages, msg(llm.RoleSystem, "s0", 3))
	for i := 0; i < 40; i++ {
		role := llm.RoleUser
		if i%2 == 1 {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: strings.Repeat("y", 4*(i%7+1)) + string(rune('A'+i))})
	}

	b := budget.New(nil)
	for _, maxTokens := range []int{0, 1, 5, 17, 40, 100, 1000} {
		got := b.Trim(messages, maxTokens).Messages
		assert.Equal(t, llm.RoleSystem, got[0].Role, "system message first for budget %d", maxTokens)

		// the retained tail must be a suffix of the input
		tail := got[1:]
		offset := len(messages) - len(tail)
		for i := range tail {
			assert.Equal(t, messages[offset+i].Content, tail[i].Content, "budget %d position %d", maxTokens, i)
		}
	}
}

func TestForModel(t *testing.T) {
	assert.Equal(t, 7168, budget.ForModel(8192, 1024, 0))
	assert.Equal(t, 4096, budget.ForModel(128000, 1024, 4096))
	assert.Equal(t, 7168, budget.ForModel(8192, 1024, 100000))
	assert.Equal(t, budget.MinBudget, budget.ForModel(512, 1024, 0))
	assert.Equal(t, 4096, budget.ForModel(0, 0, 4096))
}
