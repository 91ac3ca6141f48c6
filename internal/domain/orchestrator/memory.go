package orchestrator

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"jan-server/services/orchestrator-api/internal/domain/llm"
	"jan-server/services/orchestrator-api/internal/domain/token"
)

const memoryHeader = "Relevant context from memory:"

// FormatMemory renders retrieved snippets as one system message body. It
// returns "" when there is nothing to add.
func FormatMemory(items []string) string {
	var b strings.Builder
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString(memoryHeader)
		}
		b.WriteString("\n[Memory] ")
		b.WriteString(item)
	}
	return b.String()
}

// enrich inserts retrieved memory after the leading system messages. Any
// failure leaves messages unchanged.
func (s *Service) enrich(ctx context.Context, log zerolog.Logger, userID string, messages []llm.Message) []llm.Message {
	if s.deps.Memory == nil {
		return messages
	}
	query := lastUserContent(messages)
	if query == "" {
		return messages
	}

	memCtx, cancel := context.WithTimeout(ctx, s.cfg.MemoryTimeout)
	defer cancel()
	items, err := s.deps.Memory.Retrieve(memCtx, userID, query)
	if err != nil {
		log.Warn().Err(err).Msg("memory lookup failed, continuing without it")
		return messages
	}
	content := FormatMemory(items)
	if content == "" {
		return messages
	}

	memory := llm.Message{Role: llm.RoleSystem, Content: content}
	memory.ApproxTokens = s.deps.Estimator.Estimate(content)

	insertAt := 0
	for insertAt < len(messages) && messages[insertAt].Role == llm.RoleSystem {
		insertAt++
	}
	out := make([]llm.Message, 0, len(messages)+1)
	out = append(out, messages[:insertAt]...)
	out = append(out, memory)
	out = append(out, messages[insertAt:]...)
	log.Debug().Int("memories", len(items)).Int("tokens", token.Of(s.deps.Estimator, memory)).Msg("memory context injected")
	return out
}

func lastUserContent(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
