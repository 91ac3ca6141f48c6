// Package budget fits a conversation into a model's token budget.
package budget

import (
	"jan-server/services/orchestrator-api/internal/domain/llm"
	"jan-server/services/orchestrator-api/internal/domain/token"
)

// MinBudget keeps a usable budget even for tiny context windows.
const MinBudget = 256

// Result is the outcome of Trim.
type Result struct {
	Messages        []llm.Message
	DroppedCount    int
	EstimatedTokens int
	// Overflow is set when system messages alone exceed the budget. They are
	// still returned in full, so EstimatedTokens is above the budget.
	Overflow bool
}

// Budgeter trims conversations with a pluggable estimator.
type Budgeter struct {
	estimator token.Estimator
}

// New returns a Budgeter. A nil estimator uses token.Default.
func New(estimator token.Estimator) *Budgeter {
	if estimator == nil {
		estimator = token.Default
	}
	return &Budgeter{estimator: estimator}
}

// Trim keeps every system message, then the most recent other messages that
// fit in maxTokens. The walk stops at the first message that does not fit, so
// the kept tail is contiguous. Output order: system messages in their original
// order, then the kept tail in chronological order.
func (b *Budgeter) Trim(messages []llm.Message, maxTokens int) Result {
	if len(messages) == 0 {
		return Result{Messages: []llm.Message{}}
	}

	system := make([]llm.Message, 0, 1)
	others := make([]llm.Message, 0, len(messages))
	used := 0
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			system = append(system, msg)
			used += token.Of(b.estimator, msg)
			continue
		}
		others = append(others, msg)
	}
	overflow := used > maxTokens

	// newest first
	kept := 0
	for i := len(others) - 1; i >= 0; i-- {
		cost := token.Of(b.estimator, others[i])
		if used+cost > maxTokens {
			break
		}
		used += cost
		kept++
	}

	out := make([]llm.Message, 0, len(system)+kept)
	out = append(out, system...)
	out = append(out, others[len(others)-kept:]...)

	return Result{
		Messages:        out,
		DroppedCount:    len(others) - kept,
		EstimatedTokens: used,
		Overflow:        overflow,
	}
}

// ForModel derives the input budget for a model: its context window minus the
// tokens reserved for the completion, optionally capped. A cap of zero means
// no cap.
func ForModel(contextWindow, reservedOutput, limit int) int {
	budget := contextWindow - reservedOutput
	if limit > 0 && (budget <= 0 || limit < budget) {
		budget = limit
	}
	if budget < MinBudget {
		budget = MinBudget
	}
	return budget
}
