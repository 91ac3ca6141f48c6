// Package token approximates how many model tokens a piece of text costs.
package token

import (
	"unicode/utf8"

	"jan-server/services/orchestrator-api/internal/domain/llm"
)

// Estimator approximates the token count of text. Implementations must be
// deterministic and safe for concurrent use.
type Estimator interface {
	Estimate(text string) int
}

// HeuristicEstimator counts four characters per token, never less than one.
type HeuristicEstimator struct{}

// Estimate returns max(1, characters/4).
func (HeuristicEstimator) Estimate(text string) int {
	n := utf8.RuneCountInString(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

// Default is the estimator used when none is configured.
var Default Estimator = HeuristicEstimator{}

// Estimate runs the default estimator.
func Estimate(text string) int {
	return Default.Estimate(text)
}

// Annotate returns a copy of messages with ApproxTokens filled in.
func Annotate(est Estimator, messages []llm.Message) []llm.Message {
	if est == nil {
		est = Default
	}
	out := make([]llm.Message, len(messages))
	for i, msg := range messages {
		msg.ApproxTokens = est.Estimate(msg.Content)
		out[i] = msg
	}
	return out
}

// CountMessages sums the estimate of every message, reusing ApproxTokens when set.
func CountMessages(est Estimator, messages []llm.Message) int {
	total := 0
	for _, msg := range messages {
		total += Of(est, msg)
	}
	return total
}

// Of returns the token estimate of one message.
func Of(est Estimator, msg llm.Message) int {
	if msg.ApproxTokens > 0 {
		return msg.ApproxTokens
	}
	if est == nil {
		est = Default
	}
	return est.Estimate(msg.Content)
}
