// Package guard screens prompts and generated text against length limits,
// blocked content and prompt-injection phrases. It performs no I/O and is safe
// to call on the request hot path.
package guard

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"jan-server/services/orchestrator-api/internal/domain/llm"
)

const (
	DefaultMaxInputLength = 10000

	ReasonTooLong   = "exceeds maximum length"
	ReasonBlocked   = "blocked content"
	ReasonInjection = "prompt injection detected"

	// RefusalMessage replaces generated text that fails the output check.
	RefusalMessage = "I'm sorry, but I can't provide that information as it violates our usage policy."
)

// DefaultBlockedPatterns mirrors the moderation list used by the chat product.
var DefaultBlockedPatterns = []string{
	"how to make a bomb",
	"how to hack",
	"illegal drugs",
	"self-harm instructions",
}

// DefaultInjectionPhrases are known jailbreak and override openers.
var DefaultInjectionPhrases = []string{
	"ignore previous instructions",
	"ignore all instructions",
	"disregard your instructions",
	"forget your instructions",
	"you are now",
	"new instructions:",
	"system prompt:",
	"override:",
	"jailbreak",
}

var (
	// ErrInputRejected is the sentinel for every input-side rejection.
	ErrInputRejected = errors.New("input rejected")
	// ErrPromptInjection narrows ErrInputRejected to an injection attempt.
	ErrPromptInjection = errors.New("prompt injection")
)

// RejectionError reports why input was refused. Reason is safe to show users.
type RejectionError struct {
	Reason       string
	MessageIndex int
	injection    bool
}

func (e *RejectionError) Error() string {
	return "input rejected: " + e.Reason
}

func (e *RejectionError) Is(target error) bool {
	if target == ErrInputRejected {
		return true
	}
	return e.injection && target == ErrPromptInjection
}

// Verdict is the outcome of a single check.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Config controls the guard. Zero values fall back to the defaults above.
type Config struct {
	MaxInputLength   int
	BlockedPatterns  []string
	InjectionPhrases []string
}

// Guard holds the normalised pattern lists. It is immutable after New.
type Guard struct {
	maxInputLength   int
	blockedPatterns  []string
	injectionPhrases []string
	log              zerolog.Logger
}

// New builds a Guard from cfg.
func New(cfg Config, log zerolog.Logger) *Guard {
	if cfg.MaxInputLength <= 0 {
		cfg.MaxInputLength = DefaultMaxInputLength
	}
	if cfg.BlockedPatterns == nil {
		cfg.BlockedPatterns = DefaultBlockedPatterns
	}
	if cfg.InjectionPhrases == nil {
		cfg.InjectionPhrases = DefaultInjectionPhrases
	}
	return &Guard{
		maxInputLength:   cfg.MaxInputLength,
		blockedPatterns:  normalise(cfg.BlockedPatterns),
		injectionPhrases: normalise(cfg.InjectionPhrases),
		log:              log,
	}
}

// CheckInput rejects text that is too long or contains a blocked pattern.
func (g *Guard) CheckInput(text string) Verdict {
	if utf8.RuneCountInString(text) > g.maxInputLength {
		return Verdict{Allowed: false, Reason: ReasonTooLong}
	}
	if containsAny(text, g.blockedPatterns) {
		return Verdict{Allowed: false, Reason: ReasonBlocked}
	}
	return Verdict{Allowed: true}
}

// CheckOutput applies the blocked-pattern check to generated text.
func (g *Guard) CheckOutput(text string) Verdict {
	if containsAny(text, g.blockedPatterns) {
		return Verdict{Allowed: false, Reason: ReasonBlocked}
	}
	return Verdict{Allowed: true}
}

// DetectInjection reports whether text contains a known override phrase.
func (g *Guard) DetectInjection(text string) bool {
	return containsAny(text, g.injectionPhrases)
}

// ScreenMessages checks every message of a request. The first failing message
// rejects the whole request; injection wins over the other reasons.
func (g *Guard) ScreenMessages(messages []llm.Message) error {
	for i, msg := range messages {
		if g.DetectInjection(msg.Content) {
			g.log.Warn().Int("message_index", i).Str("role", string(msg.Role)).Msg("prompt injection detected")
			return &RejectionError{Reason: ReasonInjection, MessageIndex: i, injection: true}
		}
		if verdict := g.CheckInput(msg.Content); !verdict.Allowed {
			g.log.Warn().Int("message_index", i).Str("role", string(msg.Role)).Str("reason", verdict.Reason).Msg("input rejected")
			return &RejectionError{Reason: verdict.Reason, MessageIndex: i}
		}
	}
	return nil
}

func normalise(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func containsAny(text string, lowered []string) bool {
	if len(lowered) == 0 || text == "" {
		return false
	}
	haystack := strings.ToLower(text)
	for _, p := range lowered {
		if strings.Contains(haystack, p) {
			return true
		}
	}
	return false
}
