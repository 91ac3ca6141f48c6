package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"

	"jan-server/services/orchestrator-api/internal/domain/tool"
)

// Redactor masks personal data in audit entries before they are stored.
// Emails, phone numbers and IP addresses become short salted hashes so equal
// values stay correlatable; SSNs and card numbers are dropped outright.
type Redactor struct {
	salt  string
	rules []rule
}

type rule struct {
	pattern *regexp.Regexp
	replace func(r *Redactor, match string) string
}

// NewRedactor builds a redactor hashing with salt.
func NewRedactor(salt string) *Redactor {
	hashed := func(label string) func(*Redactor, string) string {
		return func(r *Redactor, match string) string {
			return "[" + label + ":" + r.hash(match) + "]"
		}
	}
	fixed := func(text string) func(*Redactor, string) string {
		return func(*Redactor, string) string { return text }
	}
	// cards and SSNs go first so the phone rule cannot eat parts of them
	return &Redactor{
		salt: salt,
		rules: []rule{
			{regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`), fixed("[CC:REDACTED]")},
			{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), fixed("[SSN:REDACTED]")},
			{regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`), hashed("EMAIL")},
			{regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), hashed("IP")},
			{regexp.MustCompile(`\b(?:[A-Fa-f0-9]{1,4}:){7}[A-Fa-f0-9]{1,4}\b`), hashed("IP")},
			{regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`), hashed("PHONE")},
		},
	}
}

// Text masks every match in s.
func (r *Redactor) Text(s string) string {
	for _, rl := range r.rules {
		s = rl.pattern.ReplaceAllStringFunc(s, func(m string) string { return rl.replace(r, m) })
	}
	return s
}

// Entry returns a copy of e with its error and tool call trace masked.
func (r *Redactor) Entry(e Entry) Entry {
	e.Error = r.Text(e.Error)
	if e.ToolCalls == nil {
		return e
	}
	calls := make([]tool.Call, len(e.ToolCalls))
	for i, call := range e.ToolCalls {
		call.Error = r.Text(call.Error)
		if call.Arguments != nil {
			call.Arguments, _ = r.value(call.Arguments).(map[string]any)
		}
		call.Result = r.value(call.Result)
		calls[i] = call
	}
	e.ToolCalls = calls
	return e
}

// value walks JSON-like values; anything else is kept as is.
func (r *Redactor) value(v any) any {
	switch t := v.(type) {
	case string:
		return r.Text(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = r.value(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = r.value(item)
		}
		return out
	default:
		return v
	}
}

func (r *Redactor) hash(s string) string {
	sum := sha256.Sum256([]byte(s + r.salt))
	return hex.EncodeToString(sum[:])[:8]
}

// RedactingRecorder masks entries before handing them to the next recorder.
type RedactingRecorder struct {
	next     Recorder
	redactor *Redactor
}

func NewRedactingRecorder(next Recorder, redactor *Redactor) *RedactingRecorder {
	return &RedactingRecorder{next: next, redactor: redactor}
}

func (r *RedactingRecorder) RecordAudit(ctx context.Context, entry Entry) error {
	return r.next.RecordAudit(ctx, r.redactor.Entry(entry))
}
