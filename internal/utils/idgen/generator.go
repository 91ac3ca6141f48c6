package idgen

import (
	"strings"

	"github.com/google/uuid"
)

const (
	completionPrefix = "chatcmpl-"
	completionHexLen = 12
)

// NewRequestID returns a random request identifier.
func NewRequestID() string {
	return "req_" + compact(uuid.New())
}

// NewCompletionID returns an OpenAI style completion id: "chatcmpl-" followed by 12 hex characters.
func NewCompletionID() string {
	return completionPrefix + compact(uuid.New())[:completionHexLen]
}

// NewAuditID returns the identifier of an audit entry.
func NewAuditID() string {
	return uuid.NewString()
}

// IsCompletionID reports whether id has the completion id shape.
func IsCompletionID(id string) bool {
	if !strings.HasPrefix(id, completionPrefix) {
		return false
	}
	suffix := strings.TrimPrefix(id, completionPrefix)
	if len(suffix) != completionHexLen {
		return false
	}
	for _, r := range suffix {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}

func compact(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")
}
