package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"jan-server/services/orchestrator-api/internal/domain/audit"
	"jan-server/services/orchestrator-api/internal/domain/usage"
)

// MemoryStore keeps quotas, usage records and audit entries in process. It
// backs QUOTA_BACKEND=memory for local runs and the CLI.
type MemoryStore struct {
	mu      sync.Mutex
	quotas  map[string]usage.Quota
	records []usage.Record
	entries []audit.Entry
}

// NewMemoryStore returns a store seeded with quotas.
func NewMemoryStore(seed ...usage.Quota) *MemoryStore {
	s := &MemoryStore{quotas: make(map[string]usage.Quota, len(seed))}
	for _, q := range seed {
		s.quotas[q.UserID] = q
	}
	return s
}

var (
	_ usage.QuotaStore    = (*MemoryStore)(nil)
	_ usage.QuotaReserver = (*MemoryStore)(nil)
	_ usage.QuotaAdmin    = (*MemoryStore)(nil)
	_ usage.UsageRecorder = (*MemoryStore)(nil)
	_ audit.Repository    = (*MemoryStore)(nil)
)

func (s *MemoryStore) GetQuota(_ context.Context, userID string) (*usage.Quota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[userID]
	if !ok {
		return nil, usage.ErrQuotaNotFound
	}
	return &q, nil
}

func (s *MemoryStore) AddUsage(_ context.Context, userID string, tokens int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjustLocked(userID, tokens)
}

func (s *MemoryStore) Reserve(_ context.Context, userID string, tokens int64) (*usage.Quota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[userID]
	if !ok {
		return nil, usage.ErrQuotaNotFound
	}
	if !q.Allows() {
		return nil, usage.ErrQuotaExceeded
	}
	q.TokensUsed += tokens
	q.UpdatedAt = time.Now().UTC()
	s.quotas[userID] = q
	return &q, nil
}

func (s *MemoryStore) Commit(_ context.Context, userID string, reserved, actual int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjustLocked(userID, actual-reserved)
}

func (s *MemoryStore) Release(_ context.Context, userID string, reserved int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adjustLocked(userID, -reserved)
}

func (s *MemoryStore) adjustLocked(userID string, delta int64) error {
	q, ok := s.quotas[userID]
	if !ok {
		return usage.ErrQuotaNotFound
	}
	q.TokensUsed = max(q.TokensUsed+delta, 0)
	q.UpdatedAt = time.Now().UTC()
	s.quotas[userID] = q
	return nil
}

func (s *MemoryStore) SetTier(_ context.Context, userID string, tier usage.Tier, now time.Time) (*usage.Quota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[userID]
	if !ok {
		q = usage.NewQuota(userID, tier, now)
	}
	q.Tier = tier
	q.MonthlyLimit = tier.Limit()
	q.UpdatedAt = now
	s.quotas[userID] = q
	return &q, nil
}

func (s *MemoryStore) ResetExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, q := range s.quotas {
		if !q.Expired(now) {
			continue
		}
		q.TokensUsed = 0
		q.PeriodStart = usage.PeriodStartFor(now)
		q.UpdatedAt = now
		s.quotas[id] = q
		n++
	}
	return n, nil
}

func (s *MemoryStore) RecordUsage(_ context.Context, record usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Records returns a copy of every stored usage record.
func (s *MemoryStore) Records() []usage.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]usage.Record(nil), s.records...)
}

func (s *MemoryStore) RecordAudit(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string, limit int) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Entry
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if n := clampLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}
