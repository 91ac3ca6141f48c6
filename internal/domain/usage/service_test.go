package usage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/orchestrator-api/internal/domain/model"
	"jan-server/services/orchestrator-api/internal/domain/usage"
)

// MockQuotaStore implements usage.QuotaStore with function fields.
type MockQuotaStore struct {
	GetQuotaFunc func(ctx context.Context, userID string) (*usage.Quota, error)
	AddUsageFunc func(ctx context.Context, userID string, tokens int64) error
}

func (m *MockQuotaStore) GetQuota(ctx context.Context, userID string) (*usage.Quota, error) {
	return m.GetQuotaFunc(ctx, userID)
}

func (m *MockQuotaStore) AddUsage(ctx context.Context, userID string, tokens int64) error {
	if m.AddUsageFunc == nil {
		return nil
	}
	return m.AddUsageFunc(ctx, userID, tokens)
}

// MockReservingStore adds usage.QuotaReserver on top of an in-memory counter.
type MockReservingStore struct {
	mu     sync.Mutex
	quotas map[string]*usage.Quota
}

func newReservingStore(quotas ...usage.Quota) *MockReservingStore {
	s := &MockReservingStore{quotas: map[string]*usage.Quota{}}
	for i := range quotas {
		q := quotas[i]
		s.quotas[q.UserID] = &q
	}
	return s
}

func (s *MockReservingStore) GetQuota(_ context.Context, userID string) (*usage.Quota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[userID]
	if !ok {
		return nil, usage.ErrQuotaNotFound
	}
	copied := *q
	return &copied, nil
}

func (s *MockReservingStore) AddUsage(_ context.Context, userID string, tokens int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotas[userID].TokensUsed += tokens
	return nil
}

func (s *MockReservingStore) Reserve(_ context.Context, userID string, tokens int64) (*usage.Quota, error) {
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
	copied := *q
	return &copied, nil
}

func (s *MockReservingStore) Commit(_ context.Context, userID string, reserved, actual int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotas[userID].TokensUsed += actual - reserved
	return nil
}

func (s *MockReservingStore) Release(_ context.Context, userID string, reserved int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotas[userID].TokensUsed -= reserved
	return nil
}

// MockRecorder collects usage records.
type MockRecorder struct {
	mu      sync.Mutex
	Records []usage.Record
	Err     error
}

func (r *MockRecorder) RecordUsage(_ context.Context, record usage.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Records = append(r.Records, record)
	return r.Err
}

func quotaOf(used, limit int64) func(context.Context, string) (*usage.Quota, error) {
	return func(_ context.Context, userID string) (*usage.Quota, error) {
		return &usage.Quota{UserID: userID, Tier: usage.TierFree, TokensUsed: used, MonthlyLimit: limit}, nil
	}
}

func TestMeter_CheckQuota(t *testing.T) {
	tests := []struct {
		name    string
		get     func(context.Context, string) (*usage.Quota, error)
		want    bool
		wantErr bool
	}{
		{name: "under limit", get: quotaOf(500, 100000), want: true},
		{name: "at limit", get: quotaOf(100000, 100000), want: false},
		{name: "over limit", get: quotaOf(150000, 100000), want: false},
		{
			name: "missing quota denies",
			get: func(context.Context, string) (*usage.Quota, error) {
				return nil, usage.ErrQuotaNotFound
			},
			want: false,
		},
		{
			name: "store error denies",
			get: func(context.Context, string) (*usage.Quota, error) {
				return nil, errors.New("connection refused")
			},
			want:    false,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meter := usage.NewMeter(&MockQuotaStore{GetQuotaFunc: tt.get}, nil, model.NewDefaultRegistry(), zerolog.Nop())
			ok, err := meter.CheckQuota(context.Background(), "user-1")
			assert.Equal(t, tt.want, ok)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMeter_AdmitWithoutReservation(t *testing.T) {
	meter := usage.NewMeter(&MockQuotaStore{GetQuotaFunc: quotaOf(150000, 100000)}, nil, model.NewDefaultRegistry(), zerolog.Nop())
	assert.False(t, meter.Atomic())

	admission, err := meter.Admit(context.Background(), "user-1", 50)
	assert.Nil(t, admission)
	assert.ErrorIs(t, err, usage.ErrQuotaExceeded)
}

func TestMeter_RecordAddsUsage(t *testing.T) {
	var added int64
	store := &MockQuotaStore{
		GetQuotaFunc: quotaOf(0, 100000),
		AddUsageFunc: func(_ context.Context, _ string, tokens int64) error {
			added += tokens
			return nil
		},
	}
	recorder := &MockRecorder{}
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	meter := usage.NewMeter(store, recorder, model.NewDefaultRegistry(), zerolog.Nop()).WithClock(func() time.Time { return fixed })

	admission, err := meter.Admit(context.Background(), "user-1", 10)
	require.NoError(t, err)

	record, err := meter.Record(context.Background(), usage.RecordParams{
		Admission: admission, RequestID: "req_1", Model: "gpt-4", Provider: "openai",
		PromptTokens: 1000, CompletionTokens: 500,
	})
	require.NoError(t, err)

	assert.Equal(t, "user-1", record.UserID)
	assert.Equal(t, int64(1500), added)
	assert.True(t, record.Cost.Equal(decimal.RequireFromString("0.06")), record.Cost.String())
	assert.Equal(t, fixed, record.CreatedAt)
	require.Len(t, recorder.Records, 1)
	assert.Equal(t, "req_1", recorder.Records[0].RequestID)

	_, err = meter.Record(context.Background(), usage.RecordParams{Admission: admission, Model: "gpt-4"})
	assert.Error(t, err, "an admission is billed at most once")
	assert.Len(t, recorder.Records, 1)
}

func TestMeter_RecordFailuresAreNotRetried(t *testing.T) {
	calls := 0
	store := &MockQuotaStore{
		GetQuotaFunc: quotaOf(0, 100000),
		AddUsageFunc: func(context.Context, string, int64) error {
			calls++
			return errors.New("write failed")
		},
	}
	recorder := &MockRecorder{Err: errors.New("billing down")}
	meter := usage.NewMeter(store, recorder, model.NewDefaultRegistry(), zerolog.Nop())

	record, err := meter.Record(context.Background(), usage.RecordParams{UserID: "u", Model: "gpt-4", PromptTokens: 1})
	require.NoError(t, err)
	assert.NotNil(t, record)
	assert.Equal(t, 1, calls)
	assert.Len(t, recorder.Records, 1)
}

func TestMeter_AtomicReservation(t *testing.T) {
	store := newReservingStore(usage.Quota{UserID: "user-1", Tier: usage.TierFree, TokensUsed: 99000, MonthlyLimit: 100000})
	meter := usage.NewMeter(store, nil, model.NewDefaultRegistry(), zerolog.Nop())
	require.True(t, meter.Atomic())
	ctx := context.Background()

	first, err := meter.Admit(ctx, "user-1", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), first.Reserved)

	_, err = meter.Admit(ctx, "user-1", 1000)
	assert.ErrorIs(t, err, usage.ErrQuotaExceeded, "the reservation is visible to concurrent admissions")

	_, err = meter.Record(ctx, usage.RecordParams{Admission: first, Model: "gpt-3.5-turbo", PromptTokens: 300, CompletionTokens: 200})
	require.NoError(t, err)
	q, _ := store.GetQuota(ctx, "user-1")
	assert.Equal(t, int64(99500), q.TokensUsed, "commit replaces the estimate with actual usage")

	second, err := meter.Admit(ctx, "user-1", 200)
	require.NoError(t, err)
	meter.Release(ctx, second)
	meter.Release(ctx, second)
	q, _ = store.GetQuota(ctx, "user-1")
	assert.Equal(t, int64(99500), q.TokensUsed)

	_, err = meter.Admit(ctx, "nobody", 1)
	assert.ErrorIs(t, err, usage.ErrQuotaExceeded)
}

func TestMeter_ConcurrentAdmissionsCannotOvershoot(t *testing.T) {
	store := newReservingStore(usage.Quota{UserID: "user-1", TokensUsed: 0, MonthlyLimit: 1000})
	meter := usage.NewMeter(store, nil, model.NewDefaultRegistry(), zerolog.Nop())

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := meter.Admit(context.Background(), "user-1", 100); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, admitted)
}

func TestMeter_AdminRequiresCapableStore(t *testing.T) {
	meter := usage.NewMeter(&MockQuotaStore{GetQuotaFunc: quotaOf(0, 1)}, nil, model.NewDefaultRegistry(), zerolog.Nop())
	_, err := meter.SetTier(context.Background(), "u", usage.TierPro)
	assert.ErrorIs(t, err, usage.ErrUnsupported)
	_, err = meter.ResetExpired(context.Background())
	assert.ErrorIs(t, err, usage.ErrUnsupported)
}

func TestSummarize(t *testing.T) {
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	summary := usage.Summarize(usage.Quota{
		UserID: "u", Tier: usage.TierPro, TokensUsed: 1_250_000, MonthlyLimit: 1_000_000, PeriodStart: start,
	})
	assert.Equal(t, int64(0), summary.Remaining)
	assert.Equal(t, int64(250_000), summary.OverageTokens)
	assert.True(t, summary.OverageCost.Equal(decimal.RequireFromString("0.5")), summary.OverageCost.String())
	assert.True(t, summary.Total.Equal(decimal.RequireFromString("30.49")), summary.Total.String())
	assert.Equal(t, 125.0, summary.PercentUsed)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), summary.PeriodEnd)

	free := usage.Summarize(usage.Quota{Tier: usage.TierFree, TokensUsed: 25_000, MonthlyLimit: 100_000})
	assert.Equal(t, int64(75_000), free.Remaining)
	assert.Equal(t, 25.0, free.PercentUsed)
	assert.True(t, free.Total.IsZero())
}

func TestParseTier(t *testing.T) {
	tier, err := usage.ParseTier(" PRO ")
	require.NoError(t, err)
	assert.Equal(t, usage.TierPro, tier)
	assert.Equal(t, int64(1_000_000), tier.Limit())

	tier, err = usage.ParseTier("")
	require.NoError(t, err)
	assert.Equal(t, usage.TierFree, tier)

	_, err = usage.ParseTier("platinum")
	assert.Error(t, err)
}

func TestQuotaPeriod(t *testing.T) {
	now := time.Date(2024, 7, 19, 15, 4, 5, 0, time.UTC)
	q := usage.NewQuota("u", usage.TierEnterprise, now)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), q.PeriodStart)
	assert.Equal(t, int64(10_000_000), q.MonthlyLimit)
	assert.False(t, q.Expired(now))
	assert.True(t, q.Expired(time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)))
}
