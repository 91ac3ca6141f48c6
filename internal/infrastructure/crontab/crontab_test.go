package crontab

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/orchestrator-api/internal/domain/usage"
	"jan-server/services/orchestrator-api/internal/infrastructure/metrics"
)

type MockResetter struct {
	calls atomic.Int32
	N     int64
	Err   error
}

func (m *MockResetter) ResetExpired(context.Context) (int64, error) {
	m.calls.Add(1)
	return m.N, m.Err
}

func TestRun_ResetsOnStartAndStops(t *testing.T) {
	resetter := &MockResetter{N: 3}
	before := testutil.ToFloat64(metrics.QuotaResetsTotal)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewCrontab(resetter, "0 0 1 * *", zerolog.Nop()).Run(ctx) }()

	require.Eventually(t, func() bool { return resetter.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, before+3, testutil.ToFloat64(metrics.QuotaResetsTotal))
}

func TestRun_InvalidSchedule(t *testing.T) {
	err := NewCrontab(&MockResetter{}, "not a schedule", zerolog.Nop()).Run(context.Background())
	assert.Error(t, err)
}

func TestResetQuotas_ToleratesErrors(t *testing.T) {
	c := NewCrontab(&MockResetter{Err: usage.ErrUnsupported}, "* * * * *", zerolog.Nop())
	c.resetQuotas(context.Background())

	c = NewCrontab(&MockResetter{Err: errors.New("db down")}, "* * * * *", zerolog.Nop())
	c.resetQuotas(context.Background())
}
