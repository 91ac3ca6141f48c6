package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Admission is the ticket handed out by Admit. It remembers any tokens
// reserved so Record or Release can settle them.
type Admission struct {
	UserID   string
	Reserved int64
	settled  bool
}

// RecordParams describes a completed request.
type RecordParams struct {
	Admission        *Admission
	UserID           string
	RequestID        string
	SessionID        string
	Model            string
	Provider         string
	PromptTokens     int
	CompletionTokens int
}

// Meter is the admission and usage accounting service.
type Meter struct {
	quotas   QuotaStore
	reserver QuotaReserver
	recorder UsageRecorder
	pricer   Pricer
	now      func() time.Time
	log      zerolog.Logger
}

// NewMeter wires dependencies. When quotas also implements QuotaReserver,
// admission reserves tokens atomically.
func NewMeter(quotas QuotaStore, recorder UsageRecorder, pricer Pricer, log zerolog.Logger) *Meter {
	m := &Meter{
		quotas:   quotas,
		recorder: recorder,
		pricer:   pricer,
		now:      time.Now,
		log:      log.With().Str("component", "usage-meter").Logger(),
	}
	if reserver, ok := quotas.(QuotaReserver); ok {
		m.reserver = reserver
	}
	return m
}

// WithClock overrides the time source.
func (m *Meter) WithClock(now func() time.Time) *Meter {
	m.now = now
	return m
}

// Atomic reports whether admission reserves tokens.
func (m *Meter) Atomic() bool {
	return m.reserver != nil
}

// CheckQuota reports whether userID may start a request. A missing quota
// denies. Store errors deny as well and are returned.
func (m *Meter) CheckQuota(ctx context.Context, userID string) (bool, error) {
	quota, err := m.quotas.GetQuota(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrQuotaNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get quota: %w", err)
	}
	return quota.Allows(), nil
}

// Admit checks the quota and, when supported, reserves estimated tokens.
// It returns ErrQuotaExceeded when the user may not proceed.
func (m *Meter) Admit(ctx context.Context, userID string, estimated int64) (*Admission, error) {
	if m.reserver != nil {
		if estimated < 0 {
			estimated = 0
		}
		_, err := m.reserver.Reserve(ctx, userID, estimated)
		switch {
		case err == nil:
			return &Admission{UserID: userID, Reserved: estimated}, nil
		case errors.Is(err, ErrQuotaNotFound), errors.Is(err, ErrQuotaExceeded):
			return nil, ErrQuotaExceeded
		default:
			return nil, fmt.Errorf("reserve quota: %w", err)
		}
	}

	ok, err := m.CheckQuota(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrQuotaExceeded
	}
	return &Admission{UserID: userID}, nil
}

// Release returns a reservation without billing. It is safe to call on a
// settled or nil admission.
func (m *Meter) Release(ctx context.Context, admission *Admission) {
	if admission == nil || admission.settled {
		return
	}
	admission.settled = true
	if m.reserver == nil || admission.Reserved == 0 {
		return
	}
	if err := m.reserver.Release(context.WithoutCancel(ctx), admission.UserID, admission.Reserved); err != nil {
		m.log.Error().Err(err).Str("user_id", admission.UserID).Int64("tokens", admission.Reserved).Msg("release quota reservation")
	}
}

// Record prices the request, adds its tokens to the quota counter and hands
// the record to the recorder. Store failures are logged and not retried; the
// record is returned either way.
func (m *Meter) Record(ctx context.Context, p RecordParams) (*Record, error) {
	if p.Admission != nil && p.Admission.settled {
		return nil, errors.New("usage already recorded for this admission")
	}
	userID := p.UserID
	if userID == "" && p.Admission != nil {
		userID = p.Admission.UserID
	}
	record := Record{
		ID:               uuid.NewString(),
		RequestID:        p.RequestID,
		UserID:           userID,
		SessionID:        p.SessionID,
		Model:            p.Model,
		Provider:         p.Provider,
		PromptTokens:     max(p.PromptTokens, 0),
		CompletionTokens: max(p.CompletionTokens, 0),
		CreatedAt:        m.now().UTC(),
	}
	record.Cost = m.pricer.CostOf(record.Model, record.PromptTokens, record.CompletionTokens)

	// the request already completed; a late cancel must not lose the charge
	ctx = context.WithoutCancel(ctx)
	actual := int64(record.TotalTokens())
	var err error
	if p.Admission != nil {
		p.Admission.settled = true
	}
	if m.reserver != nil && p.Admission != nil && p.Admission.Reserved > 0 {
		err = m.reserver.Commit(ctx, userID, p.Admission.Reserved, actual)
	} else {
		err = m.quotas.AddUsage(ctx, userID, actual)
	}
	if err != nil {
		m.log.Error().Err(err).Str("user_id", userID).Str("request_id", record.RequestID).Int64("tokens", actual).Msg("update quota counter")
	}

	if m.recorder != nil {
		if err := m.recorder.RecordUsage(ctx, record); err != nil {
			m.log.Error().Err(err).Str("user_id", userID).Str("request_id", record.RequestID).Msg("persist usage record")
		}
	}
	return &record, nil
}

// Summary returns the bill for userID.
func (m *Meter) Summary(ctx context.Context, userID string) (*Summary, error) {
	quota, err := m.quotas.GetQuota(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary := Summarize(*quota)
	return &summary, nil
}

// SetTier creates or updates the quota of userID.
func (m *Meter) SetTier(ctx context.Context, userID string, tier Tier) (*Quota, error) {
	admin, ok := m.quotas.(QuotaAdmin)
	if !ok {
		return nil, ErrUnsupported
	}
	return admin.SetTier(ctx, userID, tier, m.now())
}

// ResetExpired zeroes every quota whose period has ended.
func (m *Meter) ResetExpired(ctx context.Context) (int64, error) {
	admin, ok := m.quotas.(QuotaAdmin)
	if !ok {
		return 0, ErrUnsupported
	}
	n, err := admin.ResetExpired(ctx, m.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.log.Info().Int64("quotas", n).Msg("reset expired quotas")
	}
	return n, nil
}
