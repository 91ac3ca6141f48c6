package crontab

import (
	"context"
	"errors"
	"time"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"

	"jan-server/services/orchestrator-api/internal/domain/usage"
	"jan-server/services/orchestrator-api/internal/infrastructure/metrics"
	"jan-server/services/orchestrator-api/internal/utils/platformerrors"
)

// JobTimeout bounds each scheduled run.
const JobTimeout = 5 * time.Minute

// QuotaResetter starts a new period for expired quotas.
type QuotaResetter interface {
	ResetExpired(ctx context.Context) (int64, error)
}

// Crontab runs the monthly quota reset.
type Crontab struct {
	ctab     *crontab.Crontab
	resetter QuotaResetter
	schedule string
	log      zerolog.Logger
}

func NewCrontab(resetter QuotaResetter, schedule string, log zerolog.Logger) *Crontab {
	return &Crontab{
		ctab:     crontab.New(),
		resetter: resetter,
		schedule: schedule,
		log:      log.With().Str("component", "crontab").Logger(),
	}
}

// Run resets once on start, schedules the job and blocks until ctx is done.
func (c *Crontab) Run(ctx context.Context) error {
	c.resetQuotas(ctx)

	if err := c.ctab.AddJob(c.schedule, func() {
		jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), JobTimeout)
		defer cancel()
		c.resetQuotas(jobCtx)
	}); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add quota reset job")
	}
	c.log.Info().Str("schedule", c.schedule).Msg("quota reset scheduled")

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

func (c *Crontab) resetQuotas(ctx context.Context) {
	n, err := c.resetter.ResetExpired(ctx)
	if err != nil {
		if errors.Is(err, usage.ErrUnsupported) {
			c.log.Debug().Msg("quota store does not support resets")
			return
		}
		c.log.Error().Err(err).Msg("quota reset failed")
		return
	}
	if n > 0 {
		metrics.QuotaResetsTotal.Add(float64(n))
	}
}
