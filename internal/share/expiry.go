package share

import (
	"context"
	"time"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"
)

const sweepTimeout = 2 * time.Minute

// ExpirySweeper periodically deactivates expired snapshots.
type ExpirySweeper struct {
	ctab     *crontab.Crontab
	svc      *Service
	schedule string
	log      zerolog.Logger
}

func NewExpirySweeper(svc *Service, schedule string, log zerolog.Logger) *ExpirySweeper {
	if schedule == "" {
		schedule = "0 * * * *"
	}
	return &ExpirySweeper{ctab: crontab.New(), svc: svc, schedule: schedule, log: log}
}

// Run sweeps once, schedules the job, and blocks until ctx is done.
func (e *ExpirySweeper) Run(ctx context.Context) error {
	e.sweep(ctx)

	if err := e.ctab.AddJob(e.schedule, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		e.sweep(jobCtx)
	}); err != nil {
		e.ctab.Shutdown()
		return err
	}
	e.log.Info().Str("schedule", e.schedule).Msg("share expiry sweep scheduled")

	<-ctx.Done()
	e.ctab.Shutdown()
	return nil
}

func (e *ExpirySweeper) sweep(ctx context.Context) {
	n, err := e.svc.ExpireDue(ctx)
	if err != nil {
		e.log.Error().Err(err).Msg("share expiry sweep failed")
		return
	}
	if n > 0 {
		e.log.Info().Int64("deactivated", n).Msg("expired shares deactivated")
	}
}
