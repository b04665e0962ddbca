package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/invigio/invigio-backend/internal/service"
)

// sweepBatchSize bounds how many expired attempts one tick may close.
const sweepBatchSize = 100

// ExpiryWorker periodically force-completes attempts whose deadline has
// passed without a final client call. Lazy expiry on mutating requests
// stays authoritative; this only tightens how long a silent attempt can
// linger in_progress.
type ExpiryWorker struct {
	attemptService *service.AttemptService
	interval       time.Duration
	log            zerolog.Logger
}

// NewExpiryWorker creates a new ExpiryWorker.
func NewExpiryWorker(attemptService *service.AttemptService, interval time.Duration, log zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		attemptService: attemptService,
		interval:       interval,
		log:            log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start begins the sweep loop. Call in a goroutine; returns when ctx ends.
func (w *ExpiryWorker) Start(ctx context.Context) {
	if w.interval <= 0 {
		w.log.Info().Msg("Expiry sweep disabled")
		return
	}

	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	closed, err := w.attemptService.SweepExpired(ctx, sweepBatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("Expiry sweep failed")
		return
	}
	if closed > 0 {
		w.log.Info().Int("closed", closed).Msg("Expired attempts closed")
	}
}
