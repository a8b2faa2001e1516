package sync

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// MarketClock reports whether any tracked exchange is in session
type MarketClock interface {
	AnyOpen(at time.Time) bool
}

// Job polls the broker order book and feeds newly completed orders
// through the sync pipeline. Order-level dedup means the poll can run
// as often as the broker tolerates; an order is only ever applied
// once.
type Job struct {
	service *Service
	clock   MarketClock
	timeout time.Duration
	log     zerolog.Logger
}

// NewJob creates the polling job. A nil clock disables the
// market-hours gate.
func NewJob(service *Service, clock MarketClock, log zerolog.Logger) *Job {
	return &Job{
		service: service,
		clock:   clock,
		timeout: 60 * time.Second,
		log:     log.With().Str("job", "order_sync").Logger(),
	}
}

// Name returns the job name for the scheduler
func (j *Job) Name() string {
	return "order_sync"
}

// Run executes one poll cycle
func (j *Job) Run() error {
	if j.clock != nil && !j.clock.AnyOpen(time.Now()) {
		j.log.Debug().Msg("Markets closed, skipping poll")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	result, err := j.service.Run(ctx)
	if err != nil {
		return err
	}

	if result.NewFills > 0 || result.Operations > 0 {
		j.log.Info().
			Int("new_fills", result.NewFills).
			Int("operations", result.Operations).
			Msg("Order sync applied changes")
	}

	return nil
}
