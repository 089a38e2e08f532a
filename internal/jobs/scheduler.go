package jobs

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/example/campusdelivery/internal/services"
)

// OutboxFlusher delivers queued notifications.
type OutboxFlusher interface {
	Flush(ctx context.Context) (int, error)
}

// CartSweeper abandons carts nobody touched for a while.
type CartSweeper interface {
	AbandonStale(ctx context.Context, ttl time.Duration) (int64, error)
}

// CodeMonitor reports delivery code usage.
type CodeMonitor interface {
	Utilization(ctx context.Context) (services.CodeUtilization, error)
}

// Config sets job intervals and thresholds.
type Config struct {
	OutboxInterval      time.Duration
	CartTTL             time.Duration
	CartSweepInterval   time.Duration
	CodeCheckInterval   time.Duration
	CodeUtilizationWarn float64
}

// Scheduler runs the periodic maintenance jobs.
type Scheduler struct {
	scheduler gocron.Scheduler
}

// New registers every job; nothing runs until Run.
func New(ctx context.Context, cfg Config, outbox OutboxFlusher, carts CartSweeper, codes CodeMonitor) (*Scheduler, error) {
	if cfg.CartSweepInterval <= 0 {
		cfg.CartSweepInterval = time.Hour
	}
	if cfg.CodeCheckInterval <= 0 {
		cfg.CodeCheckInterval = 10 * time.Minute
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.Wrap(err, "create scheduler")
	}

	jobs := []struct {
		name     string
		interval time.Duration
		task     func()
	}{
		{"outbox-sweep", cfg.OutboxInterval, func() { FlushOutbox(ctx, outbox) }},
		{"abandon-stale-carts", cfg.CartSweepInterval, func() { AbandonCarts(ctx, carts, cfg.CartTTL) }},
		{"delivery-code-utilization", cfg.CodeCheckInterval, func() { CheckCodeUtilization(ctx, codes, cfg.CodeUtilizationWarn) }},
	}

	for _, job := range jobs {
		if job.interval <= 0 {
			log.Warn().Str("job", job.name).Msg("job disabled, interval not set")
			continue
		}
		if _, err := s.NewJob(
			gocron.DurationJob(job.interval),
			gocron.NewTask(job.task),
			gocron.WithName(job.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			_ = s.Shutdown()
			return nil, errors.Wrapf(err, "register job %s", job.name)
		}
	}

	return &Scheduler{scheduler: s}, nil
}

// Run starts the jobs and stops them when ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Int("jobs", len(s.scheduler.Jobs())).Msg("starting scheduler")
	s.scheduler.Start()

	<-ctx.Done()

	log.Info().Msg("stopping scheduler")
	return s.scheduler.Shutdown()
}

// FlushOutbox delivers what the immediate dispatch missed.
func FlushOutbox(ctx context.Context, outbox OutboxFlusher) int {
	delivered, err := outbox.Flush(ctx)
	if err != nil {
		log.Error().Err(err).Msg("outbox sweep failed")
		return 0
	}
	if delivered > 0 {
		log.Info().Int("delivered", delivered).Msg("outbox sweep delivered notifications")
	}
	return delivered
}

// AbandonCarts marks stale active carts abandoned.
func AbandonCarts(ctx context.Context, carts CartSweeper, ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	n, err := carts.AbandonStale(ctx, ttl)
	if err != nil {
		log.Error().Err(err).Msg("cart sweep failed")
		return 0
	}
	return n
}

// CheckCodeUtilization warns when the delivery code space is filling up.
// It reports whether the warning threshold was crossed.
func CheckCodeUtilization(ctx context.Context, codes CodeMonitor, warnAt float64) bool {
	usage, err := codes.Utilization(ctx)
	if err != nil {
		log.Error().Err(err).Msg("delivery code utilization check failed")
		return false
	}

	event := log.Debug()
	crossed := warnAt > 0 && usage.Ratio >= warnAt
	if crossed {
		event = log.Warn()
	}
	event.
		Int64("used", usage.Used).
		Int64("capacity", usage.Capacity).
		Float64("ratio", usage.Ratio).
		Msg("delivery code utilization")
	return crossed
}
