// Package worker runs the raid background jobs on a gocron scheduler.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"city-raid/internal/config"
	"city-raid/internal/pkg/metrics"
	"city-raid/internal/pkg/ratelimit"
	"city-raid/internal/service"
)

// Job names.
const (
	JobTagSweep        = "tag_sweep"
	JobRewardReconcile = "reward_reconcile"
	JobLimiterSweep    = "limiter_sweep"
)

const (
	reconcileBatch = 100
	jobTimeout     = 30 * time.Second
)

// TagExpirer deactivates raid tags past their expiry.
type TagExpirer interface {
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// Dependencies holds what the jobs operate on.
type Dependencies struct {
	Config   config.JobsConfig
	Tags     TagExpirer
	Rewards  *service.Rewards
	Raids    service.RaidStore
	Limiters []ratelimit.Sweeper
	Clock    clockwork.Clock
}

// Worker owns the scheduler and the job bodies.
type Worker struct {
	cfg      config.JobsConfig
	tags     TagExpirer
	rewards  *service.Rewards
	raids    service.RaidStore
	limiters []ratelimit.Sweeper
	clock    clockwork.Clock
	sched    gocron.Scheduler
}

// New creates a Worker and registers its jobs. Jobs with a non-positive
// interval are skipped.
func New(deps Dependencies) (*Worker, error) {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	sched, err := gocron.NewScheduler(gocron.WithClock(deps.Clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	w := &Worker{
		cfg:      deps.Config,
		tags:     deps.Tags,
		rewards:  deps.Rewards,
		raids:    deps.Raids,
		limiters: deps.Limiters,
		clock:    deps.Clock,
		sched:    sched,
	}

	jobs := []struct {
		name     string
		interval time.Duration
		enabled  bool
		run      func()
	}{
		{JobTagSweep, w.cfg.TagSweepInterval, w.tags != nil, w.runTagSweep},
		{JobRewardReconcile, w.cfg.RewardReconcileInterval, w.rewards != nil && w.raids != nil, w.runRewardReconcile},
		{JobLimiterSweep, w.cfg.LimiterSweepInterval, len(w.limiters) > 0, w.runLimiterSweep},
	}
	for _, j := range jobs {
		if !j.enabled || j.interval <= 0 {
			continue
		}
		_, err := sched.NewJob(
			gocron.DurationJob(j.interval),
			gocron.NewTask(j.run),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return nil, fmt.Errorf("failed to schedule %s: %w", j.name, err)
		}
		log.Debug().Str("job", j.name).Dur("interval", j.interval).Msg("Job scheduled")
	}

	return w, nil
}

// Start starts the scheduler.
func (w *Worker) Start() {
	w.sched.Start()
	log.Info().Int("jobs", len(w.sched.Jobs())).Msg("Background jobs started")
}

// Stop shuts the scheduler down, waiting for running jobs.
func (w *Worker) Stop() error {
	return w.sched.Shutdown()
}

// JobNames returns the names of the registered jobs.
func (w *Worker) JobNames() []string {
	var names []string
	for _, j := range w.sched.Jobs() {
		names = append(names, j.Name())
	}
	return names
}

// SweepTags deactivates expired raid tags.
func (w *Worker) SweepTags(ctx context.Context) (int, error) {
	n, err := w.tags.DeactivateExpired(ctx, w.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("deactivate expired tags: %w", err)
	}
	return int(n), nil
}

// ReconcileRewards grants rewards for committed raids whose grant never completed.
func (w *Worker) ReconcileRewards(ctx context.Context) (int, error) {
	return w.rewards.Reconcile(ctx, w.raids, w.clock.Now(), w.cfg.RewardGrace, reconcileBatch)
}

// SweepLimiters drops idle rate-limit state.
func (w *Worker) SweepLimiters() int {
	total := 0
	for _, l := range w.limiters {
		total += l.Sweep()
	}
	return total
}

func (w *Worker) runTagSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	n, err := w.SweepTags(ctx)
	w.report(JobTagSweep, n, err)
}

func (w *Worker) runRewardReconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	n, err := w.ReconcileRewards(ctx)
	w.report(JobRewardReconcile, n, err)
}

func (w *Worker) runLimiterSweep() {
	w.report(JobLimiterSweep, w.SweepLimiters(), nil)
}

func (w *Worker) report(job string, items int, err error) {
	metrics.RecordJobRun(job, items, err)
	if err != nil {
		log.Error().Err(err).Str("job", job).Msg("Background job failed")
		return
	}
	if items > 0 {
		log.Info().Str("job", job).Int("items", items).Msg("Background job processed items")
	}
}
