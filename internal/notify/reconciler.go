package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/glenn-app/glenn-backend/internal/logger"
	"github.com/glenn-app/glenn-backend/internal/model"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// UndeliveredLister returns unsent notifications eligible for a retry.
type UndeliveredLister interface {
	ListUndelivered(ctx context.Context, maxAttempts int, olderThan time.Time, limit int) ([]model.Notification, error)
}

// ReconcilerOptions tunes the periodic re-delivery sweep.
type ReconcilerOptions struct {
	Interval    time.Duration
	MinAge      time.Duration
	BatchSize   int
	MaxAttempts int
}

// Reconciler periodically re-queues notifications whose push never got
// confirmed.
type Reconciler struct {
	store      UndeliveredLister
	dispatcher *Dispatcher
	opts       ReconcilerOptions
	log        *logger.Logger
	now        func() time.Time

	sched gocron.Scheduler
}

// NewReconciler constructs a Reconciler feeding d.
func NewReconciler(store UndeliveredLister, d *Dispatcher, opts ReconcilerOptions, log *logger.Logger) *Reconciler {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.MinAge < 0 {
		opts.MinAge = 0
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	return &Reconciler{
		store:      store,
		dispatcher: d,
		opts:       opts,
		log:        log.Named("reconciler"),
		now:        time.Now,
	}
}

// RunOnce re-queues one batch and returns how many records were accepted by
// the dispatcher.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	olderThan := r.now().Add(-r.opts.MinAge)
	pending, err := r.store.ListUndelivered(ctx, r.opts.MaxAttempts, olderThan, r.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list undelivered notifications: %w", err)
	}

	queued := 0
	for _, n := range pending {
		if r.dispatcher.Enqueue(n) {
			queued++
		}
	}
	if len(pending) > 0 {
		r.log.Info("re-queued undelivered notifications",
			zap.Int("found", len(pending)),
			zap.Int("queued", queued),
		)
	}
	return queued, nil
}

// Start schedules RunOnce every Interval. Overlapping runs are skipped.
func (r *Reconciler) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(r.opts.Interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), r.opts.Interval)
			defer cancel()
			if _, err := r.RunOnce(ctx); err != nil {
				r.log.Error("notification reconcile failed", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule reconcile job: %w", err)
	}

	sched.Start()
	r.sched = sched
	r.log.Info("notification reconciler started", zap.Duration("interval", r.opts.Interval))
	return nil
}

// Stop shuts the scheduler down, waiting for a running sweep to finish.
func (r *Reconciler) Stop() error {
	if r.sched == nil {
		return nil
	}
	sched := r.sched
	r.sched = nil
	if err := sched.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}
