// Package notify records user notifications and delivers them as push
// messages in the background.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/glenn-app/glenn-backend/internal/logger"
	"github.com/glenn-app/glenn-backend/internal/metrics"
	"github.com/glenn-app/glenn-backend/internal/model"
	"github.com/glenn-app/glenn-backend/internal/push"
	"github.com/glenn-app/glenn-backend/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Store persists notification records.
type Store interface {
	Create(ctx context.Context, n *model.Notification) error
	MarkSent(ctx context.Context, id string) error
	RecordAttempt(ctx context.Context, id string) (int, error)
}

// DeviceStore looks up push registrations.
type DeviceStore interface {
	GetDevice(ctx context.Context, userID string) (*model.Device, error)
}

// Pusher delivers a single push message.
type Pusher interface {
	Push(ctx context.Context, msg push.Message) error
}

// Options tunes the dispatcher.
type Options struct {
	Workers       int
	QueueSize     int
	RatePerSecond float64 // 0 disables throttling
	Burst         int
	MaxAttempts   int
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	return o
}

// Dispatcher records notifications synchronously and pushes them from a
// bounded pool of workers. A record's sent flag is set only after the
// provider confirmed delivery.
type Dispatcher struct {
	store   Store
	devices DeviceStore
	pusher  Pusher
	limiter *rate.Limiter
	log     *logger.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	opts    Options

	queue chan model.Notification
	quit  chan struct{}
	wg    sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
	ctx       context.Context
	cancel    context.CancelFunc

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewDispatcher constructs a Dispatcher. Call Start before use.
func NewDispatcher(store Store, devices DeviceStore, pusher Pusher, opts Options, log *logger.Logger, m *metrics.Metrics) *Dispatcher {
	opts = opts.withDefaults()
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	return &Dispatcher{
		store:   store,
		devices: devices,
		pusher:  pusher,
		limiter: rate.NewLimiter(limit, opts.Burst),
		log:     log.Named("notify"),
		metrics: m,
		tracer:  otel.Tracer("github.com/glenn-app/glenn-backend/internal/notify"),
		opts:    opts,
		queue:   make(chan model.Notification, opts.QueueSize),
		quit:    make(chan struct{}),
		pending: make(map[string]struct{}),
	}
}

// Start launches the workers.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		d.ctx, d.cancel = context.WithCancel(context.Background())
		for i := 0; i < d.opts.Workers; i++ {
			d.wg.Add(1)
			go d.worker()
		}
		d.log.Info("notification dispatcher started",
			zap.Int("workers", d.opts.Workers),
			zap.Int("queue_size", d.opts.QueueSize),
		)
	})
}

// Stop stops accepting jobs and waits for in-flight deliveries until ctx
// expires, after which they are cancelled. Jobs still queued are abandoned;
// their records stay unsent for the reconciler.
func (d *Dispatcher) Stop(ctx context.Context) error {
	var err error
	d.stopOnce.Do(func() {
		close(d.quit)

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		if d.cancel != nil {
			d.cancel()
		}
		<-done
		d.log.Info("notification dispatcher stopped", zap.Int("abandoned", len(d.queue)))
	})
	return err
}

// Notify stores n and queues it for delivery. Storage and queueing failures
// are logged and never reported to the caller.
func (d *Dispatcher) Notify(ctx context.Context, n model.NewNotification) {
	log := d.log.WithContext(ctx)

	rec := model.Notification{
		UserID:  n.UserID,
		Type:    n.Type,
		Title:   n.Title,
		Message: n.Message,
	}
	if n.Data != nil {
		data, err := json.Marshal(n.Data)
		if err != nil {
			log.Warn("notification payload not encodable", zap.Error(err))
		} else {
			rec.Data = data
		}
	}

	if err := d.store.Create(ctx, &rec); err != nil {
		// Deliver anyway; without an id there is nothing to mark sent.
		rec.ID = ""
		log.Error("failed to store notification",
			zap.String("user_id", n.UserID),
			zap.String("type", n.Type),
			zap.Error(err),
		)
	}

	d.Enqueue(rec)
}

// Enqueue hands n to the workers without blocking. It returns false when the
// dispatcher is stopped, the queue is full, or n is already queued.
func (d *Dispatcher) Enqueue(n model.Notification) bool {
	select {
	case <-d.quit:
		d.metrics.Push("dropped")
		return false
	default:
	}

	if n.ID != "" {
		d.mu.Lock()
		if _, queued := d.pending[n.ID]; queued {
			d.mu.Unlock()
			return false
		}
		d.pending[n.ID] = struct{}{}
		d.mu.Unlock()
	}

	select {
	case d.queue <- n:
		d.metrics.QueueDepth(len(d.queue))
		return true
	default:
		d.release(n.ID)
		d.metrics.Push("dropped")
		d.log.Warn("notification queue full, delivery deferred",
			zap.String("notification_id", n.ID),
			zap.String("user_id", n.UserID),
		)
		return false
	}
}

func (d *Dispatcher) release(id string) {
	if id == "" {
		return
	}
	d.mu.Lock()
	delete(d.pending, id)
	d.mu.Unlock()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.quit:
			return
		case n := <-d.queue:
			d.metrics.QueueDepth(len(d.queue))
			d.deliver(d.ctx, n)
			d.release(n.ID)
		}
	}
}

// deliver makes one delivery attempt for n.
func (d *Dispatcher) deliver(ctx context.Context, n model.Notification) {
	ctx, span := d.tracer.Start(ctx, "notification.deliver", trace.WithAttributes(
		attribute.String("notification.id", n.ID),
		attribute.String("notification.type", n.Type),
	))
	defer span.End()

	log := d.log.With(
		zap.String("notification_id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("type", n.Type),
	)

	device, err := d.devices.GetDevice(ctx, n.UserID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		d.metrics.Push("failed")
		log.Warn("device lookup failed", zap.Error(err))
		return
	}
	if !device.Deliverable() {
		d.metrics.Push("skipped")
		log.Debug("no deliverable device, notification left unsent")
		return
	}

	attempts := 0
	if n.ID != "" {
		if attempts, err = d.store.RecordAttempt(ctx, n.ID); err != nil {
			log.Warn("failed to record delivery attempt", zap.Error(err))
		}
	}

	if err := d.limiter.Wait(ctx); err != nil {
		log.Warn("delivery cancelled while throttled", zap.Error(err))
		return
	}

	start := time.Now()
	err = d.pusher.Push(ctx, push.Message{
		PlayerIDs: []string{device.PlayerID},
		Heading:   n.Title,
		Content:   n.Message,
		Data:      pushData(n),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.metrics.Push("failed")
		log.Warn("push delivery failed, notification left unsent",
			zap.Int("attempt", attempts),
			zap.Duration("took", time.Since(start)),
			zap.Error(err),
		)
		if attempts >= d.opts.MaxAttempts {
			d.metrics.DeadLettered(1)
			log.Error("notification dead-lettered after max delivery attempts",
				zap.Int("max_attempts", d.opts.MaxAttempts),
			)
		}
		return
	}

	d.metrics.Push("sent")
	if n.ID == "" {
		return
	}
	if err := d.store.MarkSent(ctx, n.ID); err != nil {
		log.Error("delivered but failed to mark notification sent", zap.Error(err))
		return
	}
	log.Debug("notification delivered", zap.Duration("took", time.Since(start)))
}

// pushData is the structured payload attached to the push message.
func pushData(n model.Notification) map[string]any {
	data := map[string]any{}
	if len(n.Data) > 0 {
		_ = json.Unmarshal(n.Data, &data)
	}
	data["type"] = n.Type
	if n.ID != "" {
		data["notification_id"] = n.ID
	}
	return data
}
