package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/deepak748030/agencyflow-crm-sub000/internal/metrics"
	"github.com/deepak748030/agencyflow-crm-sub000/internal/repository"
)

const (
	DefaultPollInterval   = 5 * time.Second
	DefaultBatchSize      = 100
	DefaultMaxAttempts    = 8
	DefaultBaseRetryDelay = 2 * time.Second
	DefaultRetention      = 7 * 24 * time.Hour
	parkedRetryDelay      = time.Hour
	cleanupEvery          = time.Hour
)

// Dispatcher drains the outbox onto a Publisher. Failed events are retried with
// exponential backoff; after maxAttempts they are parked and retried hourly.
type Dispatcher struct {
	outbox         repository.OutboxRepositoryInterface
	publisher      Publisher
	log            *zap.Logger
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	baseRetryDelay time.Duration
	retention      time.Duration
	now            func() time.Time
}

func NewDispatcher(outbox repository.OutboxRepositoryInterface, publisher Publisher, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		outbox:         outbox,
		publisher:      publisher,
		log:            log,
		pollInterval:   DefaultPollInterval,
		batchSize:      DefaultBatchSize,
		maxAttempts:    DefaultMaxAttempts,
		baseRetryDelay: DefaultBaseRetryDelay,
		retention:      DefaultRetention,
		now:            time.Now,
	}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	lastCleanup := d.now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.DispatchOnce()
			if d.now().Sub(lastCleanup) >= cleanupEvery {
				if err := d.outbox.CleanupDispatched(d.retention); err != nil {
					d.log.Warn("outbox cleanup failed", zap.Error(err))
				}
				lastCleanup = d.now()
			}
		}
	}
}

// DispatchOnce publishes one batch of due events and returns how many were delivered.
func (d *Dispatcher) DispatchOnce() int {
	due, err := d.outbox.GetRetryable(d.now(), d.batchSize)
	if err != nil {
		d.log.Error("fetch outbox events", zap.Error(err))
		return 0
	}

	delivered := 0
	for i := range due {
		event := &due[i]
		kind := string(event.Kind)

		if err := d.publisher.Publish(event.Subject(), []byte(event.Payload)); err != nil {
			attempts := event.Attempts + 1
			next := d.now().Add(d.backoff(attempts))
			if markErr := d.outbox.MarkAttempted(event.ID, attempts, &next, err.Error()); markErr != nil {
				d.log.Error("mark outbox attempt", zap.Uint("event_id", event.ID), zap.Error(markErr))
			}
			metrics.OutboxDispatched.WithLabelValues(kind, "failed").Inc()
			d.log.Warn("outbox publish failed",
				zap.Uint("event_id", event.ID),
				zap.String("kind", kind),
				zap.Int("attempts", attempts),
				zap.Error(err),
			)
			continue
		}

		if err := d.outbox.MarkDispatched(event.ID, d.now()); err != nil {
			// Delivered but not marked; consumers dedupe on dedupe_key.
			d.log.Error("mark outbox dispatched", zap.Uint("event_id", event.ID), zap.Error(err))
		}
		metrics.OutboxDispatched.WithLabelValues(kind, "sent").Inc()
		delivered++
	}
	return delivered
}

// backoff is base*2^attempts, capped by parking once maxAttempts is reached.
func (d *Dispatcher) backoff(attempts int) time.Duration {
	if attempts >= d.maxAttempts {
		return parkedRetryDelay
	}
	return d.baseRetryDelay * time.Duration(1<<uint(attempts))
}
