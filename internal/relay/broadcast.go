package relay

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	logx "coderelay/pkg/logx"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Deliverer sends one message to one recipient. It is owned by the transport.
type Deliverer interface {
	Deliver(ctx context.Context, recipient int64, message string) error
}

type DelivererFunc func(ctx context.Context, recipient int64, message string) error

func (f DelivererFunc) Deliver(ctx context.Context, recipient int64, message string) error {
	return f(ctx, recipient, message)
}

type BroadcastOptions struct {
	// Workers bounds concurrent deliveries. <=1 sends sequentially.
	Workers int
	// RatePerSec paces deliveries. <=0 disables pacing.
	RatePerSec float64
	// DeliveryTimeout bounds a single attempt. 0 means no bound.
	DeliveryTimeout time.Duration
}

// Report summarises one fan-out.
type Report struct {
	ID        string
	Total     int
	Delivered int
	Failed    int
	Took      time.Duration
}

// Broadcaster fans a message out to recipients, one attempt each.
// Failures are logged and counted; they never stop the remaining sends.
type Broadcaster struct {
	deliver Deliverer
	log     logx.Logger
	metrics *Metrics

	mu      sync.Mutex
	opts    BroadcastOptions
	limiter *rate.Limiter
}

func NewBroadcaster(d Deliverer, opts BroadcastOptions, log logx.Logger, m *Metrics) *Broadcaster {
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Broadcaster{deliver: d, log: log, metrics: m}
	b.Apply(opts)
	return b
}

// Apply swaps options for broadcasts started afterwards.
func (b *Broadcaster) Apply(opts BroadcastOptions) {
	var lim *rate.Limiter
	if opts.RatePerSec > 0 {
		burst := max(1, int(opts.RatePerSec))
		lim = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}
	b.mu.Lock()
	b.opts = opts
	b.limiter = lim
	b.mu.Unlock()
}

func (b *Broadcaster) Options() BroadcastOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opts
}

// Send always runs to completion; cancellation of ctx is ignored.
func (b *Broadcaster) Send(ctx context.Context, message string, recipients []int64) Report {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	// Snapshot mutable state to avoid races with Apply().
	b.mu.Lock()
	opts := b.opts
	lim := b.limiter
	b.mu.Unlock()

	rep := Report{ID: uuid.NewString(), Total: len(recipients)}
	log := b.log.With(logx.String("broadcast", rep.ID))
	log.Info("broadcast started", logx.Int("total", rep.Total), logx.Int("workers", max(1, opts.Workers)))

	var delivered, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(max(1, opts.Workers))
	for _, id := range recipients {
		g.Go(func() error {
			if lim != nil {
				_ = lim.Wait(ctx)
			}
			if err := b.deliverOne(ctx, opts.DeliveryTimeout, id, message); err != nil {
				failed.Add(1)
				b.metrics.delivery(false)
				log.Warn("broadcast delivery failed", logx.Int64("recipient", id), logx.Err(err))
				return nil
			}
			delivered.Add(1)
			b.metrics.delivery(true)
			return nil
		})
	}
	_ = g.Wait()

	rep.Delivered = int(delivered.Load())
	rep.Failed = int(failed.Load())
	rep.Took = time.Since(start)
	b.metrics.broadcastDone(rep.Took)

	fields := []logx.Field{
		logx.Int("total", rep.Total),
		logx.Int("delivered", rep.Delivered),
		logx.Int("failed", rep.Failed),
		logx.Duration("dur", rep.Took),
	}
	if rep.Failed > 0 {
		log.Warn("broadcast finished with failures", fields...)
	} else {
		log.Info("broadcast finished", fields...)
	}
	return rep
}

func (b *Broadcaster) deliverOne(ctx context.Context, timeout time.Duration, id int64, message string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic in deliverer", logx.Int64("recipient", id), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("deliver panic: %v", r)
		}
	}()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return b.deliver.Deliver(ctx, id, message)
}
