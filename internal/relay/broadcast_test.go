package relay

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "coderelay/pkg/logx"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// fakeDeliverer records attempts and fails for ids listed in fail.
type fakeDeliverer struct {
	mu       sync.Mutex
	attempts map[int64]int
	fail     map[int64]bool
	panicOn  int64
}

func newFakeDeliverer(fail ...int64) *fakeDeliverer {
	f := &fakeDeliverer{attempts: map[int64]int{}, fail: map[int64]bool{}}
	for _, id := range fail {
		f.fail[id] = true
	}
	return f
}

func (f *fakeDeliverer) Deliver(ctx context.Context, id int64, msg string) error {
	f.mu.Lock()
	f.attempts[id]++
	f.mu.Unlock()
	if f.panicOn != 0 && id == f.panicOn {
		panic("boom")
	}
	if f.fail[id] {
		return errors.New("bot was blocked by the user")
	}
	return nil
}

func (f *fakeDeliverer) attemptsFor(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[id]
}

func TestBroadcastCountsDeliveriesAndSkipsFailures(t *testing.T) {
	d := newFakeDeliverer(2)
	b := NewBroadcaster(d, BroadcastOptions{}, logx.Nop(), nil)

	rep := b.Send(context.Background(), "Hi all", []int64{1, 2, 3})

	require.Equal(t, 3, rep.Total)
	require.Equal(t, 2, rep.Delivered)
	require.Equal(t, 1, rep.Failed)
	require.NotEmpty(t, rep.ID)
	for _, id := range []int64{1, 2, 3} {
		require.Equal(t, 1, d.attemptsFor(id), "one attempt per recipient, no retries")
	}
}

func TestBroadcastAllFailingStillCompletes(t *testing.T) {
	ids := []int64{1, 2, 3, 4, 5}
	d := newFakeDeliverer(ids...)
	rep := NewBroadcaster(d, BroadcastOptions{Workers: 3}, logx.Nop(), nil).Send(context.Background(), "x", ids)
	require.Equal(t, 0, rep.Delivered)
	require.Equal(t, 5, rep.Failed)
}

func TestBroadcastPanickingDelivererCountsAsFailure(t *testing.T) {
	d := newFakeDeliverer()
	d.panicOn = 2
	rep := NewBroadcaster(d, BroadcastOptions{}, logx.Nop(), nil).Send(context.Background(), "x", []int64{1, 2, 3})
	require.Equal(t, 2, rep.Delivered)
	require.Equal(t, 1, rep.Failed)
}

func TestBroadcastIgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var seenErr atomic.Int64
	d := DelivererFunc(func(ctx context.Context, id int64, msg string) error {
		if ctx.Err() != nil {
			seenErr.Add(1)
		}
		return nil
	})
	rep := NewBroadcaster(d, BroadcastOptions{RatePerSec: 1000}, logx.Nop(), nil).Send(ctx, "x", []int64{1, 2, 3})
	require.Equal(t, 3, rep.Delivered)
	require.Zero(t, seenErr.Load())
}

func TestBroadcastWorkersBoundConcurrency(t *testing.T) {
	var cur, peak atomic.Int64
	d := DelivererFunc(func(ctx context.Context, id int64, msg string) error {
		n := cur.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		cur.Add(-1)
		return nil
	})
	ids := make([]int64, 20)
	for i := range ids {
		ids[i] = int64(i + 1)
	}

	rep := NewBroadcaster(d, BroadcastOptions{Workers: 4}, logx.Nop(), nil).Send(context.Background(), "x", ids)
	require.Equal(t, 20, rep.Delivered)
	require.LessOrEqual(t, peak.Load(), int64(4))

	peak.Store(0)
	NewBroadcaster(d, BroadcastOptions{}, logx.Nop(), nil).Send(context.Background(), "x", ids[:5])
	require.Equal(t, int64(1), peak.Load(), "default is sequential")
}

func TestBroadcastDeliveryTimeout(t *testing.T) {
	d := DelivererFunc(func(ctx context.Context, id int64, msg string) error {
		if id == 2 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	rep := NewBroadcaster(d, BroadcastOptions{DeliveryTimeout: 20 * time.Millisecond}, logx.Nop(), nil).
		Send(context.Background(), "x", []int64{1, 2, 3})
	require.Equal(t, 2, rep.Delivered)
	require.Equal(t, 1, rep.Failed)
}

func TestBroadcastEmptyRecipients(t *testing.T) {
	rep := NewBroadcaster(newFakeDeliverer(), BroadcastOptions{}, logx.Nop(), nil).Send(context.Background(), "x", nil)
	require.Equal(t, Report{ID: rep.ID, Took: rep.Took}, rep)
}

func TestBroadcastMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	NewBroadcaster(newFakeDeliverer(3), BroadcastOptions{}, logx.Nop(), m).Send(context.Background(), "x", []int64{1, 2, 3})

	require.Equal(t, float64(2), testutil.ToFloat64(m.Deliveries.WithLabelValues("ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.Deliveries.WithLabelValues("fail")))
}

func TestBroadcastApplySwapsOptions(t *testing.T) {
	b := NewBroadcaster(newFakeDeliverer(), BroadcastOptions{Workers: 1}, logx.Nop(), nil)
	b.Apply(BroadcastOptions{Workers: 8, RatePerSec: 25})
	require.Equal(t, BroadcastOptions{Workers: 8, RatePerSec: 25}, b.Options())
}
