package announce

import (
	"context"
	"sync"
	"testing"
	"time"

	"coderelay/internal/relay"
	logx "coderelay/pkg/logx"
)

type fakeBroadcaster struct {
	mu    sync.Mutex
	calls []string
	fired chan string
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{fired: make(chan string, 16)}
}

func (f *fakeBroadcaster) Broadcast(ctx context.Context, source, text string) relay.Report {
	f.mu.Lock()
	f.calls = append(f.calls, source+"|"+text)
	f.mu.Unlock()
	select {
	case f.fired <- source:
	default:
	}
	return relay.Report{Total: 2, Delivered: 2}
}

func TestParseSchedule(t *testing.T) {
	cases := []struct {
		in       string
		wantSpec string
		wantErr  bool
	}{
		{in: "0 9 * * *", wantSpec: "0 9 * * *"},
		{in: "@daily", wantSpec: "@daily"},
		{in: "cron: */5 * * * *", wantSpec: "*/5 * * * *"},
		{in: "55m", wantSpec: "@every 55m0s"},
		{in: "02:30", wantSpec: "@every 2h30m0s"},
		{in: "every: 1h", wantSpec: "@every 1h0m0s"},
		{in: "", wantErr: true},
		{in: "cron:", wantErr: true},
		{in: "00:00", wantErr: true},
		{in: "01:75", wantErr: true},
		{in: "-5m", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			ps, err := ParseSchedule(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseSchedule(%q) expected error, got %+v", tc.in, ps)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSchedule(%q): %v", tc.in, err)
			}
			if got := ps.CronSpec(); got != tc.wantSpec {
				t.Fatalf("CronSpec = %q, want %q", got, tc.wantSpec)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	ok := []Announcement{{Name: "morning", Schedule: "0 9 * * *", Text: "Good morning"}}
	if err := Validate(ok); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	bad := map[string][]Announcement{
		"no name":   {{Schedule: "1h", Text: "x"}},
		"dup":       {{Name: "a", Schedule: "1h", Text: "x"}, {Name: "a", Schedule: "2h", Text: "y"}},
		"no text":   {{Name: "a", Schedule: "1h"}},
		"bad cron":  {{Name: "a", Schedule: "61 * * * *", Text: "x"}},
		"bad every": {{Name: "a", Schedule: "nope", Text: "x"}},
	}
	for name, items := range bad {
		if err := Validate(items); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestTriggerSendsThroughBroadcaster(t *testing.T) {
	bc := newFakeBroadcaster()
	s := New(Config{Items: []Announcement{{Name: "promo", Schedule: "@daily", Text: "Try code 007"}}}, bc, logx.Nop())

	rep, ok := s.Trigger(context.Background(), "promo")
	if !ok || rep.Delivered != 2 {
		t.Fatalf("Trigger = %+v, %v", rep, ok)
	}
	if _, ok := s.Trigger(context.Background(), "missing"); ok {
		t.Fatalf("Trigger(missing) should report false")
	}
	if len(bc.calls) != 1 || bc.calls[0] != "announce:promo|Try code 007" {
		t.Fatalf("calls = %v", bc.calls)
	}
}

func TestStartRegistersAndApplyReconciles(t *testing.T) {
	bc := newFakeBroadcaster()
	s := New(Config{Items: []Announcement{
		{Name: "a", Schedule: "@daily", Text: "x"},
		{Name: "broken", Schedule: "not a schedule", Text: "x"},
	}}, bc, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	es := s.Entries()
	if len(es) != 1 || es[0].Name != "a" || es[0].Next.IsZero() {
		t.Fatalf("entries = %+v", es)
	}

	s.Apply(Config{Items: []Announcement{
		{Name: "a", Schedule: "@daily", Text: "x"},
		{Name: "b", Schedule: "@hourly", Text: "y"},
	}})
	es = s.Entries()
	names := map[string]bool{}
	for _, e := range es {
		names[e.Name] = true
	}
	if len(es) != 2 || !names["a"] || !names["b"] {
		t.Fatalf("entries after apply = %+v", es)
	}

	s.Apply(Config{})
	if es := s.Entries(); len(es) != 0 {
		t.Fatalf("entries after clearing = %+v", es)
	}
}

func TestScheduledAnnouncementFires(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the scheduler")
	}
	bc := newFakeBroadcaster()
	s := New(Config{Items: []Announcement{{Name: "tick", Schedule: "every: 1s", Text: "tick"}}}, bc, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	select {
	case src := <-bc.fired:
		if src != "announce:tick" {
			t.Fatalf("source = %q", src)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("announcement did not fire")
	}
}
