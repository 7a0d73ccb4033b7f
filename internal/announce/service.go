package announce

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"coderelay/internal/relay"
	logx "coderelay/pkg/logx"

	"github.com/robfig/cron/v3"
)

// Announcement is a message broadcast to all subscribers on a schedule.
type Announcement struct {
	Name     string
	Schedule string
	Text     string
}

type Config struct {
	Timezone string
	Items    []Announcement
}

// Broadcaster is the part of relay.Service announcements need.
type Broadcaster interface {
	Broadcast(ctx context.Context, source, text string) relay.Report
}

// EntryInfo describes a registered announcement.
type EntryInfo struct {
	Name string
	Spec string
	Next time.Time
}

// Service fires configured announcements through a cron scheduler.
// Apply may be called at any time; entries are rebuilt when running.
type Service struct {
	log    logx.Logger
	bc     Broadcaster
	parser cron.Parser

	mu      sync.Mutex
	cfg     Config
	c       *cron.Cron
	runCtx  context.Context
	entries map[string]cron.EntryID
	specs   map[string]string
}

func New(cfg Config, bc Broadcaster, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		bc:  bc,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries: map[string]cron.EntryID{},
		specs:   map[string]string{},
	}
}

// Validate checks names and schedules without registering anything.
func Validate(items []Announcement) error {
	p := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	seen := map[string]bool{}
	for i, a := range items {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			return fmt.Errorf("announcements[%d]: name required", i)
		}
		if seen[name] {
			return fmt.Errorf("announcements[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
		if strings.TrimSpace(a.Text) == "" {
			return fmt.Errorf("announcement %q: text required", name)
		}
		ps, err := ParseSchedule(a.Schedule)
		if err != nil {
			return fmt.Errorf("announcement %q: %w", name, err)
		}
		if _, err := p.Parse(ps.CronSpec()); err != nil {
			return fmt.Errorf("announcement %q: %w", name, err)
		}
	}
	return nil
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	loc := loadLocation(s.cfg.Timezone, s.log)
	s.runCtx = ctx
	clog := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(loc),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	s.registerLocked()
	s.c.Start()
	s.log.Info("service started", logx.String("tz", loc.String()), logx.Int("announcements", len(s.entries)))
}

func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.entries = map[string]cron.EntryID{}
	s.specs = map[string]string{}
	s.mu.Unlock()
	if c == nil {
		return
	}
	// Waits for running announcements unless ctx expires first.
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// Apply replaces the announcement set. A timezone change restarts the scheduler.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	if s.c == nil {
		s.mu.Unlock()
		return
	}
	if oldTZ != strings.TrimSpace(cfg.Timezone) {
		ctx := s.runCtx
		s.mu.Unlock()
		s.Stop(context.Background())
		s.Start(ctx)
		return
	}
	defer s.mu.Unlock()
	s.registerLocked()
}

// registerLocked reconciles cron entries with cfg.Items.
func (s *Service) registerLocked() {
	want := map[string]Announcement{}
	for _, a := range s.cfg.Items {
		want[strings.TrimSpace(a.Name)] = a
	}
	for name, id := range s.entries {
		a, keep := want[name]
		if keep && s.specs[name] == specKey(a) {
			continue
		}
		s.c.Remove(id)
		delete(s.entries, name)
		delete(s.specs, name)
	}
	for name, a := range want {
		if _, ok := s.entries[name]; ok {
			continue
		}
		ps, err := ParseSchedule(a.Schedule)
		if err != nil {
			s.log.Warn("announcement skipped", logx.String("name", name), logx.Err(err))
			continue
		}
		ann := a
		id, err := s.c.AddFunc(ps.CronSpec(), func() { s.fire(ann) })
		if err != nil {
			s.log.Warn("announcement skipped", logx.String("name", name), logx.String("schedule", a.Schedule), logx.Err(err))
			continue
		}
		s.entries[name] = id
		s.specs[name] = specKey(a)
		s.log.Debug("announcement registered", logx.String("name", name), logx.String("spec", ps.CronSpec()))
	}
}

func specKey(a Announcement) string { return a.Schedule + "\x00" + a.Text }

// Trigger fires the named announcement immediately.
func (s *Service) Trigger(ctx context.Context, name string) (relay.Report, bool) {
	s.mu.Lock()
	var found *Announcement
	for i := range s.cfg.Items {
		if strings.TrimSpace(s.cfg.Items[i].Name) == name {
			a := s.cfg.Items[i]
			found = &a
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		return relay.Report{}, false
	}
	return s.send(ctx, *found), true
}

func (s *Service) fire(a Announcement) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	s.send(ctx, a)
}

func (s *Service) send(ctx context.Context, a Announcement) relay.Report {
	name := strings.TrimSpace(a.Name)
	rep := s.bc.Broadcast(ctx, "announce:"+name, a.Text)
	s.log.Info("announcement sent",
		logx.String("name", name),
		logx.Int("delivered", rep.Delivered),
		logx.Int("failed", rep.Failed),
	)
	return rep
}

// Entries lists registered announcements sorted by next run.
func (s *Service) Entries() []EntryInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return nil
	}
	out := make([]EntryInfo, 0, len(s.entries))
	for name, id := range s.entries {
		e := s.c.Entry(id)
		ps, _ := ParseSchedule(s.cfgSchedule(name))
		out = append(out, EntryInfo{Name: name, Spec: ps.CronSpec(), Next: e.Next})
	}
	sortEntries(out)
	return out
}

func (s *Service) cfgSchedule(name string) string {
	for _, a := range s.cfg.Items {
		if strings.TrimSpace(a.Name) == name {
			return a.Schedule
		}
	}
	return ""
}

func sortEntries(es []EntryInfo) {
	slices.SortFunc(es, func(a, b EntryInfo) int {
		if c := a.Next.Compare(b.Next); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
}

func loadLocation(name string, log logx.Logger) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn("invalid timezone; using local", logx.String("tz", name), logx.Err(err))
		return time.Local
	}
	return loc
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
