package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"coderelay/internal/announce"
	"coderelay/internal/config"
	"coderelay/internal/eventbus"
	"coderelay/internal/observability/ops"
	"coderelay/internal/relay"
	rtsup "coderelay/internal/runtime/supervisor"
	"coderelay/internal/storage"
	kit "coderelay/internal/transport"
	telegram "coderelay/internal/transport/telegram/adapter"
	"coderelay/internal/transport/telegram/router"
	logx "coderelay/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	reg   *prometheus.Registry

	adapter *telegram.Adapter
	svc     *relay.Service
	router  *router.Router
	ann     *announce.Service
	ops     *ops.Server

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Logging starts before the adapter exists; the Telegram sink is attached
	// once it does. Target first, then Apply, so Apply doesn't warn about a
	// missing target.
	logSvc, root := logx.New(mapLogConfig(cfg), nil)
	log := root.With(logx.String("comp", "app"))

	openCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sc := mapStorageConfig(cfg)
	store, err := storage.Open(openCtx, sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: config.MustDuration(cfg.Telegram.PollTimeout, 10*time.Second),
	}, root.With(logx.String("comp", "telegram.adapter")))
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}
	logSvc.SetSender(ad)
	logSvc.SetTelegramTarget(logTarget(cfg), cfg.Logging.Telegram.ThreadID)
	logSvc.Apply(mapLogConfig(cfg))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := relay.NewMetrics(reg)
	bus := eventbus.New()
	reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "coderelay_eventbus_dropped_total",
		Help: "Events skipped because a subscriber was full.",
	}, func() float64 { return float64(eventbus.Dropped(bus)) }))

	svc := relay.NewService(relay.Deps{
		Registry:    relay.NewRegistry(openCtx, store, root.With(logx.String("comp", "registry")), metrics),
		Subscribers: relay.NewSubscribers(openCtx, store, root.With(logx.String("comp", "subscribers")), metrics),
		Auth:        relay.NewAuthGate(cfg.Telegram.AdminID),
		Broadcaster: relay.NewBroadcaster(ad, mapBroadcastOptions(cfg), root.With(logx.String("comp", "broadcast")), metrics),
		Store:       store,
		Bus:         bus,
		Log:         root.With(logx.String("comp", "relay")),
		Metrics:     metrics,
	})
	log.Info("relay state loaded",
		logx.Int64("admin_id", svc.Auth().AdminID()),
		logx.Bool("degraded", svc.Degraded()),
		logx.Int("codes", svc.Registry().Len()),
		logx.Int("subscribers", svc.Subscribers().Len()),
	)

	ann := announce.New(mapAnnounceConfig(cfg), svc, root.With(logx.String("comp", "announce")))
	rt := router.New(svc, ad, router.Options{BotUsername: ad.Username(), Announcer: ann}, root.With(logx.String("comp", "telegram.router")))

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		reg:     reg,
		adapter: ad,
		svc:     svc,
		router:  rt,
		ann:     ann,
		updates: make(chan kit.Update, 256),
	}
	a.ops = ops.New(mapOpsConfig(cfg), reg, a.health, root.With(logx.String("comp", "ops")))
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// health backs /healthz.
func (a *App) health() error {
	if err := a.Err(); err != nil {
		return err
	}
	if a.svc.Degraded() {
		return errors.New("storage: namespaces not loaded")
	}
	if sup := a.adapter.Supervisor(); sup != nil {
		if err := sup.Err(); err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
	}
	if sup := a.router.Supervisor(); sup != nil {
		if err := sup.Err(); err != nil {
			return fmt.Errorf("router: %w", err)
		}
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// Reloads are validated before commit; an unknown timezone would
	// otherwise only surface as a warning when announcements are rebuilt.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("timezone: invalid %q: %w", tz, err)
			}
		}
		return nil
	})

	if a.svc.Degraded() {
		a.sup.GoRestart("storage.recover", func(c context.Context) error {
			if err := a.svc.Recover(c); err != nil {
				return err
			}
			a.log.Info("storage recovered")
			return nil
		}, rtsup.WithRestartBackoff(time.Second, 30*time.Second))
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.ann.Start(a.sup.Context())
	a.ops.Start(a.sup.Context())

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	if strings.TrimSpace(a.cfgm.Path()) != "" {
		a.sup.Go("config.watch", func(c context.Context) error {
			return a.cfgm.Watch(c)
		})
	}
	a.sup.Go0("systemd.watchdog", a.runWatchdog)

	a.log.Info("app started",
		logx.String("bot", a.adapter.Username()),
		logx.Int("announcements", len(a.ann.Entries())),
	)
	return nil
}

// applyConfig hot-applies logging, broadcast and announcement changes.
func (a *App) applyConfig(prev, next *config.Config) {
	ch := config.SummarizeConfigChange(prev, next)
	if len(ch.RestartRequired) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("fields", strings.Join(ch.RestartRequired, ",")))
	}
	if len(ch.Sections) == 0 {
		a.log.Info("config reloaded (no hot changes)")
		return
	}
	if ch.Has("logging") {
		a.logs.SetTelegramTarget(logTarget(next), next.Logging.Telegram.ThreadID)
		a.logs.Apply(mapLogConfig(next))
	}
	if ch.Has("broadcast") {
		a.svc.Broadcaster().Apply(mapBroadcastOptions(next))
	}
	if ch.Has("announcements") {
		a.ann.Apply(mapAnnounceConfig(next))
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Data: ch.Sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// step bounds one shutdown action so a stuck component can't stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
			go func() {
				<-done
				a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", time.Since(start)))
			}()
		}
	}

	step("announce", 2*time.Second, func(c context.Context) error { a.ann.Stop(c); return nil })
	step("ops", 1*time.Second, func(c context.Context) error {
		addr, serveErr := a.ops.Addr(), a.ops.Err()
		a.ops.Stop(c)
		if addr != "" {
			a.log.Debug("ops server closed", logx.String("addr", addr))
		}
		return serveErr
	})
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	// The dispatcher drains queued jobs, which may still reply, so it waits for the adapter stop first.
	step("router", 4*time.Second, func(c context.Context) error {
		for a.router.Supervisor() != nil {
			select {
			case <-c.Done():
				return c.Err()
			case <-time.After(20 * time.Millisecond):
			}
		}
		return nil
	})
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped", logx.String("reason", string(reason)))
	return a.logs.Close()
}
