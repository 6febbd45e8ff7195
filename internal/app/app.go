package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hwbot/internal/config"
	"hwbot/internal/eventbus"
	"hwbot/internal/homework"
	"hwbot/internal/metrics"
	"hwbot/internal/notifier"
	"hwbot/internal/poller"
	rtsup "hwbot/internal/runtime/supervisor"
	"hwbot/internal/storage"
	kit "hwbot/internal/transport"
	telegram "hwbot/internal/transport/telegram/adapter"
	"hwbot/internal/transport/telegram/router"
	logx "hwbot/pkg/logx"
	"hwbot/pkg/systemd"
)

// Options customize New. The zero value reads the environment and talks
// to the real APIs.
type Options struct {
	ConfigPath string
	// Lookup replaces os.LookupEnv.
	Lookup func(string) (string, bool)
	// TelegramAPIURL overrides the Bot API base URL.
	TelegramAPIURL string
	// Offline skips the Bot API getMe call on startup.
	Offline bool
}

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter
	client  *homework.Client
	notif   *notifier.Service
	poller  *poller.Poller
	router  *router.Router

	metrics *metrics.Collectors
	mserver *metrics.Server
	sd      *systemd.Notifier

	commands bool
	updates  chan kit.Update
}

// New loads the configuration and builds every component. It fails with
// config.ErrMissingSecrets when a required secret is absent.
func New(opts Options) (*App, error) {
	cfgm := config.NewConfigManager(opts.ConfigPath)
	if opts.Lookup != nil {
		cfgm.SetLookup(opts.Lookup)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.RequireSecrets(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, logSvc.Logger().With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}
	// close the store when a later step fails
	ok := false
	defer func() {
		if !ok && store != nil {
			_ = store.Close()
		}
	}()

	copts, err := mapClientOptions(cfg, logSvc.Logger().With(logx.String("comp", "homework")))
	if err != nil {
		return nil, err
	}
	client, err := homework.NewClient(copts)
	if err != nil {
		return nil, err
	}

	acfg, err := mapAdapterConfig(cfg)
	if err != nil {
		return nil, err
	}
	acfg.APIURL = opts.TelegramAPIURL
	acfg.Offline = opts.Offline
	ad, err := telegram.New(acfg, logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, logSvc.Logger().With(logx.String("comp", "notifier")), bus, store)

	sched, err := mapSchedule(cfg)
	if err != nil {
		return nil, fmt.Errorf("poll.schedule: %w", err)
	}
	p := poller.New(client, notif, poller.Options{
		Schedule:    sched,
		RelayErrors: cfg.Poll.RelayErrors,
		Store:       store,
		Bus:         bus,
		Log:         logSvc.Logger().With(logx.String("comp", "poller")),
	})

	a := &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		client:   client,
		notif:    notif,
		poller:   p,
		metrics:  metrics.NewCollectors(),
		sd:       &systemd.Notifier{Log: logSvc.Logger().With(logx.String("comp", "systemd"))},
		commands: cfg.Telegram.Commands,
		updates:  make(chan kit.Update, 64),
	}
	a.mserver = metrics.NewServer(mapMetricsConfig(cfg), a.metrics, a.health, logSvc.Logger().With(logx.String("comp", "metrics")))

	a.router = router.New(ad, cfg.Telegram.ChatID, logSvc.Logger().With(logx.String("comp", "commands")))
	if err := a.router.Register(a.botCommands()...); err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

func (a *App) Poller() *poller.Poller       { return a.poller }
func (a *App) Notifier() *notifier.Service  { return a.notif }
func (a *App) Metrics() *metrics.Collectors { return a.metrics }

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

// health backs /healthz: unhealthy while the last cycle failed.
func (a *App) health() error {
	snap := a.poller.Snapshot()
	if snap.LastError != "" {
		return fmt.Errorf("last poll failed (%s): %s", snap.LastOutcome, snap.LastError)
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.logs.Logger().With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateRuntime(cfg)
	})

	if err := a.poller.Init(runCtx); err != nil {
		return err
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.consume", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.onEvent(e)
			}
		}
	})

	if a.commands {
		if err := a.adapter.Start(runCtx, a.updates); err != nil {
			return err
		}
		a.sup.Go("commands.dispatch", func(c context.Context) error {
			return a.router.DispatchLoop(c, a.updates)
		})
		a.sup.Go0("commands.menu", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := a.adapter.UpdateMenuCommands(mctx, a.router.Commands()); err != nil && c.Err() == nil {
				a.log.Warn("bot menu update failed", logx.Err(err))
			}
		})
	}

	a.mserver.Apply(runCtx, mapMetricsConfig(a.cfgm.Get()))

	a.sup.Go("poll.loop", a.poller.Run)

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
				// coalesce bursts
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	if wd := systemd.WatchdogInterval(); wd > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) { a.sd.RunWatchdog(c, wd) })
	}
	a.sd.Ready()

	a.log.Info("app started",
		logx.String("schedule", a.poller.Snapshot().Schedule),
		logx.Bool("commands", a.commands),
		logx.Bool("storage", a.store != nil),
	)
	return nil
}

func (a *App) onEvent(e eventbus.Event) {
	a.metrics.Observe(e)
	switch e.Type {
	case eventbus.TypePollSucceeded, eventbus.TypePollFailed:
		if res, ok := e.Data.(poller.Result); ok {
			a.sd.Status(fmt.Sprintf("last poll %s, cursor %d", res.Outcome, res.Cursor))
		}
	}
	a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
}

// applyConfig fans a reloaded config out to the live components.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range sections {
		if config.RestartRequired(s) {
			a.log.Warn("config section changed; restart required for full effect", logx.String("section", s))
		}
	}

	a.logs.Apply(mapLoggingConfig(next))

	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}
	a.router.SetAllowedChat(next.Telegram.ChatID)

	if sched, err := mapSchedule(next); err != nil {
		a.log.Warn("invalid poll schedule; keeping previous", logx.Err(err))
	} else {
		a.poller.Apply(sched, next.Poll.RelayErrors)
	}

	a.mserver.Apply(ctx, mapMetricsConfig(next))

	eventbus.Publish(a.bus, eventbus.TypeConfigReloaded, sections)
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	if reason == "" {
		reason = StopUnknown
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()
	a.sup.Cancel()

	// step bounds one shutdown step without extending the caller's deadline.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
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
		}
	}

	step("adapter", 3*time.Second, a.adapter.Stop)
	step("metrics", time.Second, func(c context.Context) error { a.mserver.Stop(c); return nil })
	// the poll loop may still write the cursor; close storage after it returns
	step("supervisor", 3*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	return a.logs.Close()
}
