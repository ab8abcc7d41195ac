// Package app wires the calendar daemon together: config, logging,
// storage, the nudge scheduler, notification routes and the HTTP
// surfaces, with hot reload for everything that can change at runtime.
package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"neuroboost/internal/config"
	"neuroboost/internal/eventbus"
	"neuroboost/internal/notify"
	"neuroboost/internal/nudge"
	"neuroboost/internal/pprof"
	"neuroboost/internal/server"
	"neuroboost/internal/state"
	"neuroboost/internal/store"
	logx "neuroboost/pkg/logx"
)

type App struct {
	cfgm     *config.ConfigManager
	logs     *logx.Service
	log      logx.Logger
	bus      eventbus.Bus
	activity *eventbus.Recorder

	st    store.Store
	state *state.Store

	notif *notify.Service
	sched *nudge.Service
	api   *server.Service

	prof    *pprof.Service
	profCfg pprof.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(loggingConfig(cfg.Logging))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()
	activity := eventbus.NewRecorder(bus, 64)

	storeCfg, err := storageConfig(cfg.Storage)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(storeCfg, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	stateStore, err := state.Open(strings.TrimSpace(cfg.State.Path), nil, log.With(logx.String("comp", "state")))
	if err != nil {
		return nil, err
	}

	notifCfg, err := notifyConfig(cfg.Notify)
	if err != nil {
		return nil, err
	}
	notif := notify.New(notifCfg, log.With(logx.String("comp", "notify")), bus)

	nudgeCfg, err := nudgeConfig(cfg.Nudges)
	if err != nil {
		return nil, err
	}
	if nudgeCfg.Enabled && st == nil {
		log.Warn("nudges disabled: no storage to read occurrences from")
		nudgeCfg.Enabled = false
	}
	sched := nudge.New(nudgeCfg,
		&storeOccurrences{st: st, log: log.With(logx.String("comp", "expand"))},
		notif, stateStore, nil,
		log.With(logx.String("comp", "nudges")), bus)

	serverCfg, err := serverConfig(cfg.Server)
	if err != nil {
		return nil, err
	}
	api := server.New(serverCfg, server.Deps{
		Store:    st,
		Nudges:   sched,
		Notify:   notif,
		Activity: activity,
	}, log.With(logx.String("comp", "api")))

	profCfg, err := pprofConfig(cfg.Pprof)
	if err != nil {
		return nil, err
	}
	prof := pprof.New(profCfg, log.With(logx.String("comp", "pprof")))

	return &App{
		cfgm:     cfgm,
		logs:     logs,
		log:      log,
		bus:      bus,
		activity: activity,
		st:       st,
		state:    stateStore,
		notif:    notif,
		sched:    sched,
		api:      api,
		prof:     prof,
		profCfg:  profCfg,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// Reject bad hot reloads before they are committed or published.
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := storageConfig(cfg.Storage); err != nil {
			return err
		}
		if _, err := nudgeConfig(cfg.Nudges); err != nil {
			return err
		}
		if _, err := notifyConfig(cfg.Notify); err != nil {
			return err
		}
		if _, err := serverConfig(cfg.Server); err != nil {
			return err
		}
		if _, err := pprofConfig(cfg.Pprof); err != nil {
			return err
		}
		if tz := strings.TrimSpace(cfg.Nudges.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return err
			}
		}
		return nil
	})

	a.sched.Start(runCtx)
	a.api.Start(runCtx)
	a.prof.Reconfigure(runCtx, a.profCfg)

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	a.log.Info("app started")
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}
			a.applyReload(ctx, newCfg, sections)
			a.log.Info("config reloaded",
				append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
		}
	}
}

func (a *App) applyReload(ctx context.Context, cfg *config.Config, sections []string) {
	changed := map[string]bool{}
	for _, s := range sections {
		changed[s] = true
	}

	if changed["logging"] {
		a.logs.Apply(loggingConfig(cfg.Logging))
	}
	if changed["notify"] {
		// Already validated before publish.
		if nc, err := notifyConfig(cfg.Notify); err == nil {
			a.notif.Apply(nc)
		}
	}
	if changed["nudges"] {
		nc, err := nudgeConfig(cfg.Nudges)
		if err == nil {
			if nc.Enabled && a.st == nil {
				a.log.Warn("nudges stay disabled: no storage configured")
				nc.Enabled = false
			}
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.sched.Stop(stopCtx)
			cancel()
			a.sched.Apply(nc)
			a.sched.Start(ctx)
		}
	}
	if changed["server"] {
		if sc, err := serverConfig(cfg.Server); err == nil {
			a.api.Reconfigure(ctx, sc)
		}
	}
	if changed["pprof"] {
		if pc, err := pprofConfig(cfg.Pprof); err == nil {
			a.prof.Reconfigure(ctx, pc)
		}
	}
	if changed["storage"] || changed["state"] {
		a.log.Warn("storage/state changes require a restart to take effect")
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	a.sched.Stop(ctx)
	a.api.Stop(ctx)
	a.prof.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	a.activity.Close()
	if a.state != nil {
		if err := a.state.Close(); err != nil {
			a.log.Warn("state close failed", logx.Err(err))
		}
	}
	if a.st != nil {
		if err := a.st.Close(); err != nil {
			a.log.Warn("store close failed", logx.Err(err))
		}
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return nil
}
