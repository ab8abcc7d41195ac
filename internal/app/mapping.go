package app

import (
	"strings"
	"time"

	"neuroboost/internal/config"
	"neuroboost/internal/notify"
	"neuroboost/internal/nudge"
	"neuroboost/internal/pprof"
	"neuroboost/internal/server"
	"neuroboost/internal/store"
	logx "neuroboost/pkg/logx"
)

// The config package carries raw strings; each service wants typed
// durations. These translate between the two, failing on malformed
// values so bad files are rejected before anything is applied.

func loggingConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
	}
}

func storageConfig(c *config.StorageConfig) (store.Config, error) {
	if c == nil {
		return store.Config{}, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", c.BusyTimeout)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		Driver:      c.Driver,
		Path:        c.Path,
		BusyTimeout: busy,
	}, nil
}

func nudgeConfig(c config.NudgesConfig) (nudge.Config, error) {
	poll, err := config.ParseDurationField("nudges.poll_interval", c.PollInterval)
	if err != nil {
		return nudge.Config{}, err
	}
	dedupe, err := config.ParseDurationField("nudges.dedupe_window", c.DedupeWindow)
	if err != nil {
		return nudge.Config{}, err
	}
	horizon, err := config.ParseDurationField("nudges.horizon", c.Horizon)
	if err != nil {
		return nudge.Config{}, err
	}
	slack, err := config.ParseDurationField("nudges.backward_slack", c.BackwardSlack)
	if err != nil {
		return nudge.Config{}, err
	}
	return nudge.Config{
		Enabled:       c.Enabled,
		PollInterval:  poll,
		DedupeWindow:  dedupe,
		Horizon:       horizon,
		BackwardSlack: slack,
		QuietHours:    strings.TrimSpace(c.QuietHours),
		Timezone:      strings.TrimSpace(c.Timezone),
	}, nil
}

func notifyConfig(c config.NotifyConfig) (notify.Config, error) {
	timeout, err := config.ParseDurationField("notify.send_timeout", c.SendTimeout)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{
		Route:       strings.TrimSpace(c.Route),
		RatePerSec:  c.RatePerSec,
		SendTimeout: timeout,
		Telegram: notify.TelegramConfig{
			Token:  c.Telegram.Token,
			ChatID: c.Telegram.ChatID,
		},
	}, nil
}

func serverConfig(c config.ServerConfig) (server.Config, error) {
	read, err := config.ParseDurationOrDefault("server.read_timeout", c.ReadTimeout, 10*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("server.write_timeout", c.WriteTimeout, 30*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("server.idle_timeout", c.IdleTimeout, 2*time.Minute)
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		Enabled:      c.Enabled,
		Addr:         strings.TrimSpace(c.Addr),
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
	}, nil
}

func pprofConfig(c *config.PprofConfig) (pprof.Config, error) {
	if c == nil {
		return pprof.Config{}, nil
	}
	read, err := config.ParseDurationField("pprof.read_timeout", c.ReadTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	write, err := config.ParseDurationField("pprof.write_timeout", c.WriteTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	idle, err := config.ParseDurationField("pprof.idle_timeout", c.IdleTimeout)
	if err != nil {
		return pprof.Config{}, err
	}
	return pprof.Config{
		Enabled:              c.Enabled,
		Addr:                 c.Addr,
		Token:                c.Token,
		AllowInsecure:        c.AllowInsecure,
		ReadTimeout:          read,
		WriteTimeout:         write,
		IdleTimeout:          idle,
		MutexProfileFraction: c.MutexProfileFraction,
		BlockProfileRate:     c.BlockProfileRate,
		MemProfileRate:       c.MemProfileRate,
	}, nil
}
