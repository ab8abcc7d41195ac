package config

import (
	"reflect"
	"sort"
	"strings"

	logx "neuroboost/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections
// and (2) safe structured attrs for logging (never includes secrets
// like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 20)

	// Logging
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Server
	if !reflect.DeepEqual(oldCfg.Server, newCfg.Server) {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.Bool("server.enabled", newCfg.Server.Enabled),
			logx.String("server.addr", strings.TrimSpace(newCfg.Server.Addr)),
		)
	}

	// Storage. Nil means disabled.
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	if oldCfg.Storage != nil {
		oDriver = strings.TrimSpace(oldCfg.Storage.Driver)
		oBusy = strings.TrimSpace(oldCfg.Storage.BusyTimeout)
		oPathSet = strings.TrimSpace(oldCfg.Storage.Path) != ""
	}
	if newCfg.Storage != nil {
		nDriver = strings.TrimSpace(newCfg.Storage.Driver)
		nBusy = strings.TrimSpace(newCfg.Storage.BusyTimeout)
		nPathSet = strings.TrimSpace(newCfg.Storage.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	// State journal
	if strings.TrimSpace(oldCfg.State.Path) != strings.TrimSpace(newCfg.State.Path) {
		changed = append(changed, "state")
		attrs = append(attrs,
			logx.Bool("state.path_set", strings.TrimSpace(newCfg.State.Path) != ""),
		)
	}

	// Nudges
	if !reflect.DeepEqual(oldCfg.Nudges, newCfg.Nudges) {
		changed = append(changed, "nudges")
		attrs = append(attrs,
			logx.Bool("nudges.enabled", newCfg.Nudges.Enabled),
			logx.String("nudges.poll_interval", strings.TrimSpace(newCfg.Nudges.PollInterval)),
			logx.String("nudges.quiet_hours", strings.TrimSpace(newCfg.Nudges.QuietHours)),
			logx.String("nudges.timezone", strings.TrimSpace(newCfg.Nudges.Timezone)),
		)
	}

	// Notify (never log token)
	if !reflect.DeepEqual(oldCfg.Notify, newCfg.Notify) {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.String("notify.route", strings.TrimSpace(newCfg.Notify.Route)),
			logx.Int("notify.rate_per_sec", newCfg.Notify.RatePerSec),
			logx.Bool("notify.telegram_token_set", strings.TrimSpace(newCfg.Notify.Telegram.Token) != ""),
		)
	}

	// Export
	if strings.TrimSpace(oldCfg.Export.Vault) != strings.TrimSpace(newCfg.Export.Vault) {
		changed = append(changed, "export")
		attrs = append(attrs,
			logx.Bool("export.vault_set", strings.TrimSpace(newCfg.Export.Vault) != ""),
		)
	}

	// Pprof (never log token)
	oP := derefPprof(oldCfg.Pprof)
	nP := derefPprof(newCfg.Pprof)
	if !reflect.DeepEqual(oP, nP) {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", nP.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(nP.Addr)),
			logx.Bool("pprof.token_set", strings.TrimSpace(nP.Token) != ""),
			logx.Bool("pprof.allow_insecure", nP.AllowInsecure),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefPprof(p *PprofConfig) PprofConfig {
	if p == nil {
		return PprofConfig{}
	}
	return *p
}
