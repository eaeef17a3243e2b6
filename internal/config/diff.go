package config

import "slices"

// ConfigDiff describes what changed between two configs. Only the log level
// and the scenario catalog can be applied without a restart; other changes
// are reported so the daemon can say a restart is needed.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ScenariosChanged bool

	// RestartRequired lists the top-level sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Scenarios != new.Scenarios {
		d.ScenariosChanged = true
	}

	if !sameServer(old.Server, new.Server) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !sameProviders(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	if old.Session != new.Session {
		d.RestartRequired = append(d.RestartRequired, "session")
	}
	if old.Vocabulary != new.Vocabulary {
		d.RestartRequired = append(d.RestartRequired, "vocabulary")
	}
	return d
}

// sameServer compares everything but the hot-reloadable log level.
func sameServer(a, b ServerConfig) bool {
	return a.ListenAddr == b.ListenAddr && a.LogFormat == b.LogFormat &&
		a.StaticDir == b.StaticDir && slices.Equal(a.CORSOrigins, b.CORSOrigins)
}

func sameProviders(a, b ProvidersConfig) bool {
	return sameEntry(a.Live, b.Live) && sameEntry(a.Text, b.Text) && sameEntry(a.TTS, b.TTS) &&
		slices.EqualFunc(a.TTSFallbacks, b.TTSFallbacks, sameEntry)
}

// sameEntry ignores Options, which may hold nested values that cannot be
// compared with ==.
func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL &&
		a.Model == b.Model && a.Voice == b.Voice
}
