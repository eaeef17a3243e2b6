// Package config provides the configuration schema, loader, file watcher and
// provider registry for the speakeasy daemon.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// StorageBackend selects the [kv.Store] implementation.
type StorageBackend string

const (
	StorageMemory   StorageBackend = "memory"
	StorageFile     StorageBackend = "file"
	StorageSQLite   StorageBackend = "sqlite"
	StoragePostgres StorageBackend = "postgres"
)

// IsValid reports whether b is a recognised storage backend.
func (b StorageBackend) IsValid() bool {
	switch b {
	case StorageMemory, StorageFile, StorageSQLite, StoragePostgres:
		return true
	}
	return false
}

// Config is the root configuration structure for speakeasy.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Storage    StorageConfig    `yaml:"storage"`
	Session    SessionConfig    `yaml:"session"`
	Vocabulary VocabularyConfig `yaml:"vocabulary"`
	Scenarios  ScenariosConfig  `yaml:"scenarios"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on. Defaults to
	// "127.0.0.1:8080".
	ListenAddr string `yaml:"listen_addr"`

	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`

	// StaticDir, when set, is served at "/" for the browser UI.
	StaticDir string `yaml:"static_dir"`

	// CORSOrigins lists browser origins allowed to call the API, such as a
	// frontend dev server. Empty means same-origin only.
	CORSOrigins []string `yaml:"cors_origins"`
}

// ProvidersConfig selects the provider implementation for each remote
// collaborator. Each entry names a provider registered in the [Registry].
type ProvidersConfig struct {
	// Live is the real-time speech model used for conversations.
	Live ProviderEntry `yaml:"live"`

	// Text is the model that produces structured feedback.
	Text ProviderEntry `yaml:"text"`

	// TTS speaks vocabulary words.
	TTS ProviderEntry `yaml:"tts"`

	// TTSFallbacks are tried in order when TTS fails.
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds. Name is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini", "openai").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider's API. Empty keys may be
	// filled from the environment; see [ApplyEnv].
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Voice selects a provider-specific voice.
	Voice string `yaml:"voice"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}

// StorageConfig selects where vocabulary and history are persisted.
type StorageConfig struct {
	Backend StorageBackend `yaml:"backend"`

	// Path is the directory for the file backend or the database file for
	// sqlite.
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection string for the postgres backend.
	DSN string `yaml:"dsn"`
}

// SessionConfig tunes live conversations.
type SessionConfig struct {
	// Voice overrides the live provider's voice.
	Voice string `yaml:"voice"`

	// LanguageCode is the BCP-47 code for input transcription. Defaults to "en-US".
	LanguageCode string `yaml:"language_code"`

	// ConnectTimeout bounds session setup. Zero means no timeout.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// CaptureBlockSize is the number of microphone samples per uplink frame.
	// Defaults to 4096.
	CaptureBlockSize int `yaml:"capture_block_size"`
}

// VocabularyConfig tunes the spaced-repetition scheduler.
type VocabularyConfig struct {
	// MasteredPolicy is "resurface" (default) or "never".
	MasteredPolicy string `yaml:"mastered_policy"`
}

// ScenariosConfig points at an optional user scenario catalog.
type ScenariosConfig struct {
	// Path is a YAML catalog that replaces the built-in one.
	Path string `yaml:"path"`

	// Watch reloads Path whenever its content changes.
	Watch bool `yaml:"watch"`

	// WatchInterval is the polling interval for Watch. Defaults to 5s.
	WatchInterval time.Duration `yaml:"watch_interval"`
}
