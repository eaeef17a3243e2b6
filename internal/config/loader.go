package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/speakeasy/internal/vocab"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"live": {"gemini", "mock"},
	"text": {"gemini", "openai", "anyllm", "mock"},
	"tts":  {"gemini", "openai", "elevenlabs", "mock"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr       = "127.0.0.1:8080"
	DefaultLanguageCode     = "en-US"
	DefaultCaptureBlockSize = 4096
	DefaultWatchInterval    = 5 * time.Second
	DefaultStoragePath      = "speakeasy-data"
)

// Environment variables consulted by [ApplyEnv].
const (
	EnvGeminiAPIKey     = "SPEAKEASY_API_KEY"
	EnvOpenAIAPIKey     = "OPENAI_API_KEY"
	EnvElevenLabsAPIKey = "ELEVENLABS_API_KEY"
)

// envKeyByProvider maps a provider name to the environment variable holding
// its API key.
var envKeyByProvider = map[string]string{
	"gemini":     EnvGeminiAPIKey,
	"openai":     EnvOpenAIAPIKey,
	"elevenlabs": EnvElevenLabsAPIKey,
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults and
// environment overrides, and validates the result. An empty document yields
// the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	ApplyEnv(cfg, os.LookupEnv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	ApplyEnv(cfg, os.LookupEnv)
	return cfg
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatText
	}
	if cfg.Providers.Live.Name == "" {
		cfg.Providers.Live.Name = "gemini"
	}
	if cfg.Providers.Text.Name == "" {
		cfg.Providers.Text.Name = "gemini"
	}
	if cfg.Providers.TTS.Name == "" {
		cfg.Providers.TTS.Name = "gemini"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageFile
	}
	if cfg.Storage.Path == "" && (cfg.Storage.Backend == StorageFile || cfg.Storage.Backend == StorageSQLite) {
		cfg.Storage.Path = DefaultStoragePath
		if cfg.Storage.Backend == StorageSQLite {
			cfg.Storage.Path += ".db"
		}
	}
	if cfg.Session.LanguageCode == "" {
		cfg.Session.LanguageCode = DefaultLanguageCode
	}
	if cfg.Session.CaptureBlockSize == 0 {
		cfg.Session.CaptureBlockSize = DefaultCaptureBlockSize
	}
	if cfg.Scenarios.WatchInterval == 0 {
		cfg.Scenarios.WatchInterval = DefaultWatchInterval
	}
}

// ApplyEnv fills empty api_key fields from the environment, keyed by
// provider name. lookup is normally [os.LookupEnv].
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	fill := func(e *ProviderEntry) {
		if e.APIKey != "" {
			return
		}
		name, ok := envKeyByProvider[e.Name]
		if !ok {
			return
		}
		if v, ok := lookup(name); ok && v != "" {
			e.APIKey = v
		}
	}
	fill(&cfg.Providers.Live)
	fill(&cfg.Providers.Text)
	fill(&cfg.Providers.TTS)
	for i := range cfg.Providers.TTSFallbacks {
		fill(&cfg.Providers.TTSFallbacks[i])
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if cfg.Server.StaticDir != "" {
		if info, err := os.Stat(cfg.Server.StaticDir); err != nil || !info.IsDir() {
			errs = append(errs, fmt.Errorf("server.static_dir %q is not a directory", cfg.Server.StaticDir))
		}
	}

	// Providers
	validateProviderName("live", cfg.Providers.Live.Name)
	validateProviderName("text", cfg.Providers.Text.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	if cfg.Providers.Live.Name == "" {
		errs = append(errs, errors.New("providers.live.name is required"))
	}
	for i, fb := range cfg.Providers.TTSFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.tts_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("tts", fb.Name)
	}
	warnMissingKey("live", cfg.Providers.Live)
	warnMissingKey("text", cfg.Providers.Text)
	warnMissingKey("tts", cfg.Providers.TTS)

	// Storage
	switch {
	case cfg.Storage.Backend != "" && !cfg.Storage.Backend.IsValid():
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: memory, file, sqlite, postgres", cfg.Storage.Backend))
	case cfg.Storage.Backend == StoragePostgres && cfg.Storage.DSN == "":
		errs = append(errs, errors.New("storage.dsn is required when storage.backend is postgres"))
	case (cfg.Storage.Backend == StorageFile || cfg.Storage.Backend == StorageSQLite) && cfg.Storage.Path == "":
		errs = append(errs, fmt.Errorf("storage.path is required when storage.backend is %s", cfg.Storage.Backend))
	}

	// Session
	if cfg.Session.ConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.connect_timeout %s must not be negative", cfg.Session.ConnectTimeout))
	}
	if cfg.Session.CaptureBlockSize < 0 {
		errs = append(errs, fmt.Errorf("session.capture_block_size %d must not be negative", cfg.Session.CaptureBlockSize))
	}

	// Vocabulary
	if _, err := vocab.ParseMasteredPolicy(cfg.Vocabulary.MasteredPolicy); err != nil {
		errs = append(errs, fmt.Errorf("vocabulary.mastered_policy %q is invalid; valid values: resurface, never", cfg.Vocabulary.MasteredPolicy))
	}

	// Scenarios
	if cfg.Scenarios.Watch && cfg.Scenarios.Path == "" {
		errs = append(errs, errors.New("scenarios.watch requires scenarios.path"))
	}
	if cfg.Scenarios.WatchInterval < 0 {
		errs = append(errs, fmt.Errorf("scenarios.watch_interval %s must not be negative", cfg.Scenarios.WatchInterval))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// warnMissingKey logs when a provider that needs a key has none, naming the
// environment variable that would supply it.
func warnMissingKey(kind string, e ProviderEntry) {
	if e.APIKey != "" {
		return
	}
	env, ok := envKeyByProvider[e.Name]
	if !ok {
		return
	}
	slog.Warn("provider has no api key; requests will fail until one is set",
		"kind", kind,
		"name", e.Name,
		"env", env,
	)
}
