package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/speakeasy/internal/config"
	"github.com/MrWong99/speakeasy/pkg/provider/live"
	livemock "github.com/MrWong99/speakeasy/pkg/provider/live/mock"
	"github.com/MrWong99/speakeasy/pkg/provider/text"
	textmock "github.com/MrWong99/speakeasy/pkg/provider/text/mock"
	"github.com/MrWong99/speakeasy/pkg/provider/tts"
	ttsmock "github.com/MrWong99/speakeasy/pkg/provider/tts/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  log_format: json
  cors_origins: ["http://localhost:5173"]

providers:
  live:
    name: gemini
    api_key: gm-test
    model: gemini-2.5-flash-native-audio-preview-09-2025
  text:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  tts:
    name: elevenlabs
    api_key: el-test
    voice: 21m00Tcm4TlvDq8ikWAM
  tts_fallbacks:
    - name: openai
      api_key: sk-test
      voice: alloy

storage:
  backend: sqlite
  path: /tmp/speakeasy.db

session:
  voice: Puck
  connect_timeout: 15s
  capture_block_size: 2048

vocabulary:
  mastered_policy: never

scenarios:
  path: /etc/speakeasy/scenarios.yaml
  watch: true
  watch_interval: 2s
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Server.LogFormat != config.LogFormatJSON {
		t.Errorf("server.log_format: got %q", cfg.Server.LogFormat)
	}
	if len(cfg.Server.CORSOrigins) != 1 {
		t.Errorf("server.cors_origins: got %v", cfg.Server.CORSOrigins)
	}
	if cfg.Providers.Text.Name != "openai" || cfg.Providers.Text.Model != "gpt-4o-mini" {
		t.Errorf("providers.text: got %+v", cfg.Providers.Text)
	}
	if len(cfg.Providers.TTSFallbacks) != 1 || cfg.Providers.TTSFallbacks[0].Voice != "alloy" {
		t.Errorf("providers.tts_fallbacks: got %+v", cfg.Providers.TTSFallbacks)
	}
	if cfg.Storage.Backend != config.StorageSQLite {
		t.Errorf("storage.backend: got %q", cfg.Storage.Backend)
	}
	if cfg.Session.ConnectTimeout != 15*time.Second {
		t.Errorf("session.connect_timeout: got %s, want 15s", cfg.Session.ConnectTimeout)
	}
	if cfg.Session.CaptureBlockSize != 2048 {
		t.Errorf("session.capture_block_size: got %d", cfg.Session.CaptureBlockSize)
	}
	if cfg.Session.LanguageCode != config.DefaultLanguageCode {
		t.Errorf("session.language_code default: got %q", cfg.Session.LanguageCode)
	}
	if cfg.Vocabulary.MasteredPolicy != "never" {
		t.Errorf("vocabulary.mastered_policy: got %q", cfg.Vocabulary.MasteredPolicy)
	}
	if !cfg.Scenarios.Watch || cfg.Scenarios.WatchInterval != 2*time.Second {
		t.Errorf("scenarios: got %+v", cfg.Scenarios)
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()
	for _, doc := range []string{"", "{}"} {
		cfg, err := config.LoadFromReader(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("LoadFromReader(%q): %v", doc, err)
		}
		if cfg.Server.ListenAddr != config.DefaultListenAddr {
			t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
		}
		if cfg.Providers.Live.Name != "gemini" || cfg.Providers.Text.Name != "gemini" || cfg.Providers.TTS.Name != "gemini" {
			t.Errorf("default providers: got %+v", cfg.Providers)
		}
		if cfg.Storage.Backend != config.StorageFile || cfg.Storage.Path != config.DefaultStoragePath {
			t.Errorf("default storage: got %+v", cfg.Storage)
		}
		if cfg.Session.CaptureBlockSize != config.DefaultCaptureBlockSize {
			t.Errorf("capture_block_size: got %d", cfg.Session.CaptureBlockSize)
		}
		if cfg.Session.ConnectTimeout != 0 {
			t.Errorf("connect_timeout must default to none, got %s", cfg.Session.ConnectTimeout)
		}
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  listen_adress: \":1\"\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "listen_adress") {
		t.Errorf("error should name the field, got: %v", err)
	}
}

func TestApplyDefaults_SQLitePath(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Storage: config.StorageConfig{Backend: config.StorageSQLite}}
	config.ApplyDefaults(cfg)
	if cfg.Storage.Path != config.DefaultStoragePath+".db" {
		t.Errorf("sqlite path: got %q", cfg.Storage.Path)
	}
}

// ── Environment ───────────────────────────────────────────────────────────────

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		config.EnvGeminiAPIKey:     "from-env-gemini",
		config.EnvOpenAIAPIKey:     "from-env-openai",
		config.EnvElevenLabsAPIKey: "from-env-eleven",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := &config.Config{Providers: config.ProvidersConfig{
		Live: config.ProviderEntry{Name: "gemini"},
		Text: config.ProviderEntry{Name: "openai", APIKey: "explicit"},
		TTS:  config.ProviderEntry{Name: "elevenlabs"},
		TTSFallbacks: []config.ProviderEntry{
			{Name: "gemini"},
			{Name: "mock"},
		},
	}}
	config.ApplyEnv(cfg, lookup)

	if cfg.Providers.Live.APIKey != "from-env-gemini" {
		t.Errorf("live key: got %q", cfg.Providers.Live.APIKey)
	}
	if cfg.Providers.Text.APIKey != "explicit" {
		t.Errorf("explicit key must win, got %q", cfg.Providers.Text.APIKey)
	}
	if cfg.Providers.TTS.APIKey != "from-env-eleven" {
		t.Errorf("tts key: got %q", cfg.Providers.TTS.APIKey)
	}
	if cfg.Providers.TTSFallbacks[0].APIKey != "from-env-gemini" {
		t.Errorf("fallback key: got %q", cfg.Providers.TTSFallbacks[0].APIKey)
	}
	if cfg.Providers.TTSFallbacks[1].APIKey != "" {
		t.Errorf("mock must not get a key, got %q", cfg.Providers.TTSFallbacks[1].APIKey)
	}
}

// ── Registry ──────────────────────────────────────────────────────────────────

func TestRegistry_CreateRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterLive("mock", func(config.ProviderEntry) (live.Provider, error) {
		return &livemock.Provider{}, nil
	})
	reg.RegisterText("mock", func(e config.ProviderEntry) (text.Provider, error) {
		return &textmock.Provider{Response: e.Model}, nil
	})
	reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{Audio: []byte{1, 2}}, nil
	})

	if _, err := reg.CreateLive(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateLive: %v", err)
	}
	tp, err := reg.CreateText(config.ProviderEntry{Name: "mock", Model: `{"ok":true}`})
	if err != nil {
		t.Fatalf("CreateText: %v", err)
	}
	out, err := tp.GenerateJSON(context.Background(), text.Request{Prompt: "p"})
	if err != nil || out != `{"ok":true}` {
		t.Errorf("GenerateJSON = %q, %v", out, err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "mock"}); err != nil {
		t.Errorf("CreateTTS: %v", err)
	}
	if got := reg.Names("text"); len(got) != 1 || got[0] != "mock" {
		t.Errorf("Names(text) = %v", got)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	entry := config.ProviderEntry{Name: "nope"}

	if _, err := reg.CreateLive(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLive: got %v", err)
	}
	if _, err := reg.CreateText(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateText: got %v", err)
	}
	_, err := reg.CreateTTS(entry)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTTS: got %v", err)
	}
	if !strings.Contains(err.Error(), `tts/"nope"`) {
		t.Errorf("error should name kind and provider, got %v", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("boom")
	reg.RegisterTTS("broken", func(config.ProviderEntry) (tts.Provider, error) { return nil, boom })
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "broken"}); !errors.Is(err, boom) {
		t.Errorf("got %v, want boom", err)
	}
}
