package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/speakeasy/internal/config"
	"github.com/MrWong99/speakeasy/internal/resilience"
	"github.com/MrWong99/speakeasy/pkg/provider/live"
	livegemini "github.com/MrWong99/speakeasy/pkg/provider/live/gemini"
	livemock "github.com/MrWong99/speakeasy/pkg/provider/live/mock"
	"github.com/MrWong99/speakeasy/pkg/provider/text"
	"github.com/MrWong99/speakeasy/pkg/provider/text/anyllm"
	textgemini "github.com/MrWong99/speakeasy/pkg/provider/text/gemini"
	textmock "github.com/MrWong99/speakeasy/pkg/provider/text/mock"
	textopenai "github.com/MrWong99/speakeasy/pkg/provider/text/openai"
	"github.com/MrWong99/speakeasy/pkg/provider/tts"
	"github.com/MrWong99/speakeasy/pkg/provider/tts/elevenlabs"
	ttsgemini "github.com/MrWong99/speakeasy/pkg/provider/tts/gemini"
	ttsmock "github.com/MrWong99/speakeasy/pkg/provider/tts/mock"
	ttsopenai "github.com/MrWong99/speakeasy/pkg/provider/tts/openai"
)

// defaultAnyLLMBackend is used when an anyllm text entry sets no
// options.backend.
const defaultAnyLLMBackend = "openai"

// registerBuiltinProviders wires every provider implementation that ships
// with speakeasy into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Live ──────────────────────────────────────────────────────────────────

	reg.RegisterLive("gemini", func(entry config.ProviderEntry) (live.Provider, error) {
		var opts []livegemini.Option
		if entry.Model != "" {
			opts = append(opts, livegemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, livegemini.WithBaseURL(entry.BaseURL))
		}
		if entry.Voice != "" {
			opts = append(opts, livegemini.WithDefaultVoice(entry.Voice))
		}
		return livegemini.New(entry.APIKey, opts...), nil
	})

	// The mock tutor connects and stays silent; useful to try the UI offline.
	reg.RegisterLive("mock", func(config.ProviderEntry) (live.Provider, error) {
		return &livemock.Provider{}, nil
	})

	// ── Text ──────────────────────────────────────────────────────────────────

	reg.RegisterText("gemini", func(entry config.ProviderEntry) (text.Provider, error) {
		var opts []textgemini.Option
		if entry.Model != "" {
			opts = append(opts, textgemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, textgemini.WithBaseURL(entry.BaseURL))
		}
		return textgemini.New(context.Background(), entry.APIKey, opts...)
	})

	reg.RegisterText("openai", func(entry config.ProviderEntry) (text.Provider, error) {
		var opts []textopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, textopenai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, textopenai.WithOrganization(org))
		}
		return textopenai.New(entry.APIKey, entry.Model, opts...)
	})

	// anyllm reaches every backend any-llm-go supports; options.backend picks
	// one (openai, anthropic, gemini, ollama, mistral, groq, ...).
	reg.RegisterText("anyllm", func(entry config.ProviderEntry) (text.Provider, error) {
		backend := optString(entry.Options, "backend")
		if backend == "" {
			backend = defaultAnyLLMBackend
		}
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(backend, entry.Model, opts...)
	})

	reg.RegisterText("mock", func(entry config.ProviderEntry) (text.Provider, error) {
		return &textmock.Provider{Response: optString(entry.Options, "response")}, nil
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("gemini", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsgemini.Option
		if entry.Model != "" {
			opts = append(opts, ttsgemini.WithModel(entry.Model))
		}
		if entry.Voice != "" {
			opts = append(opts, ttsgemini.WithVoice(entry.Voice))
		}
		if entry.BaseURL != "" {
			opts = append(opts, ttsgemini.WithBaseURL(entry.BaseURL))
		}
		return ttsgemini.New(context.Background(), entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsopenai.Option
		if entry.Model != "" {
			opts = append(opts, ttsopenai.WithModel(entry.Model))
		}
		if entry.Voice != "" {
			opts = append(opts, ttsopenai.WithVoice(entry.Voice))
		}
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		return ttsopenai.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.Voice != "" {
			opts = append(opts, elevenlabs.WithVoice(entry.Voice))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// The mock voice returns a quarter second of silence.
	reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{Audio: make([]byte, 2*tts.SampleRate/4)}, nil
	})

	for _, kind := range []string{"live", "text", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// providers holds the instantiated collaborators.
type providers struct {
	Live live.Provider
	Text text.Provider
	// TTS is nil when no speech backend could be created.
	TTS     tts.Provider
	TTSName string
}

// configured reports per kind whether a provider exists, for readiness.
func (p *providers) configured() map[string]bool {
	return map[string]bool{
		"live": p.Live != nil,
		"text": p.Text != nil,
		"tts":  p.TTS != nil,
	}
}

// buildProviders instantiates the configured providers. The live and text
// providers are required. Speech is optional: backends that fail to build
// are skipped, and the remaining ones are chained behind per-backend circuit
// breakers in configuration order.
func buildProviders(cfg *config.Config, reg *config.Registry) (*providers, error) {
	ps := &providers{}
	var err error

	if ps.Live, err = reg.CreateLive(cfg.Providers.Live); err != nil {
		return nil, fmt.Errorf("create live provider %q: %w", cfg.Providers.Live.Name, err)
	}
	slog.Info("provider created", "kind", "live", "name", cfg.Providers.Live.Name)

	if ps.Text, err = reg.CreateText(cfg.Providers.Text); err != nil {
		return nil, fmt.Errorf("create text provider %q: %w", cfg.Providers.Text.Name, err)
	}
	slog.Info("provider created", "kind", "text", "name", cfg.Providers.Text.Name)

	var chain *resilience.TTSFallback
	for _, entry := range append([]config.ProviderEntry{cfg.Providers.TTS}, cfg.Providers.TTSFallbacks...) {
		p, err := reg.CreateTTS(entry)
		if err != nil {
			level := slog.LevelWarn
			if errors.Is(err, config.ErrProviderNotRegistered) {
				level = slog.LevelError
			}
			slog.Log(context.Background(), level, "skipping tts provider", "name", entry.Name, "err", err)
			continue
		}
		if chain == nil {
			chain = resilience.NewTTSFallback(p, entry.Name, resilience.FallbackConfig{
				CircuitBreaker: resilience.CircuitBreakerConfig{OnStateChange: logBreakerChange},
			})
			ps.TTSName = entry.Name
		} else {
			chain.AddFallback(entry.Name, p)
		}
		slog.Info("provider created", "kind", "tts", "name", entry.Name)
	}
	if chain != nil {
		ps.TTS = chain
		slog.Debug("tts fallback order", "providers", chain.Providers())
	} else {
		slog.Warn("no tts provider available; vocabulary pronunciation is disabled")
	}
	return ps, nil
}

func logBreakerChange(name string, from, to resilience.State) {
	slog.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
}

// optString extracts a string value from a provider Options map. It returns
// "" when the map is nil, the key is absent or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}
