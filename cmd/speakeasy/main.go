// Command speakeasy runs the local conversation tutor daemon. It serves the
// browser UI, bridges the browser's microphone and speakers to the live
// speech model, and stores vocabulary and history on the local machine.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/speakeasy/internal/app"
	"github.com/MrWong99/speakeasy/internal/config"
	"github.com/MrWong99/speakeasy/internal/feedback"
	"github.com/MrWong99/speakeasy/internal/health"
	"github.com/MrWong99/speakeasy/internal/history"
	"github.com/MrWong99/speakeasy/internal/httpapi"
	"github.com/MrWong99/speakeasy/internal/kv"
	"github.com/MrWong99/speakeasy/internal/kv/postgres"
	"github.com/MrWong99/speakeasy/internal/kv/sqlite"
	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/internal/resilience"
	"github.com/MrWong99/speakeasy/internal/scenario"
	"github.com/MrWong99/speakeasy/internal/tutor"
	"github.com/MrWong99/speakeasy/internal/vocab"
	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/audio/bridge"
	"github.com/MrWong99/speakeasy/pkg/audio/graph"
	"github.com/MrWong99/speakeasy/pkg/audio/tone"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (built-in defaults when empty)")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("speakeasy", version)
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "speakeasy: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "speakeasy: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(os.Stderr, cfg.Server.LogFormat, &level))

	slog.Info("speakeasy starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"storage", cfg.Storage.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	ps, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to open storage", "backend", cfg.Storage.Backend, "err", err)
		return 1
	}
	defer closeStore()

	// ── Scenario catalog ──────────────────────────────────────────────────────
	scenarios, stopScenarios, err := openScenarios(cfg.Scenarios)
	if err != nil {
		slog.Error("failed to load scenario catalog", "path", cfg.Scenarios.Path, "err", err)
		return 1
	}
	defer stopScenarios()

	// ── Audio ─────────────────────────────────────────────────────────────────
	// One output graph renders everything the browser plays. Each live
	// session gets a child view so closing it silences only its speech.
	peer := bridge.New(audio.OutputSampleRate,
		bridge.WithOriginPatterns(httpapi.OriginPatterns(cfg.Server.CORSOrigins)...))
	output := graph.New(audio.OutputSampleRate, graph.WithSink(peer))
	defer output.Close()
	cues := tone.NewPlayer(output)

	ctrlOpts := []tutor.ControllerOption{
		tutor.WithMetrics(metrics),
		tutor.WithLanguageCode(cfg.Session.LanguageCode),
		tutor.WithBlockSize(cfg.Session.CaptureBlockSize),
	}
	if cfg.Session.Voice != "" {
		ctrlOpts = append(ctrlOpts, tutor.WithVoice(cfg.Session.Voice))
	}
	ctrl := tutor.NewController(ps.Live, peer, func(rate int) (audio.OutputGraph, error) {
		if rate != output.SampleRate() {
			return nil, fmt.Errorf("output graph runs at %d Hz, session wants %d Hz", output.SampleRate(), rate)
		}
		return output.Child(), nil
	}, ctrlOpts...)

	// ── Domain services ───────────────────────────────────────────────────────
	policy, _ := vocab.ParseMasteredPolicy(cfg.Vocabulary.MasteredPolicy) // validated by config.Validate
	vocabulary := vocab.New(store, vocab.WithPolicy(policy), vocab.WithMetrics(metrics))
	archive := history.New(store)
	analyzer := feedback.NewAnalyzer(ps.Text,
		feedback.WithMetrics(metrics),
		feedback.WithProviderName(cfg.Providers.Text.Name),
		feedback.WithBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:          "feedback",
			OnStateChange: logBreakerChange,
		})),
	)

	application := app.New(app.Config{
		Conversations:  ctrl,
		Analyzer:       analyzer,
		Scenarios:      scenarios,
		History:        archive,
		Vocabulary:     vocabulary,
		Cues:           cues,
		ConnectTimeout: cfg.Session.ConnectTimeout,
	})

	// ── HTTP ──────────────────────────────────────────────────────────────────
	api := httpapi.New(httpapi.Config{
		App:         application,
		Scenarios:   scenarios,
		Vocabulary:  vocabulary,
		History:     archive,
		TTS:         ps.TTS,
		TTSName:     ps.TTSName,
		Player:      cues,
		Audio:       peer,
		Health:      health.New(health.StoreChecker(store), health.ProvidersChecker(ps.configured())),
		Metrics:     metrics,
		StaticDir:   cfg.Server.StaticDir,
		CORSOrigins: cfg.Server.CORSOrigins,
	})
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *configPath != "" {
		w, err := config.WatchConfig(*configPath, func(old, new *config.Config) {
			applyConfigChange(&level, config.Diff(old, new))
		}, config.WithInterval(cfg.Scenarios.WatchInterval))
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return output.Run(gctx, graph.DefaultPeriod)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		application.Shutdown()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	fmt.Fprintf(os.Stderr, "speakeasy %s ready at http://%s (Ctrl+C to quit)\n", version, cfg.Server.ListenAddr)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig reads path, or returns the built-in defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return cfg, config.Validate(cfg)
	}
	return config.Load(path)
}

// ── Storage ───────────────────────────────────────────────────────────────────

// openStore opens the configured persistence backend. The returned close
// function is never nil.
func openStore(ctx context.Context, cfg config.StorageConfig) (kv.Store, func(), error) {
	switch cfg.Backend {
	case config.StorageMemory:
		slog.Warn("using in-memory storage; vocabulary and history are lost on exit")
		return kv.NewMemory(), func() {}, nil
	case config.StorageFile:
		s, err := kv.NewFileStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	case config.StorageSQLite:
		s, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				slog.Warn("sqlite close error", "err", err)
			}
		}, nil
	case config.StoragePostgres:
		s, err := postgres.NewStore(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// ── Scenarios ─────────────────────────────────────────────────────────────────

func parseCatalog(data []byte) (*scenario.Catalog, error) {
	return scenario.Parse(bytes.NewReader(data))
}

// openScenarios returns the embedded catalog, or the catalog at cfg.Path.
// With cfg.Watch the file is polled and valid edits replace the catalog
// while the daemon runs.
func openScenarios(cfg config.ScenariosConfig) (*scenario.Store, func(), error) {
	if cfg.Path == "" {
		return scenario.NewStore(nil), func() {}, nil
	}
	if !cfg.Watch {
		cat, err := scenario.ParseFile(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return scenario.NewStore(cat), func() {}, nil
	}

	store := scenario.NewStore(nil)
	w, err := config.NewWatcher(cfg.Path, parseCatalog, func(_, next *scenario.Catalog) {
		store.Replace(next)
	}, config.WithInterval(cfg.WatchInterval))
	if err != nil {
		return nil, nil, err
	}
	store.Replace(w.Current())
	slog.Info("watching scenario catalog", "path", cfg.Path, "interval", cfg.WatchInterval)
	return store, w.Stop, nil
}

// applyConfigChange applies what can change at runtime and reports the rest.
func applyConfigChange(level *slog.LevelVar, d config.ConfigDiff) {
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.ScenariosChanged {
		d.RestartRequired = append(d.RestartRequired, "scenarios")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("configuration changed; restart to apply", "sections", d.RestartRequired)
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(w io.Writer, format config.LogFormat, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
