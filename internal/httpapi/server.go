// Package httpapi is the daemon's HTTP surface: the JSON API the browser UI
// drives, the realtime state websocket, the audio bridge endpoint, health
// probes and the Prometheus scrape endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/MrWong99/speakeasy/internal/app"
	"github.com/MrWong99/speakeasy/internal/feedback"
	"github.com/MrWong99/speakeasy/internal/health"
	"github.com/MrWong99/speakeasy/internal/history"
	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/internal/resilience"
	"github.com/MrWong99/speakeasy/internal/scenario"
	"github.com/MrWong99/speakeasy/internal/vocab"
	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/provider/tts"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Vocabulary is the vocabulary trainer used by the API.
type Vocabulary interface {
	Words(ctx context.Context) ([]vocab.Word, error)
	PracticeSession(ctx context.Context) ([]vocab.Word, error)
	Stats(ctx context.Context) (vocab.Stats, error)
	UpdateProgress(ctx context.Context, word string, knewIt bool) error
	AddWords(ctx context.Context, items []feedback.VocabularyItem) (int, error)
}

// History is the read side of the conversation archive.
type History interface {
	List(ctx context.Context) ([]history.Item, error)
	Get(ctx context.Context, id string) (history.Item, error)
}

// PCMPlayer plays a synthesized clip on the daemon's output.
type PCMPlayer interface {
	PlayPCM(pcm []byte) (audio.Voice, error)
}

// Config wires the server's collaborators. App, Scenarios, Vocabulary and
// History are required; the rest are optional.
type Config struct {
	App        *app.App
	Scenarios  app.Scenarios
	Vocabulary Vocabulary
	History    History

	// TTS speaks vocabulary words. TTSName labels its metrics.
	TTS     tts.Provider
	TTSName string
	// Player plays speech requested with play=1.
	Player PCMPlayer

	// Audio serves the browser audio peer websocket at /ws/audio.
	Audio http.Handler
	// Health serves /healthz and /readyz.
	Health *health.Handler
	// Metrics records HTTP and provider metrics. Nil uses
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
	// MetricsHandler serves /metrics. Nil uses promhttp.Handler.
	MetricsHandler http.Handler

	// StaticDir is served at / when set.
	StaticDir string
	// CORSOrigins lists origins allowed to call the API from another host.
	CORSOrigins []string
}

// Server routes the API. Create it with [New].
type Server struct {
	cfg     Config
	metrics *observe.Metrics
	handler http.Handler
}

// New builds the routing table.
func New(cfg Config) *Server {
	s := &Server{cfg: cfg, metrics: cfg.Metrics}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = mux
	h = observe.Middleware(s.metrics)(h)
	if len(cfg.CORSOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type"},
		}).Handler(h)
	}
	s.handler = h
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes(mux *http.ServeMux) {
	// ── Application state ──
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/navigate", s.handleNavigate)
	mux.HandleFunc("POST /api/conversation/toggle", s.handleToggle)
	mux.HandleFunc("POST /api/conversation/retry", s.handleRetry)
	mux.HandleFunc("POST /api/conversation/return", s.handleReturn)
	mux.HandleFunc("GET /ws/state", s.handleStateStream)

	// ── Scenarios ──
	mux.HandleFunc("GET /api/scenarios", s.handleScenarios)
	mux.HandleFunc("GET /api/scenarios/{id}", s.handleScenario)
	mux.HandleFunc("POST /api/scenarios/{id}/select", s.handleSelect)

	// ── Vocabulary ──
	mux.HandleFunc("GET /api/vocabulary", s.handleWords)
	mux.HandleFunc("GET /api/vocabulary/practice", s.handlePractice)
	mux.HandleFunc("GET /api/vocabulary/stats", s.handleStats)
	mux.HandleFunc("POST /api/vocabulary/{word}/review", s.handleReview)
	mux.HandleFunc("GET /api/vocabulary/{word}/speech", s.handleSpeech)
	mux.HandleFunc("POST /api/feedback/vocabulary", s.handleAddFeedbackVocabulary)

	// ── History ──
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/history/{id}", s.handleHistoryItem)

	// ── Infrastructure ──
	if s.cfg.Audio != nil {
		mux.Handle("GET /ws/audio", s.cfg.Audio)
	}
	if s.cfg.Health != nil {
		s.cfg.Health.Register(mux)
	}
	metrics := s.cfg.MetricsHandler
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	mux.Handle("GET /metrics", metrics)
	if s.cfg.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("httpapi: encode response", "err", err)
	}
}

// errBadRequest marks client input errors.
var errBadRequest = errors.New("bad request")

// writeError maps err to a status code and writes it as JSON.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, tts.ErrEmptyText):
		status = http.StatusBadRequest
	case errors.Is(err, scenario.ErrNotFound), errors.Is(err, history.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, app.ErrNoScenario):
		status = http.StatusConflict
	case errors.Is(err, resilience.ErrAllFailed), errors.Is(err, resilience.ErrCircuitOpen):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// decodeBody reads a JSON request body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}
