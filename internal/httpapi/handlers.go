package httpapi

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/speakeasy/internal/app"
	"github.com/MrWong99/speakeasy/internal/feedback"
	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/internal/scenario"
	"github.com/MrWong99/speakeasy/pkg/provider/tts"
)

// ── Application state ─────────────────────────────────────────────────────────

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.App.Snapshot())
}

type navigateRequest struct {
	View string `json:"view"`
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	view, err := app.ParseView(req.View)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	if err := s.cfg.App.Navigate(view); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.App.Snapshot())
}

// handleToggle starts or stops the conversation. Stopping responds once the
// feedback is ready.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.App.Toggle(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.App.Snapshot())
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.App.Retry(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.App.Snapshot())
}

func (s *Server) handleReturn(w http.ResponseWriter, _ *http.Request) {
	s.cfg.App.ReturnToSelection()
	writeJSON(w, http.StatusOK, s.cfg.App.Snapshot())
}

// ── Scenarios ─────────────────────────────────────────────────────────────────

// handleScenarios lists the catalog, optionally filtered by ?difficulty=.
func (s *Server) handleScenarios(w http.ResponseWriter, r *http.Request) {
	cat := s.cfg.Scenarios.Catalog()
	d := r.URL.Query().Get("difficulty")
	if d == "" {
		writeJSON(w, http.StatusOK, cat.List())
		return
	}
	diff := scenario.Difficulty(d)
	if !diff.IsValid() {
		writeError(w, r, fmt.Errorf("%w: difficulty %q is invalid", errBadRequest, d))
		return
	}
	writeJSON(w, http.StatusOK, cat.ByDifficulty(diff))
}

func (s *Server) handleScenario(w http.ResponseWriter, r *http.Request) {
	sc, err := s.cfg.Scenarios.Catalog().Get(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.App.SelectScenario(r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.App.Snapshot())
}

// ── Vocabulary ────────────────────────────────────────────────────────────────

func (s *Server) handleWords(w http.ResponseWriter, r *http.Request) {
	words, err := s.cfg.Vocabulary.Words(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, words)
}

func (s *Server) handlePractice(w http.ResponseWriter, r *http.Request) {
	words, err := s.cfg.Vocabulary.PracticeSession(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, words)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cfg.Vocabulary.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type reviewRequest struct {
	KnewIt bool `json:"knewIt"`
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.cfg.Vocabulary.UpdateProgress(r.Context(), r.PathValue("word"), req.KnewIt); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addWordsRequest struct {
	Vocabulary []feedback.VocabularyItem `json:"vocabulary"`
}

type addWordsResponse struct {
	Added int `json:"added"`
}

func (s *Server) handleAddFeedbackVocabulary(w http.ResponseWriter, r *http.Request) {
	var req addWordsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.cfg.Vocabulary.AddWords(r.Context(), req.Vocabulary)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, addWordsResponse{Added: n})
}

type speechResponse struct {
	Word       string `json:"word"`
	MIMEType   string `json:"mimeType"`
	Audio      string `json:"audio"`
	SampleRate int    `json:"sampleRate"`
}

// handleSpeech synthesizes the pronunciation of a word. With ?play=1 the
// clip plays through the daemon's output and the response is empty;
// otherwise the PCM is returned base64-encoded.
func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	if s.cfg.TTS == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "speech synthesis is not configured"})
		return
	}
	word := r.PathValue("word")

	ctx, span := observe.StartSpan(r.Context(), "tts.synthesize",
		trace.WithAttributes(attribute.String("tts.provider", s.cfg.TTSName), attribute.Int("tts.text_length", len(word))))
	pcm, err := s.cfg.TTS.Synthesize(ctx, word)
	observe.FailSpan(span, err)
	span.End()
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, s.cfg.TTSName, "tts", "error")
		s.metrics.RecordProviderError(ctx, s.cfg.TTSName, "tts")
		writeError(w, r, err)
		return
	}
	s.metrics.RecordProviderRequest(ctx, s.cfg.TTSName, "tts", "ok")

	if r.URL.Query().Get("play") == "1" {
		if s.cfg.Player == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "audio output is not configured"})
			return
		}
		if _, err := s.cfg.Player.PlayPCM(pcm); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, speechResponse{
		Word:       word,
		MIMEType:   fmt.Sprintf("audio/pcm;rate=%d", tts.SampleRate),
		Audio:      base64.StdEncoding.EncodeToString(pcm),
		SampleRate: tts.SampleRate,
	})
}

// ── History ───────────────────────────────────────────────────────────────────

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	items, err := s.cfg.History.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.cfg.History.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
