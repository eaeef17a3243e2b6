// Package vocab implements the Leitner-box vocabulary scheduler.
//
// Every learned word sits in a box from 0 to [MaxBox]. Box 0 is always due;
// boxes 1 to 4 become due 1, 3, 7 and 14 days after the last review. A word
// the learner knew moves up one box, a missed word drops back to box 0.
// Whether mastered words (box 5) ever come back is decided by the
// scheduler's [MasteredPolicy].
//
// The collection is persisted as one JSON array through a [kv.Store].
package vocab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/speakeasy/internal/feedback"
	"github.com/MrWong99/speakeasy/internal/kv"
	"github.com/MrWong99/speakeasy/internal/observe"
)

// StorageKey is the record holding the vocabulary collection.
const StorageKey = "gemini_tutor_vocabulary"

// MaxBox is the mastered box.
const MaxBox = 5

// reviewIntervalDays maps a box to the days that must pass after a review
// before the word is due again.
var reviewIntervalDays = [MaxBox + 1]int{0, 1, 3, 7, 14, 30}

// Word is one entry of the collection.
type Word struct {
	Word         string    `json:"word"`
	Definition   string    `json:"definition"`
	Example      string    `json:"example"`
	Box          int       `json:"box"`
	LastReviewed time.Time `json:"lastReviewed"`
}

// Stats summarises the collection for the home view.
type Stats struct {
	Total    int `json:"totalWords"`
	Due      int `json:"wordsToReview"`
	Mastered int `json:"wordsMastered"`
}

// MasteredPolicy decides whether box-5 words become due again.
type MasteredPolicy int

const (
	// ResurfaceMastered makes a mastered word due 30 days after its last
	// review.
	ResurfaceMastered MasteredPolicy = iota
	// NeverResurface keeps mastered words out of practice sessions forever.
	NeverResurface
)

// String returns the config spelling of the policy.
func (p MasteredPolicy) String() string {
	switch p {
	case ResurfaceMastered:
		return "resurface"
	case NeverResurface:
		return "never"
	default:
		return fmt.Sprintf("MasteredPolicy(%d)", int(p))
	}
}

// ParseMasteredPolicy parses the config spelling. The empty string selects
// [ResurfaceMastered].
func ParseMasteredPolicy(s string) (MasteredPolicy, error) {
	switch s {
	case "", "resurface":
		return ResurfaceMastered, nil
	case "never":
		return NeverResurface, nil
	default:
		return 0, fmt.Errorf("vocab: unknown mastered policy %q (want resurface or never)", s)
	}
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithPolicy sets the mastered-word policy.
func WithPolicy(p MasteredPolicy) Option {
	return func(s *Scheduler) { s.policy = p }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// Scheduler owns the persisted vocabulary collection. Operations in one
// process are serialised; separate processes sharing a store resolve
// conflicting writes as last writer wins.
type Scheduler struct {
	store   kv.Store
	now     func() time.Time
	policy  MasteredPolicy
	metrics *observe.Metrics

	mu sync.Mutex
}

// New creates a Scheduler persisting through store.
func New(store kv.Store, opts ...Option) *Scheduler {
	s := &Scheduler{store: store, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Policy returns the scheduler's mastered-word policy.
func (s *Scheduler) Policy() MasteredPolicy { return s.policy }

// IsDue reports whether w should be practised at now.
func (s *Scheduler) IsDue(w Word, now time.Time) bool {
	switch {
	case w.Box <= 0:
		return true
	case w.Box >= MaxBox && s.policy == NeverResurface:
		return false
	}
	box := min(w.Box, MaxBox)
	due := w.LastReviewed.AddDate(0, 0, reviewIntervalDays[box])
	return !now.Before(due)
}

// Words returns the whole collection in stored order.
func (s *Scheduler) Words(ctx context.Context) ([]Word, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// AddWords inserts every item whose lowercase word is not already present,
// in box 0 with the current time as last review. Duplicates inside items
// are collapsed to the first occurrence. It returns how many were added.
func (s *Scheduler) AddWords(ctx context.Context, items []feedback.VocabularyItem) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	words, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(words)+len(items))
	for _, w := range words {
		seen[strings.ToLower(w.Word)] = struct{}{}
	}

	now := s.now().UTC()
	added := 0
	for _, it := range items {
		if strings.TrimSpace(it.Word) == "" {
			continue
		}
		key := strings.ToLower(it.Word)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		words = append(words, Word{
			Word:         it.Word,
			Definition:   it.Definition,
			Example:      it.Example,
			Box:          0,
			LastReviewed: now,
		})
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := s.save(ctx, words); err != nil {
		return 0, err
	}
	slog.Info("vocabulary words added", "added", added, "total", len(words))
	return added, nil
}

// UpdateProgress records one review of word, matched case-insensitively. A
// known word moves up one box (capped at [MaxBox]); a missed word returns to
// box 0. Either way the review time becomes now. An unknown word is logged
// and ignored.
func (s *Scheduler) UpdateProgress(ctx context.Context, word string, knewIt bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	words, err := s.load(ctx)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(words, func(w Word) bool { return strings.EqualFold(w.Word, word) })
	if i < 0 {
		slog.Warn("vocabulary word not found", "word", word)
		return nil
	}

	if knewIt {
		words[i].Box = min(words[i].Box+1, MaxBox)
	} else {
		words[i].Box = 0
	}
	words[i].LastReviewed = s.now().UTC()

	if err := s.save(ctx, words); err != nil {
		return err
	}
	s.metrics.RecordReview(ctx, knewIt)
	return nil
}

// PracticeSession returns the due words, least known first. Words in the
// same box keep their stored order.
func (s *Scheduler) PracticeSession(ctx context.Context) ([]Word, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	words, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return s.due(words, s.now()), nil
}

// Stats returns the collection summary. Due equals the length of the
// current practice session.
func (s *Scheduler) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	words, err := s.load(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Total: len(words), Due: len(s.due(words, s.now()))}
	for _, w := range words {
		if w.Box >= MaxBox {
			st.Mastered++
		}
	}
	return st, nil
}

func (s *Scheduler) due(words []Word, now time.Time) []Word {
	out := make([]Word, 0, len(words))
	for _, w := range words {
		if s.IsDue(w, now) {
			out = append(out, w)
		}
	}
	slices.SortStableFunc(out, func(a, b Word) int { return a.Box - b.Box })
	return out
}

// ── Persistence ────────────────────────────────────────────────────────────────

// load reads the collection. A missing record is an empty collection; so is
// a corrupt one, which is logged. Boxes outside 0..MaxBox are clamped.
func (s *Scheduler) load(ctx context.Context) ([]Word, error) {
	data, err := s.store.Get(ctx, StorageKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vocab: load: %w", err)
	}

	var words []Word
	if err := json.Unmarshal(data, &words); err != nil {
		slog.Error("failed to parse stored vocabulary, starting empty", "err", err)
		return nil, nil
	}
	for i := range words {
		if b := words[i].Box; b < 0 || b > MaxBox {
			slog.Warn("clamping out-of-range vocabulary box", "word", words[i].Word, "box", b)
			words[i].Box = max(0, min(b, MaxBox))
		}
	}
	return words, nil
}

func (s *Scheduler) save(ctx context.Context, words []Word) error {
	data, err := json.Marshal(words)
	if err != nil {
		return fmt.Errorf("vocab: marshal: %w", err)
	}
	if err := s.store.Set(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("vocab: save: %w", err)
	}
	return nil
}
