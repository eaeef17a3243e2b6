// Package history keeps the most recent completed conversations together
// with their scenario and feedback report.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/speakeasy/internal/feedback"
	"github.com/MrWong99/speakeasy/internal/kv"
	"github.com/MrWong99/speakeasy/internal/scenario"
	"github.com/MrWong99/speakeasy/internal/tutor"
)

// StorageKey is the record holding the history collection.
const StorageKey = "gemini_tutor_history"

// MaxItems is the number of conversations kept.
const MaxItems = 50

// IDFormat is the layout of item ids: UTC creation time with millisecond
// precision.
const IDFormat = "2006-01-02T15:04:05.000Z07:00"

// ErrNotFound is returned by [Store.Get] for an unknown id.
var ErrNotFound = errors.New("history: item not found")

// Item is one saved conversation.
type Item struct {
	ID           string            `json:"id"`
	Scenario     scenario.Scenario `json:"scenario"`
	Conversation []tutor.Turn      `json:"conversation"`
	Feedback     feedback.Report   `json:"feedback"`
}

// CreatedAt parses the item id. Ids that do not parse report the zero time.
func (it Item) CreatedAt() time.Time {
	t, err := time.Parse(time.RFC3339Nano, it.ID)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Option configures a [Store].
type Option func(*Store)

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMaxItems overrides [MaxItems].
func WithMaxItems(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.max = n
		}
	}
}

// Store persists the history collection through a [kv.Store].
type Store struct {
	store kv.Store
	now   func() time.Time
	max   int

	mu sync.Mutex
}

// New creates a Store persisting through store.
func New(store kv.Store, opts ...Option) *Store {
	s := &Store{store: store, now: time.Now, max: MaxItems}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Save records a finished conversation as the newest item and drops the
// oldest items beyond the cap. Ids increase strictly: when the clock has not
// moved past the newest stored id, the new id is one millisecond later.
func (s *Store) Save(ctx context.Context, sc scenario.Scenario, conversation []tutor.Turn, report feedback.Report) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx)
	if err != nil {
		return Item{}, err
	}

	created := s.now().UTC().Truncate(time.Millisecond)
	if len(items) > 0 {
		if newest := items[0].CreatedAt(); !created.After(newest) {
			created = newest.Add(time.Millisecond)
		}
	}
	item := Item{
		ID:           created.Format(IDFormat),
		Scenario:     sc,
		Conversation: slices.Clone(conversation),
		Feedback:     report,
	}
	if item.Conversation == nil {
		item.Conversation = []tutor.Turn{}
	}

	items = append([]Item{item}, items...)
	if len(items) > s.max {
		items = items[:s.max]
	}
	if err := s.save(ctx, items); err != nil {
		return Item{}, err
	}
	slog.Info("conversation saved to history", "id", item.ID, "scenario", sc.ID, "turns", len(conversation))
	return item, nil
}

// List returns every item, newest first.
func (s *Store) List(ctx context.Context) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Get returns the item with the given id.
func (s *Store) Get(ctx context.Context, id string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx)
	if err != nil {
		return Item{}, err
	}
	i := slices.IndexFunc(items, func(it Item) bool { return it.ID == id })
	if i < 0 {
		return Item{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return items[i], nil
}

// ── Persistence ────────────────────────────────────────────────────────────────

// load reads the collection sorted newest first. A missing or corrupt record
// is an empty collection; corruption is logged.
func (s *Store) load(ctx context.Context) ([]Item, error) {
	data, err := s.store.Get(ctx, StorageKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: load: %w", err)
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		slog.Error("failed to parse stored history, starting empty", "err", err)
		return nil, nil
	}
	slices.SortStableFunc(items, func(a, b Item) int {
		return b.CreatedAt().Compare(a.CreatedAt())
	})
	return items, nil
}

func (s *Store) save(ctx context.Context, items []Item) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}
	if err := s.store.Set(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("history: save: %w", err)
	}
	return nil
}
