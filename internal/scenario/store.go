package scenario

import (
	"log/slog"
	"sync/atomic"
)

// Store holds the active catalog and lets it be swapped atomically when the
// user catalog file changes. Readers never block.
type Store struct {
	current atomic.Pointer[Catalog]
}

// NewStore returns a Store serving c, or the embedded catalog when c is nil.
func NewStore(c *Catalog) *Store {
	if c == nil {
		c = Builtin()
	}
	s := &Store{}
	s.current.Store(c)
	return s
}

// Catalog returns the active catalog.
func (s *Store) Catalog() *Catalog { return s.current.Load() }

// Replace makes c the active catalog. A nil c is ignored.
func (s *Store) Replace(c *Catalog) {
	if c == nil {
		return
	}
	prev := s.current.Swap(c)
	slog.Info("scenario catalog replaced", "scenarios", c.Len(), "previous", prev.Len())
}
