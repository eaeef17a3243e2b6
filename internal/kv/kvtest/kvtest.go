// Package kvtest holds the behaviour every [kv.Store] backend must share.
// Backend tests call [Run] with a fresh store.
package kvtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/MrWong99/speakeasy/internal/kv"
)

// Run exercises s. The store must be empty.
func Run(t *testing.T, s kv.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		if _, err := s.Get(ctx, "absent"); !errors.Is(err, kv.ErrNotFound) {
			t.Errorf("Get(absent) err = %v, want ErrNotFound", err)
		}
	})

	t.Run("set then get", func(t *testing.T) {
		want := []byte(`[{"word":"ephemeral","box":0}]`)
		if err := s.Set(ctx, "gemini_tutor_vocabulary", want); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, err := s.Get(ctx, "gemini_tutor_vocabulary")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("Get = %s, want %s", got, want)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		if err := s.Set(ctx, "k", []byte("one")); err != nil {
			t.Fatalf("Set: %v", err)
		}
		if err := s.Set(ctx, "k", []byte("two")); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, err := s.Get(ctx, "k")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != "two" {
			t.Errorf("Get = %q, want %q", got, "two")
		}
	})

	t.Run("returned value is a copy", func(t *testing.T) {
		if err := s.Set(ctx, "copy", []byte("abc")); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, _ := s.Get(ctx, "copy")
		got[0] = 'x'
		again, _ := s.Get(ctx, "copy")
		if string(again) != "abc" {
			t.Errorf("stored value mutated through Get result: %q", again)
		}
	})

	t.Run("invalid key", func(t *testing.T) {
		for _, key := range []string{"", "a/b", ".."} {
			if err := s.Set(ctx, key, []byte("x")); !errors.Is(err, kv.ErrInvalidKey) {
				t.Errorf("Set(%q) err = %v, want ErrInvalidKey", key, err)
			}
		}
	})

	t.Run("concurrent writers", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Go(func() {
				if err := s.Set(ctx, fmt.Sprintf("c%d", i), []byte{byte(i)}); err != nil {
					t.Errorf("Set: %v", err)
				}
			})
		}
		wg.Wait()
		for i := range 8 {
			got, err := s.Get(ctx, fmt.Sprintf("c%d", i))
			if err != nil || len(got) != 1 || got[0] != byte(i) {
				t.Errorf("c%d = %v, %v", i, got, err)
			}
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := kv.Ping(ctx, s); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}
