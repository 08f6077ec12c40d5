// Package prefs keeps the user's preferred local model keys: an ordered set
// persisted under a fixed file, independent of any server state. Purely a
// convenience layer, never consulted by the gateway or the HTTP boundary.
package prefs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// FileName is the fixed storage key for the preferred-models list.
const FileName = "lmstudio-preferred-models.json"

// Store is the preferred-models list. Insertion order is preserved,
// duplicates are rejected, and every mutation synchronously rewrites the
// full list.
type Store struct {
	mu   sync.Mutex
	path string
	keys []string
}

// Open loads the list stored under dir; a missing file yields an empty list.
func Open(dir string) (*Store, error) {
	s := &Store{path: filepath.Join(dir, FileName)}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(b, &s.keys); err != nil {
		return nil, err
	}
	return s, nil
}

// Add appends modelKey; no-op if already present.
func (s *Store) Add(modelKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k == modelKey {
			return nil
		}
	}
	s.keys = append(s.keys, modelKey)
	return s.save()
}

// Remove drops modelKey; no-op if absent.
func (s *Store) Remove(modelKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, k := range s.keys {
		if k == modelKey {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			return s.save()
		}
	}
	return nil
}

// IsPreferred reports whether modelKey is in the list.
func (s *Store) IsPreferred(modelKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k == modelKey {
			return true
		}
	}
	return false
}

// List returns a copy of the list in insertion order.
func (s *Store) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

func (s *Store) save() error {
	b, err := json.MarshalIndent(s.keys, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, b, 0o644)
}
