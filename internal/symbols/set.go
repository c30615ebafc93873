package symbols

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrDuplicateSymbol is returned by Add for an already-tracked symbol.
	ErrDuplicateSymbol = errors.New("symbol already exists")

	// ErrSymbolNotFound is returned by Remove for an unknown symbol.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrEmptySet is returned by ReplaceAll for an empty replacement.
	ErrEmptySet = errors.New("symbol set cannot be empty")
)

// Set is a concurrency-safe, versioned set of symbol strings.
type Set struct {
	mu      sync.RWMutex
	symbols map[string]struct{}
	version uint64
}

// NewSet creates a Set with the given initial symbols (deduplicated).
// The version starts at 1 so readers holding a zero-valued cache see the
// initial symbols as a change.
func NewSet(initial []string) *Set {
	s := &Set{
		symbols: make(map[string]struct{}, len(initial)),
		version: 1,
	}
	for _, sym := range initial {
		s.symbols[sym] = struct{}{}
	}
	return s
}

// Add inserts a symbol. Matching is case-sensitive and exact.
func (s *Set) Add(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.symbols[symbol]; ok {
		return ErrDuplicateSymbol
	}
	s.symbols[symbol] = struct{}{}
	s.version++
	return nil
}

// Remove deletes a symbol.
func (s *Set) Remove(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.symbols[symbol]; !ok {
		return ErrSymbolNotFound
	}
	delete(s.symbols, symbol)
	s.version++
	return nil
}

// ReplaceAll atomically installs a new symbol set. On validation failure
// the current set is left untouched.
func (s *Set) ReplaceAll(symbols []string) error {
	if len(symbols) == 0 {
		return ErrEmptySet
	}

	next := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		next[sym] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.symbols = next
	s.version++
	return nil
}

// Snapshot returns the tracked symbols as a sorted copy.
func (s *Set) Snapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Version returns the mutation counter. It is 1 for a fresh Set and
// increments on every successful mutation, so a worker can skip
// re-snapshotting when the value is unchanged.
func (s *Set) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Len returns the number of tracked symbols.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.symbols)
}
