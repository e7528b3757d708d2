package kv

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/edgeworker/internal/codec"
	logs "github.com/danmuck/edgeworker/internal/logging"
	"github.com/danmuck/edgeworker/internal/worker"
)

const (
	// Name is the implementation name for temporary in-memory key-value state.
	Name = "kv"

	EntryDescriptor   = "kv.entry"
	EntriesDescriptor = "kv.entries"
)

var (
	ErrMissingKey = errors.New("kv: missing key")
	ErrNotFound   = errors.New("kv: key not found")
)

// Entry is one stored key-value pair.
type Entry struct {
	Key   string `cbor:"key"`
	Value string `cbor:"value"`
}

// Store is a temporary in-memory key-value implementation. It lives for one
// worker session.
type Store struct {
	mu    sync.RWMutex
	store map[string]string
}

// New registers the kv descriptors on the session codec registry and
// constructs an empty store.
func New(services *worker.Services) (any, error) {
	reg, err := worker.Lookup[*codec.Registry](services)
	if err != nil {
		return nil, err
	}
	if err := RegisterCodecs(reg); err != nil {
		return nil, err
	}
	return NewStore(), nil
}

func NewStore() *Store {
	return &Store{store: make(map[string]string)}
}

// RegisterCodecs installs Entry and []Entry. Repeat registration is a no-op.
func RegisterCodecs(reg *codec.Registry) error {
	if err := codec.RegisterType[Entry](reg, EntryDescriptor); err != nil && !errors.Is(err, codec.ErrDuplicateDescriptor) {
		return err
	}
	if err := codec.RegisterType[[]Entry](reg, EntriesDescriptor); err != nil && !errors.Is(err, codec.ErrDuplicateDescriptor) {
		return err
	}
	return nil
}

func (s *Store) Put(key, value string) error {
	k := strings.TrimSpace(key)
	if k == "" {
		return ErrMissingKey
	}
	s.mu.Lock()
	s.store[k] = value
	s.mu.Unlock()
	logs.Debugf("kv.Store.Put key=%s bytes=%d", k, len(value))
	return nil
}

func (s *Store) Get(key string) (string, error) {
	k := strings.TrimSpace(key)
	if k == "" {
		return "", ErrMissingKey
	}
	s.mu.RLock()
	val, ok := s.store[k]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, k)
	}
	return val, nil
}

// Delete removes key; deleting an absent key is not an error.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.store, strings.TrimSpace(key))
	s.mu.Unlock()
}

// List returns sorted keys with the given prefix; empty prefix lists all.
func (s *Store) List(prefix string) []string {
	p := strings.TrimSpace(prefix)
	s.mu.RLock()
	keys := make([]string, 0, len(s.store))
	for k := range s.store {
		if p == "" || strings.HasPrefix(k, p) {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

func (s *Store) Entry(key string) (Entry, error) {
	val, err := s.Get(key)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Key: strings.TrimSpace(key), Value: val}, nil
}

// Entries returns sorted entries with the given prefix.
func (s *Store) Entries(prefix string) []Entry {
	keys := s.List(prefix)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		if v, ok := s.store[k]; ok {
			out = append(out, Entry{Key: k, Value: v})
		}
	}
	return out
}
