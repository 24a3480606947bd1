// Package memstore is an in-memory storage.ObjectStore. The server falls
// back to it when no bucket is configured; tests use it to observe puts
// and deletes.
package memstore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"

	"github.com/sakif/tripsync/internal/storage"
)

var _ storage.ObjectStore = (*Store)(nil)

type object struct {
	data        []byte
	contentType string
}

// Store keeps objects in a map guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]object

	// Failure injection for tests.
	PutErr    error
	GetErr    error
	DeleteErr error
	// BeforeDelete runs at the start of every Delete, outside the lock.
	// A non-nil result fails that call and leaves the object in place.
	BeforeDelete func(key string) error

	puts    int
	deletes []string
}

// New returns an empty store whose URLs start with baseURL.
func New(baseURL string) *Store {
	return &Store{baseURL: baseURL, objects: make(map[string]object)}
}

func (s *Store) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return "", s.PutErr
	}
	s.objects[key] = object{data: bytes.Clone(data), contentType: contentType}
	s.puts++
	return s.baseURL + "/" + key, nil
}

func (s *Store) Get(_ context.Context, key string) (*storage.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	obj, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return &storage.Object{
		Body:        io.NopCloser(bytes.NewReader(obj.data)),
		ContentType: obj.contentType,
		Size:        int64(len(obj.data)),
	}, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	if s.BeforeDelete != nil {
		if err := s.BeforeDelete(key); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	delete(s.objects, key)
	s.deletes = append(s.deletes, key)
	return nil
}

// Keys lists stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is stored.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok
}

// Puts counts successful Put calls.
func (s *Store) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}

// Deletes returns the keys passed to successful Delete calls, in order.
func (s *Store) Deletes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.deletes...)
}
