package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore keeps files in process. Download links use the memory:// scheme.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]Object
}

type Object struct {
	Data        []byte
	ContentType string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Object)}
}

func (s *MemoryStore) Upload(_ context.Context, path string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = Object{Data: data, ContentType: contentType}
	return nil
}

func (s *MemoryStore) DownloadURL(_ context.Context, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[path]; !ok {
		return "", fmt.Errorf("object %s not found", path)
	}
	return "memory://" + path, nil
}

func (s *MemoryStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, path)
	return nil
}

// Get returns the stored object at path.
func (s *MemoryStore) Get(path string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[path]
	return obj, ok
}
