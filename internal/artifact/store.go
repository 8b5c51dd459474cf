package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNotFound is returned when no object exists at a URL.
var ErrNotFound = errors.New("artifact not found")

// Store is durable key -> bytes storage addressed by public URL.
type Store interface {
	// Put writes data under key and returns the URL it is reachable at.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Get returns the bytes stored at a URL previously returned by Put.
	Get(ctx context.Context, url string) ([]byte, error)
}

// keyFromURL strips base from url. base must not end with a slash.
func keyFromURL(base, url string) (string, error) {
	prefix := base + "/"
	if !strings.HasPrefix(url, prefix) || len(url) == len(prefix) {
		return "", fmt.Errorf("url %q is not under %q", url, base)
	}
	return strings.TrimPrefix(url, prefix), nil
}

// MemoryStore keeps artifacts in process memory. Used for local development
// and tests; contents are lost on restart.
type MemoryStore struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string][]byte
	puts    int
}

// NewMemoryStore creates an empty MemoryStore whose URLs start with baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "memory://artifacts"
	}
	return &MemoryStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string][]byte),
	}
}

func (s *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", errors.New("put artifact: empty key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	s.puts++
	return s.baseURL + "/" + key, nil
}

func (s *MemoryStore) Get(ctx context.Context, url string) ([]byte, error) {
	key, err := keyFromURL(s.baseURL, url)
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Puts returns the number of successful Put calls.
func (s *MemoryStore) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
