package memory

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/snapprint/snapprint/internal/storage"
)

type fileEntry struct {
	Key         string
	ContentType string
	Data        []byte
	URL         string
}

// Storage implements storage.Storage using an in-memory map. It keeps the
// uploaded bytes so tests and local development can read files back.
type Storage struct {
	mu      sync.RWMutex
	files   map[string]*fileEntry
	baseURL string

	// FailKeys lists keys whose upload should fail and FailAll fails every
	// upload, for exercising the all-or-nothing ingestion path in tests.
	FailKeys map[string]bool
	FailAll  bool
}

// New creates a new in-memory storage instance.
func New(baseURL string) *Storage {
	return &Storage{
		files:   make(map[string]*fileEntry),
		baseURL: baseURL,
	}
}

// Upload stores the file bytes in memory and returns the generated URL.
func (s *Storage) Upload(_ context.Context, input *storage.UploadInput) (*storage.UploadResult, error) {
	data, err := io.ReadAll(input.Data)
	if err != nil {
		return nil, fmt.Errorf("read upload data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAll || s.FailKeys[input.Key] {
		return nil, fmt.Errorf("upload rejected for key %s", input.Key)
	}

	url := fmt.Sprintf("%s/files/%s", s.baseURL, input.Key)
	s.files[input.Key] = &fileEntry{
		Key:         input.Key,
		ContentType: input.ContentType,
		Data:        data,
		URL:         url,
	}

	return &storage.UploadResult{Key: input.Key, URL: url}, nil
}

// Get returns the stored bytes and content type for a key.
func (s *Storage) Get(key string) (data []byte, contentType string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.files[key]
	if !exists {
		return nil, "", false
	}
	return entry.Data, entry.ContentType, true
}

// Len returns the number of stored files.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
