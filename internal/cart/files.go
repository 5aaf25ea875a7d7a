package cart

import "sync"

// Payload holds the raw bytes of a file staged for submission, together with
// its content type. Payloads live outside the cart itself so the cart stays
// fully serializable; the two are correlated by item ID.
type Payload struct {
	Data        []byte
	ContentType string
}

// FileStore is a process-local keyed arena mapping a line-item ID to its raw
// file payload. The store owns the bytes until Delete or Clear. Nothing is
// persisted; abandoning the process abandons the in-progress order.
type FileStore struct {
	mu       sync.Mutex
	payloads map[string]Payload
}

// NewFileStore creates an empty file store.
func NewFileStore() *FileStore {
	return &FileStore{payloads: make(map[string]Payload)}
}

// Put stores a payload under the given item ID, overwriting any existing
// entry.
func (s *FileStore) Put(id string, p Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads[id] = p
}

// Get returns the payload for the given item ID.
func (s *FileStore) Get(id string) (Payload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payloads[id]
	return p, ok
}

// Delete removes the payload for the given item ID. Absent IDs are a no-op.
func (s *FileStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.payloads, id)
}

// Clear drops all stored payloads.
func (s *FileStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = make(map[string]Payload)
}

// Len returns the number of stored payloads.
func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}
