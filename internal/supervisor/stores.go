package supervisor

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/colony-launcher/colony/internal/job"
	"github.com/colony-launcher/colony/internal/termrender"
)

// OutputStore maps job ids to their shared line buffers.
type OutputStore struct {
	mu      sync.RWMutex
	buffers map[uuid.UUID]*termrender.Buffer
}

// NewOutputStore returns an empty store.
func NewOutputStore() *OutputStore {
	return &OutputStore{buffers: make(map[uuid.UUID]*termrender.Buffer)}
}

// Get returns the buffer for id.
func (s *OutputStore) Get(id job.ID) (*termrender.Buffer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf, ok := s.buffers[id.Key()]

	return buf, ok
}

// Attach registers buf under id unless a buffer already exists, and returns
// the buffer in effect. A nil buf creates a fresh one.
func (s *OutputStore) Attach(id job.ID, buf *termrender.Buffer) *termrender.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.buffers[id.Key()]; ok {
		return existing
	}

	if buf == nil {
		buf = termrender.NewBuffer()
	}

	s.buffers[id.Key()] = buf

	return buf
}

// Delete forgets the buffer for id.
func (s *OutputStore) Delete(id job.ID) {
	s.mu.Lock()
	delete(s.buffers, id.Key())
	s.mu.Unlock()
}

// ContainerIndex maps container paths to the jobs that ran them, in spawn
// order. It holds ids only.
type ContainerIndex struct {
	mu   sync.RWMutex
	jobs map[string][]job.ID
}

// NewContainerIndex returns an empty index.
func NewContainerIndex() *ContainerIndex {
	return &ContainerIndex{jobs: make(map[string][]job.ID)}
}

// Link appends id to the list for path.
func (c *ContainerIndex) Link(path string, id job.ID) {
	c.mu.Lock()
	c.jobs[path] = append(c.jobs[path], id)
	c.mu.Unlock()
}

// Jobs returns the ids that ran path, oldest first.
func (c *ContainerIndex) Jobs(path string) []job.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]job.ID(nil), c.jobs[path]...)
}

// Unlink drops id from the list for path, and the path once it has no jobs.
func (c *ContainerIndex) Unlink(path string, id job.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := slices.DeleteFunc(c.jobs[path], func(other job.ID) bool { return other.Equal(id) })
	if len(ids) == 0 {
		delete(c.jobs, path)
		return
	}

	c.jobs[path] = ids
}
