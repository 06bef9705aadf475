package broker

import (
	"sync"

	"github.com/google/uuid"

	"github.com/colony-launcher/colony/internal/job"
)

// task is broker work that is pollable like a job but is not a single child
// process: platform checks, exports and helper servers.
type task struct {
	state job.State
	stop  func()
}

// taskStore is shared between the loop and the goroutines doing the work.
type taskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*task
}

func newTaskStore() *taskStore {
	return &taskStore{tasks: make(map[uuid.UUID]*task)}
}

// start registers id as Running. stop may be nil.
func (s *taskStore) start(id job.ID, stop func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[id.Key()] = &task{state: job.StateOf(job.Running), stop: stop}
}

// finish records the exit code unless the task already finished.
func (s *taskStore) finish(id job.ID, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id.Key()]
	if !ok || t.state.IsTerminal() {
		return
	}

	t.state = job.CompletedWith(code)
}

func (s *taskStore) state(id job.ID) (job.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id.Key()]
	if !ok {
		return job.State{}, false
	}

	return t.state, true
}

// stop asks a running task to end and reports whether id is a task. The
// stop func runs at most once.
func (s *taskStore) stop(id job.ID) bool {
	s.mu.Lock()
	t, ok := s.tasks[id.Key()]

	var stop func()
	if ok && !t.state.IsTerminal() {
		stop, t.stop = t.stop, nil
	}
	s.mu.Unlock()

	if stop != nil {
		stop()
	}

	return ok
}

func (s *taskStore) stopAll() {
	s.mu.Lock()

	var stops []func()

	for _, t := range s.tasks {
		if !t.state.IsTerminal() && t.stop != nil {
			stops = append(stops, t.stop)
			t.stop = nil
		}
	}
	s.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
}
