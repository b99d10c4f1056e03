package analyzer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"booq/types"
)

// Session is the handle of one run. A restart registers a new Session, so a
// run keeps seeing its own stop flag after being replaced.
type Session struct {
	fileID string
	stop   atomic.Bool

	// guarded by Registry.mu
	running  bool
	progress types.AnalysisProgress
}

func (s *Session) StopRequested() bool {
	return s.stop.Load()
}

// Registry tracks the latest analysis session per file id.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Begin replaces the session of fileID with a fresh analyzing one. It fails
// while the previous run has not returned, even when it was already stopped.
func (r *Registry) Begin(fileID string, totalPages int) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[fileID]; ok && s.running {
		return nil, fmt.Errorf("file %s: %w", fileID, types.ErrAlreadyRunning)
	}
	s := &Session{
		fileID:  fileID,
		running: true,
		progress: types.AnalysisProgress{
			FileID:     fileID,
			Status:     types.StatusAnalyzing,
			TotalPages: totalPages,
			Message:    "analysis started",
		},
	}
	r.sessions[fileID] = s
	return s, nil
}

// End releases the run held by s. Called once the run has returned.
func (r *Registry) End(s *Session) {
	r.mu.Lock()
	s.running = false
	r.mu.Unlock()
}

// Running reports whether a run for fileID has not returned yet.
func (r *Registry) Running(fileID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[fileID]
	return ok && s.running
}

// RequestStop flags the current session of fileID and marks it stopped right
// away. The run notices the flag at its next checkpoint.
func (r *Registry) RequestStop(fileID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[fileID]; ok {
		r.stopLocked(s)
	}
}

// Stop flags s itself, whether or not it is still the current session.
func (r *Registry) Stop(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked(s)
}

// StopAll flags every session whose run has not returned.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.running {
			r.stopLocked(s)
		}
	}
}

func (r *Registry) stopLocked(s *Session) {
	s.stop.Store(true)
	if s.progress.Status == types.StatusAnalyzing {
		s.progress.Status = types.StatusStopped
		s.progress.Message = "analysis stopped"
	}
}

func (r *Registry) Progress(fileID string) types.AnalysisProgress {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[fileID]
	if !ok {
		return types.AnalysisProgress{FileID: fileID, Status: types.StatusIdle}
	}
	return s.progress
}

// Update applies fn to the progress of s. Status changes made by fn are
// discarded.
func (r *Registry) Update(s *Session, fn func(*types.AnalysisProgress)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := s.progress.Status
	fn(&s.progress)
	s.progress.Status = status
	s.progress.FileID = s.fileID
}

// Finish moves an analyzing session into a terminal status. It reports
// whether the transition happened.
func (r *Registry) Finish(s *Session, status types.Status, message string, found int) bool {
	if !status.Terminal() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s.progress.Status != types.StatusAnalyzing {
		return false
	}
	s.progress.Status = status
	s.progress.Message = message
	s.progress.QuestionsFound = found
	return true
}
