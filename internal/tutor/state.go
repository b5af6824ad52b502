package tutor

import "sync"

// State is the process-wide application state observed by the UI layer.
// Mutations go through the Controller and Builder only; the UI reads.
type State struct {
	mu         sync.RWMutex
	mentor     MentorStatus
	generating bool // an image-generation call is in flight
	inFlight   bool // a chat turn is awaiting the backend
}

// NewState returns the initial application state: mentor searching, idle.
func NewState() *State {
	return &State{mentor: MentorSearching}
}

// Mentor returns the backend's most recent declared mentor status.
func (s *State) Mentor() MentorStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mentor
}

func (s *State) setMentor(status MentorStatus) {
	s.mu.Lock()
	s.mentor = status
	s.mu.Unlock()
}

// Generating reports whether an image-generation call is in progress.
// This is the sole signal the UI uses to show the image busy indicator.
func (s *State) Generating() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generating
}

func (s *State) setGenerating(v bool) {
	s.mu.Lock()
	s.generating = v
	s.mu.Unlock()
}

// InFlight reports whether a chat turn is awaiting the backend.
func (s *State) InFlight() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inFlight
}

func (s *State) setInFlight(v bool) {
	s.mu.Lock()
	s.inFlight = v
	s.mu.Unlock()
}
