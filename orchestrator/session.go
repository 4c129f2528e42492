package orchestrator

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/swdee/go-detectstream/preprocess"
)

// Session is the transient state of one detection request
type Session struct {
	// ID identifies the session in logs and events
	ID uuid.UUID
	// Started is when the request was accepted
	Started time.Time
	// Letterbox is the transform from the source image to the model input
	Letterbox preprocess.Letterbox
	state     atomic.Int32
}

func newSession(lb preprocess.Letterbox) *Session {
	return &Session{
		ID:        uuid.New(),
		Started:   time.Now(),
		Letterbox: lb,
	}
}

// State returns the session progress
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(st SessionState) {
	s.state.Store(int32(st))
}
