package session

import (
	"context"
	"time"
)

const defaultIdleThreshold = 2 * time.Second

// State represents the current state of the session's shell process.
type State int

const (
	StateActive State = iota // shell running, recent output
	StateIdle                // shell running, no output for a while
	StateExited              // shell process exited
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// State returns the current session state.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// StateChanged returns a channel that is closed when the session state changes.
// Callers should re-check State() after receiving from this channel.
func (s *Session) StateChanged() <-chan struct{} {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.stateCh
}

// WaitForState blocks until the session reaches the target state or ctx is cancelled.
// Returns true if the target state was reached, false if ctx was cancelled.
func (s *Session) WaitForState(ctx context.Context, target State) bool {
	for {
		s.stateMu.Lock()
		if s.state == target {
			s.stateMu.Unlock()
			return true
		}
		ch := s.stateCh
		s.stateMu.Unlock()

		select {
		case <-ch:
			continue
		case <-ctx.Done():
			return false
		}
	}
}

// StateDuration returns how long the session has been in its current state.
func (s *Session) StateDuration() time.Duration {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return time.Since(s.stateChangedAt)
}

// setState updates the session state and notifies waiters. Exited is final.
func (s *Session) setState(newState State) {
	s.stateMu.Lock()
	old := s.state
	if old == newState || old == StateExited {
		s.stateMu.Unlock()
		return
	}
	s.state = newState
	s.stateChangedAt = time.Now()
	close(s.stateCh)
	s.stateCh = make(chan struct{})
	s.stateMu.Unlock()

	s.activity.StateChange(old.String(), newState.String())
}

// noteOutput signals that the shell produced output. Safe to call while
// holding s.mu: it does only a non-blocking channel send.
func (s *Session) noteOutput() {
	select {
	case s.outputNotify <- struct{}{}:
	default:
	}
}

// noteActivity resets the idle timer and sets state to Active.
func (s *Session) noteActivity(idleTimer *time.Timer) {
	s.setState(StateActive)
	if !idleTimer.Stop() {
		select {
		case <-idleTimer.C:
		default:
		}
	}
	idleTimer.Reset(s.idleThreshold)
}

// watchState moves the session between Active and Idle until ctx ends.
func (s *Session) watchState(ctx context.Context) {
	idleTimer := time.NewTimer(s.idleThreshold)
	defer idleTimer.Stop()

	for {
		select {
		case <-s.outputNotify:
			s.noteActivity(idleTimer)

		case <-idleTimer.C:
			if s.State() != StateExited {
				s.setState(StateIdle)
			}

		case <-ctx.Done():
			return
		}
	}
}
