package session

import (
	"errors"

	"go.uber.org/zap"

	"aiterm/internal/suggest"
	"aiterm/internal/tracker"
)

// EventKind says what an Event reports.
type EventKind int

const (
	EventResolved        EventKind = iota // a command finished and was not judged a failure
	EventFailure                          // a command failed; exactly one per failed command
	EventSuggestion                       // the assistant answered
	EventSuggestionError                  // the assistant could not answer
	EventExited                           // the shell exited
)

// String returns a human-readable name for the kind.
func (k EventKind) String() string {
	switch k {
	case EventResolved:
		return "resolved"
	case EventFailure:
		return "failure"
	case EventSuggestion:
		return "suggestion"
	case EventSuggestionError:
		return "suggestion_error"
	case EventExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Event is something the session reports to its controller.
type Event struct {
	Kind       EventKind
	Outcome    tracker.Outcome    // EventResolved, EventFailure
	Request    suggest.Request    // EventSuggestion, EventSuggestionError
	Suggestion suggest.Suggestion // EventSuggestion
	Err        error              // EventSuggestionError
	ExitCode   int                // EventExited
}

// emit queues ev without blocking. A controller that stops reading loses
// events rather than stalling the shell.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Warn("event queue full, dropping event", zap.Stringer("kind", ev.Kind))
	}
}

// forwardSuggestions turns dispatcher results into events until the
// dispatcher stops.
func (s *Session) forwardSuggestions() {
	for res := range s.dispatcher.Results() {
		s.activity.Suggestion(string(res.Request.Kind), res.Request.Command, res.Suggestion.Command, res.Err)
		if res.Err != nil {
			if errors.Is(res.Err, suggest.ErrDisabled) {
				continue
			}
			s.emit(Event{Kind: EventSuggestionError, Request: res.Request, Err: res.Err})
			continue
		}
		if res.Suggestion.Command != "" {
			s.mu.Lock()
			s.suggestion = res.Suggestion
			s.mu.Unlock()
		}
		s.emit(Event{Kind: EventSuggestion, Request: res.Request, Suggestion: res.Suggestion})
	}
}
