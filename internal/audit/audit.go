// Package audit tags create/read/update/delete events with actor,
// resource reference, and outcome, and publishes them on a non-blocking
// channel so a slow or absent subscriber never slows down the primary
// operation.
package audit

import (
	"log/slog"
	"time"
)

// Action is the CRUD verb an Event records.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Event is one audit record.
type Event struct {
	Action       Action
	ResourceType string
	ResourceID   string
	VersionID    int64
	Actor        string // Principal.Subject, or "" when unauthenticated
	Outcome      string // "success" | "failure"
	At           time.Time
}

// Sink publishes audit events on an unbuffered channel with a non-blocking
// send: a subscriber that isn't actively draining the channel simply misses
// events rather than stalling the caller.
type Sink struct {
	events chan Event
	log    *slog.Logger
}

// NewSink builds a Sink. log is used to note dropped events, not to
// duplicate delivery.
func NewSink(log *slog.Logger) *Sink {
	return &Sink{events: make(chan Event), log: log}
}

// Events returns the channel external subscription machinery reads from.
func (s *Sink) Events() <-chan Event { return s.events }

// Emit publishes ev, dropping it silently (after a debug log line) if
// nothing is receiving.
func (s *Sink) Emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Debug("audit event dropped, no active subscriber",
			"action", ev.Action, "resource", ev.ResourceType+"/"+ev.ResourceID)
	}
}
