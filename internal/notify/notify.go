// Package notify publishes (type, id, versionId, change-kind) for every
// successful write to a fan-out channel, for external subscription
// machinery (WebSocket push, CDS-Hooks, etc) to consume.
package notify

import (
	"log/slog"
)

// ChangeKind is the kind of write a Change describes.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Change is one successful-write notification.
type Change struct {
	ResourceType string
	ResourceID   string
	VersionID    int64
	Kind         ChangeKind
}

// Publisher fans Change events out on an unbuffered channel with a
// non-blocking send, the same delivery-may-fail contract audit.Sink uses:
// a slow or absent subscriber never blocks the write that triggered it.
type Publisher struct {
	changes chan Change
	log     *slog.Logger
}

// NewPublisher builds a Publisher.
func NewPublisher(log *slog.Logger) *Publisher {
	return &Publisher{changes: make(chan Change), log: log}
}

// Changes returns the channel external subscribers read from.
func (p *Publisher) Changes() <-chan Change { return p.changes }

// Publish sends c, dropping it silently (after a debug log line) if nothing
// is receiving.
func (p *Publisher) Publish(c Change) {
	select {
	case p.changes <- c:
	default:
		p.log.Debug("change notification dropped, no active subscriber",
			"kind", c.Kind, "resource", c.ResourceType+"/"+c.ResourceID)
	}
}
