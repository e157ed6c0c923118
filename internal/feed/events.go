// Package feed implements the change-feed subscription session: a
// cooperative poll loop over the image ledger that turns row mutations into
// a typed event stream. There is no push infrastructure behind it; it is
// polling wearing an event envelope, so every session is independent.
package feed

import (
	"time"

	"github.com/zyetaone/z-interact-sub000/internal/models"
)

// EventType discriminates the events a session emits.
type EventType string

const (
	// EventSync carries the complete current snapshot. Emitted once, at the
	// start of sessions that did not resume from a cursor.
	EventSync EventType = "sync"
	// EventUpdate carries the rows changed since the session's cursor.
	EventUpdate EventType = "update"
	// EventComplete signals that every expected table has a locked row.
	EventComplete EventType = "complete"
	// EventEnd is the last event of a normally terminated session.
	EventEnd EventType = "end"
	// EventError is the last event of a session that exhausted its retry
	// budget.
	EventError EventType = "error"
)

// End reasons. A timeout end is expected and tells the client to
// re-subscribe immediately; a cancelled end does not.
const (
	ReasonTimeout   = "timeout"
	ReasonCancelled = "cancelled"
)

// Event is the discriminated envelope delivered to subscribers.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp int64     `json:"timestamp"`
}

// UpdateData is the payload of sync and update events.
type UpdateData struct {
	Images []models.Image `json:"images"`
}

// CompleteData maps each expected table to whether it has locked.
type CompleteData struct {
	Ready map[string]bool `json:"ready"`
}

// EndData carries the reason a session ended.
type EndData struct {
	Reason string `json:"reason"`
}

// ErrorData carries the terminal error message of an errored session.
type ErrorData struct {
	Message string `json:"message"`
}

func newEvent(t EventType, data any) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now().UnixMilli()}
}
