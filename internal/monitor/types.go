package monitor

import (
	"sitewatch/internal/storage"
)

// Outcome is the transient result of one reachability probe. It is never
// persisted as its own entity; it folds into the target's status fields.
type Outcome struct {
	Reachable  bool
	ResponseMS int64
	// HTTPStatus is 0 when no response was received (transport failure).
	HTTPStatus int
	// Err carries the transport error text; empty when a response arrived.
	Err string
}

// Event is a notifiable status transition. It is consumed by the notifier
// fan-out immediately and then discarded.
type Event struct {
	Target     *storage.Target
	NewStatus  storage.Status
	ResponseMS int64
	HTTPStatus int
	Err        string
}

// Result is the synchronous per-target answer of a scoped ("check now")
// sweep, returned regardless of notifiability.
type Result struct {
	Target     *storage.Target
	Status     storage.Status
	ResponseMS int64
	HTTPStatus int
	Err        string
}
