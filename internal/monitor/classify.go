package monitor

import "sitewatch/internal/storage"

// Classify folds a probe outcome into the target's next status and decides
// whether the change is notifiable.
//
// The status machine is a symmetric two-state latch with "unknown" as a
// one-way initial state: once any probe completes, status never returns to
// unknown. Notifications fire on online->offline and on {offline,unknown}->
// online; same-status repeats and unknown->offline stay silent.
func Classify(old storage.Status, out Outcome) (storage.Status, bool) {
	next := storage.StatusOffline
	if out.Reachable {
		next = storage.StatusOnline
	}

	switch {
	case old == storage.StatusOnline && next == storage.StatusOffline:
		return next, true
	case old.Down() && next == storage.StatusOnline:
		return next, true
	default:
		return next, false
	}
}
