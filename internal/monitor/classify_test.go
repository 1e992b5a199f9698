package monitor

import (
	"testing"

	"sitewatch/internal/storage"
)

func TestClassifyTransitions(t *testing.T) {
	t.Parallel()

	up := Outcome{Reachable: true, HTTPStatus: 200, ResponseMS: 42}
	down := Outcome{Reachable: false, Err: "dial tcp: connection refused"}
	downStatus := Outcome{Reachable: false, HTTPStatus: 503}

	cases := []struct {
		name       string
		old        storage.Status
		out        Outcome
		wantStatus storage.Status
		wantNotify bool
	}{
		{"online stays online silently", storage.StatusOnline, up, storage.StatusOnline, false},
		{"offline stays offline silently", storage.StatusOffline, down, storage.StatusOffline, false},
		{"online to offline notifies", storage.StatusOnline, down, storage.StatusOffline, true},
		{"online to offline on 5xx notifies", storage.StatusOnline, downStatus, storage.StatusOffline, true},
		{"offline to online notifies", storage.StatusOffline, up, storage.StatusOnline, true},
		{"first probe online notifies", storage.StatusUnknown, up, storage.StatusOnline, true},
		{"first probe offline is silent", storage.StatusUnknown, down, storage.StatusOffline, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, notify := Classify(tc.old, tc.out)
			if got != tc.wantStatus {
				t.Fatalf("status = %q, want %q", got, tc.wantStatus)
			}
			if notify != tc.wantNotify {
				t.Fatalf("notifiable = %v, want %v", notify, tc.wantNotify)
			}
		})
	}
}

// A target never returns to unknown once it has been probed.
func TestClassifyNeverProducesUnknown(t *testing.T) {
	t.Parallel()
	for _, old := range []storage.Status{storage.StatusUnknown, storage.StatusOnline, storage.StatusOffline} {
		for _, out := range []Outcome{{Reachable: true}, {Reachable: false}} {
			if got, _ := Classify(old, out); got == storage.StatusUnknown {
				t.Fatalf("Classify(%q, reachable=%v) produced unknown", old, out.Reachable)
			}
		}
	}
}
