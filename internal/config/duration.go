package config

import (
	"fmt"
	"strings"
	"time"
)

// DurationOr resolves an optional duration field. Empty (or "0") picks the
// default; anything else must parse as a non-negative Go duration string.
// field names the config key for error messages.
func DurationOr(field, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", field, raw)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
