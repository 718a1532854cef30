package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/zeteolabs/zeteo/internal/pkg/errors"
)

// ParseTime resolves a user-supplied time expression into an absolute
// UTC instant. Accepted forms:
//
//   - RFC3339 timestamps ("2025-06-01T12:00:00Z")
//   - relative offsets into the past: "90s", "15m", "2h", "1d"
//   - "now"
//
// Relative offsets are resolved against the supplied reference instant
// so callers and tests stay deterministic.
func ParseTime(expr string, now time.Time) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, errors.ValidationError("empty time expression")
	}

	if strings.EqualFold(expr, "now") {
		return now.UTC(), nil
	}

	if t, err := time.Parse(time.RFC3339, expr); err == nil {
		return t.UTC(), nil
	}

	unit := expr[len(expr)-1]
	n, err := strconv.Atoi(expr[:len(expr)-1])
	if err != nil || n < 0 {
		return time.Time{}, errors.Newf(errors.CodeValidation, "unparseable time expression %q", expr)
	}

	var d time.Duration
	switch unit {
	case 's':
		d = time.Duration(n) * time.Second
	case 'm':
		d = time.Duration(n) * time.Minute
	case 'h':
		d = time.Duration(n) * time.Hour
	case 'd':
		d = time.Duration(n) * 24 * time.Hour
	default:
		return time.Time{}, errors.Newf(errors.CodeValidation, "unknown time unit in %q", expr)
	}

	return now.Add(-d).UTC(), nil
}
