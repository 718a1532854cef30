package model

import (
	"strconv"
	"time"

	"github.com/zeteolabs/zeteo/internal/pkg/hash"
)

// Fingerprint computes the deterministic cache key for a (backend id,
// query, filter) triple. Query and filter are normalized first, so two
// semantically identical requests always hash equal regardless of field
// order, casing of the level or timezone of the bounds.
func Fingerprint(backendID string, q LogQuery, f LogFilter) string {
	q = q.Normalize()
	f = f.Normalize()

	fields := map[string]string{
		"backend":      backendID,
		"text":         q.Text,
		"level":        q.Level,
		"service":      q.Service,
		"max":          strconv.Itoa(q.MaxResults),
		"start":        formatBound(q.StartTime),
		"end":          formatBound(q.EndTime),
		"f.level":      f.Level,
		"f.service":    f.Service,
		"f.substring":  f.Substring,
		"f.start":      formatBound(f.Start),
		"f.end":        formatBound(f.End),
	}
	return hash.Canonical(fields)
}

func formatBound(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
