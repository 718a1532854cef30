// Package model defines the unified log data model shared by every
// backend: entries, queries, filters and aggregations. Backend clients
// translate LogQuery into their native grammar and map results back
// into LogEntry values.
package model

import (
	"strings"
	"time"
)

// Log level constants. Backends report levels in assorted casings;
// entries are normalized to these upper-case forms at parse time.
const (
	LevelTrace = "TRACE"
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelFatal = "FATAL"
)

const (
	// DefaultMaxResults applies when a query does not set a cap.
	DefaultMaxResults = 50
	// MaxResultsCeiling is the hard upper bound for a single query.
	MaxResultsCeiling = 1000
)

// LogEntry is a single normalized log record. Entries are immutable
// once parsed; callers own the slices they receive and discard them
// after display or export.
type LogEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Level      string            `json:"level"`
	Message    string            `json:"message"`
	Service    string            `json:"service,omitempty"`
	TraceID    string            `json:"trace_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// LogQuery is the unified query model. Text is interpreted by each
// backend in its own grammar (Lucene, SQL LIKE, KQL).
type LogQuery struct {
	Text       string     `json:"text"`
	StartTime  *time.Time `json:"start_time,omitempty"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	Level      string     `json:"level,omitempty"`
	Service    string     `json:"service,omitempty"`
	MaxResults int        `json:"max_results"`
}

// Normalize returns a canonical copy of the query: trimmed text,
// upper-cased level, timestamps in UTC and MaxResults clamped to
// [1, MaxResultsCeiling] with the default applied when unset.
func (q LogQuery) Normalize() LogQuery {
	n := q
	n.Text = strings.TrimSpace(q.Text)
	n.Level = strings.ToUpper(strings.TrimSpace(q.Level))
	n.Service = strings.TrimSpace(q.Service)
	if n.MaxResults <= 0 {
		n.MaxResults = DefaultMaxResults
	}
	if n.MaxResults > MaxResultsCeiling {
		n.MaxResults = MaxResultsCeiling
	}
	n.StartTime = toUTC(q.StartTime)
	n.EndTime = toUTC(q.EndTime)
	return n
}

// LogFilter narrows a result set. Level, service and the time range are
// pushed into the backend query; Substring is always applied client-side.
type LogFilter struct {
	Level     string     `json:"level,omitempty"`
	Service   string     `json:"service,omitempty"`
	Substring string     `json:"substring,omitempty"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
}

// Normalize returns a canonical copy of the filter.
func (f LogFilter) Normalize() LogFilter {
	n := f
	n.Level = strings.ToUpper(strings.TrimSpace(f.Level))
	n.Service = strings.TrimSpace(f.Service)
	n.Start = toUTC(f.Start)
	n.End = toUTC(f.End)
	return n
}

// IsZero reports whether the filter constrains nothing.
func (f LogFilter) IsZero() bool {
	return f.Level == "" && f.Service == "" && f.Substring == "" &&
		f.Start == nil && f.End == nil
}

// Match reports whether the entry satisfies every predicate of the
// filter. An empty filter matches everything.
func (f LogFilter) Match(e LogEntry) bool {
	if f.Level != "" && !strings.EqualFold(e.Level, f.Level) {
		return false
	}
	if f.Service != "" && e.Service != f.Service {
		return false
	}
	if f.Substring != "" && !strings.Contains(e.Message, f.Substring) {
		return false
	}
	if f.Start != nil && e.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && e.Timestamp.After(*f.End) {
		return false
	}
	return true
}

// Apply returns the entries matching the filter, preserving order.
func (f LogFilter) Apply(entries []LogEntry) []LogEntry {
	if f.IsZero() {
		return entries
	}
	out := make([]LogEntry, 0, len(entries))
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// LogAggregation is an exact, single-pass summary of a result set.
type LogAggregation struct {
	Total        int            `json:"total"`
	ByLevel      map[string]int `json:"by_level"`
	ByService    map[string]int `json:"by_service"`
	MinTimestamp time.Time      `json:"min_timestamp"`
	MaxTimestamp time.Time      `json:"max_timestamp"`
}

// Aggregate computes exact counts over entries in one linear pass.
func Aggregate(entries []LogEntry) LogAggregation {
	agg := LogAggregation{
		Total:     len(entries),
		ByLevel:   make(map[string]int),
		ByService: make(map[string]int),
	}

	for i, e := range entries {
		agg.ByLevel[e.Level]++
		if e.Service != "" {
			agg.ByService[e.Service]++
		}
		if i == 0 || e.Timestamp.Before(agg.MinTimestamp) {
			agg.MinTimestamp = e.Timestamp
		}
		if i == 0 || e.Timestamp.After(agg.MaxTimestamp) {
			agg.MaxTimestamp = e.Timestamp
		}
	}
	return agg
}

func toUTC(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
