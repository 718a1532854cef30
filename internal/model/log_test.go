package model

import (
	"testing"
	"time"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func tsp(s string) *time.Time {
	t := ts(s)
	return &t
}

func TestLogQuery_Normalize(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	start := time.Date(2025, 6, 1, 13, 0, 0, 0, loc)

	q := LogQuery{
		Text:      "  error  ",
		Level:     " warn ",
		Service:   " api ",
		StartTime: &start,
	}
	n := q.Normalize()

	if n.Text != "error" {
		t.Errorf("Text = %q, want %q", n.Text, "error")
	}
	if n.Level != "WARN" {
		t.Errorf("Level = %q, want %q", n.Level, "WARN")
	}
	if n.Service != "api" {
		t.Errorf("Service = %q, want %q", n.Service, "api")
	}
	if n.MaxResults != DefaultMaxResults {
		t.Errorf("MaxResults = %d, want %d", n.MaxResults, DefaultMaxResults)
	}
	if got := n.StartTime.Format(time.RFC3339); got != "2025-06-01T12:00:00Z" {
		t.Errorf("StartTime = %s, want UTC instant", got)
	}
}

func TestLogQuery_Normalize_ClampsMaxResults(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, DefaultMaxResults},
		{-5, DefaultMaxResults},
		{10, 10},
		{5000, MaxResultsCeiling},
	}

	for _, tt := range tests {
		if got := (LogQuery{MaxResults: tt.in}).Normalize().MaxResults; got != tt.want {
			t.Errorf("Normalize().MaxResults for %d = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLogFilter_Match(t *testing.T) {
	entry := LogEntry{
		Timestamp: ts("2025-06-01T12:00:00Z"),
		Level:     LevelError,
		Message:   "payment declined for order 42",
		Service:   "payments",
		TraceID:   "abc123",
	}

	tests := []struct {
		name   string
		filter LogFilter
		want   bool
	}{
		{"empty filter", LogFilter{}, true},
		{"level match", LogFilter{Level: "ERROR"}, true},
		{"level match case-insensitive", LogFilter{Level: "error"}, true},
		{"level mismatch", LogFilter{Level: "WARN"}, false},
		{"service match", LogFilter{Service: "payments"}, true},
		{"service mismatch", LogFilter{Service: "orders"}, false},
		{"substring match", LogFilter{Substring: "declined"}, true},
		{"substring mismatch", LogFilter{Substring: "approved"}, false},
		{"inside range", LogFilter{Start: tsp("2025-06-01T11:00:00Z"), End: tsp("2025-06-01T13:00:00Z")}, true},
		{"before range", LogFilter{Start: tsp("2025-06-01T12:30:00Z")}, false},
		{"after range", LogFilter{End: tsp("2025-06-01T11:30:00Z")}, false},
		{"all predicates", LogFilter{Level: "ERROR", Service: "payments", Substring: "order"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(entry); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogFilter_Apply(t *testing.T) {
	entries := []LogEntry{
		{Timestamp: ts("2025-06-01T10:00:00Z"), Level: LevelError, Message: "a"},
		{Timestamp: ts("2025-06-01T11:00:00Z"), Level: LevelInfo, Message: "b"},
		{Timestamp: ts("2025-06-01T12:00:00Z"), Level: LevelError, Message: "c"},
	}

	got := LogFilter{Level: "ERROR"}.Apply(entries)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Message != "a" || got[1].Message != "c" {
		t.Errorf("order not preserved: %v", got)
	}
}

func TestAggregate(t *testing.T) {
	entries := []LogEntry{
		{Timestamp: ts("2025-06-01T12:00:00Z"), Level: LevelError, Service: "api"},
		{Timestamp: ts("2025-06-01T10:00:00Z"), Level: LevelInfo, Service: "api"},
		{Timestamp: ts("2025-06-01T14:00:00Z"), Level: LevelError, Service: "worker"},
		{Timestamp: ts("2025-06-01T11:00:00Z"), Level: LevelWarn},
	}

	agg := Aggregate(entries)

	if agg.Total != 4 {
		t.Errorf("Total = %d, want 4", agg.Total)
	}
	if agg.ByLevel[LevelError] != 2 || agg.ByLevel[LevelInfo] != 1 || agg.ByLevel[LevelWarn] != 1 {
		t.Errorf("ByLevel = %v", agg.ByLevel)
	}
	if agg.ByService["api"] != 2 || agg.ByService["worker"] != 1 {
		t.Errorf("ByService = %v", agg.ByService)
	}
	if len(agg.ByService) != 2 {
		t.Errorf("empty service counted: %v", agg.ByService)
	}
	if !agg.MinTimestamp.Equal(ts("2025-06-01T10:00:00Z")) {
		t.Errorf("MinTimestamp = %v", agg.MinTimestamp)
	}
	if !agg.MaxTimestamp.Equal(ts("2025-06-01T14:00:00Z")) {
		t.Errorf("MaxTimestamp = %v", agg.MaxTimestamp)
	}
}

func TestAggregate_Empty(t *testing.T) {
	agg := Aggregate(nil)
	if agg.Total != 0 {
		t.Errorf("Total = %d, want 0", agg.Total)
	}
	if !agg.MinTimestamp.IsZero() || !agg.MaxTimestamp.IsZero() {
		t.Error("timestamps should be zero for empty input")
	}
}
