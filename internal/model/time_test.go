package model

import (
	"testing"
	"time"

	"github.com/zeteolabs/zeteo/internal/pkg/errors"
)

func TestParseTime(t *testing.T) {
	now := ts("2025-06-01T12:00:00Z")

	tests := []struct {
		expr string
		want string
	}{
		{"2025-05-30T08:00:00Z", "2025-05-30T08:00:00Z"},
		{"now", "2025-06-01T12:00:00Z"},
		{"90s", "2025-06-01T11:58:30Z"},
		{"15m", "2025-06-01T11:45:00Z"},
		{"2h", "2025-06-01T10:00:00Z"},
		{"1d", "2025-05-31T12:00:00Z"},
		{" 30m ", "2025-06-01T11:30:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ParseTime(tt.expr, now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Format(time.RFC3339) != tt.want {
				t.Errorf("ParseTime(%q) = %s, want %s", tt.expr, got.Format(time.RFC3339), tt.want)
			}
		})
	}
}

func TestParseTime_Invalid(t *testing.T) {
	now := ts("2025-06-01T12:00:00Z")

	for _, expr := range []string{"", "yesterday", "5w", "-3h", "h", "3.5h"} {
		t.Run(expr, func(t *testing.T) {
			_, err := ParseTime(expr, now)
			if err == nil {
				t.Fatalf("ParseTime(%q) succeeded, want error", expr)
			}
			if !errors.Is(err, errors.CodeValidation) {
				t.Errorf("error code = %s, want %s", errors.Code(err), errors.CodeValidation)
			}
		})
	}
}
