package backend

import (
	"strings"
	"time"

	"github.com/zeteolabs/zeteo/internal/model"
)

// Field aliases seen across backends. Missing optional fields default
// to the empty string rather than failing the whole hit.
var (
	timestampKeys = []string{"@timestamp", "timestamp", "_timestamp", "time"}
	levelKeys     = []string{"level", "severity", "log.level"}
	messageKeys   = []string{"message", "body", "log", "msg"}
	serviceKeys   = []string{"service_name", "service", "app"}
	traceKeys     = []string{"trace_id", "traceId", "trace.id"}
)

// entryFromSource maps one backend document onto the unified model.
// Scalar string fields that are not consumed by a known alias are kept
// as attributes.
func entryFromSource(source map[string]any) model.LogEntry {
	used := make(map[string]bool)

	entry := model.LogEntry{
		Timestamp: pickTime(source, used),
		Level:     strings.ToUpper(pickString(source, levelKeys, used)),
		Message:   pickString(source, messageKeys, used),
		Service:   pickService(source, used),
		TraceID:   pickString(source, traceKeys, used),
	}

	if entry.Level == "" {
		entry.Level = model.LevelInfo
	}

	for key, value := range source {
		if used[key] {
			continue
		}
		if s, ok := value.(string); ok {
			if entry.Attributes == nil {
				entry.Attributes = make(map[string]string)
			}
			entry.Attributes[key] = s
		}
	}

	return entry
}

func pickTime(source map[string]any, used map[string]bool) time.Time {
	for _, key := range timestampKeys {
		value, ok := source[key]
		if !ok {
			continue
		}
		used[key] = true
		if t, ok := coerceTime(value); ok {
			return t
		}
	}
	return time.Time{}
}

// coerceTime accepts RFC3339 strings and epoch numbers. Epoch values
// are disambiguated by magnitude: microseconds, then milliseconds,
// then seconds.
func coerceTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t.UTC(), true
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC(), true
		}
	case float64:
		n := int64(v)
		switch {
		case n > 1e15:
			return time.UnixMicro(n).UTC(), true
		case n > 1e12:
			return time.UnixMilli(n).UTC(), true
		case n > 0:
			return time.Unix(n, 0).UTC(), true
		}
	}
	return time.Time{}, false
}

func pickString(source map[string]any, keys []string, used map[string]bool) string {
	for _, key := range keys {
		if value, ok := source[key]; ok {
			used[key] = true
			if s, ok := value.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// pickService also understands the nested {"service": {"name": ...}}
// form used by ECS-shaped documents.
func pickService(source map[string]any, used map[string]bool) string {
	if nested, ok := source["service"].(map[string]any); ok {
		used["service"] = true
		if name, ok := nested["name"].(string); ok {
			return name
		}
		return ""
	}
	return pickString(source, serviceKeys, used)
}
