package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zeteolabs/zeteo/internal/config"
	"github.com/zeteolabs/zeteo/internal/model"
	"github.com/zeteolabs/zeteo/internal/pkg/errors"
	"github.com/zeteolabs/zeteo/internal/pkg/logger"
)

func esConfig(url string) config.BackendConfig {
	return config.BackendConfig{
		Type:         config.BackendElasticsearch,
		URL:          url,
		Username:     "elastic",
		Password:     "secret",
		IndexPattern: "logs-*",
	}
}

func esResponse(sources ...map[string]any) map[string]any {
	hits := make([]any, 0, len(sources))
	for _, s := range sources {
		hits = append(hits, map[string]any{"_source": s})
	}
	return map[string]any{
		"hits": map[string]any{"hits": hits},
	}
}

func TestElasticsearchQuery(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	var gotAuth bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _, gotAuth = r.BasicAuth()
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		json.NewEncoder(w).Encode(esResponse(
			map[string]any{
				"@timestamp": "2026-01-02T10:00:00Z",
				"level":      "error",
				"message":    "payment declined",
				"service":    map[string]any{"name": "payments"},
				"trace_id":   "abc123",
			},
			map[string]any{
				"@timestamp": "2026-01-02T09:59:00Z",
				"level":      "error",
				"message":    "retry exhausted",
			},
		))
	}))
	defer srv.Close()

	client := newElasticsearch("es-prod", esConfig(srv.URL), logger.Discard())

	start := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	entries, err := client.Query(context.Background(), model.LogQuery{
		Text:       "payment",
		Level:      "error",
		Service:    "payments",
		StartTime:  &start,
		MaxResults: 10,
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	if gotPath != "/logs-*/_search" {
		t.Errorf("path = %q, want %q", gotPath, "/logs-*/_search")
	}
	if !gotAuth {
		t.Error("request missing basic auth")
	}

	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Level != model.LevelError {
		t.Errorf("Level = %q, want %q", entries[0].Level, model.LevelError)
	}
	if entries[0].Service != "payments" {
		t.Errorf("Service = %q, want %q", entries[0].Service, "payments")
	}
	if entries[0].TraceID != "abc123" {
		t.Errorf("TraceID = %q, want %q", entries[0].TraceID, "abc123")
	}

	if size, ok := gotBody["size"].(float64); !ok || int(size) != 10 {
		t.Errorf("size = %v, want 10", gotBody["size"])
	}
}

func TestElasticsearchQueryShape(t *testing.T) {
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(esResponse())
	}))
	defer srv.Close()

	client := newElasticsearch("es", esConfig(srv.URL), logger.Discard())

	_, err := client.Query(context.Background(), model.LogQuery{
		Text:  "status:500 AND path:/checkout",
		Level: "WARN",
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	boolQuery, ok := gotBody["query"].(map[string]any)["bool"].(map[string]any)
	if !ok {
		t.Fatalf("query body missing bool clause: %v", gotBody["query"])
	}

	must := boolQuery["must"].([]any)
	qs := must[0].(map[string]any)["query_string"].(map[string]any)
	if qs["query"] != "status:500 AND path:/checkout" {
		t.Errorf("query_string = %q, want the text verbatim", qs["query"])
	}

	filter := boolQuery["filter"].([]any)
	term := filter[0].(map[string]any)["term"].(map[string]any)
	if term["level"] != "warn" {
		t.Errorf("term level = %v, want %q", term["level"], "warn")
	}
}

func TestElasticsearchMatchAll(t *testing.T) {
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(esResponse())
	}))
	defer srv.Close()

	client := newElasticsearch("es", esConfig(srv.URL), logger.Discard())
	if _, err := client.Query(context.Background(), model.LogQuery{Text: "*"}); err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	if _, ok := gotBody["query"].(map[string]any)["match_all"]; !ok {
		t.Errorf("wildcard query did not produce match_all: %v", gotBody["query"])
	}
}

func TestElasticsearchStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   string
	}{
		{"unauthorized", http.StatusUnauthorized, errors.CodeAuth},
		{"forbidden", http.StatusForbidden, errors.CodeAuth},
		{"bad request", http.StatusBadRequest, errors.CodeParse},
		{"gateway timeout", http.StatusGatewayTimeout, errors.CodeTimeout},
		{"server error", http.StatusInternalServerError, errors.CodeNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			client := newElasticsearch("es", esConfig(srv.URL), logger.Discard())
			_, err := client.Query(context.Background(), model.LogQuery{Text: "x"})
			if err == nil {
				t.Fatal("Query() error = nil, want error")
			}
			if got := errors.Code(err); got != tt.want {
				t.Errorf("Code(err) = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestElasticsearchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := newElasticsearch("es", esConfig(srv.URL), logger.Discard())
	_, err := client.Query(context.Background(), model.LogQuery{Text: "x"})
	if err == nil {
		t.Fatal("Query() error = nil, want error")
	}
	if got := errors.Code(err); got != errors.CodeNetwork {
		t.Errorf("Code(err) = %q, want %q", got, errors.CodeNetwork)
	}
}

func TestElasticsearchHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_cluster/health" {
			t.Errorf("path = %q, want /_cluster/health", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "green"})
	}))
	defer srv.Close()

	client := newElasticsearch("es", esConfig(srv.URL), logger.Discard())
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
