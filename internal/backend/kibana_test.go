package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zeteolabs/zeteo/internal/config"
	"github.com/zeteolabs/zeteo/internal/model"
	"github.com/zeteolabs/zeteo/internal/pkg/errors"
	"github.com/zeteolabs/zeteo/internal/pkg/logger"
)

func kibanaConfig(url, version string) config.BackendConfig {
	return config.BackendConfig{
		Type:         config.BackendKibana,
		URL:          url,
		Token:        "api-token",
		Version:      version,
		IndexPattern: "logs-*",
	}
}

func kibanaEnvelope(key string, sources ...map[string]any) map[string]any {
	hits := make([]any, 0, len(sources))
	for _, s := range sources {
		hits = append(hits, map[string]any{"_source": s})
	}
	return map[string]any{
		key: map[string]any{
			"hits": map[string]any{"hits": hits},
		},
	}
}

func TestKibanaQueryV8(t *testing.T) {
	var gotHeaders http.Header
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_plugin/kibana/api/console/proxy" {
			t.Errorf("path = %q, want /_plugin/kibana/api/console/proxy", r.URL.Path)
		}
		gotHeaders = r.Header.Clone()
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(kibanaEnvelope("rawResponse",
			map[string]any{
				"@timestamp": "2026-01-02T10:00:00Z",
				"level":      "warn",
				"message":    "slow query",
				"service":    map[string]any{"name": "search"},
			},
		))
	}))
	defer srv.Close()

	client := newKibana("kb", kibanaConfig(srv.URL, "8.14.0"), logger.Discard())

	entries, err := client.Query(context.Background(), model.LogQuery{
		Text:    "slow",
		Level:   "warn",
		Service: "search",
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	if got := gotHeaders.Get("kbn-xsrf"); got != "true" {
		t.Errorf("kbn-xsrf = %q, want %q", got, "true")
	}
	if got := gotHeaders.Get("kbn-version"); got != "8.14.0" {
		t.Errorf("kbn-version = %q, want %q", got, "8.14.0")
	}
	if got := gotHeaders.Get("Authorization"); got != "Bearer api-token" {
		t.Errorf("Authorization = %q, want bearer token", got)
	}

	params := gotBody["params"].(map[string]any)
	if params["index"] != "logs-*" {
		t.Errorf("index = %v, want logs-*", params["index"])
	}

	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Service != "search" {
		t.Errorf("Service = %q, want search", entries[0].Service)
	}
	if entries[0].Level != model.LevelWarn {
		t.Errorf("Level = %q, want %q", entries[0].Level, model.LevelWarn)
	}
}

func TestKibanaQueryV7Envelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(kibanaEnvelope("response",
			map[string]any{
				"@timestamp": "2026-01-02T10:00:00Z",
				"message":    "legacy shape",
			},
		))
	}))
	defer srv.Close()

	client := newKibana("kb", kibanaConfig(srv.URL, "7.17.3"), logger.Discard())

	entries, err := client.Query(context.Background(), model.LogQuery{Text: "legacy"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Message != "legacy shape" {
		t.Errorf("Message = %q, want %q", entries[0].Message, "legacy shape")
	}
}

func TestKibanaEnvelopeFallback(t *testing.T) {
	// Version says 8 but the server answers with the v7 key.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(kibanaEnvelope("response",
			map[string]any{"message": "still parsed"},
		))
	}))
	defer srv.Close()

	client := newKibana("kb", kibanaConfig(srv.URL, "8.2.0"), logger.Discard())
	entries, err := client.Query(context.Background(), model.LogQuery{Text: "x"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
}

func TestKibanaMissingEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"unexpected": true})
	}))
	defer srv.Close()

	client := newKibana("kb", kibanaConfig(srv.URL, "8.2.0"), logger.Discard())
	_, err := client.Query(context.Background(), model.LogQuery{Text: "x"})
	if err == nil {
		t.Fatal("Query() error = nil, want parse error")
	}
	if got := errors.Code(err); got != errors.CodeParse {
		t.Errorf("Code(err) = %q, want %q", got, errors.CodeParse)
	}
}

func TestKibanaKQLEscaping(t *testing.T) {
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(kibanaEnvelope("rawResponse"))
	}))
	defer srv.Close()

	client := newKibana("kb", kibanaConfig(srv.URL, "8.14.0"), logger.Discard())
	_, err := client.Query(context.Background(), model.LogQuery{
		Service: `svc" OR level:"error`,
	})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	raw, _ := json.Marshal(gotBody)
	if !strings.Contains(string(raw), `\\\"`) {
		t.Errorf("request body %s does not escape embedded quotes", raw)
	}
}

func TestMajorVersion(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"8.14.0", 8},
		{"7.17.3", 7},
		{"9.0.0", 9},
		{"", 8},
		{"garbage", 8},
	}

	for _, tt := range tests {
		if got := majorVersion(tt.input); got != tt.want {
			t.Errorf("majorVersion(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
