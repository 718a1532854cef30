package backend

import (
	"testing"

	"github.com/zeteolabs/zeteo/internal/config"
	"github.com/zeteolabs/zeteo/internal/pkg/errors"
	"github.com/zeteolabs/zeteo/internal/pkg/logger"
)

func TestNewSelectsByType(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.BackendConfig
	}{
		{
			"elasticsearch",
			config.BackendConfig{Type: "elasticsearch", URL: "http://es:9200"},
		},
		{
			"openobserve",
			config.BackendConfig{
				Type: "openobserve", URL: "http://o2:5080",
				Username: "u", Password: "p", Stream: "logs",
			},
		},
		{
			"kibana",
			config.BackendConfig{Type: "kibana", URL: "http://kb:5601", Version: "8.14.0"},
		},
		{
			"case insensitive",
			config.BackendConfig{Type: "Elasticsearch", URL: "http://es:9200"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.name, tt.cfg, logger.Discard())
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if client.Name() != tt.name {
				t.Errorf("Name() = %q, want %q", client.Name(), tt.name)
			}
		})
	}
}

func TestNewUnknownType(t *testing.T) {
	_, err := New("x", config.BackendConfig{Type: "splunk", URL: "http://x"}, logger.Discard())
	if err == nil {
		t.Fatal("New() error = nil, want config error")
	}
	if got := errors.Code(err); got != errors.CodeConfig {
		t.Errorf("Code(err) = %q, want %q", got, errors.CodeConfig)
	}
}

func TestNewInvalidConfig(t *testing.T) {
	// OpenObserve requires credentials and a stream.
	_, err := New("o2", config.BackendConfig{Type: "openobserve", URL: "http://x"}, logger.Discard())
	if err == nil {
		t.Fatal("New() error = nil, want validation failure")
	}
}

func TestNewAll(t *testing.T) {
	cfgs := map[string]config.BackendConfig{
		"es-prod": {Type: "elasticsearch", URL: "http://es:9200"},
		"kb-prod": {Type: "kibana", URL: "http://kb:5601", Version: "8.14.0"},
	}

	clients, err := NewAll(cfgs, logger.Discard())
	if err != nil {
		t.Fatalf("NewAll() error = %v", err)
	}
	if len(clients) != 2 {
		t.Fatalf("len(clients) = %d, want 2", len(clients))
	}
	for id, c := range clients {
		if c.Name() != id {
			t.Errorf("clients[%q].Name() = %q", id, c.Name())
		}
	}
}
