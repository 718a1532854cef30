// Package backend translates the unified log query model into the
// native grammars of the supported log stores. Each implementation
// owns one grammar and one authentication scheme; the factory selects
// among them by configuration tag.
package backend

import (
	"context"
	"strings"

	"github.com/zeteolabs/zeteo/internal/config"
	"github.com/zeteolabs/zeteo/internal/model"
	"github.com/zeteolabs/zeteo/internal/pkg/errors"
	"github.com/zeteolabs/zeteo/internal/pkg/logger"
)

// Client is the common backend contract. Query returns entries ordered
// most recent first, at most q.MaxResults of them, inside the requested
// time window. Failures carry one of the Auth/Network/Parse/Timeout
// error codes.
type Client interface {
	Query(ctx context.Context, q model.LogQuery) ([]model.LogEntry, error)
	HealthCheck(ctx context.Context) error
	Name() string
}

// New creates the backend client selected by cfg.Type.
func New(id string, cfg config.BackendConfig, log *logger.Logger) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch strings.ToLower(cfg.Type) {
	case config.BackendElasticsearch:
		return newElasticsearch(id, cfg, log), nil
	case config.BackendOpenObserve:
		return newOpenObserve(id, cfg, log), nil
	case config.BackendKibana:
		return newKibana(id, cfg, log), nil
	default:
		return nil, errors.Newf(errors.CodeConfig, "unknown backend type: %s", cfg.Type)
	}
}

// NewAll builds every configured backend, keyed by id.
func NewAll(cfgs map[string]config.BackendConfig, log *logger.Logger) (map[string]Client, error) {
	clients := make(map[string]Client, len(cfgs))
	for id, cfg := range cfgs {
		c, err := New(id, cfg, log)
		if err != nil {
			return nil, err
		}
		clients[id] = c
	}
	return clients, nil
}
