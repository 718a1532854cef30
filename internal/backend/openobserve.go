package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/zeteolabs/zeteo/internal/config"
	"github.com/zeteolabs/zeteo/internal/model"
	"github.com/zeteolabs/zeteo/internal/pkg/errors"
	"github.com/zeteolabs/zeteo/internal/pkg/logger"
)

// openobserve speaks the OpenObserve SQL search API. Every user value
// is folded into the statement as a quoted literal via sqlQuote or
// sqlLikePattern, and the stream name is validated as an identifier,
// so no input can alter the statement shape.
type openobserve struct {
	id   string
	cfg  config.BackendConfig
	http *http.Client
	log  *logger.Logger
}

func newOpenObserve(id string, cfg config.BackendConfig, log *logger.Logger) *openobserve {
	return &openobserve{
		id:   id,
		cfg:  cfg,
		http: newHTTPClient(defaultQueryTimeout, cfg.SSLVerified()),
		log:  log.WithComponent("backend").WithBackend(id),
	}
}

func (o *openobserve) Name() string { return o.id }

func (o *openobserve) Query(ctx context.Context, q model.LogQuery) ([]model.LogEntry, error) {
	q = q.Normalize()

	sql, err := o.buildSQL(q)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"query": map[string]any{
			"sql":  sql,
			"from": 0,
			"size": q.MaxResults,
		},
	}
	if q.StartTime != nil {
		body["query"].(map[string]any)["start_time"] = q.StartTime.UnixMicro()
	}
	if q.EndTime != nil {
		body["query"].(map[string]any)["end_time"] = q.EndTime.UnixMicro()
	}

	org := o.cfg.Organization
	if org == "" {
		org = "default"
	}
	searchURL := fmt.Sprintf("%s/api/%s/_search", strings.TrimRight(o.cfg.URL, "/"), org)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.InternalError("encoding search body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchURL, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.InternalError("building search request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(o.cfg.Username, o.cfg.Password)

	o.log.Debug("issuing search", "url", searchURL, "sql", sql)

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, transportError("openobserve", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("openobserve", resp)
	}

	var result struct {
		Hits []map[string]any `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.ParseError("decoding openobserve response", err)
	}

	entries := make([]model.LogEntry, 0, len(result.Hits))
	for _, hit := range result.Hits {
		entries = append(entries, entryFromSource(hit))
	}
	return entries, nil
}

// buildSQL renders SELECT * FROM <stream> with WHERE predicates for
// each populated field. Time bounds ride in the envelope, not the SQL.
func (o *openobserve) buildSQL(q model.LogQuery) (string, error) {
	stream := o.cfg.Stream
	if err := validIdentifier(stream); err != nil {
		return "", err
	}

	var where []string
	if q.Text != "" && q.Text != "*" {
		where = append(where, fmt.Sprintf("message LIKE '%%%s%%'", sqlLikePattern(q.Text)))
	}
	if q.Level != "" {
		where = append(where, fmt.Sprintf("level = '%s'", sqlQuote(strings.ToLower(q.Level))))
	}
	if q.Service != "" {
		where = append(where, fmt.Sprintf("service = '%s'", sqlQuote(q.Service)))
	}

	sql := "SELECT * FROM " + stream
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY _timestamp DESC"
	return sql, nil
}

func (o *openobserve) HealthCheck(ctx context.Context) error {
	healthURL := strings.TrimRight(o.cfg.URL, "/") + "/healthz"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return errors.InternalError("building health request", err)
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return transportError("openobserve", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("openobserve", resp)
	}
	return nil
}
