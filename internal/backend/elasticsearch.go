package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zeteolabs/zeteo/internal/config"
	"github.com/zeteolabs/zeteo/internal/model"
	"github.com/zeteolabs/zeteo/internal/pkg/errors"
	"github.com/zeteolabs/zeteo/internal/pkg/logger"
)

// elasticsearch issues authenticated _search requests against the
// configured index pattern. Free text goes through as a query_string
// clause (Lucene syntax, verbatim apart from control stripping); level,
// service and the time range become structured term/range clauses, so
// those values never touch the query grammar.
type elasticsearch struct {
	id   string
	cfg  config.BackendConfig
	http *http.Client
	log  *logger.Logger
}

func newElasticsearch(id string, cfg config.BackendConfig, log *logger.Logger) *elasticsearch {
	return &elasticsearch{
		id:   id,
		cfg:  cfg,
		http: newHTTPClient(defaultQueryTimeout, cfg.SSLVerified()),
		log:  log.WithComponent("backend").WithBackend(id),
	}
}

func (e *elasticsearch) Name() string { return e.id }

func (e *elasticsearch) Query(ctx context.Context, q model.LogQuery) ([]model.LogEntry, error) {
	q = q.Normalize()
	body := e.buildQuery(q)

	index := e.cfg.IndexPattern
	if index == "" {
		index = "logs-*"
	}
	searchURL := fmt.Sprintf("%s/%s/_search", strings.TrimRight(e.cfg.URL, "/"), index)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.InternalError("encoding search body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchURL, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.InternalError("building search request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.Username != "" {
		req.SetBasicAuth(e.cfg.Username, e.cfg.Password)
	}

	e.log.Debug("issuing search", "url", searchURL, "max_results", q.MaxResults)

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, transportError("elasticsearch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("elasticsearch", resp)
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.ParseError("decoding elasticsearch response", err)
	}

	entries := make([]model.LogEntry, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		entries = append(entries, entryFromSource(hit.Source))
	}
	return entries, nil
}

// buildQuery assembles a bool query: query_string for free text plus
// term and range filters for the structured predicates.
func (e *elasticsearch) buildQuery(q model.LogQuery) map[string]any {
	var must []any
	var filter []any

	if q.Text != "" && q.Text != "*" {
		must = append(must, map[string]any{
			"query_string": map[string]any{
				"query": stripControl(q.Text),
			},
		})
	}

	if q.Level != "" {
		filter = append(filter, map[string]any{
			"term": map[string]any{
				"level": strings.ToLower(q.Level),
			},
		})
	}
	if q.Service != "" {
		filter = append(filter, map[string]any{
			"term": map[string]any{
				"service.name": stripControl(q.Service),
			},
		})
	}

	if q.StartTime != nil || q.EndTime != nil {
		bounds := map[string]any{}
		if q.StartTime != nil {
			bounds["gte"] = q.StartTime.Format(time.RFC3339)
		}
		if q.EndTime != nil {
			bounds["lte"] = q.EndTime.Format(time.RFC3339)
		}
		filter = append(filter, map[string]any{
			"range": map[string]any{"@timestamp": bounds},
		})
	}

	var query map[string]any
	if len(must) == 0 && len(filter) == 0 {
		query = map[string]any{"match_all": map[string]any{}}
	} else {
		boolQuery := map[string]any{}
		if len(must) > 0 {
			boolQuery["must"] = must
		}
		if len(filter) > 0 {
			boolQuery["filter"] = filter
		}
		query = map[string]any{"bool": boolQuery}
	}

	return map[string]any{
		"query": query,
		"size":  q.MaxResults,
		"sort": []any{
			map[string]any{"@timestamp": map[string]any{"order": "desc"}},
		},
	}
}

func (e *elasticsearch) HealthCheck(ctx context.Context) error {
	healthURL := strings.TrimRight(e.cfg.URL, "/") + "/_cluster/health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return errors.InternalError("building health request", err)
	}
	if e.cfg.Username != "" {
		req.SetBasicAuth(e.cfg.Username, e.cfg.Password)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return transportError("elasticsearch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("elasticsearch", resp)
	}
	return nil
}
