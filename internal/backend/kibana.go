package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zeteolabs/zeteo/internal/config"
	"github.com/zeteolabs/zeteo/internal/model"
	"github.com/zeteolabs/zeteo/internal/pkg/errors"
	"github.com/zeteolabs/zeteo/internal/pkg/logger"
)

// kibana searches through Kibana's console proxy rather than hitting
// Elasticsearch directly, so it works on hosted deployments where only
// the Kibana endpoint is exposed. Structured values are
// quoted into KQL via kqlQuote; free Lucene text is nested as a
// query_string clause instead of being spliced into the KQL string.
// The response envelope moved between major versions: 8+ wraps hits in
// rawResponse, 7 in response.
type kibana struct {
	id    string
	cfg   config.BackendConfig
	major int
	http  *http.Client
	log   *logger.Logger
}

func newKibana(id string, cfg config.BackendConfig, log *logger.Logger) *kibana {
	return &kibana{
		id:    id,
		cfg:   cfg,
		major: majorVersion(cfg.Version),
		http:  newHTTPClient(defaultQueryTimeout, cfg.SSLVerified()),
		log:   log.WithComponent("backend").WithBackend(id),
	}
}

func majorVersion(v string) int {
	head, _, _ := strings.Cut(v, ".")
	n, err := strconv.Atoi(head)
	if err != nil || n < 1 {
		return 8
	}
	return n
}

func (k *kibana) Name() string { return k.id }

func (k *kibana) Query(ctx context.Context, q model.LogQuery) ([]model.LogEntry, error) {
	q = q.Normalize()

	index := k.cfg.IndexPattern
	if index == "" {
		index = "logs-*"
	}

	body := map[string]any{
		"params": map[string]any{
			"index": index,
			"body":  k.buildQuery(q),
		},
	}

	// Hosted deployments expose only the Kibana console proxy, not the
	// cluster itself, so the search goes through it.
	searchURL := strings.TrimRight(k.cfg.URL, "/") + "/_plugin/kibana/api/console/proxy"

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.InternalError("encoding search body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchURL, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.InternalError("building search request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("kbn-xsrf", "true")
	if k.cfg.Version != "" {
		req.Header.Set("kbn-version", k.cfg.Version)
	}
	if k.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+k.cfg.Token)
	} else if k.cfg.Username != "" {
		req.SetBasicAuth(k.cfg.Username, k.cfg.Password)
	}

	k.log.Debug("issuing search", "url", searchURL, "version", k.cfg.Version)

	resp, err := k.http.Do(req)
	if err != nil {
		return nil, transportError("kibana", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("kibana", resp)
	}

	hits, err := k.decodeHits(resp)
	if err != nil {
		return nil, err
	}

	entries := make([]model.LogEntry, 0, len(hits))
	for _, hit := range hits {
		entries = append(entries, entryFromSource(hit))
	}
	return entries, nil
}

type kibanaHit struct {
	Source map[string]any `json:"_source"`
}

type kibanaHits struct {
	Hits struct {
		Hits []kibanaHit `json:"hits"`
	} `json:"hits"`
}

func (k *kibana) decodeHits(resp *http.Response) ([]map[string]any, error) {
	var envelope struct {
		RawResponse *kibanaHits `json:"rawResponse"`
		Response    *kibanaHits `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, errors.ParseError("decoding kibana response", err)
	}

	inner := envelope.RawResponse
	if k.major < 8 {
		inner = envelope.Response
	}
	if inner == nil {
		// Tolerate servers that report the other envelope shape.
		if envelope.RawResponse != nil {
			inner = envelope.RawResponse
		} else if envelope.Response != nil {
			inner = envelope.Response
		} else {
			return nil, errors.ParseError("kibana response missing hits envelope", nil)
		}
	}

	sources := make([]map[string]any, 0, len(inner.Hits.Hits))
	for _, hit := range inner.Hits.Hits {
		sources = append(sources, hit.Source)
	}
	return sources, nil
}

// buildQuery combines a KQL filter string for the structured fields
// with the raw text as a nested query_string clause.
func (k *kibana) buildQuery(q model.LogQuery) map[string]any {
	var must []any
	var kqlParts []string

	if q.Level != "" {
		kqlParts = append(kqlParts, "level:"+kqlQuote(strings.ToLower(q.Level)))
	}
	if q.Service != "" {
		kqlParts = append(kqlParts, "service.name:"+kqlQuote(q.Service))
	}
	if len(kqlParts) > 0 {
		must = append(must, map[string]any{
			"query_string": map[string]any{
				"query":            strings.Join(kqlParts, " AND "),
				"analyze_wildcard": true,
			},
		})
	}
	if q.Text != "" && q.Text != "*" {
		must = append(must, map[string]any{
			"query_string": map[string]any{
				"query": stripControl(q.Text),
			},
		})
	}

	var filter []any
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

func (k *kibana) HealthCheck(ctx context.Context) error {
	statusURL := strings.TrimRight(k.cfg.URL, "/") + "/api/status"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return errors.InternalError("building health request", err)
	}
	req.Header.Set("kbn-xsrf", "true")
	if k.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+k.cfg.Token)
	} else if k.cfg.Username != "" {
		req.SetBasicAuth(k.cfg.Username, k.cfg.Password)
	}

	resp, err := k.http.Do(req)
	if err != nil {
		return transportError("kibana", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("kibana", resp)
	}
	return nil
}
