package explorer

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/zeteolabs/zeteo/internal/mcp"
	"github.com/zeteolabs/zeteo/internal/model"
	"github.com/zeteolabs/zeteo/internal/pkg/errors"
	"github.com/zeteolabs/zeteo/internal/retry"
)

// SearchTool runs a query through the attached RPC server's tool
// instead of a direct backend: the query is serialized as the tool's
// arguments and the text payload of the reply is parsed back into
// entries. The residual filter is applied locally, results come back
// ascending and capped, same contract as Search.
func (e *Explorer) SearchTool(ctx context.Context, toolName string, q model.LogQuery, f model.LogFilter) ([]model.LogEntry, error) {
	if e.rpc == nil {
		return nil, errors.New(errors.CodeConfig, "no rpc server attached")
	}

	q = pushDown(q, f).Normalize()
	f = f.Normalize()
	e.searches.Add(1)

	args := toolArguments(q)
	text, err := retry.DoValue(ctx, e.policy, e.log, func(ctx context.Context) (string, error) {
		return e.rpc.CallToolText(ctx, toolName, args)
	})
	if err != nil {
		e.failures.Add(1)
		return nil, err
	}

	raw, err := parseToolEntries(text)
	if err != nil {
		return nil, err
	}
	e.fetched.Add(int64(len(raw)))

	entries := f.Apply(raw)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	if len(entries) > q.MaxResults {
		entries = entries[len(entries)-q.MaxResults:]
	}
	return entries, nil
}

// Tools lists the tools advertised by the attached RPC server.
func (e *Explorer) Tools(ctx context.Context) ([]mcp.Tool, error) {
	if e.rpc == nil {
		return nil, errors.New(errors.CodeConfig, "no rpc server attached")
	}
	return e.rpc.ListTools(ctx)
}

func toolArguments(q model.LogQuery) map[string]any {
	args := map[string]any{
		"query":       q.Text,
		"max_results": q.MaxResults,
	}
	if q.Level != "" {
		args["level"] = q.Level
	}
	if q.Service != "" {
		args["service"] = q.Service
	}
	if q.StartTime != nil {
		args["start_time"] = q.StartTime.Format(time.RFC3339)
	}
	if q.EndTime != nil {
		args["end_time"] = q.EndTime.Format(time.RFC3339)
	}
	return args
}

// parseToolEntries accepts either a JSON array of entries or
// line-delimited JSON objects, which covers the reply shapes seen
// from log-search tool servers.
func parseToolEntries(text string) ([]model.LogEntry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	if strings.HasPrefix(text, "[") {
		var entries []model.LogEntry
		if err := json.Unmarshal([]byte(text), &entries); err != nil {
			return nil, errors.ParseError("parsing tool result array", err)
		}
		return entries, nil
	}

	var entries []model.LogEntry
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var entry model.LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, errors.ParseError("parsing tool result line", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
