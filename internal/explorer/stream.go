package explorer

import (
	"context"
	"time"

	"github.com/zeteolabs/zeteo/internal/model"
)

const defaultPollInterval = 2 * time.Second

// StreamFunc receives entries one at a time in ascending timestamp
// order. Returning an error stops the stream and propagates the error
// to the Stream caller.
type StreamFunc func(model.LogEntry) error

// Stream tails a backend by polling: each round queries from the
// current watermark forward, drops entries already emitted, hands new
// ones to fn oldest first, then sleeps for interval. Entries sharing
// the watermark timestamp are deduplicated by trace id and message so
// boundary overlap never replays a line. The stream runs until ctx is
// cancelled or fn returns an error; cancellation returns nil.
func (e *Explorer) Stream(ctx context.Context, backendID string, q model.LogQuery, f model.LogFilter, interval time.Duration, fn StreamFunc) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	var watermark time.Time
	if q.StartTime != nil {
		watermark = q.StartTime.UTC()
	}
	seen := make(map[string]bool)

	for {
		poll := q
		if !watermark.IsZero() {
			from := watermark
			poll.StartTime = &from
		}

		// Polling bypasses the cache so each round sees fresh entries.
		entries, err := e.search(ctx, backendID, poll, f, false)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		for _, entry := range entries {
			if entry.Timestamp.Before(watermark) {
				continue
			}
			key := streamKey(entry)
			if entry.Timestamp.Equal(watermark) && seen[key] {
				continue
			}
			if entry.Timestamp.After(watermark) {
				watermark = entry.Timestamp
				seen = map[string]bool{key: true}
			} else {
				seen[key] = true
			}
			if err := fn(entry); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func streamKey(e model.LogEntry) string {
	return e.TraceID + "\x00" + e.Service + "\x00" + e.Message
}
