package explorer

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"time"

	"github.com/zeteolabs/zeteo/internal/model"
	"github.com/zeteolabs/zeteo/internal/pkg/errors"
)

var csvHeader = []string{"timestamp", "level", "service", "message", "traceId"}

// ExportJSON writes entries as an indented JSON array.
func ExportJSON(w io.Writer, entries []model.LogEntry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if entries == nil {
		entries = []model.LogEntry{}
	}
	if err := enc.Encode(entries); err != nil {
		return errors.InternalError("encoding entries", err)
	}
	return nil
}

// ExportCSV writes entries as CSV with a fixed header row. Attributes
// are not exported; the column set stays stable regardless of input.
func ExportCSV(w io.Writer, entries []model.LogEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return errors.InternalError("writing csv header", err)
	}
	for _, e := range entries {
		record := []string{
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.Level,
			e.Service,
			e.Message,
			e.TraceID,
		}
		if err := cw.Write(record); err != nil {
			return errors.InternalError("writing csv record", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.InternalError("flushing csv", err)
	}
	return nil
}

// ReadCSV parses entries previously written by ExportCSV.
func ReadCSV(r io.Reader) ([]model.LogEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvHeader)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ParseError("reading csv header", err)
	}
	for i, want := range csvHeader {
		if header[i] != want {
			return nil, errors.Newf(errors.CodeParse, "unexpected csv header column %d: %s", i, header[i])
		}
	}

	var entries []model.LogEntry
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.ParseError("reading csv record", err)
		}

		ts, err := time.Parse(time.RFC3339Nano, record[0])
		if err != nil {
			return nil, errors.ParseError("parsing csv timestamp", err)
		}
		entries = append(entries, model.LogEntry{
			Timestamp: ts.UTC(),
			Level:     record[1],
			Service:   record[2],
			Message:   record[3],
			TraceID:   record[4],
		})
	}
	return entries, nil
}
