package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/faultline/internal/core/domain"
)

// Format is an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXML  Format = "xml"
)

// ErrUnknownFormat is returned for an unsupported export format.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat accepts json, csv or xml in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV, FormatXML:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Encode serialises entries. Every format decodes back to identical entries
// with Import, signatures included.
func Encode(format Format, entries []domain.AuditEntry) ([]byte, error) {
	switch format {
	case FormatJSON:
		if entries == nil {
			entries = []domain.AuditEntry{}
		}
		return json.MarshalIndent(entries, "", "  ")
	case FormatCSV:
		return encodeCSV(entries)
	case FormatXML:
		return encodeXML(entries)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Import parses data produced by Encode.
func Import(format Format, data []byte) ([]domain.AuditEntry, error) {
	switch format {
	case FormatJSON:
		var entries []domain.AuditEntry
		if err := decodeJSON(data, &entries); err != nil {
			return nil, fmt.Errorf("decode json export: %w", err)
		}
		return entries, nil
	case FormatCSV:
		return decodeCSV(data)
	case FormatXML:
		return decodeXML(data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Column order of the tabular format.
var csvColumns = []string{
	"id",
	"timestamp",
	"action",
	"actorId",
	"sessionId",
	"category",
	"details",
	"result",
	"durationMs",
	"previousEntryId",
	"signature",
}

// csvRecord maps present keys of one entry to their cell text.
func csvRecord(e domain.AuditEntry) (map[string]string, error) {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return nil, fmt.Errorf("encode details of %s: %w", e.ID, err)
	}
	rec := map[string]string{
		"id":              e.ID,
		"timestamp":       e.Timestamp.UTC().Format(time.RFC3339Nano),
		"action":          e.Action,
		"actorId":         e.ActorID,
		"sessionId":       e.SessionID,
		"category":        string(e.Category),
		"details":         string(details),
		"result":          e.Result,
		"previousEntryId": e.PreviousEntryID,
		"signature":       e.Signature,
	}
	if e.DurationMs != nil {
		rec["durationMs"] = strconv.FormatFloat(*e.DurationMs, 'g', -1, 64)
	}
	return rec, nil
}

func encodeCSV(entries []domain.AuditEntry) ([]byte, error) {
	records := make([]map[string]string, 0, len(entries))
	present := map[string]bool{}
	for _, e := range entries {
		rec, err := csvRecord(e)
		if err != nil {
			return nil, err
		}
		for k := range rec {
			present[k] = true
		}
		records = append(records, rec)
	}

	// Header is the union of keys present across entries.
	var header []string
	for _, col := range csvColumns {
		if present[col] || len(entries) == 0 {
			header = append(header, col)
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, rec := range records {
		row := make([]string, len(header))
		for i, col := range header {
			row[i] = rec[col]
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeCSV(data []byte) ([]domain.AuditEntry, error) {
	r := csv.NewReader(bytes.NewReader(data))
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode csv export: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("decode csv export: missing header")
	}

	header := rows[0]
	entries := make([]domain.AuditEntry, 0, len(rows)-1)
	for line, row := range rows[1:] {
		rec := make(map[string]string, len(header))
		for i, col := range header {
			rec[col] = row[i]
		}
		e, err := entryFromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("decode csv row %d: %w", line+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func entryFromRecord(rec map[string]string) (domain.AuditEntry, error) {
	e := domain.AuditEntry{
		ID:              rec["id"],
		Action:          rec["action"],
		ActorID:         rec["actorId"],
		SessionID:       rec["sessionId"],
		Category:        domain.AuditCategory(rec["category"]),
		Result:          rec["result"],
		PreviousEntryID: rec["previousEntryId"],
		Signature:       rec["signature"],
	}

	ts, err := time.Parse(time.RFC3339Nano, rec["timestamp"])
	if err != nil {
		return e, fmt.Errorf("timestamp: %w", err)
	}
	e.Timestamp = ts

	if d := rec["details"]; d != "" {
		if err := decodeJSON([]byte(d), &e.Details); err != nil {
			return e, fmt.Errorf("details: %w", err)
		}
	}
	if d := rec["durationMs"]; d != "" {
		ms, err := strconv.ParseFloat(d, 64)
		if err != nil {
			return e, fmt.Errorf("durationMs: %w", err)
		}
		e.DurationMs = &ms
	}
	return e, nil
}

type xmlLog struct {
	XMLName xml.Name   `xml:"auditLog"`
	Entries []xmlEntry `xml:"entry"`
}

type xmlEntry struct {
	ID              string   `xml:"id"`
	Timestamp       string   `xml:"timestamp"`
	Action          string   `xml:"action"`
	ActorID         string   `xml:"actorId"`
	SessionID       string   `xml:"sessionId"`
	Category        string   `xml:"category"`
	Details         string   `xml:"details"`
	Result          string   `xml:"result"`
	DurationMs      *float64 `xml:"durationMs,omitempty"`
	PreviousEntryID string   `xml:"previousEntryId"`
	Signature       string   `xml:"signature"`
}

func encodeXML(entries []domain.AuditEntry) ([]byte, error) {
	doc := xmlLog{Entries: make([]xmlEntry, 0, len(entries))}
	for _, e := range entries {
		rec, err := csvRecord(e)
		if err != nil {
			return nil, err
		}
		doc.Entries = append(doc.Entries, xmlEntry{
			ID:              rec["id"],
			Timestamp:       rec["timestamp"],
			Action:          rec["action"],
			ActorID:         rec["actorId"],
			SessionID:       rec["sessionId"],
			Category:        rec["category"],
			Details:         rec["details"],
			Result:          rec["result"],
			DurationMs:      e.DurationMs,
			PreviousEntryID: rec["previousEntryId"],
			Signature:       rec["signature"],
		})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

func decodeXML(data []byte) ([]domain.AuditEntry, error) {
	var doc xmlLog
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode xml export: %w", err)
	}

	entries := make([]domain.AuditEntry, 0, len(doc.Entries))
	for i, x := range doc.Entries {
		rec := map[string]string{
			"id":              x.ID,
			"timestamp":       x.Timestamp,
			"action":          x.Action,
			"actorId":         x.ActorID,
			"sessionId":       x.SessionID,
			"category":        x.Category,
			"details":         x.Details,
			"result":          x.Result,
			"previousEntryId": x.PreviousEntryID,
			"signature":       x.Signature,
		}
		e, err := entryFromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("decode xml entry %d: %w", i, err)
		}
		e.DurationMs = x.DurationMs
		entries = append(entries, e)
	}
	return entries, nil
}
