// Package tabular turns export payloads of unknown provenance into
// header-keyed records. The portals this repo scrapes are observed to
// return true spreadsheets, zip-packaged spreadsheets, csv text and
// html tables all under the same "excel" content type, so the true
// format is decided from the bytes and the declared headers are only
// advisory.
package tabular

import (
	"errors"

	"leadscout-backend/lib/textutil"
)

type Format int

const (
	FormatUnknown Format = iota
	// xlsx and friends, a zip archive with spreadsheet xml inside
	FormatSpreadsheetZip
	// legacy binary xls inside an OLE compound file
	FormatLegacySpreadsheet
	FormatDelimitedText
	FormatHTMLDocument
)

func (f Format) String() string {
	switch f {
	case FormatSpreadsheetZip:
		return "spreadsheet-zip"
	case FormatLegacySpreadsheet:
		return "legacy-spreadsheet"
	case FormatDelimitedText:
		return "delimited-text"
	case FormatHTMLDocument:
		return "html-document"
	}
	return "unknown"
}

var ErrUnclassifiablePayload = errors.New("payload bytes match no known format signature")

// Raw is exactly what the network layer returned, uninterpreted.
type Raw struct {
	Body        []byte
	ContentType string
	Disposition string
}

type Classified struct {
	Raw
	Format Format
}

// RecordSet is an ordered header row plus data rows. Every row has
// exactly len(Headers) cells.
type RecordSet struct {
	Headers []string
	Rows    [][]string
}

func (rs RecordSet) Len() int {
	return len(rs.Rows)
}

// Record returns row i as a header-keyed map.
func (rs RecordSet) Record(i int) map[string]string {
	out := make(map[string]string, len(rs.Headers))
	for j, h := range rs.Headers {
		out[h] = rs.Rows[i][j]
	}
	return out
}

// Pick returns the first non-empty cell of row i among the candidate
// header names, compared case-insensitively. Export column names vary
// between deployments of the same portal ("SCH Number" vs "SCH #"),
// this keeps the guessing in one place.
func (rs RecordSet) Pick(i int, candidates ...string) string {
	for _, c := range candidates {
		want := textutil.NormalizeName(c)
		for j, h := range rs.Headers {
			if textutil.NormalizeName(h) != want {
				continue
			}
			if v := rs.Rows[i][j]; v != "" {
				return v
			}
		}
	}
	return ""
}

func allEmpty(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}

// padRows forces every row to width cells, padding with empty strings
// and truncating overlong rows, and drops rows that are entirely empty.
func padRows(rows [][]string, width int) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		if allEmpty(row) {
			continue
		}
		switch {
		case len(row) < width:
			padded := make([]string, width)
			copy(padded, row)
			row = padded
		case len(row) > width:
			row = row[:width]
		}
		out = append(out, row)
	}
	return out
}
