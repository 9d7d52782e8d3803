package tabular

import (
	"fmt"
)

// Normalize converts a classified payload into a header-consistent
// record set. It never fails on malformed rows: short rows are padded,
// overlong rows truncated, all-empty rows dropped. The output is
// deterministic given the same payload.
func Normalize(c Classified) (RecordSet, error) {
	switch c.Format {
	case FormatSpreadsheetZip:
		return normalizeXlsx(c.Body)
	case FormatLegacySpreadsheet:
		return normalizeXls(c.Body)
	case FormatDelimitedText:
		return normalizeDelimited(c.Body)
	case FormatHTMLDocument:
		return normalizeHtml(c.Body)
	}
	return RecordSet{}, fmt.Errorf("cannot normalize format %q", c.Format)
}

func recordSetFromRows(rows [][]string) RecordSet {
	for len(rows) > 0 && allEmpty(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return RecordSet{}
	}
	headers := rows[0]
	return RecordSet{
		Headers: headers,
		Rows:    padRows(rows[1:], len(headers)),
	}
}
