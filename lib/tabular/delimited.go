package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var utf8Bom = []byte{0xEF, 0xBB, 0xBF}

func detectDelimiter(body []byte) rune {
	firstLine := body
	if i := bytes.IndexAny(body, "\r\n"); i >= 0 {
		firstLine = body[:i]
	}
	line := string(firstLine)

	best := ','
	bestCount := strings.Count(line, ",")
	for _, cand := range []rune{';', '\t'} {
		if n := strings.Count(line, string(cand)); n > bestCount {
			best = cand
			bestCount = n
		}
	}
	return best
}

func normalizeDelimited(body []byte) (RecordSet, error) {
	body = bytes.TrimPrefix(body, utf8Bom)

	reader := csv.NewReader(bytes.NewReader(body))
	reader.Comma = detectDelimiter(body)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// tolerate a malformed row rather than failing the export
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return RecordSet{}, fmt.Errorf("read delimited text: %w", err)
		}
		rows = append(rows, row)
	}
	return recordSetFromRows(rows), nil
}
