package tabular

import (
	"bytes"
	"fmt"

	"leadscout-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

// normalizeHtml extracts records from the largest table in the
// document. Results pages wrap the data table in several layout
// tables, picking the one with the most rows skips those.
func normalizeHtml(body []byte) (RecordSet, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return RecordSet{}, fmt.Errorf("parse html: %w", err)
	}

	var biggest *goquery.Selection
	biggestRows := 0
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		n := table.Find("tr").Length()
		if n > biggestRows {
			biggest = table
			biggestRows = n
		}
	})
	if biggest == nil {
		return RecordSet{}, nil
	}

	var rows [][]string
	biggest.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, textutil.CollapseSpace(cell.Text()))
		})
		rows = append(rows, cells)
	})
	return recordSetFromRows(rows), nil
}
