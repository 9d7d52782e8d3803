package tabular

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

func normalizeXlsx(body []byte) (RecordSet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(body))
	if err != nil {
		return RecordSet{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return RecordSet{}, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return RecordSet{}, fmt.Errorf("read xlsx rows: %w", err)
	}
	return recordSetFromRows(rows), nil
}
