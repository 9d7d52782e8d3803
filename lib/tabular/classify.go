package tabular

import (
	"bytes"
	"strings"
)

var zipSignature = []byte{0x50, 0x4B, 0x03, 0x04}
var oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// markers that indicate an html document rather than a data file,
// checked case-insensitively against the first few KB
var htmlMarkers = []string{"<!doctype html", "<html", "<body", "<table"}

const sniffWindow = 4096

// Classify decides the payload format from its leading bytes.
// Declared Content-Type and Content-Disposition are consulted only
// when byte sniffing is ambiguous: the portals are observed to label
// html error pages as application/vnd.ms-excel.
func Classify(raw Raw) (Classified, error) {
	format := sniff(raw.Body)
	if format == FormatUnknown {
		format = headerHint(raw)
	}
	if format == FormatUnknown {
		return Classified{Raw: raw}, ErrUnclassifiablePayload
	}
	return Classified{Raw: raw, Format: format}, nil
}

func sniff(body []byte) Format {
	if bytes.HasPrefix(body, zipSignature) {
		return FormatSpreadsheetZip
	}
	if bytes.HasPrefix(body, oleSignature) {
		return FormatLegacySpreadsheet
	}

	window := body
	if len(window) > sniffWindow {
		window = window[:sniffWindow]
	}
	sample := strings.ToLower(string(window))

	for _, marker := range htmlMarkers {
		if strings.Contains(sample, marker) {
			return FormatHTMLDocument
		}
	}

	if looksDelimited(sample) {
		return FormatDelimitedText
	}
	return FormatUnknown
}

func looksDelimited(sample string) bool {
	sample = strings.TrimPrefix(sample, "\uFEFF")
	if sample == "" {
		return false
	}
	hasBreak := strings.ContainsAny(sample, "\r\n")
	hasSep := strings.ContainsAny(sample, ",;\t")
	return hasBreak && hasSep
}

func headerHint(raw Raw) Format {
	ct := strings.ToLower(raw.ContentType)
	disposition := strings.ToLower(raw.Disposition)

	switch {
	case strings.Contains(ct, "text/csv"),
		strings.Contains(disposition, ".csv"):
		return FormatDelimitedText
	case strings.Contains(ct, "text/html"):
		return FormatHTMLDocument
	case strings.Contains(disposition, ".xlsx"):
		return FormatSpreadsheetZip
	case strings.Contains(disposition, ".xls"):
		return FormatLegacySpreadsheet
	}
	return FormatUnknown
}
