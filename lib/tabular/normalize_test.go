package tabular

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestNormalizeHtmlTable(t *testing.T) {
	body := []byte(`<table><tr><th>License Number</th><th>Status</th></tr>` +
		`<tr><td>12345</td><td>Active</td></tr></table>`)

	c, err := Classify(Raw{Body: body, ContentType: "application/vnd.ms-excel"})
	require.NoError(t, err)
	require.Equal(t, FormatHTMLDocument, c.Format)

	rs, err := Normalize(c)
	require.NoError(t, err)
	require.Equal(t, []string{"License Number", "Status"}, rs.Headers)
	require.Equal(t, 1, rs.Len())
	require.Equal(t, map[string]string{
		"License Number": "12345",
		"Status":         "Active",
	}, rs.Record(0))
}

func TestNormalizeHtmlPicksBiggestTable(t *testing.T) {
	body := []byte(`
		<table><tr><td>nav</td></tr></table>
		<table>
			<tr><th>Name</th><th>County</th></tr>
			<tr><td>Acme   Builders</td><td>Los Angeles</td></tr>
			<tr><td></td><td></td></tr>
			<tr><td>Best Roofing</td></tr>
		</table>`)

	rs, err := Normalize(Classified{Raw: Raw{Body: body}, Format: FormatHTMLDocument})
	require.NoError(t, err)
	require.Equal(t, []string{"Name", "County"}, rs.Headers)
	// all-empty row dropped, short row padded, whitespace collapsed
	require.Equal(t, 2, rs.Len())
	require.Equal(t, []string{"Acme Builders", "Los Angeles"}, rs.Rows[0])
	require.Equal(t, []string{"Best Roofing", ""}, rs.Rows[1])
}

func TestNormalizeDelimited(t *testing.T) {
	body := []byte("\xEF\xBB\xBFSCH Number,Title,County\n2026010057,Some Project,Los Angeles\nshort\n")

	rs, err := Normalize(Classified{Raw: Raw{Body: body}, Format: FormatDelimitedText})
	require.NoError(t, err)
	require.Equal(t, []string{"SCH Number", "Title", "County"}, rs.Headers)
	require.Equal(t, 2, rs.Len())
	require.Equal(t, []string{"2026010057", "Some Project", "Los Angeles"}, rs.Rows[0])
	require.Equal(t, []string{"short", "", ""}, rs.Rows[1])
}

func TestNormalizeXlsx(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"License Number", "Status"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"12345", "Active"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]any{"67890"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	c, err := Classify(Raw{Body: buf.Bytes(), ContentType: "application/octet-stream"})
	require.NoError(t, err)
	require.Equal(t, FormatSpreadsheetZip, c.Format)

	rs, err := Normalize(c)
	require.NoError(t, err)
	require.Equal(t, []string{"License Number", "Status"}, rs.Headers)
	require.Equal(t, 2, rs.Len())
	require.Equal(t, []string{"12345", "Active"}, rs.Rows[0])
	require.Equal(t, []string{"67890", ""}, rs.Rows[1])
}

func TestNormalizeIdempotent(t *testing.T) {
	c := Classified{
		Raw:    Raw{Body: []byte("a,b\n1,2\n3\n")},
		Format: FormatDelimitedText,
	}
	first, err := Normalize(c)
	require.NoError(t, err)
	second, err := Normalize(c)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestNormalizePaddingInvariant(t *testing.T) {
	c := Classified{
		Raw:    Raw{Body: []byte("a,b,c\n1\n1,2\n1,2,3,4\n")},
		Format: FormatDelimitedText,
	}
	rs, err := Normalize(c)
	require.NoError(t, err)
	for _, row := range rs.Rows {
		require.Len(t, row, len(rs.Headers))
	}
}

func TestRecordSetPick(t *testing.T) {
	rs := RecordSet{
		Headers: []string{"SCH #", "Title"},
		Rows:    [][]string{{"2026010057", "Project"}},
	}
	require.Equal(t, "2026010057", rs.Pick(0, "SCH Number", "SCH #", "State Clearinghouse Number"))
	require.Equal(t, "", rs.Pick(0, "County"))
}
