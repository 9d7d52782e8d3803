package cslb

import (
	"context"
	"net/http"
	"testing"

	"leadscout-backend/lib/formflow"
	"leadscout-backend/lib/tabular"
	"leadscout-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

const searchForm = `<html><body>
<form action="/onlineservices/checklicenseII/advancedsearch.aspx" method="post">
<input type="hidden" name="__VIEWSTATE" value="vs-1" />
<label for="ddlCounty">County</label>
<select id="ddlCounty" name="ctl00$body$ddlCounty">
<option value="">All</option>
<option value="19">LOS ANGELES</option>
</select>
<label for="lbClassification">Classification</label>
<select id="lbClassification" name="ctl00$body$lbClassification" multiple>
<option value="C10">C-10 ELECTRICAL</option>
<option value="C36">C-36 PLUMBING</option>
</select>
<input type="submit" name="ctl00$body$btnSearch" value="Search" />
</form>
</body></html>`

const resultsWithExport = `<html><body>
<form action="/onlineservices/checklicenseII/advancedsearch.aspx" method="post">
<input type="hidden" name="__VIEWSTATE" value="vs-2" />
<a href="javascript:__doPostBack('ctl00$body$lnkExcel','')">Export to Excel</a>
</form>
</body></html>`

const licenseCsv = "License Number,Business Name,County,Classification(s),City,Status\r\n" +
	"123456,ACME ELECTRIC INC,LOS ANGELES,C-10,BURBANK,Active\r\n" +
	"654321,PIPEWORKS LLC,LOS ANGELES,C-36,GLENDALE,Active\r\n"

func testScraper(transport http.RoundTripper) (*Scraper, formflow.Config) {
	client := resty.New()
	client.GetClient().Transport = transport

	cfg := DefaultConfig()
	cfg.BaseUrl = "http://cslb.test"
	cfg.HttpClient = client
	return NewScraper(cfg), cfg
}

func TestLicenses(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/cslb")
	defer cleanup()

	formUrl := "http://cslb.test/onlineservices/checklicenseII/advancedsearch.aspx"

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", formUrl,
		func(*http.Request) (*http.Response, error) {
			resp := httpmock.NewStringResponse(200, searchForm)
			resp.Header.Set("Content-Type", "text/html")
			return resp, nil
		})
	transport.RegisterResponder("POST", formUrl,
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, req.ParseForm())
			if req.PostForm.Get("__EVENTTARGET") == "ctl00$body$lnkExcel" {
				resp := httpmock.NewStringResponse(200, licenseCsv)
				resp.Header.Set("Content-Type", "application/vnd.ms-excel")
				resp.Header.Set("Content-Disposition", `attachment; filename="licenses.csv"`)
				return resp, nil
			}
			require.Equal(t, []string{"C10", "C36"}, req.PostForm["ctl00$body$lbClassification"])
			resp := httpmock.NewStringResponse(200, resultsWithExport)
			resp.Header.Set("Content-Type", "text/html")
			return resp, nil
		})

	scraper, _ := testScraper(transport)
	licenses, diag, err := scraper.Licenses(context.Background(),
		"Los Angeles", []string{"C-10 Electrical", "C-36 Plumbing"})
	require.NoError(t, err)
	require.Equal(t, formflow.TerminalSuccess, diag.TerminalState)

	require.Len(t, licenses, 2)
	require.Equal(t, License{
		Number:          "123456",
		BusinessName:    "ACME ELECTRIC INC",
		County:          "LOS ANGELES",
		Classifications: "C-10",
		City:            "BURBANK",
		Status:          "Active",
	}, licenses[0])
}

func TestLicensesSurfacesDiagnostics(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/cslb")
	defer cleanup()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET",
		"http://cslb.test/onlineservices/checklicenseII/advancedsearch.aspx",
		func(*http.Request) (*http.Response, error) {
			resp := httpmock.NewStringResponse(200,
				"<html><body>The system is currently unavailable.</body></html>")
			resp.Header.Set("Content-Type", "text/html")
			return resp, nil
		})

	scraper, _ := testScraper(transport)
	licenses, diag, err := scraper.Licenses(context.Background(), "Los Angeles", []string{"C-10"})
	require.NoError(t, err)
	require.Empty(t, licenses)
	require.Equal(t, formflow.TerminalMaintenanceDetected, diag.TerminalState)
}

func TestMapLicensesSkipsEmptyRows(t *testing.T) {
	rs := tabular.RecordSet{
		Headers: []string{"License #", "Business Name", "County"},
		Rows: [][]string{
			{"987", "DIGGERS INC", "KERN"},
			{"", "", "KERN"},
		},
	}
	licenses := mapLicenses(rs)
	require.Len(t, licenses, 1)
	require.Equal(t, "987", licenses[0].Number)
	require.Equal(t, "DIGGERS INC", licenses[0].BusinessName)
}
