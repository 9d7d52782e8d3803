package formflow

import (
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/jarcoal/httpmock"
)

const portalBase = "http://portal.test"
const portalForm = portalBase + "/search.aspx"

func newTestConfig(transport http.RoundTripper) Config {
	client := resty.New()
	client.GetClient().Transport = transport
	return Config{
		BaseUrl:  portalBase,
		FormPath: "/search.aspx",
		Roles: []Role{
			{Name: RoleCounty, Keywords: []string{"county"}, Kind: KindSelect, Required: true},
			{Name: RoleClassification, Keywords: []string{"classification"}, Kind: KindSelect, Multiple: true},
			{Name: RoleDateStart, Keywords: []string{"start"}, Kind: KindText},
			{Name: RoleDateEnd, Keywords: []string{"end"}, Kind: KindText},
		},
		ApplyKeywords:  []string{"search"},
		ExportKeywords: []string{"export", "download"},
		HttpClient:     client,
	}
}

func formPage(viewstate string) string {
	return fmt.Sprintf(`<html><body>
<form action="/search.aspx" method="post">
<input type="hidden" name="__VIEWSTATE" value="%s" />
<input type="hidden" name="__EVENTVALIDATION" value="ev" />
<label for="ddlCounty">County</label>
<select id="ddlCounty" name="ctl00$main$ddlCounty">
<option value="">All Counties</option>
<option value="19">Los Angeles</option>
<option value="37">San Diego</option>
</select>
<label for="lstClass">Classification</label>
<select id="lstClass" name="ctl00$main$lstClass" multiple>
<option value="C10">C-10 Electrical</option>
<option value="C36">C-36 Plumbing</option>
</select>
<label for="txtStart">Start Date</label>
<input type="text" id="txtStart" name="ctl00$main$txtStart" />
<label for="txtEnd">End Date</label>
<input type="text" id="txtEnd" name="ctl00$main$txtEnd" />
<input type="submit" name="ctl00$main$btnSearch" value="Search" />
</form>
</body></html>`, viewstate)
}

func resultsPage(viewstate string) string {
	return fmt.Sprintf(`<html><body>
<form action="/search.aspx" method="post">
<input type="hidden" name="__VIEWSTATE" value="%s" />
<span>42 records found</span>
<a href="javascript:__doPostBack('ctl00$main$lnkExport','')">Download Results</a>
</form>
</body></html>`, viewstate)
}

func validationPage(viewstate string) string {
	return fmt.Sprintf(`<html><body>
<form action="/search.aspx" method="post">
<input type="hidden" name="__VIEWSTATE" value="%s" />
<span class="error">Please select a classification.</span>
</form>
</body></html>`, viewstate)
}

const maintenancePage = `<html><body>
<h1>We will be back soon</h1>
<p>This portal is down for maintenance.</p>
</body></html>`

const exportCsv = "License Number,County\r\n12345,Los Angeles\r\n67890,Los Angeles\r\n"

func htmlResponse(body string) *http.Response {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	return resp
}

// the mislabeled content type the portals actually send for csv
func csvResponse() *http.Response {
	resp := httpmock.NewStringResponse(200, exportCsv)
	resp.Header.Set("Content-Type", "application/vnd.ms-excel")
	resp.Header.Set("Content-Disposition", `attachment; filename="results.csv"`)
	return resp
}
