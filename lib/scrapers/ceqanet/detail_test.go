package ceqanet

import (
	"context"
	"net/http"
	"testing"

	"leadscout-backend/lib/telemetry"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

const detailPage = `<html><body>
<h2>Summary</h2>
<div>Lead Agency</div><div>City of Industry</div>
<div>Document Title</div><div>Sunset Logistics Center</div>
<div>Document Type</div><div>NOP</div>
<div>Received</div><div>01/05/2026</div>
<div>Project Description</div>
<div>Construct a 400,000 square foot warehouse with truck court.</div>
<div>State Review Period End</div><div>02/05/2026</div>
<h2>Contact Information</h2>
<div>Name</div><div>John Smith</div>
<div>Agency Name</div><div>City of Industry</div>
<div>Job Title</div><div>Senior Planner</div>
<div>Contact Types</div><div>Lead/Public Agency</div>
<div>Phone</div><div>(555) 987-6543</div>
<h3>Name</h3>
<div>Jane Roe</div>
<div>Agency Name</div><div>Roe Engineering</div>
<div>Contact Types</div><div>Consulting Firm</div>
<div>Email</div><div>jane@roe-eng.test</div>
<h2>Location</h2>
<div>Cities</div><div>Industry</div>
<div>Counties</div><div>Los Angeles</div>
<div>Cross Streets</div><div>Main St and 5th Ave</div>
<div>Total Acres</div><div>22</div>
</body></html>`

func TestFetchDetail(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/ceqanet")
	defer cleanup()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://ceqanet.test/2026010057",
		func(*http.Request) (*http.Response, error) {
			resp := httpmock.NewStringResponse(200, detailPage)
			resp.Header.Set("Content-Type", "text/html")
			return resp, nil
		})

	scraper := testScraper(transport)
	detail, err := scraper.FetchDetail(context.Background(), "http://ceqanet.test/2026010057")
	require.NoError(t, err)

	require.Equal(t, "City of Industry", detail.Summary["lead agency"])
	require.Equal(t, "NOP", detail.Summary["document type"])
	require.Equal(t, "01/05/2026", detail.Summary["received"])
	require.Equal(t, "02/05/2026", detail.Summary["state review period end"])
	require.Equal(t,
		"Construct a 400,000 square foot warehouse with truck court.",
		detail.Description())

	require.Len(t, detail.Contacts, 2)
	require.Equal(t, Contact{
		Name:         "John Smith",
		AgencyName:   "City of Industry",
		JobTitle:     "Senior Planner",
		ContactTypes: "Lead/Public Agency",
		Phone:        "(555) 987-6543",
	}, detail.Contacts[0])
	require.Equal(t, "jane@roe-eng.test", detail.Contacts[1].Email)

	require.Equal(t, "Industry", detail.Location["cities"])
	require.Equal(t, "Los Angeles", detail.Location["counties"])
	require.Equal(t, "22", detail.Location["total acres"])

	// the consulting firm outranks the reviewing agency
	chosen := PreferredContact(detail.Contacts)
	require.Equal(t, "Jane Roe", chosen.Name)
}

func TestFetchDetailRejectsNon200(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/ceqanet")
	defer cleanup()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://ceqanet.test/2026010057",
		httpmock.NewStringResponder(404, "not found"))

	scraper := testScraper(transport)
	_, err := scraper.FetchDetail(context.Background(), "http://ceqanet.test/2026010057")
	require.Error(t, err)
}

func TestPreferredContactFallsBack(t *testing.T) {
	contacts := []Contact{
		{Name: "A", ContactTypes: "Lead/Public Agency"},
		{Name: "B", ContactTypes: "Reviewing Agency"},
	}
	require.Equal(t, "A", PreferredContact(contacts).Name)
	require.Nil(t, PreferredContact(nil))
}

func TestConstructionHint(t *testing.T) {
	require.True(t, ConstructionHint("Warehouse Project", "", ""))
	require.True(t, ConstructionHint("", "grading and excavation for a new road", ""))
	require.True(t, ConstructionHint("", "", "Residential"))
	require.False(t, ConstructionHint("Habitat Conservation Plan", "annual mitigation report", ""))
}

func TestEnrichRespectsLimit(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/ceqanet")
	defer cleanup()

	transport := httpmock.NewMockTransport()
	calls := 0
	transport.RegisterResponder("GET", `=~^http://ceqanet\.test/20260`,
		func(*http.Request) (*http.Response, error) {
			calls++
			resp := httpmock.NewStringResponse(200, detailPage)
			resp.Header.Set("Content-Type", "text/html")
			return resp, nil
		})

	scraper := testScraper(transport)
	projects := []Project{
		{CeqaId: "2026010001", DetailUrl: "http://ceqanet.test/2026010001"},
		{CeqaId: "2026010002", DetailUrl: "http://ceqanet.test/2026010002"},
		{CeqaId: "2026010003", DetailUrl: "http://ceqanet.test/2026010003"},
	}

	projects = scraper.Enrich(context.Background(), projects, 2)
	require.Equal(t, 2, calls)
	require.NotNil(t, projects[0].Detail)
	require.NotNil(t, projects[1].Detail)
	require.Nil(t, projects[2].Detail)
}
