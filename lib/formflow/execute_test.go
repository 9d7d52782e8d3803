package formflow

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"leadscout-backend/lib/telemetry"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
)

func TestSubmitCarriesHiddenState(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/formflow")
	defer cleanup()

	transport := httpmock.NewMockTransport()
	cfg := newTestConfig(transport)

	transport.RegisterResponder("GET", portalForm,
		httpmock.ResponderFromResponse(htmlResponse(formPage("vs-1"))))

	var posted []url.Values
	transport.RegisterResponder("POST", portalForm,
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, req.ParseForm())
			posted = append(posted, req.PostForm)
			return htmlResponse(resultsPage("vs-2")), nil
		})

	session, err := NewSession(cfg)
	require.NoError(t, err)
	exec := NewExecutor(cfg)
	ctx := context.Background()

	_, err = exec.FetchForm(ctx, session)
	require.NoError(t, err)
	require.Equal(t, "vs-1", session.Hidden().Get("__VIEWSTATE"))

	_, err = exec.Submit(ctx, session, &Plan{
		Fields:      url.Values{"ctl00$main$ddlCounty": {"19"}},
		SubmitName:  "ctl00$main$btnSearch",
		SubmitValue: "Search",
	})
	require.NoError(t, err)

	// first post carries the state of the page it came from
	require.Equal(t, "vs-1", posted[0].Get("__VIEWSTATE"))
	require.Equal(t, "ev", posted[0].Get("__EVENTVALIDATION"))
	require.Equal(t, "Search", posted[0].Get("ctl00$main$btnSearch"))

	_, err = exec.Submit(ctx, session, &Plan{
		Fields: url.Values{},
		Target: "ctl00$main$lnkExport",
	})
	require.NoError(t, err)

	// the next post carries the replacement state, not a merge: the
	// results page had no event validation field so neither does the post
	require.Equal(t, "vs-2", posted[1].Get("__VIEWSTATE"))
	require.Empty(t, posted[1].Get("__EVENTVALIDATION"))
	require.Equal(t, "ctl00$main$lnkExport", posted[1].Get("__EVENTTARGET"))
	require.Contains(t, posted[1], "__EVENTARGUMENT")
}

func TestSubmitRepeatsFieldNamePerSelection(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/formflow")
	defer cleanup()

	transport := httpmock.NewMockTransport()
	cfg := newTestConfig(transport)

	transport.RegisterResponder("GET", portalForm,
		httpmock.ResponderFromResponse(htmlResponse(formPage("vs-1"))))

	var posted url.Values
	transport.RegisterResponder("POST", portalForm,
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, req.ParseForm())
			posted = req.PostForm
			return htmlResponse(resultsPage("vs-2")), nil
		})

	session, err := NewSession(cfg)
	require.NoError(t, err)
	exec := NewExecutor(cfg)
	ctx := context.Background()

	_, err = exec.FetchForm(ctx, session)
	require.NoError(t, err)

	_, err = exec.Submit(ctx, session, &Plan{
		Fields:      url.Values{"ctl00$main$lstClass": {"C10", "C36"}},
		SubmitName:  "ctl00$main$btnSearch",
		SubmitValue: "Search",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"C10", "C36"}, posted["ctl00$main$lstClass"])
}

func TestFetchFormRetriesRateLimit(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/formflow")
	defer cleanup()

	transport := httpmock.NewMockTransport()
	cfg := newTestConfig(transport)
	cfg.RateLimitRetries = 2
	cfg.RateLimitBackoff = time.Millisecond * 10

	calls := 0
	transport.RegisterResponder("GET", portalForm,
		func(req *http.Request) (*http.Response, error) {
			calls++
			if calls <= 2 {
				return httpmock.NewStringResponse(http.StatusTooManyRequests, "slow down"), nil
			}
			return htmlResponse(formPage("vs-1")), nil
		})

	session, err := NewSession(cfg)
	require.NoError(t, err)

	res, err := NewExecutor(cfg).FetchForm(context.Background(), session)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, 3, calls)
}

func TestFetchFormRateLimitRetriesBounded(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/formflow")
	defer cleanup()

	transport := httpmock.NewMockTransport()
	cfg := newTestConfig(transport)
	cfg.RateLimitRetries = 1
	cfg.RateLimitBackoff = time.Millisecond * 10

	calls := 0
	transport.RegisterResponder("GET", portalForm,
		func(req *http.Request) (*http.Response, error) {
			calls++
			return httpmock.NewStringResponse(http.StatusTooManyRequests, "slow down"), nil
		})

	session, err := NewSession(cfg)
	require.NoError(t, err)

	// the terminal 429 comes back as a response, deciding what it
	// means is the orchestrator's job
	res, err := NewExecutor(cfg).FetchForm(context.Background(), session)
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, res.Status)
	require.Equal(t, 2, calls)
}

func TestSessionsGetFreshCookieJars(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/formflow")
	defer cleanup()

	transport := httpmock.NewMockTransport()
	var cookies []string
	transport.RegisterResponder("GET", portalForm,
		func(req *http.Request) (*http.Response, error) {
			cookies = append(cookies, req.Header.Get("Cookie"))
			resp := htmlResponse(formPage("vs-1"))
			resp.Header.Set("Set-Cookie", "ASP.NET_SessionId=one; path=/")
			return resp, nil
		})

	cfg := newTestConfig(transport)
	exec := NewExecutor(cfg)
	ctx := context.Background()

	first, err := NewSession(cfg)
	require.NoError(t, err)
	_, err = exec.FetchForm(ctx, first)
	require.NoError(t, err)
	_, err = exec.FetchForm(ctx, first)
	require.NoError(t, err)

	second, err := NewSession(cfg)
	require.NoError(t, err)
	_, err = exec.FetchForm(ctx, second)
	require.NoError(t, err)

	require.Len(t, cookies, 3)
	require.Empty(t, cookies[0])
	require.Contains(t, cookies[1], "ASP.NET_SessionId=one")
	// a new session starts clean even on a shared injected client
	require.Empty(t, cookies[2])
}

func TestLooksLikeHtml(t *testing.T) {
	require.True(t, looksLikeHtml([]byte(`<!DOCTYPE html><p>x</p>`)))
	require.True(t, looksLikeHtml([]byte("<!DOCTYPE\n  html>\n<p>x</p>")))
	require.True(t, looksLikeHtml([]byte(`<form action="/a.aspx">`)))
	require.False(t, looksLikeHtml([]byte(exportCsv)))
	require.False(t, looksLikeHtml([]byte{0x50, 0x4B, 0x03, 0x04, 0x00}))
}

func TestFetchUrlResolvesAgainstPage(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/formflow")
	defer cleanup()

	transport := httpmock.NewMockTransport()
	cfg := newTestConfig(transport)

	transport.RegisterResponder("GET", portalForm,
		httpmock.ResponderFromResponse(htmlResponse(formPage("vs-1"))))
	transport.RegisterResponder("GET", portalBase+"/export.csv",
		httpmock.ResponderFromResponse(csvResponse()))

	session, err := NewSession(cfg)
	require.NoError(t, err)
	exec := NewExecutor(cfg)
	ctx := context.Background()

	_, err = exec.FetchForm(ctx, session)
	require.NoError(t, err)

	res, err := exec.FetchUrl(ctx, session, "export.csv")
	require.NoError(t, err)
	require.Equal(t, exportCsv, string(res.Raw.Body))
	require.Nil(t, res.Doc)
}
