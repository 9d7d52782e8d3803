package formflow

import (
	"net/http/cookiejar"
	"net/url"

	"leadscout-backend/lib/restyutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Session owns the cookie jar and the hidden-field snapshot for one
// in-flight acquisition. Single use: the server's view state is
// filter-specific, so sessions are never pooled or reused across
// acquisitions. The hidden snapshot is replaced wholesale after every
// request that returns a new page, never patched in place, so each
// retry starts from a reproducible state.
type Session struct {
	baseUrl *url.URL
	http    *resty.Client
	// hidden form state from the most recent page
	hidden url.Values
	// url the most recent page was served from, postbacks go back to it
	pageUrl string
}

func NewSession(cfg Config) (*Session, error) {
	baseUrl, err := url.Parse(cfg.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := cfg.HttpClient
	if client == nil {
		client = resty.New()
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
		client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
		restyutil.InstrumentClient(client, tracer, restyInstrumentOutput)
	}

	// every session gets its own jar, injected clients included:
	// cookies from one attempt must not reach the next
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.SetBaseURL(cfg.BaseUrl)
	client.SetHeader("user-agent", userAgent)
	client.SetTimeout(cfg.RequestTimeout)

	return &Session{
		baseUrl: baseUrl,
		http:    client,
		hidden:  url.Values{},
	}, nil
}

// Hidden returns a copy of the current hidden-field snapshot.
func (s *Session) Hidden() url.Values {
	out := url.Values{}
	for k, vs := range s.hidden {
		for _, v := range vs {
			out.Add(k, v)
		}
	}
	return out
}

func (s *Session) PageUrl() string {
	return s.pageUrl
}

// absorb replaces the session's page state from a freshly fetched
// html document.
func (s *Session) absorb(pageUrl string, doc *goquery.Document) {
	hidden := url.Values{}
	doc.Find("input[type=hidden]").Each(func(_ int, sel *goquery.Selection) {
		name := sel.AttrOr("name", "")
		if name == "" {
			return
		}
		hidden.Add(name, sel.AttrOr("value", ""))
	})
	s.hidden = hidden
	s.pageUrl = pageUrl
}
