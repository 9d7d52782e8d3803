package formflow

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leadscout-backend/lib/tabular"
	"leadscout-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	random "github.com/mazen160/go-random"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Response is the outcome of one form step. Doc is parsed lazily and
// only when the body is html.
type Response struct {
	Raw    tabular.Raw
	Status int
	// non-nil when the body parsed as html
	Doc *goquery.Document
}

// BodyContainsAny reports whether the response body contains one of
// the given textual markers, case-insensitively. Used for
// maintenance/validation signatures.
func (r *Response) BodyContainsAny(markers []string) string {
	body := strings.ToLower(string(r.Raw.Body))
	for _, m := range markers {
		if m != "" && strings.Contains(body, strings.ToLower(m)) {
			return m
		}
	}
	return ""
}

// Executor performs single form steps against the portal with one
// Session, updating the session from each html response. Rate-limit
// class statuses get a bounded backoff retry; every other status is
// the caller's problem.
type Executor struct {
	cfg Config
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{cfg: cfg.withDefaults()}
}

// FetchForm GETs the form page and absorbs its state into the session.
func (e *Executor) FetchForm(ctx context.Context, s *Session) (*Response, error) {
	ctx, span := tracer.Start(ctx, "executor:FetchForm")
	defer span.End()

	res, err := e.doWithBackoff(ctx, func() (*restyResponse, error) {
		r, err := s.http.R().SetContext(ctx).Get(e.cfg.FormPath)
		return wrapResty(r), err
	})
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch form page")
		return nil, err
	}
	return e.absorbResponse(s, res)
}

// Submit POSTs one plan. Hidden fields from the session's current
// page snapshot are merged under the plan's assignments, and the
// postback pair (or submit control) is added the way the portal's own
// script would.
func (e *Executor) Submit(ctx context.Context, s *Session, plan *Plan) (*Response, error) {
	ctx, span := tracer.Start(ctx, "executor:Submit")
	defer span.End()

	fields := s.Hidden()
	for name, values := range plan.Fields {
		fields.Del(name)
		for _, v := range values {
			fields.Add(name, v)
		}
	}
	switch {
	case plan.Target != "":
		fields.Set("__EVENTTARGET", plan.Target)
		fields.Set("__EVENTARGUMENT", plan.Argument)
	case plan.SubmitName != "":
		fields.Set(plan.SubmitName, plan.SubmitValue)
	}

	target := s.PageUrl()
	if target == "" {
		target = e.cfg.FormPath
	}

	span.SetAttributes(
		attribute.String("url", target),
		attribute.String("strategy", plan.Strategy.String()),
	)
	slog.DebugContext(ctx, "submit form step",
		"url", target,
		"strategy", plan.Strategy.String(),
		"postback_target", plan.Target,
		"fields", len(fields),
	)

	res, err := e.doWithBackoff(ctx, func() (*restyResponse, error) {
		r, err := s.http.R().
			SetContext(ctx).
			SetHeader("content-type", "application/x-www-form-urlencoded").
			SetFormDataFromValues(fields).
			Post(target)
		return wrapResty(r), err
	})
	if err != nil {
		span.SetStatus(codes.Error, "failed to submit form step")
		return nil, err
	}
	return e.absorbResponse(s, res)
}

// FetchUrl GETs an absolute or page-relative url with the session's
// cookies, for direct-download export links.
func (e *Executor) FetchUrl(ctx context.Context, s *Session, href string) (*Response, error) {
	ctx, span := tracer.Start(ctx, "executor:FetchUrl")
	defer span.End()

	resolved, err := s.resolveHref(href)
	if err != nil {
		span.SetStatus(codes.Error, "unparseable href")
		return nil, err
	}
	res, err := e.doWithBackoff(ctx, func() (*restyResponse, error) {
		r, err := s.http.R().SetContext(ctx).Get(resolved)
		return wrapResty(r), err
	})
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch url")
		return nil, err
	}
	return e.absorbResponse(s, res)
}

func (s *Session) resolveHref(href string) (string, error) {
	link, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	base := s.baseUrl
	if s.pageUrl != "" {
		if pageLink, err := url.Parse(s.pageUrl); err == nil {
			base = s.baseUrl.ResolveReference(pageLink)
		}
	}
	return base.ResolveReference(link).String(), nil
}

// restyResponse narrows the resty response surface to what the
// executor needs.
type restyResponse struct {
	status      int
	body        []byte
	contentType string
	disposition string
	finalUrl    string
}

func wrapResty(r *resty.Response) *restyResponse {
	if r == nil {
		return nil
	}
	out := &restyResponse{
		status:      r.StatusCode(),
		body:        r.Body(),
		contentType: r.Header().Get("Content-Type"),
		disposition: r.Header().Get("Content-Disposition"),
		finalUrl:    r.Request.URL,
	}
	// resty follows redirects, the raw request knows where we landed
	if r.RawResponse != nil && r.RawResponse.Request != nil && r.RawResponse.Request.URL != nil {
		out.finalUrl = r.RawResponse.Request.URL.String()
	}
	return out
}

func (e *Executor) doWithBackoff(
	ctx context.Context,
	do func() (*restyResponse, error),
) (*restyResponse, error) {
	var res *restyResponse
	var err error
	for attempt := 0; ; attempt++ {
		res, err = do()
		if err != nil {
			return nil, err
		}
		if res.status != http.StatusTooManyRequests && res.status != http.StatusServiceUnavailable {
			return res, nil
		}
		if attempt >= e.cfg.RateLimitRetries {
			return res, nil
		}

		backoff := e.cfg.RateLimitBackoff * time.Duration(attempt+1)
		jitterMs, jerr := random.IntRange(0, 500)
		if jerr == nil {
			backoff += time.Duration(jitterMs) * time.Millisecond
		}
		slog.WarnContext(ctx, "rate limited, backing off",
			"status", res.status,
			"backoff", backoff,
			"attempt", attempt+1,
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// absorbResponse replaces the session page state when the response is
// an html page, and packages the payload either way.
func (e *Executor) absorbResponse(s *Session, res *restyResponse) (*Response, error) {
	out := &Response{
		Raw: tabular.Raw{
			Body:        res.body,
			ContentType: res.contentType,
			Disposition: res.disposition,
		},
		Status: res.status,
	}

	if looksLikeHtml(res.body) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.body))
		if err == nil {
			out.Doc = doc
			s.absorb(res.finalUrl, doc)
		}
	}
	return out, nil
}

var htmlMarkers = []string{"<html", "<!doctype", "<form", "<body"}

// looksLikeHtml sniffs the leading bytes for page markup. Matching on
// normalized text tolerates markers split across whitespace.
func looksLikeHtml(body []byte) bool {
	window := body
	if len(window) > 4096 {
		window = window[:4096]
	}
	return textutil.MatchName(string(window), htmlMarkers)
}
