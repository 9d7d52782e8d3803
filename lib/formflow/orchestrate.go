package formflow

import (
	"context"
	"errors"
	"strings"

	"log/slog"

	"leadscout-backend/lib/htmlutil"
	"leadscout-backend/lib/tabular"
	"leadscout-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// State tracks how far through the form sequence one attempt got.
// Transitions only move forward; a retry starts over at StateInitial
// with a fresh session.
type State int

const (
	StateInitial State = iota
	StateFiltersApplied
	StateExportAttempted
)

func (s State) String() string {
	switch s {
	case StateFiltersApplied:
		return "filters-applied"
	case StateExportAttempted:
		return "export-attempted"
	}
	return "initial"
}

const snippetLimit = 512

// Orchestrator runs the bounded strategy ladder for one acquisition:
// at most one http attempt per encoding strategy, then an optional
// browser pass when the http attempts failed on validation grounds.
// Maintenance pages, unusable markup and unresolvable filter values
// end the run immediately since no amount of retrying changes them.
type Orchestrator struct {
	cfg  Config
	exec *Executor
	// swapped out in tests, the default needs a real browser binary
	browserFetch func(context.Context, Config, map[string][]string) (tabular.Raw, error)
}

func NewOrchestrator(cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{cfg: cfg, exec: NewExecutor(cfg), browserFetch: fetchWithBrowser}
}

// Run performs one acquisition for the given role assignments. It
// never returns an error: every failure mode is a terminal state in
// the diagnostics, so callers get the full attempt history either way.
func (o *Orchestrator) Run(ctx context.Context, assignments map[string][]string) ExtractionResult {
	ctx, span := tracer.Start(ctx, "orchestrator:Run")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Deadline)
	defer cancel()

	var diag Diagnostics
	var records tabular.RecordSet
	retryable := false

	for _, strategy := range []Strategy{StrategyValue, StrategyText} {
		diag.AttemptedStrategies = append(diag.AttemptedStrategies, "http/"+strategy.String())
		slog.InfoContext(ctx, "starting acquisition attempt",
			"strategy", strategy.String(),
			"attempt", len(diag.AttemptedStrategies),
		)

		records, retryable = o.attempt(ctx, strategy, assignments, &diag)
		if diag.TerminalState == TerminalSuccess || !retryable {
			break
		}
		if ctx.Err() != nil {
			slog.WarnContext(ctx, "acquisition deadline reached, not retrying")
			break
		}
	}

	if diag.TerminalState != TerminalSuccess && retryable && ctx.Err() == nil && o.cfg.Browser.Enabled {
		diag.AttemptedStrategies = append(diag.AttemptedStrategies, "browser")
		slog.InfoContext(ctx, "escalating to browser fallback")
		records = o.browserAttempt(ctx, assignments, &diag)
	}

	span.SetAttributes(
		attribute.String("terminal_state", diag.TerminalState.String()),
		attribute.StringSlice("attempted_strategies", diag.AttemptedStrategies),
		attribute.Int("records", records.Len()),
	)
	if diag.TerminalState != TerminalSuccess {
		span.SetStatus(codes.Error, diag.TerminalState.String())
		slog.WarnContext(ctx, "acquisition did not succeed",
			"terminal_state", diag.TerminalState.String(),
			"last_state", diag.LastState.String(),
			"failure", diag.Failure,
		)
		// failed runs hand back no partial rows
		records = tabular.RecordSet{}
	}

	return ExtractionResult{Records: records, Diagnostics: diag}
}

// attempt drives one full pass with one encoding strategy. The bool
// reports whether the failure class is worth another attempt;
// terminal page conditions are not.
func (o *Orchestrator) attempt(
	ctx context.Context,
	strategy Strategy,
	assignments map[string][]string,
	diag *Diagnostics,
) (tabular.RecordSet, bool) {
	prior := *diag
	diag.LastState = StateInitial

	session, err := NewSession(o.cfg)
	if err != nil {
		o.fail(diag, TerminalIncomplete, nil, "create session: "+err.Error())
		return tabular.RecordSet{}, false
	}

	res, err := o.exec.FetchForm(ctx, session)
	if err != nil {
		if abortForDeadline(ctx, diag, prior) {
			return tabular.RecordSet{}, false
		}
		o.fail(diag, TerminalIncomplete, nil, "fetch form page: "+err.Error())
		return tabular.RecordSet{}, false
	}
	if marker := res.BodyContainsAny(o.cfg.MaintenanceMarkers); marker != "" {
		o.fail(diag, TerminalMaintenanceDetected, res, "maintenance marker "+marker)
		return tabular.RecordSet{}, false
	}
	if res.Doc == nil {
		o.fail(diag, TerminalNoUsableControls, res, "form page is not html")
		return tabular.RecordSet{}, false
	}

	catalog, err := Discover(ctx, res.Doc, o.cfg.Roles)
	if err != nil {
		o.fail(diag, TerminalNoUsableControls, res, err.Error())
		return tabular.RecordSet{}, false
	}

	applyPlan, err := BuildPlan(ctx, catalog, PlanRequest{
		Assignments:        assignments,
		Strategy:           strategy,
		ActionKeywords:     o.cfg.ApplyKeywords,
		AllowFirstPostback: o.cfg.AllowFirstPostback,
	})
	if err != nil {
		// no network traffic happens for an unresolvable filter value
		switch {
		case errors.Is(err, ErrOptionNotResolved):
			o.fail(diag, TerminalOptionNotResolved, res, err.Error())
		case errors.Is(err, ErrNoPostbackTarget), errors.Is(err, ErrNoUsableControls):
			o.fail(diag, TerminalNoUsableControls, res, err.Error())
		default:
			o.fail(diag, TerminalIncomplete, res, err.Error())
		}
		return tabular.RecordSet{}, false
	}

	res, err = o.exec.Submit(ctx, session, applyPlan)
	if err != nil {
		if abortForDeadline(ctx, diag, prior) {
			return tabular.RecordSet{}, false
		}
		o.fail(diag, TerminalIncomplete, nil, "apply filters: "+err.Error())
		return tabular.RecordSet{}, false
	}
	diag.LastState = StateFiltersApplied

	if marker := res.BodyContainsAny(o.cfg.MaintenanceMarkers); marker != "" {
		o.fail(diag, TerminalMaintenanceDetected, res, "maintenance marker "+marker)
		return tabular.RecordSet{}, false
	}
	if marker := res.BodyContainsAny(o.cfg.ValidationMarkers); marker != "" {
		o.fail(diag, TerminalValidationRejected, res, "validation marker "+marker)
		return tabular.RecordSet{}, true
	}

	res, retryable := o.export(ctx, session, strategy, res, diag, prior)
	if res == nil {
		return tabular.RecordSet{}, retryable
	}
	diag.LastState = StateExportAttempted

	return o.classifyResponse(res, diag)
}

// export triggers the download step from the results page. Some
// deployments render a plain export link, others only a postback; the
// link wins when both score. A nil response means the failure is
// already recorded in diag.
func (o *Orchestrator) export(
	ctx context.Context,
	session *Session,
	strategy Strategy,
	res *Response,
	diag *Diagnostics,
	prior Diagnostics,
) (*Response, bool) {
	if res.Doc == nil {
		// the apply step already answered with a data payload
		return res, false
	}

	if href := findExportLink(ctx, res.Doc, o.cfg.ExportKeywords); href != "" {
		out, err := o.exec.FetchUrl(ctx, session, href)
		if err != nil {
			if abortForDeadline(ctx, diag, prior) {
				return nil, false
			}
			o.fail(diag, TerminalIncomplete, nil, "fetch export link: "+err.Error())
			return nil, false
		}
		return out, false
	}

	catalog, err := Discover(ctx, res.Doc, nil)
	if err != nil {
		o.fail(diag, TerminalNoUsableControls, res, err.Error())
		return nil, false
	}
	exportPlan, err := BuildPlan(ctx, catalog, PlanRequest{
		Strategy:           strategy,
		ActionKeywords:     o.cfg.ExportKeywords,
		AllowFirstPostback: o.cfg.AllowFirstPostback,
	})
	if err != nil {
		o.fail(diag, TerminalNoUsableControls, res, "resolve export action: "+err.Error())
		return nil, false
	}

	out, err := o.exec.Submit(ctx, session, exportPlan)
	if err != nil {
		if abortForDeadline(ctx, diag, prior) {
			return nil, false
		}
		o.fail(diag, TerminalIncomplete, nil, "trigger export: "+err.Error())
		return nil, false
	}
	return out, false
}

// abortForDeadline handles a step failing because the acquisition
// deadline passed: the run keeps whatever diagnostics it had already
// established instead of reporting the cancelled step as a new
// failure.
func abortForDeadline(ctx context.Context, diag *Diagnostics, prior Diagnostics) bool {
	if ctx.Err() == nil {
		return false
	}
	*diag = prior
	if diag.Failure == "" {
		diag.Failure = ctx.Err().Error()
	}
	return true
}

// classifyResponse decides whether the export payload counts as a
// successful extraction. Html needs care: the portals answer postbacks
// with the form page again when they dislike the submission, labeled
// as a spreadsheet more often than not.
func (o *Orchestrator) classifyResponse(res *Response, diag *Diagnostics) (tabular.RecordSet, bool) {
	classified, err := tabular.Classify(res.Raw)
	if err != nil {
		o.fail(diag, TerminalUnclassifiablePayload, res, err.Error())
		return tabular.RecordSet{}, false
	}

	if classified.Format == tabular.FormatHTMLDocument {
		if marker := res.BodyContainsAny(o.cfg.ValidationMarkers); marker != "" {
			o.fail(diag, TerminalValidationRejected, res, "validation marker "+marker)
			return tabular.RecordSet{}, true
		}
		records, err := tabular.Normalize(classified)
		if err == nil && records.Len() > 0 {
			diag.TerminalState = TerminalSuccess
			return records, false
		}
		// an html answer without a populated table is the form page
		// redisplayed, whatever the server called it
		o.fail(diag, TerminalValidationRejected, res, "export answered with a page instead of data")
		return tabular.RecordSet{}, true
	}

	records, err := tabular.Normalize(classified)
	if err != nil {
		o.fail(diag, TerminalUnclassifiablePayload, res, err.Error())
		return tabular.RecordSet{}, false
	}
	diag.TerminalState = TerminalSuccess
	return records, false
}

func (o *Orchestrator) browserAttempt(
	ctx context.Context,
	assignments map[string][]string,
	diag *Diagnostics,
) tabular.RecordSet {
	diag.LastState = StateInitial
	raw, err := o.browserFetch(ctx, o.cfg, assignments)
	if err != nil {
		o.fail(diag, TerminalIncomplete, nil, "browser fallback: "+err.Error())
		return tabular.RecordSet{}
	}
	diag.LastState = StateExportAttempted
	records, _ := o.classifyResponse(&Response{Raw: raw}, diag)
	return records
}

func (o *Orchestrator) fail(diag *Diagnostics, state TerminalState, res *Response, failure string) {
	diag.TerminalState = state
	diag.Failure = failure
	diag.ResponseSnippet = ""
	if res != nil {
		diag.ResponseSnippet = snippet(res.Raw.Body)
	}
}

func snippet(body []byte) string {
	s := textutil.CollapseSpace(string(body))
	if len(s) > snippetLimit {
		s = s[:snippetLimit]
	}
	return s
}

// findExportLink returns the href of the anchor scoring best against
// the export keywords, skipping script hrefs which belong to the
// postback path.
func findExportLink(ctx context.Context, doc *goquery.Document, keywords []string) string {
	best := ""
	bestScore := 0
	for _, anchor := range htmlutil.GetAnchors(ctx, doc.Find("a[href]")) {
		if anchor.Href == "" || strings.HasPrefix(strings.ToLower(anchor.Href), "javascript:") {
			continue
		}
		if score := textutil.KeywordScore(anchor.Href+" "+anchor.Name, keywords); score > bestScore {
			best = anchor.Href
			bestScore = score
		}
	}
	return best
}
