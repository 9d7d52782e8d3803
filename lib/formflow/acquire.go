package formflow

import (
	"context"
	"fmt"
	"net/url"

	"log/slog"

	"go.opentelemetry.io/otel/attribute"
)

// Engine is the single entrypoint callers use: criteria in,
// extraction result out. Everything portal-specific lives in the
// Config it was built with.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

// Acquire runs one acquisition for the given criteria. The error
// return covers only programmer mistakes (an unparseable base url);
// portal-side failures come back inside the result's diagnostics.
func (e *Engine) Acquire(ctx context.Context, criteria Criteria) (ExtractionResult, error) {
	ctx, span := tracer.Start(ctx, "engine:Acquire")
	defer span.End()

	if e.cfg.BaseUrl == "" {
		return ExtractionResult{}, fmt.Errorf("config has no base url")
	}
	if _, err := url.Parse(e.cfg.BaseUrl); err != nil {
		return ExtractionResult{}, fmt.Errorf("parse base url: %w", err)
	}

	assignments := criteria.assignments()
	roles := make([]string, 0, len(assignments))
	for role := range assignments {
		roles = append(roles, role)
	}
	span.SetAttributes(
		attribute.String("base_url", e.cfg.BaseUrl),
		attribute.StringSlice("roles", roles),
	)
	slog.InfoContext(ctx, "acquiring records",
		"base_url", e.cfg.BaseUrl,
		"county", criteria.County,
		"classifications", criteria.Classifications,
	)

	result := NewOrchestrator(e.cfg).Run(ctx, assignments)

	slog.InfoContext(ctx, "acquisition finished",
		"terminal_state", result.Diagnostics.TerminalState.String(),
		"attempts", result.Diagnostics.AttemptedStrategies,
		"records", result.Records.Len(),
	)
	return result, nil
}

// assignments maps criteria fields onto the well-known role names the
// portal configs bind.
func (c Criteria) assignments() map[string][]string {
	out := map[string][]string{}
	if c.County != "" {
		out[RoleCounty] = []string{c.County}
	}
	if len(c.Classifications) > 0 {
		out[RoleClassification] = c.Classifications
	}
	if c.DateRange != nil {
		if c.DateRange.Start != "" {
			out[RoleDateStart] = []string{c.DateRange.Start}
		}
		if c.DateRange.End != "" {
			out[RoleDateEnd] = []string{c.DateRange.End}
		}
	}
	return out
}
