package formflow

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"leadscout-backend/lib/textutil"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Strategy selects how resolved options are encoded into the POST
// body. Some portal deployments validate against the option value,
// others against the displayed text; the orchestrator tries value
// first and falls back to text.
type Strategy int

const (
	StrategyValue Strategy = iota
	StrategyText
)

func (s Strategy) String() string {
	if s == StrategyText {
		return "text"
	}
	return "value"
}

// Plan is one concrete submission: which fields to set and which
// control to invoke. Immutable once built; a failed attempt builds a
// new plan rather than mutating this one.
type Plan struct {
	Fields url.Values
	// postback pair, empty when the plan invokes a plain submit control
	Target   string
	Argument string
	// submit control name/value, when no postback is involved
	SubmitName  string
	SubmitValue string
	Strategy    Strategy
}

type PlanRequest struct {
	// role name -> desired human-readable filter values
	Assignments map[string][]string
	Strategy    Strategy
	// keyword set locating the action for this transition
	ActionKeywords     []string
	AllowFirstPostback bool
}

// BuildPlan translates desired filter values into concrete field
// assignments using the catalog's option lists, and resolves which
// action invocation performs the transition. Deterministic: the same
// catalog and request always produce the same plan.
func BuildPlan(ctx context.Context, catalog *Catalog, req PlanRequest) (*Plan, error) {
	ctx, span := tracer.Start(ctx, "BuildPlan")
	defer span.End()

	plan := &Plan{
		Fields:   url.Values{},
		Strategy: req.Strategy,
	}

	for role, wanted := range req.Assignments {
		ctrl, ok := catalog.ByRole[role]
		if !ok {
			span.SetStatus(codes.Error, "role unbound")
			return nil, fmt.Errorf("%w: role %q has no bound control", ErrNoUsableControls, role)
		}

		switch ctrl.Kind {
		case KindText:
			for _, v := range wanted {
				plan.Fields.Add(ctrl.Name, v)
			}
		case KindSelect:
			// the field name is repeated once per selected value,
			// the encoding a native multi-select listbox produces
			for _, v := range wanted {
				opt, err := resolveOption(ctrl, v)
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, "option unresolved")
					return nil, err
				}
				if req.Strategy == StrategyText {
					plan.Fields.Add(ctrl.Name, opt.Text)
				} else {
					plan.Fields.Add(ctrl.Name, opt.Value)
				}
			}
		default:
			return nil, fmt.Errorf("%w: role %q bound to action control", ErrOptionNotResolved, role)
		}
	}

	if len(req.ActionKeywords) > 0 {
		if err := resolveAction(catalog, req, plan); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "action unresolved")
			return nil, err
		}
	}

	span.SetAttributes(
		attribute.String("strategy", req.Strategy.String()),
		attribute.String("postback_target", plan.Target),
		attribute.String("submit", plan.SubmitName),
	)
	return plan, nil
}

// resolveOption matches a desired display value against a control's
// options: exact displayed text first, then substring containment,
// both case-insensitive. Multiple substring hits are ranked by edit
// distance so "Los Angeles" prefers "Los Angeles County" over
// "East Los Angeles Region"; remaining ties keep document order.
func resolveOption(ctrl Control, wanted string) (Option, error) {
	norm := strings.ToLower(textutil.CollapseSpace(wanted))

	for _, opt := range ctrl.Options {
		if strings.ToLower(opt.Text) == norm {
			return opt, nil
		}
	}

	best := -1
	bestDistance := 0
	for i, opt := range ctrl.Options {
		if !strings.Contains(strings.ToLower(opt.Text), norm) {
			continue
		}
		d := matchr.Levenshtein(norm, strings.ToLower(opt.Text))
		if best < 0 || d < bestDistance {
			best = i
			bestDistance = d
		}
	}
	if best >= 0 {
		return ctrl.Options[best], nil
	}

	return Option{}, fmt.Errorf(
		"%w: %q not among %d options of control %q",
		ErrOptionNotResolved, wanted, len(ctrl.Options), ctrl.Name,
	)
}

// resolveAction binds the plan to either a scored submit control or a
// scored postback invocation, preferring a plain submit control when
// one matches the keywords.
func resolveAction(catalog *Catalog, req PlanRequest, plan *Plan) error {
	best := -1
	bestScore := 0
	for i, ctrl := range catalog.Controls {
		if ctrl.Kind != KindAction || ctrl.Name == "" {
			continue
		}
		score := textutil.KeywordScore(ctrl.scoreText(), req.ActionKeywords)
		if score > bestScore {
			best = i
			bestScore = score
		}
	}
	if best >= 0 {
		plan.SubmitName = catalog.Controls[best].Name
		plan.SubmitValue = catalog.Controls[best].Value
		return nil
	}

	pb, err := catalog.ResolvePostback(req.ActionKeywords, req.AllowFirstPostback)
	if err != nil {
		return err
	}
	plan.Target = pb.Target
	plan.Argument = pb.Argument
	return nil
}
