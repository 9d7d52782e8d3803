package formflow

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"leadscout-backend/lib/htmlutil"
	"leadscout-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ControlKind int

const (
	KindSelect ControlKind = iota
	KindText
	KindAction
)

func (k ControlKind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindText:
		return "text"
	case KindAction:
		return "action"
	}
	return "unknown"
}

type Option struct {
	Value string
	Text  string
}

// Control is one addressable element of the form page. Built fresh
// from each page parse, never mutated.
type Control struct {
	Name     string
	Id       string
	Kind     ControlKind
	Multiple bool
	// populated for KindSelect only
	Options []Option
	// submit value, for KindAction inputs/buttons
	Value string
	// text of an associated <label>, feeds role scoring
	Label string
}

// scoreText is the text a role's keywords are matched against
func (c Control) scoreText() string {
	return c.Name + " " + c.Id + " " + c.Label + " " + c.Value
}

// Catalog is everything discovered from one parse of a form page.
type Catalog struct {
	// hidden inputs: view state, event validation and friends
	Hidden     url.Values
	Controls   []Control
	Postbacks  []Postback
	FormAction string
	// role name -> control resolved for it
	ByRole map[string]Control
}

// Discover parses a form page into a control catalog and binds the
// requested roles. Each select/action role is bound to the
// highest-scoring control for its keyword set; select roles with no
// keyword hit fall back to document order among unclaimed selects of
// the right shape. A required role with no binding fails with
// ErrNoUsableControls rather than guessing.
func Discover(ctx context.Context, doc *goquery.Document, roles []Role) (*Catalog, error) {
	ctx, span := tracer.Start(ctx, "Discover")
	defer span.End()

	catalog := &Catalog{
		Hidden: url.Values{},
		ByRole: map[string]Control{},
	}

	doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		catalog.FormAction = form.AttrOr("action", "")
		return false
	})

	doc.Find("input[type=hidden]").Each(func(_ int, sel *goquery.Selection) {
		name := sel.AttrOr("name", "")
		if name == "" {
			return
		}
		catalog.Hidden.Add(name, sel.AttrOr("value", ""))
	})

	doc.Find("select").Each(func(_ int, sel *goquery.Selection) {
		ctrl := Control{
			Name: sel.AttrOr("name", ""),
			Id:   sel.AttrOr("id", ""),
			Kind: KindSelect,
		}
		_, ctrl.Multiple = sel.Attr("multiple")
		ctrl.Label = htmlutil.LabelFor(doc, ctrl.Id)
		sel.Find("option").Each(func(_ int, opt *goquery.Selection) {
			text := textutil.CollapseSpace(opt.Text())
			ctrl.Options = append(ctrl.Options, Option{
				Value: opt.AttrOr("value", text),
				Text:  text,
			})
		})
		catalog.Controls = append(catalog.Controls, ctrl)
	})

	doc.Find("input[type=text], input[type=date], input:not([type]), textarea").
		Each(func(_ int, sel *goquery.Selection) {
			ctrl := Control{
				Name: sel.AttrOr("name", ""),
				Id:   sel.AttrOr("id", ""),
				Kind: KindText,
			}
			ctrl.Label = htmlutil.LabelFor(doc, ctrl.Id)
			catalog.Controls = append(catalog.Controls, ctrl)
		})

	doc.Find("input[type=submit], input[type=button], input[type=image], button").
		Each(func(_ int, sel *goquery.Selection) {
			ctrl := Control{
				Name:  sel.AttrOr("name", ""),
				Id:    sel.AttrOr("id", ""),
				Kind:  KindAction,
				Value: sel.AttrOr("value", textutil.CollapseSpace(sel.Text())),
			}
			catalog.Controls = append(catalog.Controls, ctrl)
		})

	catalog.Postbacks = scanPostbacks(doc)

	missing := bindRoles(catalog, roles)
	for _, role := range missing {
		span.SetAttributes(attribute.String("missing_role", role.Name))
	}
	if len(missing) > 0 {
		span.SetStatus(codes.Error, "required roles unbound")
		names := make([]string, len(missing))
		for i, r := range missing {
			names[i] = r.Name
		}
		return catalog, fmt.Errorf(
			"%w: no control matches roles [%s]",
			ErrNoUsableControls, strings.Join(names, ", "),
		)
	}

	span.AddEvent("catalog", trace.WithAttributes(
		attribute.Int("controls", len(catalog.Controls)),
		attribute.Int("hidden_fields", len(catalog.Hidden)),
		attribute.Int("postbacks", len(catalog.Postbacks)),
	))
	return catalog, nil
}

// bindRoles fills catalog.ByRole, returning the required roles it
// could not bind.
func bindRoles(catalog *Catalog, roles []Role) []Role {
	claimed := map[int]bool{}
	var missing []Role

	// keyword pass first so positional fallback only sees leftovers
	for _, role := range roles {
		best := -1
		bestScore := 0
		for i, ctrl := range catalog.Controls {
			if ctrl.Kind != role.Kind || claimed[i] {
				continue
			}
			if role.Kind == KindSelect && role.Multiple && !ctrl.Multiple {
				continue
			}
			score := textutil.KeywordScore(ctrl.scoreText(), role.Keywords)
			if score > bestScore {
				best = i
				bestScore = score
			}
		}
		if best >= 0 {
			claimed[best] = true
			catalog.ByRole[role.Name] = catalog.Controls[best]
		}
	}

	for _, role := range roles {
		if _, ok := catalog.ByRole[role.Name]; ok {
			continue
		}
		if role.Kind == KindSelect {
			// positional fallback: first unclaimed select of the
			// right shape, in document order
			for i, ctrl := range catalog.Controls {
				if ctrl.Kind != KindSelect || claimed[i] {
					continue
				}
				if role.Multiple && !ctrl.Multiple {
					continue
				}
				claimed[i] = true
				catalog.ByRole[role.Name] = ctrl
				break
			}
		}
		if _, ok := catalog.ByRole[role.Name]; !ok && role.Required {
			missing = append(missing, role)
		}
	}
	return missing
}
