package formflow

import (
	"fmt"
	"regexp"
	"strings"

	"leadscout-backend/lib/htmlutil"
	"leadscout-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
)

var postbackInvocationRegex = regexp.MustCompile(
	`(?:__doPostBack|WebForm_DoPostBackWithOptions|javascript:__doPostBack)\(\s*(?:new\s+WebForm_PostBackOptions\(\s*)?['"]([^'"]+)['"]\s*,\s*['"]([^'"]*)['"]`,
)

// Postback is one discovered script invocation of the portal's
// postback mechanism: posting the form with these target/argument
// values tells the server which logical control was "clicked".
type Postback struct {
	Target   string
	Argument string
	// markup surrounding the invocation, used for keyword scoring
	Context string
}

const postbackContextWindow = 160

// scanPostbacks walks the attributes and script bodies of the page
// for doPostBack-style invocations. The surrounding text is captured
// because the portals do not label their action controls
// semantically: "which postback is the export" is only answerable by
// the words near it.
func scanPostbacks(doc *goquery.Document) []Postback {
	var out []Postback
	seen := map[string]bool{}

	add := func(target, argument, context string) {
		key := target + "\x00" + argument
		if target == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, Postback{
			Target:   target,
			Argument: argument,
			Context:  textutil.CollapseSpace(context),
		})
	}

	// onclick/href attributes get the owning element's text as context
	doc.Find("a, input, button, img, span").Each(func(_ int, sel *goquery.Selection) {
		for _, attr := range []string{"href", "onclick"} {
			raw, ok := sel.Attr(attr)
			if !ok {
				continue
			}
			for _, m := range postbackInvocationRegex.FindAllStringSubmatch(raw, -1) {
				context := raw + " " + sel.AttrOr("id", "") + " " +
					sel.AttrOr("title", "") + " " + textutil.CollapseSpace(sel.Text())
				add(m[1], m[2], context)
			}
		}
	})

	// inline scripts get a fixed window of surrounding source
	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		if len(sel.Nodes) == 0 {
			return
		}
		text := htmlutil.GetText(sel.Nodes[0])
		for _, loc := range postbackInvocationRegex.FindAllStringSubmatchIndex(text, -1) {
			m := postbackInvocationRegex.FindStringSubmatch(text[loc[0]:loc[1]])
			start := loc[0] - postbackContextWindow
			if start < 0 {
				start = 0
			}
			end := loc[1] + postbackContextWindow
			if end > len(text) {
				end = len(text)
			}
			add(m[1], m[2], text[start:end])
		}
	})

	return out
}

// ResolvePostback picks the discovered postback whose target,
// argument and surrounding markup score highest against the keyword
// set for the desired transition. Ties break by keyword density in
// the context, then by discovery order. A zero top score fails
// explicitly unless allowFirst is set.
func (c *Catalog) ResolvePostback(keywords []string, allowFirst bool) (Postback, error) {
	if len(c.Postbacks) == 0 {
		return Postback{}, fmt.Errorf(
			"%w: page contains no postback invocations", ErrNoPostbackTarget,
		)
	}

	best := -1
	bestScore := 0
	bestDensity := 0
	for i, pb := range c.Postbacks {
		score := textutil.KeywordScore(pb.Target+" "+pb.Argument+" "+pb.Context, keywords)
		density := keywordDensity(pb.Context, keywords)
		if score > bestScore || (score == bestScore && score > 0 && density > bestDensity) {
			best = i
			bestScore = score
			bestDensity = density
		}
	}

	if bestScore == 0 {
		if allowFirst {
			return c.Postbacks[0], nil
		}
		return Postback{}, fmt.Errorf(
			"%w: %d candidates, none match %v",
			ErrNoPostbackTarget, len(c.Postbacks), keywords,
		)
	}
	return c.Postbacks[best], nil
}

// keywordDensity counts every keyword occurrence, unlike
// textutil.KeywordScore which counts each keyword once.
func keywordDensity(text string, keywords []string) int {
	text = strings.ToLower(text)
	n := 0
	for _, k := range keywords {
		n += strings.Count(text, strings.ToLower(k))
	}
	return n
}
