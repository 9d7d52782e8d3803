package htmlutil

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"
)

var tracer = otel.Tracer("leadscout.lib.htmlutil")

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"br": true, "dd": true, "div": true, "dl": true, "dt": true,
	"fieldset": true, "footer": true, "form": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "header": true,
	"hr": true, "label": true, "legend": true, "li": true, "main": true,
	"nav": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "td": true, "th": true, "tr": true, "ul": true,
}

// GetTextLines renders the node's text one entry per block element,
// approximating the line structure a browser shows. Blank lines are
// dropped, inner whitespace is collapsed. Pages that only communicate
// structure visually (label above value) parse from this.
func GetTextLines(node *html.Node) []string {
	var buffer bytes.Buffer
	getTextLinesRecursive(node, &buffer)

	var lines []string
	for _, line := range strings.Split(buffer.String(), "\n") {
		line = strings.TrimSpace(line)
		line = innerWhitespace.ReplaceAllString(line, " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func getTextLinesRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	if node.Type == html.ElementNode && (node.Data == "script" || node.Data == "style") {
		return
	}

	block := node.Type == html.ElementNode && blockTags[node.Data]
	if block {
		buffer.WriteString("\n")
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		getTextLinesRecursive(child, buffer)
	}
	if block {
		buffer.WriteString("\n")
	}
}

type Anchor struct {
	Name string
	Href string
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText is GetText plus the whitespace/printability cleanup
// applied to anchor names.
func CleanText(node *html.Node) string {
	name := GetText(node)
	name = removeNonPrintable(name)
	name = strings.Trim(name, " \t\n")
	name = innerWhitespace.ReplaceAllString(name, " ")
	return name
}

func GetAnchors(ctx context.Context, sel *goquery.Selection) []Anchor {
	ctx, span := tracer.Start(ctx, "GetAnchors")
	defer span.End()

	anchors := []Anchor{}
	for _, n := range sel.Nodes {
		href := ""
		for _, a := range n.Attr {
			if a.Key == "href" {
				href = a.Val
				break
			}
		}

		link, err := url.Parse(href)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "got error while parsing url")
			continue
		}

		name := CleanText(n)
		linkStr := link.String()
		anchors = append(anchors, Anchor{
			Name: name,
			Href: linkStr,
		})
		span.AddEvent("anchor", trace.WithAttributes(
			attribute.String("name", name),
			attribute.String("url", linkStr),
		))
	}

	return anchors
}

// LabelFor finds the text of a <label> element pointing at the given
// control id. Falls back to the empty string when the control is
// unlabeled, which is common on the portals we scrape.
func LabelFor(doc *goquery.Document, id string) string {
	if id == "" {
		return ""
	}
	text := ""
	doc.Find("label").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if sel.AttrOr("for", "") == id {
			text = strings.TrimSpace(sel.Text())
			return false
		}
		return true
	})
	return text
}
