package ceqanet

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"leadscout-backend/lib/htmlutil"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/html"
)

// Detail is the parsed form of a filing's detail page: a summary
// key/value section, a contact list and a location section. The page
// communicates structure purely visually (label line above value
// line), so parsing works on rendered text lines, not markup.
type Detail struct {
	Summary  map[string]string
	Contacts []Contact
	Location map[string]string
}

type Contact struct {
	Name         string
	AgencyName   string
	JobTitle     string
	ContactTypes string
	Address      string
	Phone        string
	Email        string
}

// the contact types that point at the private side of a filing
// rather than the reviewing agency
var preferredContactTypes = map[string]bool{
	"Project Applicant": true,
	"Consulting Firm":   true,
	"Applicant":         true,
	"Consultant":        true,
	"Developer":         true,
	"Owner":             true,
	"Engineer":          true,
	"Architect":         true,
	"Contractor":        true,
}

// PreferredContact picks the first contact whose type marks it as the
// applicant side, falling back to the first contact listed.
func PreferredContact(contacts []Contact) *Contact {
	if len(contacts) == 0 {
		return nil
	}
	for i := range contacts {
		if preferredContactTypes[strings.TrimSpace(contacts[i].ContactTypes)] {
			return &contacts[i]
		}
	}
	return &contacts[0]
}

var constructionKeywords = []string{
	"construction", "build", "building", "renov", "remodel", "tenant improvement",
	"addition", "expansion", "demolition", "grading", "excavation",
	"road", "highway", "bridge", "utility", "pipeline", "facility",
	"warehouse", "hotel", "apartment", "housing", "subdivision",
	"infrastructure", "industrial", "commercial", "residential",
	"repair", "rehab", "reparation", "restoration",
}

// ConstructionHint guesses whether a filing describes physical
// construction work, from its narrative fields.
func ConstructionHint(title, description, developmentType string) bool {
	blob := strings.ToLower(title + " " + description + " " + developmentType)
	for _, k := range constructionKeywords {
		if strings.Contains(blob, k) {
			return true
		}
	}
	return false
}

// Description joins the narrative summary fields in the order the
// detail page presents them.
func (d *Detail) Description() string {
	var parts []string
	for _, key := range []string{"present land use", "project description", "proposed project"} {
		if v := d.Summary[key]; v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " | ")
}

func (s *Scraper) FetchDetail(ctx context.Context, url string) (*Detail, error) {
	ctx, span := tracer.Start(ctx, "FetchDetail")
	defer span.End()

	res, err := s.http.R().SetContext(ctx).Get(url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch detail page")
		return nil, err
	}
	if res.StatusCode() != http.StatusOK {
		span.SetStatus(codes.Error, "unexpected status")
		return nil, fmt.Errorf("detail page %q answered %d", url, res.StatusCode())
	}

	root, err := html.Parse(bytes.NewReader(res.Body()))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("parse detail page: %w", err)
	}
	return parseDetail(htmlutil.GetTextLines(root)), nil
}

var summaryLabels = map[string]bool{
	"ceqanet id":               true,
	"lead agency":              true,
	"document title":           true,
	"document type":            true,
	"received":                 true,
	"present land use":         true,
	"proposed project":         true,
	"project description":      true,
	"state review period end":  true,
	"public review period end": true,
}

var contactLabels = map[string]bool{
	"name":          true,
	"agency name":   true,
	"job title":     true,
	"contact types": true,
	"address":       true,
	"phone":         true,
	"email":         true,
}

var locationLabels = map[string]bool{
	"cities": true, "counties": true, "regions": true,
	"cross streets": true, "zip": true, "total acres": true,
	"parcel(s)": true, "state highways": true,
	"township": true, "range": true, "section": true, "base": true,
}

// parseDetail splits the rendered page at its three section headings
// and scans each for known label lines, taking the following line as
// the value unless it is itself a label.
func parseDetail(lines []string) *Detail {
	out := &Detail{
		Summary:  map[string]string{},
		Location: map[string]string{},
	}

	summaryAt, contactsAt, locationAt := -1, -1, -1
	for i, line := range lines {
		switch strings.ToLower(line) {
		case "summary":
			if summaryAt < 0 {
				summaryAt = i
			}
		case "contact information":
			if contactsAt < 0 {
				contactsAt = i
			}
		case "location":
			if locationAt < 0 && contactsAt >= 0 {
				locationAt = i
			}
		}
	}

	if summaryAt >= 0 {
		end := len(lines)
		if contactsAt > summaryAt {
			end = contactsAt
		}
		scanLabels(lines[summaryAt:end], summaryLabels, out.Summary)
	}

	if contactsAt >= 0 {
		end := len(lines)
		if locationAt > contactsAt {
			end = locationAt
		}
		out.Contacts = parseContacts(lines[contactsAt:end])
	}

	if locationAt >= 0 {
		scanLabels(lines[locationAt:], locationLabels, out.Location)
	}
	return out
}

func scanLabels(lines []string, labels map[string]bool, into map[string]string) {
	for i := 0; i < len(lines); i++ {
		key := strings.ToLower(lines[i])
		if !labels[key] {
			continue
		}
		if i+1 < len(lines) && !labels[strings.ToLower(lines[i+1])] {
			into[key] = lines[i+1]
			i++
		}
	}
}

// parseContacts scans the contact section; a repeated Name label
// starts the next contact.
func parseContacts(lines []string) []Contact {
	var contacts []Contact
	current := map[string]string{}

	flush := func() {
		if len(current) == 0 {
			return
		}
		contacts = append(contacts, Contact{
			Name:         current["name"],
			AgencyName:   current["agency name"],
			JobTitle:     current["job title"],
			ContactTypes: current["contact types"],
			Address:      current["address"],
			Phone:        current["phone"],
			Email:        current["email"],
		})
		current = map[string]string{}
	}

	for i := 0; i < len(lines); i++ {
		key := strings.ToLower(lines[i])
		if !contactLabels[key] {
			continue
		}
		if key == "name" && current["name"] != "" {
			flush()
		}
		if i+1 < len(lines) && !contactLabels[strings.ToLower(lines[i+1])] {
			current[key] = lines[i+1]
			i++
		}
	}
	flush()
	return contacts
}
