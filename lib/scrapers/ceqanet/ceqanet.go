// Package ceqanet pulls environmental-review filings from the state
// clearinghouse database. Its advanced search is the usual postback
// form; the csv export carries the project list and each filing also
// has a detail page with contacts worth a second fetch.
package ceqanet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"log/slog"

	"leadscout-backend/lib/formflow"
	"leadscout-backend/lib/tabular"
	"leadscout-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// RoleDocumentType selects the filing kind (NOP, NOE, ...) on the
// advanced search form.
const RoleDocumentType = "document-type"

func DefaultConfig() formflow.Config {
	return formflow.Config{
		BaseUrl:  "https://ceqanet.lci.ca.gov",
		FormPath: "/Search/Advanced",
		Roles: []formflow.Role{
			{
				Name:     RoleDocumentType,
				Keywords: []string{"document type", "doctype"},
				Kind:     formflow.KindSelect,
				Required: true,
			},
			{
				Name:     formflow.RoleDateStart,
				Keywords: []string{"start range", "start"},
				Kind:     formflow.KindText,
				Required: true,
			},
			{
				Name:     formflow.RoleDateEnd,
				Keywords: []string{"end range", "end"},
				Kind:     formflow.KindText,
				Required: true,
			},
		},
		ApplyKeywords:  []string{"get results", "results"},
		ExportKeywords: []string{"download csv", "csv"},
	}
}

// Project is one row of the clearinghouse export.
type Project struct {
	CeqaId          string
	SchNumber       string
	Title           string
	LeadAgency      string
	Received        string
	DocumentType    string
	County          string
	City            string
	DevelopmentType string
	Location        string
	// absolute detail page url, empty when the export row carries
	// nothing to derive it from
	DetailUrl string
	// populated by Enrich
	Detail *Detail
}

type Scraper struct {
	cfg  formflow.Config
	http *resty.Client
}

func NewScraper(cfg formflow.Config) *Scraper {
	client := cfg.HttpClient
	if client == nil {
		client = resty.New()
		client.SetTimeout(cfg.RequestTimeout)
		telemetry.InstrumentResty(client, "leadscout.lib.scrapers.ceqanet")
	}
	return &Scraper{cfg: cfg, http: client}
}

// Projects runs one acquisition per document type over the given date
// range (the portal renders dates dd.mm.yyyy) and combines the rows.
// A failed document type does not discard the others; the joined
// error reports what was skipped.
func (s *Scraper) Projects(
	ctx context.Context,
	docTypes []string,
	dates formflow.DateRange,
) ([]Project, error) {
	ctx, span := tracer.Start(ctx, "Projects")
	defer span.End()
	span.SetAttributes(
		attribute.StringSlice("document_types", docTypes),
		attribute.String("start", dates.Start),
		attribute.String("end", dates.End),
	)

	var projects []Project
	var errList []error
	for _, docType := range docTypes {
		result := formflow.NewOrchestrator(s.cfg).Run(ctx, map[string][]string{
			RoleDocumentType:       {docType},
			formflow.RoleDateStart: {dates.Start},
			formflow.RoleDateEnd:   {dates.End},
		})
		if result.Diagnostics.TerminalState != formflow.TerminalSuccess {
			err := fmt.Errorf("document type %q ended %s: %s",
				docType,
				result.Diagnostics.TerminalState,
				result.Diagnostics.Failure,
			)
			span.RecordError(err)
			errList = append(errList, err)
			continue
		}

		part := s.mapProjects(result.Records)
		slog.InfoContext(ctx, "downloaded clearinghouse rows",
			"document_type", docType,
			"rows", len(part),
		)
		projects = append(projects, part...)
	}

	if len(errList) > 0 {
		span.SetStatus(codes.Error, "some document types failed")
		return projects, errors.Join(errList...)
	}
	return projects, nil
}

func (s *Scraper) mapProjects(rs tabular.RecordSet) []Project {
	out := make([]Project, 0, rs.Len())
	for i := 0; i < rs.Len(); i++ {
		p := Project{
			SchNumber:       rs.Pick(i, "SCH Number", "SCH", "SCH#", "State Clearinghouse Number"),
			Title:           rs.Pick(i, "Title", "Project Title", "Project"),
			LeadAgency:      rs.Pick(i, "Lead/Public Agency", "Lead Agency", "Agency"),
			Received:        rs.Pick(i, "Received", "Received Date", "Date Received"),
			DocumentType:    rs.Pick(i, "Type", "Document Type", "Doc Type"),
			County:          rs.Pick(i, "County"),
			City:            rs.Pick(i, "City"),
			DevelopmentType: rs.Pick(i, "Development Type", "Dev Type", "Development"),
			Location:        rs.Pick(i, "Location", "Project Location", "Address"),
		}
		p.DetailUrl = s.detailUrl(rs, i)
		p.CeqaId = ceqaIdFromUrl(s.cfg.BaseUrl, p.DetailUrl)
		if p.SchNumber == "" && p.Title == "" && p.CeqaId == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// detailUrl derives a filing's detail page from whatever the export
// put in the row: a clearinghouse id (10 digits, leading "20") maps
// straight onto a path, some exports carry the url outright.
func (s *Scraper) detailUrl(rs tabular.RecordSet, i int) string {
	id := rs.Pick(i, "CEQA #", "CEQA Number", "CEQAnet ID", "Entry ID", "CEQA ID", "ID")
	id = strings.NewReplacer("-", "", " ", "").Replace(id)
	if isClearinghouseId(id) {
		return strings.TrimSuffix(s.cfg.BaseUrl, "/") + "/" + id
	}

	if link := rs.Pick(i, "URL", "Link", "Detail Link", "Record Link"); strings.HasPrefix(link, "http") {
		return link
	}
	return ""
}

func isClearinghouseId(id string) bool {
	if len(id) != 10 || !strings.HasPrefix(id, "20") {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func ceqaIdFromUrl(baseUrl, detailUrl string) string {
	base := strings.TrimSuffix(baseUrl, "/") + "/"
	if !strings.HasPrefix(detailUrl, base) {
		return ""
	}
	id := strings.Trim(strings.TrimPrefix(detailUrl, base), "/")
	if isClearinghouseId(id) {
		return id
	}
	return ""
}

// Enrich fetches detail pages for up to limit projects, attaching
// contacts and summary narrative. A failed detail page skips that
// project instead of aborting the batch, matching how much we trust
// these pages to stay parseable.
func (s *Scraper) Enrich(ctx context.Context, projects []Project, limit int) []Project {
	ctx, span := tracer.Start(ctx, "Enrich")
	defer span.End()

	fetched := 0
	for i := range projects {
		if fetched >= limit {
			break
		}
		if projects[i].DetailUrl == "" {
			continue
		}
		detail, err := s.FetchDetail(ctx, projects[i].DetailUrl)
		if err != nil {
			slog.WarnContext(ctx, "detail page failed",
				"url", projects[i].DetailUrl,
				"err", err,
			)
			continue
		}
		projects[i].Detail = detail
		fetched++
	}
	span.SetAttributes(attribute.Int("detail_pages", fetched))
	return projects
}
