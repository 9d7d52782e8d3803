// Package cslb pulls contractor license exports from the state
// licensing board's search portal. The portal is a stateful postback
// form with no API; everything request-level lives in formflow, this
// package only contributes the binding (which controls mean what) and
// the record mapping.
package cslb

import (
	"context"
	"fmt"

	"log/slog"

	"leadscout-backend/lib/formflow"
	"leadscout-backend/lib/tabular"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultConfig binds the board's advanced search form. The control
// names are deliberately absent: deployments rename them, the keyword
// tables survive that.
func DefaultConfig() formflow.Config {
	return formflow.Config{
		BaseUrl:  "https://www.cslb.ca.gov",
		FormPath: "/onlineservices/checklicenseII/advancedsearch.aspx",
		Roles: []formflow.Role{
			{
				Name:     formflow.RoleCounty,
				Keywords: []string{"county"},
				Kind:     formflow.KindSelect,
				Required: true,
			},
			{
				Name:     formflow.RoleClassification,
				Keywords: []string{"classification", "class"},
				Kind:     formflow.KindSelect,
				Multiple: true,
				Required: true,
			},
		},
		ApplyKeywords:  []string{"search"},
		ExportKeywords: []string{"export", "excel", "download"},
	}
}

// License is one row of the board's export, keyed by the column names
// observed across deployments.
type License struct {
	Number          string
	BusinessName    string
	County          string
	Classifications string
	City            string
	Status          string
	Phone           string
	ExpirationDate  string
}

type Scraper struct {
	engine *formflow.Engine
}

func NewScraper(cfg formflow.Config) *Scraper {
	return &Scraper{engine: formflow.NewEngine(cfg)}
}

// Licenses runs one acquisition for a county and classification set.
// The diagnostics come back even on success; a non-success terminal
// state is not an error, the caller decides what a maintenance window
// means for it.
func (s *Scraper) Licenses(
	ctx context.Context,
	county string,
	classifications []string,
) ([]License, formflow.Diagnostics, error) {
	ctx, span := tracer.Start(ctx, "Licenses")
	defer span.End()
	span.SetAttributes(
		attribute.String("county", county),
		attribute.StringSlice("classifications", classifications),
	)

	result, err := s.engine.Acquire(ctx, formflow.Criteria{
		County:          county,
		Classifications: classifications,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "acquisition failed")
		return nil, result.Diagnostics, fmt.Errorf("acquire licenses: %w", err)
	}
	if result.Diagnostics.TerminalState != formflow.TerminalSuccess {
		span.SetStatus(codes.Error, result.Diagnostics.TerminalState.String())
		return nil, result.Diagnostics, nil
	}

	licenses := mapLicenses(result.Records)
	slog.InfoContext(ctx, "mapped license export",
		"county", county,
		"rows", result.Records.Len(),
		"licenses", len(licenses),
	)
	return licenses, result.Diagnostics, nil
}

// mapLicenses reads the export rows through header candidates, the
// column names drift between deployments of the same portal.
func mapLicenses(rs tabular.RecordSet) []License {
	out := make([]License, 0, rs.Len())
	for i := 0; i < rs.Len(); i++ {
		lic := License{
			Number:          rs.Pick(i, "License Number", "License #", "LicNum", "Number"),
			BusinessName:    rs.Pick(i, "Business Name", "Name", "Business"),
			County:          rs.Pick(i, "County"),
			Classifications: rs.Pick(i, "Classification(s)", "Classifications", "Classification"),
			City:            rs.Pick(i, "City"),
			Status:          rs.Pick(i, "Status", "License Status"),
			Phone:           rs.Pick(i, "Phone", "Business Phone"),
			ExpirationDate:  rs.Pick(i, "Expiration Date", "Expires"),
		}
		if lic.Number == "" && lic.BusinessName == "" {
			continue
		}
		out = append(out, lic)
	}
	return out
}
