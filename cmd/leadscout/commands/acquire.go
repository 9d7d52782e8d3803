package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"log/slog"

	"leadscout-backend/lib/configutil"
	"leadscout-backend/lib/formflow"
	"leadscout-backend/lib/restyutil"
	"leadscout-backend/lib/scrapers/ceqanet"
	"leadscout-backend/lib/scrapers/cslb"
	"leadscout-backend/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// Config carries the operator-tunable parts of a portal binding,
// read from config.json5 when present.
type Config struct {
	MaintenanceMarkers []string `json:"maintenance_markers"`
	ValidationMarkers  []string `json:"validation_markers"`
	AllowFirstPostback bool     `json:"allow_first_postback"`
	BrowserExecPath    string   `json:"browser_exec_path"`
}

var (
	portal          *string
	county          *string
	classifications *[]string
	docTypes        *[]string
	startDate       *string
	endDate         *string
	asJson          *bool
	useBrowser      *bool
	enrichLimit     *int
	dumpHttp        *string
)

func init() {
	portal = acquireCmd.Flags().String("portal", "cslb", "Which portal to pull from: cslb or ceqanet.")
	county = acquireCmd.Flags().String("county", "", "County filter (cslb).")
	classifications = acquireCmd.Flags().StringSlice("classification", nil, "License classification filter, repeatable (cslb).")
	docTypes = acquireCmd.Flags().StringSlice("doc-type", []string{"NOP", "NOE"}, "Document type filter, repeatable (ceqanet).")
	startDate = acquireCmd.Flags().String("start", "", "Start of the date range, in the portal's own format (ceqanet).")
	endDate = acquireCmd.Flags().String("end", "", "End of the date range (ceqanet).")
	asJson = acquireCmd.Flags().Bool("json", false, "Emit records as JSON instead of a table.")
	useBrowser = acquireCmd.Flags().Bool("browser", false, "Allow escalating to a headless browser when plain HTTP fails.")
	enrichLimit = acquireCmd.Flags().Int("enrich", 0, "Fetch up to this many detail pages for contacts (ceqanet).")
	dumpHttp = acquireCmd.Flags().String("dump-http", "", "Directory to dump full request/response pairs into, for debugging a portal.")
	rootCmd.AddCommand(acquireCmd)
}

var acquireCmd = &cobra.Command{
	Use:   "acquire --portal <cslb|ceqanet> [filters]",
	Short: "Runs one acquisition against a portal and prints the records.",
	Run: func(cmd *cobra.Command, args []string) {
		if *dumpHttp != "" {
			formflow.SetRestyInstrumentOutput(restyutil.NewFilesystemOutput(*dumpHttp))
		}

		switch *portal {
		case "cslb":
			runCslb(cmd)
		case "ceqanet":
			runCeqanet(cmd)
		default:
			serviceutil.Fatal("unknown portal", fmt.Errorf("%q is not cslb or ceqanet", *portal))
		}
	},
}

// applyOverrides layers the optional config.json5 over a portal's
// built-in binding.
func applyOverrides(cfg formflow.Config) formflow.Config {
	if _, err := os.Stat("config.json5"); err != nil {
		return cfg
	}
	overrides, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}

	if len(overrides.MaintenanceMarkers) > 0 {
		cfg.MaintenanceMarkers = overrides.MaintenanceMarkers
	}
	if len(overrides.ValidationMarkers) > 0 {
		cfg.ValidationMarkers = overrides.ValidationMarkers
	}
	cfg.AllowFirstPostback = overrides.AllowFirstPostback
	cfg.Browser.ExecPath = overrides.BrowserExecPath
	return cfg
}

func runCslb(cmd *cobra.Command) {
	cfg := applyOverrides(cslb.DefaultConfig())
	cfg.Browser.Enabled = *useBrowser

	licenses, diag, err := cslb.NewScraper(cfg).Licenses(
		cmd.Context(), *county, *classifications)
	if err != nil {
		serviceutil.Fatal("acquisition failed", err)
	}
	if diag.TerminalState != formflow.TerminalSuccess {
		reportFailure(diag)
		return
	}
	slog.Info("acquisition succeeded",
		"records", len(licenses),
		"attempts", diag.AttemptedStrategies,
	)

	if *asJson {
		printJson(licenses)
		return
	}
	t := newTable()
	t.AppendHeader(table.Row{"License #", "Business", "Classifications", "City", "County", "Status"})
	for _, lic := range licenses {
		t.AppendRow(table.Row{
			lic.Number, lic.BusinessName, lic.Classifications,
			lic.City, lic.County, lic.Status,
		})
	}
	t.Render()
}

func runCeqanet(cmd *cobra.Command) {
	cfg := applyOverrides(ceqanet.DefaultConfig())
	cfg.Browser.Enabled = *useBrowser

	scraper := ceqanet.NewScraper(cfg)
	projects, err := scraper.Projects(cmd.Context(), *docTypes, formflow.DateRange{
		Start: *startDate,
		End:   *endDate,
	})
	if err != nil && len(projects) == 0 {
		serviceutil.Fatal("acquisition failed", err)
	}
	if err != nil {
		slog.Warn("some document types failed", "err", err)
	}
	if *enrichLimit > 0 {
		projects = scraper.Enrich(cmd.Context(), projects, *enrichLimit)
	}

	if *asJson {
		printJson(projects)
		return
	}
	t := newTable()
	t.AppendHeader(table.Row{"SCH #", "Title", "Type", "County", "Received", "Contact"})
	for _, p := range projects {
		contact := ""
		if p.Detail != nil {
			if c := ceqanet.PreferredContact(p.Detail.Contacts); c != nil {
				contact = c.Name
			}
		}
		t.AppendRow(table.Row{
			p.SchNumber, p.Title, p.DocumentType, p.County, p.Received, contact,
		})
	}
	t.Render()
}

func reportFailure(diag formflow.Diagnostics) {
	slog.Error("acquisition ended without records",
		"terminal_state", diag.TerminalState.String(),
		"last_state", diag.LastState.String(),
		"attempts", diag.AttemptedStrategies,
		"failure", diag.Failure,
	)
	if diag.ResponseSnippet != "" {
		fmt.Fprintln(os.Stderr, diag.ResponseSnippet)
	}
	os.Exit(1)
}

func printJson(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		serviceutil.Fatal("failed to encode records", err)
	}
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
