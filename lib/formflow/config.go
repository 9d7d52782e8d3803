package formflow

import (
	"time"

	"github.com/go-resty/resty/v2"
)

// Role describes a control the caller needs on the form page, located
// by keyword scoring rather than hardcoded selectors since the
// portals rename their controls between deployments.
type Role struct {
	Name     string
	Keywords []string
	Kind     ControlKind
	// multi-valued select (listbox)
	Multiple bool
	Required bool
}

type BrowserConfig struct {
	Enabled bool
	// directory exports get downloaded into, a temp dir when empty
	DownloadDir string
	// path to the chrome binary, resolved from PATH when empty
	ExecPath string
}

// Config carries everything portal-specific: the url, the role
// keyword tables and the textual markers the portal uses for
// maintenance pages and validation complaints. Keeping these as data
// means a new portal is a new config, not new scraping code.
type Config struct {
	BaseUrl string
	// path of the search form relative to BaseUrl
	FormPath string

	Roles []Role
	// keywords locating the control/postback that applies filters
	ApplyKeywords []string
	// keywords locating the control/postback that triggers the export
	ExportKeywords []string

	MaintenanceMarkers []string
	ValidationMarkers  []string

	// when set, a zero-score postback resolution falls back to the
	// first discovered target instead of failing.
	AllowFirstPostback bool

	RequestTimeout time.Duration
	// wall-clock limit for one whole acquisition
	Deadline time.Duration

	RateLimitRetries int
	RateLimitBackoff time.Duration

	Browser BrowserConfig

	// overrides the session http client, tests point this at an
	// httpmock transport
	HttpClient *resty.Client
}

var defaultMaintenanceMarkers = []string{
	"scheduled maintenance",
	"temporarily unavailable",
	"system is currently unavailable",
	"down for maintenance",
}

var defaultValidationMarkers = []string{
	"please select",
	"is required",
	"required field",
	"no criteria",
}

func (c Config) withDefaults() Config {
	if c.FormPath == "" {
		c.FormPath = "/"
	}
	if c.MaintenanceMarkers == nil {
		c.MaintenanceMarkers = defaultMaintenanceMarkers
	}
	if c.ValidationMarkers == nil {
		c.ValidationMarkers = defaultValidationMarkers
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = time.Second * 30
	}
	if c.Deadline <= 0 {
		c.Deadline = time.Minute * 5
	}
	if c.RateLimitRetries <= 0 {
		c.RateLimitRetries = 2
	}
	if c.RateLimitBackoff <= 0 {
		c.RateLimitBackoff = time.Second * 2
	}
	return c
}
