package formflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"leadscout-backend/lib/tabular"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
)

// fetchWithBrowser drives a real browser through the same
// fill/apply/export sequence for pages whose postback wiring the http
// path cannot reproduce. Controls are still located by keyword, just
// from inside the page. The export is captured through the browser's
// download machinery and returned as raw bytes for the usual
// classification.
func fetchWithBrowser(ctx context.Context, cfg Config, assignments map[string][]string) (tabular.Raw, error) {
	ctx, span := tracer.Start(ctx, "fetchWithBrowser")
	defer span.End()

	dir := cfg.Browser.DownloadDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "leadscout-export-")
		if err != nil {
			return tabular.Raw{}, err
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)
	if cfg.Browser.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.Browser.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	downloaded := make(chan string, 1)
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		if e, ok := ev.(*cdpbrowser.EventDownloadProgress); ok &&
			e.State == cdpbrowser.DownloadProgressStateCompleted {
			select {
			case downloaded <- e.GUID:
			default:
			}
		}
	})

	formUrl := strings.TrimSuffix(cfg.BaseUrl, "/") + cfg.FormPath
	err := chromedp.Run(browserCtx,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(dir).
			WithEventsEnabled(true),
		chromedp.Navigate(formUrl),
		chromedp.WaitReady("body"),
	)
	if err != nil {
		return tabular.Raw{}, fmt.Errorf("navigate to form page: %w", err)
	}

	for _, role := range cfg.Roles {
		values, ok := assignments[role.Name]
		if !ok || len(values) == 0 {
			continue
		}
		if err := setFilterInPage(browserCtx, role, values); err != nil {
			return tabular.Raw{}, err
		}
	}

	// applying filters postbacks the page, give it a load cycle
	if err := clickByKeywords(browserCtx, cfg.ApplyKeywords); err != nil {
		return tabular.Raw{}, err
	}
	if err := chromedp.Run(browserCtx,
		chromedp.Sleep(time.Second*2),
		chromedp.WaitReady("body"),
	); err != nil {
		return tabular.Raw{}, fmt.Errorf("wait for results page: %w", err)
	}

	if err := clickByKeywords(browserCtx, cfg.ExportKeywords); err != nil {
		return tabular.Raw{}, err
	}

	var guid string
	select {
	case guid = <-downloaded:
	case <-time.After(cfg.RequestTimeout):
		return tabular.Raw{}, fmt.Errorf("export click produced no download within %s", cfg.RequestTimeout)
	case <-browserCtx.Done():
		return tabular.Raw{}, browserCtx.Err()
	}

	body, err := os.ReadFile(filepath.Join(dir, guid))
	if err != nil {
		return tabular.Raw{}, fmt.Errorf("read downloaded export: %w", err)
	}
	slog.DebugContext(ctx, "browser export captured", "bytes", len(body))

	// no headers travel with a browser download, the classifier gets
	// bytes only
	return tabular.Raw{Body: body}, nil
}

// setFilterScript locates the best keyword match among selects and
// text inputs and applies the wanted values, matching option text the
// same way the http planner does: exact first, substring second.
const setFilterScript = `(function(keywords, values) {
	const score = function(el) {
		let text = (el.name || "") + " " + (el.id || "");
		if (el.labels) {
			for (const l of el.labels) text += " " + l.textContent;
		}
		text = text.toLowerCase();
		let n = 0;
		for (const k of keywords) {
			if (text.includes(k.toLowerCase())) n++;
		}
		return n;
	};
	const pick = function(selector) {
		let best = null, bestScore = 0;
		for (const el of document.querySelectorAll(selector)) {
			const s = score(el);
			if (s > bestScore) { best = el; bestScore = s; }
		}
		return best;
	};

	const sel = pick("select");
	if (sel) {
		for (const opt of sel.options) opt.selected = false;
		for (const v of values) {
			const want = v.trim().toLowerCase();
			let match = null;
			for (const opt of sel.options) {
				const text = opt.textContent.trim().toLowerCase();
				if (text === want) { match = opt; break; }
				if (!match && text.includes(want)) match = opt;
			}
			if (!match) return false;
			match.selected = true;
		}
		sel.dispatchEvent(new Event("change", { bubbles: true }));
		return true;
	}

	const input = pick("input[type=text], input[type=date], textarea");
	if (input) {
		input.value = values[0];
		input.dispatchEvent(new Event("input", { bubbles: true }));
		input.dispatchEvent(new Event("change", { bubbles: true }));
		return true;
	}
	return false;
})(%s, %s)`

func setFilterInPage(ctx context.Context, role Role, values []string) error {
	keywordsJson, err := json.Marshal(role.Keywords)
	if err != nil {
		return err
	}
	valuesJson, err := json.Marshal(values)
	if err != nil {
		return err
	}

	var ok bool
	err = chromedp.Run(ctx, chromedp.Evaluate(
		fmt.Sprintf(setFilterScript, keywordsJson, valuesJson), &ok,
	))
	if err != nil {
		return fmt.Errorf("set filter %q: %w", role.Name, err)
	}
	if !ok {
		return fmt.Errorf("%w: role %q in browser page", ErrNoUsableControls, role.Name)
	}
	return nil
}

const clickScript = `(function(keywords) {
	let best = null, bestScore = 0;
	const candidates = document.querySelectorAll(
		"a, button, input[type=submit], input[type=button], input[type=image]");
	for (const el of candidates) {
		const text = ((el.textContent || "") + " " + (el.value || "") + " " +
			(el.id || "") + " " + (el.name || "") + " " +
			(el.title || "")).toLowerCase();
		let n = 0;
		for (const k of keywords) {
			if (text.includes(k.toLowerCase())) n++;
		}
		if (n > bestScore) { best = el; bestScore = n; }
	}
	if (!best) return false;
	best.click();
	return true;
})(%s)`

func clickByKeywords(ctx context.Context, keywords []string) error {
	keywordsJson, err := json.Marshal(keywords)
	if err != nil {
		return err
	}

	var ok bool
	err = chromedp.Run(ctx, chromedp.Evaluate(
		fmt.Sprintf(clickScript, keywordsJson), &ok,
	))
	if err != nil {
		return fmt.Errorf("click %v: %w", keywords, err)
	}
	if !ok {
		return fmt.Errorf("%w: nothing clickable matches %v", ErrNoPostbackTarget, keywords)
	}
	return nil
}
