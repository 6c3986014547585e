package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Browser owns the playwright runtime, the launched Chromium instance and a
// single browser context. All page work in a run goes through one Browser.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "id-ID,id;q=0.9,en;q=0.8",
		TimezoneID:     "Asia/Jakarta",
		Locale:         "id-ID",
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Encoding": "gzip, deflate, br",
			"DNT":             "1",
		},
	}
}

func New(opts *Options) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
			"--lang=" + opts.Locale,
			"--user-agent=" + opts.UserAgent,
		},
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: opts.ExtraHeaders,
	}

	browserContext, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: browserContext,
		opts:    opts,
		logger:  slog.Default().With("component", "browser"),
	}, nil
}

// NewSession opens a fresh page in the shared context. The whole run is
// expected to reuse one session sequentially.
func (b *Browser) NewSession() (*Session, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	return &Session{
		page:    page,
		timeout: b.opts.Timeout,
		logger:  slog.Default().With("component", "session"),
	}, nil
}

func (b *Browser) Context() playwright.BrowserContext {
	return b.context
}

// Close tears down the context, browser and playwright runtime. Safe to call
// more than once.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		var errs []error

		if b.context != nil {
			if err := b.context.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close context: %w", err))
			}
		}

		if b.browser != nil {
			if err := b.browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
			}
		}

		if b.pw != nil {
			if err := b.pw.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
			}
		}

		if len(errs) > 0 {
			b.closeErr = fmt.Errorf("errors during close: %v", errs)
		}
	})

	return b.closeErr
}

// Session drives one playwright page through the navigation, scrolling and
// clicking the collectors need. Extraction itself never happens here, the
// collectors read Snapshot output through the parser.
type Session struct {
	page    playwright.Page
	timeout time.Duration
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

const (
	variantHeaderSelector   = "p[data-testid^='pdpVariantTitle#']"
	variantChipSelector     = "div.css-hayuji"
	reviewPaginationNav     = "nav[aria-label='Navigasi laman'][data-unify='Pagination']"
	reviewNextButton        = "button[aria-label='Laman berikutnya']"
	verificationMarkerText  = "verifikasi"
	interstitialMarkerText  = "Akses dibatasi"
)

// Navigate loads url with retries and a quick challenge-page check.
func (s *Session) Navigate(ctx context.Context, url string) error {
	var lastErr error

	for attempt := 1; attempt <= 3; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 1 {
			s.logger.Info("retrying navigation", "attempt", attempt, "url", url)
			s.Humanize()
			time.Sleep(time.Duration(attempt) * time.Second)
		}

		_, err := s.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(s.timeout.Milliseconds())),
		})
		if err == nil {
			if err := s.checkBlocked(); err != nil {
				lastErr = err
				continue
			}
			return nil
		}

		lastErr = err
		s.logger.Error("navigation failed", "error", err, "attempt", attempt)
	}

	return fmt.Errorf("failed after 3 attempts: %w", lastErr)
}

func (s *Session) checkBlocked() error {
	title, err := s.page.Title()
	if err != nil {
		return fmt.Errorf("failed to get page title: %w", err)
	}

	lower := strings.ToLower(title)
	if strings.Contains(lower, verificationMarkerText) || strings.Contains(title, interstitialMarkerText) {
		return fmt.Errorf("challenge page detected: %q", title)
	}
	return nil
}

// Snapshot returns the full rendered HTML of the current page state.
func (s *Session) Snapshot() (string, error) {
	content, err := s.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return content, nil
}

// CurrentURL returns the page URL after any redirects.
func (s *Session) CurrentURL() string {
	return s.page.URL()
}

// TriggerIncrementalLoad scrolls the page in steps for roughly d so lazily
// rendered cards get attached before the snapshot is taken.
func (s *Session) TriggerIncrementalLoad(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		s.page.Evaluate(`window.scrollBy(0, window.innerHeight * 0.8)`)
		time.Sleep(350 * time.Millisecond)
	}
	s.page.Evaluate(`window.scrollTo(0, 0)`)
	time.Sleep(250 * time.Millisecond)
}

// WaitVisible blocks until selector is attached or timeout passes.
func (s *Session) WaitVisible(selector string, timeout time.Duration) error {
	_, err := s.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("selector %q not visible: %w", selector, err)
	}
	return nil
}

// SelectVariant clicks the chip with the given option text under the header
// of the given dimension, then lets the price block settle.
func (s *Session) SelectVariant(dimension, option string) error {
	headers, err := s.page.Locator(variantHeaderSelector).All()
	if err != nil {
		return fmt.Errorf("failed to list variant headers: %w", err)
	}

	want := "pilih " + strings.ToLower(dimension)
	for i, header := range headers {
		text, err := header.TextContent()
		if err != nil || !strings.Contains(strings.ToLower(text), want) {
			continue
		}

		// Chip containers follow the header list in the same order.
		container := s.page.Locator(variantChipSelector).Nth(i)
		buttons, err := container.Locator("button").All()
		if err != nil {
			return fmt.Errorf("failed to list variant chips: %w", err)
		}

		for _, btn := range buttons {
			label, err := btn.TextContent()
			if err != nil {
				continue
			}
			if firstLine(label) != option {
				continue
			}
			if err := btn.Click(); err != nil {
				return fmt.Errorf("failed to click %s=%s: %w", dimension, option, err)
			}
			time.Sleep(600 * time.Millisecond)
			return nil
		}

		return fmt.Errorf("option %q not found for dimension %q", option, dimension)
	}

	return fmt.Errorf("dimension %q not found on page", dimension)
}

// NextReviewPage clicks the review pagination next button. It returns false
// without error when the button is absent or disabled, which ends the loop.
func (s *Session) NextReviewPage() (bool, error) {
	nav := s.page.Locator(reviewPaginationNav).First()
	count, err := nav.Count()
	if err != nil || count == 0 {
		return false, nil
	}

	next := nav.Locator(reviewNextButton).First()
	count, err = next.Count()
	if err != nil || count == 0 {
		return false, nil
	}

	if disabled, _ := next.GetAttribute("disabled"); disabled != "" {
		return false, nil
	}
	if isDisabled, err := next.IsDisabled(); err == nil && isDisabled {
		return false, nil
	}

	if err := next.ScrollIntoViewIfNeeded(); err != nil {
		return false, fmt.Errorf("failed to reach review pagination: %w", err)
	}
	if err := next.Click(); err != nil {
		return false, fmt.Errorf("failed to click next review page: %w", err)
	}

	time.Sleep(1200 * time.Millisecond)
	return true, nil
}

// ClickIfPresent clicks the first match of selector when one exists. Used for
// optional expanders like the description "Lihat Selengkapnya" button.
func (s *Session) ClickIfPresent(selector string) (bool, error) {
	loc := s.page.Locator(selector).First()
	count, err := loc.Count()
	if err != nil || count == 0 {
		return false, nil
	}

	if err := loc.Click(); err != nil {
		return false, fmt.Errorf("failed to click %q: %w", selector, err)
	}
	time.Sleep(400 * time.Millisecond)
	return true, nil
}

// Humanize adds small mouse movements and a scroll before a page is retried,
// so repeated loads do not arrive back to back with zero activity between.
func (s *Session) Humanize() {
	for i := 0; i < 3; i++ {
		x := float64(100 + i*200)
		y := float64(100 + i*150)
		s.page.Mouse().Move(x, y)
		time.Sleep(time.Millisecond * time.Duration(200+i*100))
	}
	s.page.Evaluate(`window.scrollBy(0, Math.random() * 300)`)
}

// Close closes the underlying page. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if err := s.page.Close(); err != nil {
			s.closeErr = fmt.Errorf("failed to close page: %w", err)
		}
	})
	return s.closeErr
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	return text
}
