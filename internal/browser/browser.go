package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

var (
	// ErrConnectivity means the automation driver or the browser could not be
	// reached. The orchestrator retries it within a bounded budget.
	ErrConnectivity = errors.New("browser driver unreachable")
	// ErrElementMissing means an expected element is absent from the page.
	ErrElementMissing = errors.New("element not found")
)

// ClickResult is the outcome of one click attempt on a modal control.
type ClickResult int

const (
	ClickUnexpected ClickResult = iota
	Clicked
	ClickModalClosed
)

func (r ClickResult) String() string {
	switch r {
	case Clicked:
		return "clicked"
	case ClickModalClosed:
		return "modal_closed"
	default:
		return "unexpected"
	}
}

// ProductCard is the raw text of one product tile.
type ProductCard struct {
	Name      string
	PriceText string
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	ClickTimeout   time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		ClickTimeout:   5 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		TimezoneID:     "Asia/Manila",
		Locale:         "en-PH",
	}
}

// Session owns one Playwright browser with a single page. It is not safe for
// concurrent use.
type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	opts    *Options
	logger  *slog.Logger
	closed  bool
}

// Launch starts Playwright and Chromium and opens the working page.
func Launch(ctx context.Context, opts *Options, logger *slog.Logger) (*Session, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to start playwright: %v", ErrConnectivity, err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
		},
	}
	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: opts.ProxyServer}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("%w: failed to launch browser: %v", ErrConnectivity, err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(opts.UserAgent),
		Locale:            playwright.String(opts.Locale),
		TimezoneId:        playwright.String(opts.TimezoneID),
		JavaScriptEnabled: playwright.Bool(true),
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("%w: failed to create browser context: %v", ErrConnectivity, err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("%w: failed to create page: %v", ErrConnectivity, err)
	}
	page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))

	return &Session{
		pw:      pw,
		browser: browser,
		context: bctx,
		page:    page,
		opts:    opts,
		logger:  logger.With("component", "browser"),
	}, nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(s.opts.Timeout.Milliseconds())),
	})
	if err != nil {
		return classify(fmt.Errorf("failed to navigate to %s: %w", url, err))
	}
	return nil
}

// Text returns the rendered text of the first element matching selector.
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	loc := s.page.Locator(selector).First()
	count, err := loc.Count()
	if err != nil {
		return "", classify(fmt.Errorf("failed to query %s: %w", selector, err))
	}
	if count == 0 {
		return "", fmt.Errorf("%w: %s", ErrElementMissing, selector)
	}

	text, err := loc.InnerText()
	if err != nil {
		return "", classify(fmt.Errorf("failed to read text of %s: %w", selector, err))
	}
	return strings.TrimSpace(text), nil
}

// Click tries to click the control once. A control that is gone or hidden
// reports ClickModalClosed; only ClickUnexpected comes with an error.
func (s *Session) Click(ctx context.Context, selector string) (ClickResult, error) {
	if err := ctx.Err(); err != nil {
		return ClickUnexpected, err
	}

	loc := s.page.Locator(selector).First()
	if interactable, err := s.interactable(loc); err != nil {
		return ClickUnexpected, classify(err)
	} else if !interactable {
		return ClickModalClosed, nil
	}

	err := loc.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(float64(s.opts.ClickTimeout.Milliseconds())),
	})
	if err == nil {
		return Clicked, nil
	}

	// The modal may have closed between the visibility check and the click.
	if interactable, verr := s.interactable(loc); verr == nil && !interactable {
		return ClickModalClosed, nil
	}
	return ClickUnexpected, classify(fmt.Errorf("failed to click %s: %w", selector, err))
}

func (s *Session) interactable(loc playwright.Locator) (bool, error) {
	count, err := loc.Count()
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, nil
	}
	return loc.IsVisible()
}

// Press sends a key gesture to the first element matching selector.
func (s *Session) Press(ctx context.Context, selector, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.page.Locator(selector).First().Press(key); err != nil {
		return classify(fmt.Errorf("failed to press %s on %s: %w", key, selector, err))
	}
	return nil
}

func (s *Session) ScrollToBottom(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := s.page.Evaluate(`window.scrollTo(0, document.body.scrollHeight);`); err != nil {
		return classify(fmt.Errorf("failed to scroll: %w", err))
	}
	return nil
}

// Cards reads the name and price text of every element matching container.
func (s *Session) Cards(ctx context.Context, container, nameSelector, priceSelector string) ([]ProductCard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	elements, err := s.page.Locator(container).All()
	if err != nil {
		return nil, classify(fmt.Errorf("failed to query %s: %w", container, err))
	}

	cards := make([]ProductCard, 0, len(elements))
	for i, el := range elements {
		name, err := el.Locator(nameSelector).First().InnerText()
		if err != nil {
			return nil, classify(fmt.Errorf("%w: %s in card %d: %v", ErrElementMissing, nameSelector, i, err))
		}
		price, err := el.Locator(priceSelector).First().InnerText()
		if err != nil {
			return nil, classify(fmt.Errorf("%w: %s in card %d: %v", ErrElementMissing, priceSelector, i, err))
		}
		cards = append(cards, ProductCard{
			Name:      strings.TrimSpace(name),
			PriceText: price,
		})
	}

	s.logger.Debug("read product cards", "selector", container, "count", len(cards))
	return cards, nil
}

// Close releases page, context, browser and Playwright. Calling it twice is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error

	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}

	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

var connectivityMarkers = []string{
	"net::err_",
	"connection refused",
	"connection reset",
	"target closed",
	"target page, context or browser has been closed",
	"browser has been closed",
	"websocket",
	"broken pipe",
	"unexpected eof",
}

// classify tags transport-level driver failures with ErrConnectivity.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrConnectivity) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range connectivityMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %w", ErrConnectivity, err)
		}
	}
	return err
}
