// Package browser wraps a single go-rod controlled Chrome instance as the
// page-control surface the executor drives. It owns exactly one page at a
// time: the agent operates one tab per run, never a pool of tabs.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"pilot/internal/logging"
)

// Config holds browser launch and navigation configuration.
type Config struct {
	DebuggerURL         string   `yaml:"debugger_url"`
	Launch              []string `yaml:"launch"`
	Headless            bool     `yaml:"headless"`
	ViewportWidth       int      `yaml:"viewport_width"`
	ViewportHeight      int      `yaml:"viewport_height"`
	NavigationTimeoutMs int      `yaml:"navigation_timeout_ms"`
	UserAgent           string   `yaml:"user_agent"`
	DisableImages       bool     `yaml:"disable_images"`
	DisableJavaScript   bool     `yaml:"disable_javascript"`
}

// DefaultConfig returns defaults matching a typical desktop Chrome session.
func DefaultConfig() Config {
	return Config{
		Headless:            false,
		ViewportWidth:       1920,
		ViewportHeight:      1080,
		NavigationTimeoutMs: 30000,
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}

func (c Config) viewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1920
	}
	return c.ViewportWidth
}

func (c Config) viewportHeight() int {
	if c.ViewportHeight == 0 {
		return 1080
	}
	return c.ViewportHeight
}

// NavigationTimeout returns the configured navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// Session owns the launched browser and its single active page.
type Session struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	page    *rod.Page
	ctrlURL string
}

// NewSession creates an unstarted session. Call Start before use.
func NewSession(cfg Config) *Session {
	return &Session{cfg: cfg}
}

// Start launches (or connects to) Chrome and opens a blank page.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil {
		if _, err := s.browser.Version(); err == nil {
			return nil
		}
		_ = s.browser.Close()
		s.browser = nil
		s.page = nil
	}

	ctrlURL := s.cfg.DebuggerURL
	if ctrlURL == "" {
		l := launcher.New().Headless(s.cfg.Headless).
			Set(flags.Flag("disable-blink-features"), "AutomationControlled").
			Set(flags.Flag("disable-dev-shm-usage")).
			Set(flags.Flag("no-sandbox"))
		if len(s.cfg.Launch) > 0 {
			bin := s.cfg.Launch[0]
			l = l.Bin(bin)
			for _, raw := range s.cfg.Launch[1:] {
				name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
				if hasVal {
					l = l.Set(flags.Flag(name), val)
				} else {
					l = l.Set(flags.Flag(name))
				}
			}
		}
		url, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		ctrlURL = url
	}

	browser := rod.New().ControlURL(ctrlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return fmt.Errorf("open page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             s.cfg.viewportWidth(),
		Height:            s.cfg.viewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.BrowserWarn("failed to set viewport: %v", err)
	}

	if s.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.cfg.UserAgent}); err != nil {
			logging.BrowserWarn("failed to set user agent: %v", err)
		}
	}

	if s.cfg.DisableJavaScript {
		_ = proto.EmulationSetScriptExecutionDisabled{Value: true}.Call(page)
	}

	s.browser = browser
	s.page = page
	s.ctrlURL = ctrlURL
	logging.Browser("session started, control_url=%s headless=%v", ctrlURL, s.cfg.Headless)
	return nil
}

// Stop closes the page and the browser.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
	var err error
	if s.browser != nil {
		err = s.browser.Close()
		s.browser = nil
	}
	s.ctrlURL = ""
	return err
}

// ControlURL returns the DevTools websocket URL, empty if not started.
func (s *Session) ControlURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrlURL
}

// Page returns the active rod page. Returns nil if not started.
func (s *Session) Page() *rod.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// CurrentURL returns the page's current URL, or "" if not started.
func (s *Session) CurrentURL() string {
	page := s.Page()
	if page == nil {
		return ""
	}
	info, err := page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Navigate loads url in the active page and waits for DOM content to load.
func (s *Session) Navigate(ctx context.Context, url string) error {
	page := s.Page()
	if page == nil {
		return fmt.Errorf("browser not started")
	}
	if err := page.Context(ctx).Timeout(s.cfg.NavigationTimeout()).Navigate(url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	return page.Context(ctx).WaitDOMStable(500*time.Millisecond, 0)
}

// WaitForSelector waits for selector to be attached, with the given timeout.
func (s *Session) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (*rod.Element, error) {
	page := s.Page()
	if page == nil {
		return nil, fmt.Errorf("browser not started")
	}
	el, err := page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("element not found: %s: %w", selector, err)
	}
	return el, nil
}

// Click waits for selector, scrolls it into view, and clicks it.
func (s *Session) Click(ctx context.Context, selector string, timeout time.Duration) error {
	el, err := s.WaitForSelector(ctx, selector, timeout)
	if err != nil {
		return err
	}
	if err := el.ScrollIntoView(); err != nil {
		logging.BrowserWarn("scroll into view failed for %s: %v", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// Fill waits for selector and types text into it, optionally pressing Enter.
func (s *Session) Fill(ctx context.Context, selector, text string, timeout time.Duration, pressEnter bool) error {
	el, err := s.WaitForSelector(ctx, selector, timeout)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	if pressEnter {
		return el.Type('\n')
	}
	return nil
}

// Scroll scrolls the page vertically by amount pixels.
func (s *Session) Scroll(ctx context.Context, amount int) error {
	page := s.Page()
	if page == nil {
		return fmt.Errorf("browser not started")
	}
	_, err := page.Context(ctx).Eval(fmt.Sprintf("() => window.scrollBy(0, %d)", amount))
	return err
}

// Evaluate runs js in the page and returns the JSON-encoded result.
func (s *Session) Evaluate(ctx context.Context, js string) (json.RawMessage, error) {
	page := s.Page()
	if page == nil {
		return nil, fmt.Errorf("browser not started")
	}
	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, err
	}
	if res == nil || res.Value.Nil() {
		return json.RawMessage("null"), nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal eval result: %w", err)
	}
	return raw, nil
}

// Screenshot captures the page, full page if requested.
func (s *Session) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	page := s.Page()
	if page == nil {
		return nil, fmt.Errorf("browser not started")
	}
	return page.Context(ctx).Screenshot(fullPage, nil)
}

// WaitIdle waits for the page's network/DOM activity to settle for d,
// approximating the "networkidle" wait the auto_login action needs after
// submitting a login form.
func (s *Session) WaitIdle(ctx context.Context, d time.Duration) error {
	page := s.Page()
	if page == nil {
		return fmt.Errorf("browser not started")
	}
	return page.Context(ctx).WaitStable(d)
}

// BodyTextLength returns the length of document.body.innerText, used by the
// executor's soft-success check on wait timeouts.
func (s *Session) BodyTextLength(ctx context.Context) (int, error) {
	raw, err := s.Evaluate(ctx, "() => (document.body ? document.body.innerText.length : 0)")
	if err != nil {
		return 0, err
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	return n, nil
}
