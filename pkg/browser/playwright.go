package browser

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/browseragent/pkg/engine"
	"github.com/playwright-community/playwright-go"
)

const (
	navigationTimeoutMs = 30000
	actionTimeoutMs     = 10000
	screenshotTimeoutMs = 3000
)

// PlaywrightLauncher launches persistent Chromium contexts through playwright.
// The driver is installed and started on first launch.
type PlaywrightLauncher struct {
	mu sync.Mutex
	pw *playwright.Playwright
}

// NewPlaywrightLauncher creates a launcher.
func NewPlaywrightLauncher() *PlaywrightLauncher {
	return &PlaywrightLauncher{}
}

func (l *PlaywrightLauncher) driver() (*playwright.Playwright, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pw != nil {
		return l.pw, nil
	}

	// keep driver output off the terminal
	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	l.pw = pw
	return pw, nil
}

// Launch starts a persistent context with the given options.
func (l *PlaywrightLauncher) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := l.driver()
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{opts.ProfileDir, opts.DownloadsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	launch := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:        playwright.Bool(opts.Headless),
		Args:            opts.Args,
		AcceptDownloads: playwright.Bool(true),
		BypassCSP:       playwright.Bool(true),
		ChromiumSandbox: playwright.Bool(false),
		Viewport:        &playwright.Size{Width: opts.Width, Height: opts.Height},
		Screen:          &playwright.Size{Width: opts.Width, Height: opts.Height},
	}
	if opts.ExecutablePath != "" {
		launch.ExecutablePath = playwright.String(opts.ExecutablePath)
	}
	if opts.DownloadsDir != "" {
		launch.DownloadsPath = playwright.String(opts.DownloadsDir)
	}
	if len(opts.Env) > 0 {
		env := make(map[string]string, len(opts.Env))
		for _, kv := range os.Environ() {
			if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
				env[k] = v
			}
		}
		for k, v := range opts.Env {
			env[k] = v
		}
		launch.Env = env
	}

	bctx, err := pw.Chromium.LaunchPersistentContext(opts.ProfileDir, launch)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	if opts.InitScript != "" {
		if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(opts.InitScript)}); err != nil {
			_ = bctx.Close()
			return nil, fmt.Errorf("failed to add init script: %w", err)
		}
	}

	return &playwrightSession{
		bctx:       bctx,
		profileDir: opts.ProfileDir,
		debugPort:  opts.DebugPort,
	}, nil
}

// Stop shuts the playwright driver down.
func (l *PlaywrightLauncher) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pw == nil {
		return nil
	}
	err := l.pw.Stop()
	l.pw = nil
	if err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}

// playwrightSession is a persistent browser context.
type playwrightSession struct {
	bctx       playwright.BrowserContext
	profileDir string
	debugPort  int

	closeOnce sync.Once
	closeErr  error
}

// CurrentPage returns the most recently opened live tab, opening one when
// every tab was closed.
func (s *playwrightSession) CurrentPage() (engine.Page, error) {
	pages := s.bctx.Pages()
	for i := len(pages) - 1; i >= 0; i-- {
		if !pages[i].IsClosed() {
			return &pageAdapter{page: pages[i]}, nil
		}
	}
	page, err := s.bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return &pageAdapter{page: page}, nil
}

func (s *playwrightSession) Screenshot(path string) error {
	pages := s.bctx.Pages()
	if len(pages) == 0 {
		return fmt.Errorf("no open page")
	}
	_, err := pages[len(pages)-1].Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(false),
		Timeout:  playwright.Float(screenshotTimeoutMs),
	})
	if err != nil {
		return fmt.Errorf("screenshot failed: %w", err)
	}
	return nil
}

// ReportedEndpoint is empty: persistent contexts do not expose the CDP endpoint.
func (s *playwrightSession) ReportedEndpoint() string { return "" }

func (s *playwrightSession) ProfileDir() string { return s.profileDir }

func (s *playwrightSession) DebugPort() int { return s.debugPort }

func (s *playwrightSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.bctx.Close()
	})
	return s.closeErr
}

// pageAdapter exposes a playwright page to the engine.
type pageAdapter struct {
	page playwright.Page
}

func (p *pageAdapter) URL() string { return p.page.URL() }

func (p *pageAdapter) Title() (string, error) { return p.page.Title() }

func (p *pageAdapter) Content() (string, error) { return p.page.Content() }

func (p *pageAdapter) Goto(url string) error {
	waitUntil := playwright.WaitUntilState("load")
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: &waitUntil,
		Timeout:   playwright.Float(navigationTimeoutMs),
	})
	return err
}

func (p *pageAdapter) Click(selector string) error {
	return p.page.Click(selector, playwright.PageClickOptions{Timeout: playwright.Float(actionTimeoutMs)})
}

func (p *pageAdapter) Fill(selector, value string) error {
	return p.page.Fill(selector, value, playwright.PageFillOptions{Timeout: playwright.Float(actionTimeoutMs)})
}

func (p *pageAdapter) GoBack() error {
	_, err := p.page.GoBack(playwright.PageGoBackOptions{Timeout: playwright.Float(navigationTimeoutMs)})
	return err
}

func (p *pageAdapter) WaitFor(selector string, timeout time.Duration) error {
	_, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	return err
}

func (p *pageAdapter) Screenshot() ([]byte, error) {
	return p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(false),
		Timeout:  playwright.Float(screenshotTimeoutMs),
	})
}
