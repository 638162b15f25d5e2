// Package browser owns the browser session of each actor: environment
// detection, the virtual display, session launch and teardown, recovery of
// the remote-debugging endpoint and the manual-control handoff.
package browser

import (
	"context"

	"github.com/entrhq/browseragent/pkg/engine"
)

const (
	// ViewportWidth and ViewportHeight size both the viewport and the screen.
	ViewportWidth  = 1920
	ViewportHeight = 1080
)

// Session is a live browser instance.
type Session interface {
	engine.Browser

	// Screenshot writes a PNG of the visible viewport of the current page.
	Screenshot(path string) error

	// ReportedEndpoint is the debug websocket endpoint as known to the
	// launcher, or empty when the launcher does not expose it.
	ReportedEndpoint() string

	// ProfileDir is the user data directory of the session.
	ProfileDir() string

	// DebugPort is the requested remote-debugging port, 0 when chosen by the browser.
	DebugPort() int

	Close() error
}

// LaunchOptions describe how to start a session.
type LaunchOptions struct {
	ExecutablePath string
	ProfileDir     string
	DownloadsDir   string
	Headless       bool
	Args           []string
	Env            map[string]string
	DebugPort      int
	InitScript     string
	Width          int
	Height         int
}

// Launcher starts browser sessions.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Session, error)
}
