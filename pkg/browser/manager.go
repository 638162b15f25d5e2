package browser

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/entrhq/browseragent/pkg/config"
	"github.com/entrhq/browseragent/pkg/logging"
)

// ErrInitialization wraps failures to start a browser session.
var ErrInitialization = errors.New("browser session initialization failed")

//go:embed init.js
var defaultInitScript string

var browserLog = logging.MustLogger("browser")

var containerArgs = []string{
	"--no-sandbox",
	"--disable-dev-shm-usage",
	"--disable-gpu",
	"--disable-software-rasterizer",
	"--disable-background-timer-throttling",
	"--disable-backgrounding-occluded-windows",
	"--disable-renderer-backgrounding",
}

var browserBinaries = []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable"}

// Provisioner allocates virtual displays.
type Provisioner interface {
	Provision(ctx context.Context) (*Display, error)
	Release(d *Display)
}

// Manager starts, resets and releases the sessions of actor States.
type Manager struct {
	launcher   Launcher
	displays   Provisioner
	settings   config.BrowserSettings
	strategies []EndpointStrategy
	probe      Probe
	lookPath   func(string) (string, error)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithProvisioner sets the display provisioner.
func WithProvisioner(p Provisioner) ManagerOption {
	return func(m *Manager) { m.displays = p }
}

// WithStrategies sets the endpoint recovery strategies.
func WithStrategies(s ...EndpointStrategy) ManagerOption {
	return func(m *Manager) { m.strategies = s }
}

// WithProbe sets the environment probe used for new states.
func WithProbe(p Probe) ManagerOption {
	return func(m *Manager) { m.probe = p }
}

// WithLookPath replaces exec.LookPath for binary resolution.
func WithLookPath(fn func(string) (string, error)) ManagerOption {
	return func(m *Manager) { m.lookPath = fn }
}

// NewManager creates a session manager.
func NewManager(launcher Launcher, settings config.BrowserSettings, opts ...ManagerOption) *Manager {
	m := &Manager{
		launcher:   launcher,
		settings:   settings,
		strategies: DefaultStrategies(),
		probe:      DefaultProbe(),
		lookPath:   exec.LookPath,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.displays == nil {
		m.displays = NewDisplayProvisioner(ExecRunner{}, settings.DisplaySettle)
	}
	return m
}

// NewState creates the state of an actor, probing the environment once.
func (m *Manager) NewState(actorID string) *State {
	return NewState(actorID, m.probe.Detect())
}

// EnsureSession starts the session of state unless one is already live.
func (m *Manager) EnsureSession(ctx context.Context, state *State) error {
	state.sessionMu.Lock()
	defer state.sessionMu.Unlock()

	if state.Session() != nil {
		return nil
	}

	display := state.currentDisplay()
	if state.IsContainerized() && display == nil {
		d, err := m.displays.Provision(ctx)
		if err != nil {
			browserLog.Warnf("Virtual display unavailable, running headless: %v", err)
		} else {
			state.setDisplay(d)
			display = d
		}
	}

	opts, err := m.launchOptions(state, display)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	browserLog.Infof("Launching browser for actor %s (headless=%v, profile=%s)", state.ActorID(), opts.Headless, opts.ProfileDir)
	sess, err := m.launcher.Launch(ctx, opts)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	endpoint, err := RecoverEndpoint(ctx, m.strategies, sess)
	if err != nil {
		browserLog.Warnf("CDP endpoint not available, manual control disabled: %v", err)
		endpoint = ""
	} else if m.settings.VerifyEndpoint {
		if verr := VerifyEndpoint(ctx, endpoint); verr != nil {
			browserLog.Warnf("CDP endpoint failed verification, manual control disabled: %v", verr)
			endpoint = ""
		}
	}

	state.setSession(sess, endpoint)
	return nil
}

// ResetSession kills the live task, closes the session and clears the
// runner and generation. Safe without a session.
func (m *Manager) ResetSession(state *State) {
	if task := state.takeTask(); task != nil {
		task.Kill()
	}

	// waits for a launch in flight so its session is closed too
	state.sessionMu.Lock()
	defer state.sessionMu.Unlock()

	sess, task := state.detach()
	if task != nil {
		task.Kill()
	}
	if sess != nil {
		if err := sess.Close(); err != nil {
			browserLog.Errorf("Error closing browser session of actor %s: %v", state.ActorID(), err)
		}
	}
}

// Release resets the session and stops the virtual display. Owners call it
// when the actor context ends.
func (m *Manager) Release(state *State) {
	m.ResetSession(state)
	if d := state.takeDisplay(); d != nil {
		m.displays.Release(d)
	}
}

func (m *Manager) launchOptions(state *State, display *Display) (LaunchOptions, error) {
	profiles, err := m.profilesDir()
	if err != nil {
		return LaunchOptions{}, err
	}
	downloads, err := filepath.Abs(m.settings.DownloadsDir)
	if err != nil {
		return LaunchOptions{}, fmt.Errorf("invalid downloads dir: %w", err)
	}
	script, err := m.initScript()
	if err != nil {
		return LaunchOptions{}, err
	}

	opts := LaunchOptions{
		ExecutablePath: m.resolveBinary(),
		ProfileDir:     filepath.Join(profiles, "agent_"+state.ActorID()),
		DownloadsDir:   downloads,
		Headless:       true,
		DebugPort:      m.settings.DebugPort,
		InitScript:     script,
		Width:          ViewportWidth,
		Height:         ViewportHeight,
		Args:           []string{"--remote-debugging-port=" + strconv.Itoa(m.settings.DebugPort)},
	}

	if state.IsContainerized() {
		opts.Args = append(opts.Args, containerArgs...)
		if display != nil {
			opts.Headless = false
			opts.Args = append(opts.Args, "--start-maximized")
			opts.Env = map[string]string{"DISPLAY": display.ID}
		}
	} else {
		opts.Args = append(opts.Args, "--headless=new")
	}
	return opts, nil
}

func (m *Manager) profilesDir() (string, error) {
	if m.settings.ProfilesDir != "" {
		return m.settings.ProfilesDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve profiles dir: %w", err)
	}
	return filepath.Join(home, ".config", "browseragent", "profiles"), nil
}

// resolveBinary prefers the configured binary, then a system chromium.
// Empty means the playwright-managed browser.
func (m *Manager) resolveBinary() string {
	if m.settings.ExecutablePath != "" {
		return m.settings.ExecutablePath
	}
	for _, name := range browserBinaries {
		if path, err := m.lookPath(name); err == nil {
			return path
		}
	}
	return ""
}

func (m *Manager) initScript() (string, error) {
	if m.settings.InitScript == "" {
		return defaultInitScript, nil
	}
	data, err := os.ReadFile(m.settings.InitScript)
	if err != nil {
		return "", fmt.Errorf("failed to read init script: %w", err)
	}
	return string(data), nil
}
