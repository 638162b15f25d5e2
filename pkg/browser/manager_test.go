package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/entrhq/browseragent/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEndpoint = "ws://127.0.0.1:9222/devtools/browser/test"

func testSettings(t *testing.T) config.BrowserSettings {
	t.Helper()
	s := config.DefaultBrowserSettings()
	s.ProfilesDir = t.TempDir()
	s.DownloadsDir = t.TempDir()
	s.DebugPort = 9222
	s.ExecutablePath = "/usr/bin/chromium"
	return s
}

func newTestManager(t *testing.T, launcher *fakeLauncher, displays *fakeProvisioner) *Manager {
	t.Helper()
	return NewManager(launcher, testSettings(t),
		WithProvisioner(displays),
		WithStrategies(SessionReported{}),
		WithLookPath(func(string) (string, error) { return "", errors.New("not found") }),
	)
}

func TestManager_EnsureSessionIsIdempotent(t *testing.T) {
	launcher := &fakeLauncher{endpoint: testEndpoint}
	displays := &fakeProvisioner{}
	m := newTestManager(t, launcher, displays)
	state := NewState("a1", true)

	require.NoError(t, m.EnsureSession(context.Background(), state))
	first := state.Session()
	port := state.DisplayPort()

	require.NoError(t, m.EnsureSession(context.Background(), state))
	assert.Same(t, first, state.Session())
	assert.Equal(t, 1, launcher.count())
	assert.Equal(t, 1, displays.provided)
	assert.Equal(t, port, state.DisplayPort())
	assert.Equal(t, testEndpoint, state.DebugEndpoint())
}

func TestManager_ContainerizedWithDisplay(t *testing.T) {
	launcher := &fakeLauncher{endpoint: testEndpoint}
	m := newTestManager(t, launcher, &fakeProvisioner{nextPort: 5904})
	state := NewState("a1", true)

	require.NoError(t, m.EnsureSession(context.Background(), state))
	require.Len(t, launcher.launches, 1)
	opts := launcher.launches[0]

	assert.False(t, opts.Headless)
	assert.Contains(t, opts.Args, "--start-maximized")
	assert.Contains(t, opts.Args, "--no-sandbox")
	assert.Contains(t, opts.Args, "--remote-debugging-port=9222")
	assert.NotContains(t, opts.Args, "--headless=new")
	assert.Equal(t, map[string]string{"DISPLAY": ":4"}, opts.Env)
	assert.Equal(t, 5904, state.DisplayPort())
	assert.Equal(t, "vnc://localhost:5904", state.ViewingURL())
}

func TestManager_ContainerizedWithoutDisplay(t *testing.T) {
	launcher := &fakeLauncher{endpoint: testEndpoint}
	m := newTestManager(t, launcher, &fakeProvisioner{err: ErrNoFreeDisplay})
	state := NewState("a1", true)

	require.NoError(t, m.EnsureSession(context.Background(), state))
	opts := launcher.launches[0]
	assert.True(t, opts.Headless)
	assert.Contains(t, opts.Args, "--no-sandbox")
	assert.NotContains(t, opts.Args, "--start-maximized")
	assert.Nil(t, opts.Env)
	assert.Zero(t, state.DisplayPort())
	assert.Empty(t, state.ViewingURL())
}

func TestManager_LocalLaunchOptions(t *testing.T) {
	launcher := &fakeLauncher{endpoint: testEndpoint}
	displays := &fakeProvisioner{}
	m := newTestManager(t, launcher, displays)
	state := NewState("actor-7", false)

	require.NoError(t, m.EnsureSession(context.Background(), state))
	opts := launcher.launches[0]

	assert.True(t, opts.Headless)
	assert.Contains(t, opts.Args, "--headless=new")
	assert.NotContains(t, opts.Args, "--no-sandbox")
	assert.Equal(t, 0, displays.provided)
	assert.Equal(t, "/usr/bin/chromium", opts.ExecutablePath)
	assert.Equal(t, "agent_actor-7", filepath.Base(opts.ProfileDir))
	assert.True(t, filepath.IsAbs(opts.DownloadsDir))
	assert.Equal(t, ViewportWidth, opts.Width)
	assert.Equal(t, ViewportHeight, opts.Height)
	assert.Contains(t, opts.InitScript, "webdriver")
}

func TestManager_ResolveBinary(t *testing.T) {
	settings := testSettings(t)
	settings.ExecutablePath = ""

	found := NewManager(&fakeLauncher{}, settings, WithLookPath(func(name string) (string, error) {
		if name == "google-chrome" {
			return "/opt/google/chrome", nil
		}
		return "", errors.New("not found")
	}))
	assert.Equal(t, "/opt/google/chrome", found.resolveBinary())

	missing := NewManager(&fakeLauncher{}, settings, WithLookPath(func(string) (string, error) {
		return "", errors.New("not found")
	}))
	assert.Empty(t, missing.resolveBinary())
}

func TestManager_CustomInitScript(t *testing.T) {
	script := filepath.Join(t.TempDir(), "init.js")
	require.NoError(t, os.WriteFile(script, []byte("window.custom = true;"), 0o600))

	settings := testSettings(t)
	settings.InitScript = script
	launcher := &fakeLauncher{}
	m := NewManager(launcher, settings, WithProvisioner(&fakeProvisioner{}), WithStrategies(SessionReported{}))

	require.NoError(t, m.EnsureSession(context.Background(), NewState("a", false)))
	assert.Equal(t, "window.custom = true;", launcher.launches[0].InitScript)

	settings.InitScript = filepath.Join(t.TempDir(), "missing.js")
	broken := NewManager(&fakeLauncher{}, settings, WithProvisioner(&fakeProvisioner{}))
	err := broken.EnsureSession(context.Background(), NewState("b", false))
	assert.ErrorIs(t, err, ErrInitialization)
}

func TestManager_LaunchFailure(t *testing.T) {
	launcher := &fakeLauncher{err: errors.New("chromium crashed")}
	m := newTestManager(t, launcher, &fakeProvisioner{})
	state := NewState("a1", false)

	err := m.EnsureSession(context.Background(), state)
	require.ErrorIs(t, err, ErrInitialization)
	assert.Contains(t, err.Error(), "chromium crashed")
	assert.Nil(t, state.Session())
}

func TestManager_EndpointFailureIsNotFatal(t *testing.T) {
	launcher := &fakeLauncher{}
	m := newTestManager(t, launcher, &fakeProvisioner{})
	state := NewState("a1", false)

	require.NoError(t, m.EnsureSession(context.Background(), state))
	assert.NotNil(t, state.Session())
	assert.Empty(t, state.DebugEndpoint())
}

func TestManager_VerifyEndpointFailureDisablesControl(t *testing.T) {
	settings := testSettings(t)
	settings.VerifyEndpoint = true
	launcher := &fakeLauncher{endpoint: "ws://127.0.0.1:1/devtools/browser/gone"}
	m := NewManager(launcher, settings, WithProvisioner(&fakeProvisioner{}), WithStrategies(SessionReported{}))
	state := NewState("a1", false)

	require.NoError(t, m.EnsureSession(context.Background(), state))
	assert.NotNil(t, state.Session())
	assert.Empty(t, state.DebugEndpoint())
}

func TestManager_ResetSession(t *testing.T) {
	launcher := &fakeLauncher{endpoint: testEndpoint}
	m := newTestManager(t, launcher, &fakeProvisioner{})
	state := NewState("a1", false)
	require.NoError(t, m.EnsureSession(context.Background(), state))

	task := &fakeTask{}
	assert.Nil(t, state.BindTask(task, 3))
	assert.Equal(t, uint64(3), state.Generation())

	m.ResetSession(state)
	assert.Equal(t, int32(1), task.killed.Load())
	assert.Equal(t, int32(1), launcher.sessions[0].closed.Load())
	assert.Nil(t, state.Session())
	assert.Nil(t, state.Task())
	assert.Nil(t, state.Runner())
	assert.Zero(t, state.Generation())
	assert.Empty(t, state.DebugEndpoint())

	// next use launches a fresh session
	require.NoError(t, m.EnsureSession(context.Background(), state))
	assert.Equal(t, 2, launcher.count())
	assert.NotSame(t, launcher.sessions[0], state.Session())
}

func TestManager_ResetWithoutSession(t *testing.T) {
	m := newTestManager(t, &fakeLauncher{}, &fakeProvisioner{})
	state := NewState("a1", false)
	assert.NotPanics(t, func() { m.ResetSession(state) })
	assert.NotPanics(t, func() { m.Release(state) })
}

func TestManager_ReleaseStopsDisplay(t *testing.T) {
	launcher := &fakeLauncher{endpoint: testEndpoint}
	displays := &fakeProvisioner{}
	m := newTestManager(t, launcher, displays)
	state := NewState("a1", true)
	require.NoError(t, m.EnsureSession(context.Background(), state))
	require.NotZero(t, state.DisplayPort())

	m.Release(state)
	require.Len(t, displays.released, 1)
	assert.Equal(t, 5901, displays.released[0].Port)
	assert.Zero(t, state.DisplayPort())
	assert.Nil(t, state.Session())
	assert.Equal(t, int32(1), launcher.sessions[0].closed.Load())
}

func TestManager_NewStateUsesProbe(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "dockerenv")
	require.NoError(t, os.WriteFile(marker, nil, 0o600))

	m := NewManager(&fakeLauncher{}, testSettings(t), WithProvisioner(&fakeProvisioner{}),
		WithProbe(Probe{DockerEnvPath: marker}))
	state := m.NewState("a1")
	assert.True(t, state.IsContainerized())
	assert.Equal(t, "docker", state.Environment())
	assert.Equal(t, "a1", state.ActorID())
}
