package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/entrhq/browseragent/pkg/agent/actor"
	"github.com/entrhq/browseragent/pkg/browser"
	"github.com/entrhq/browseragent/pkg/config"
	"github.com/entrhq/browseragent/pkg/engine"
	"github.com/entrhq/browseragent/pkg/supervisor"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSession struct{}

func (stubSession) CurrentPage() (engine.Page, error) { return nil, errors.New("no page") }
func (stubSession) Screenshot(string) error           { return nil }
func (stubSession) ReportedEndpoint() string          { return "ws://127.0.0.1:9222/devtools/browser/abc" }
func (stubSession) ProfileDir() string                { return "" }
func (stubSession) DebugPort() int                    { return 9222 }
func (stubSession) Close() error                      { return nil }

type stubLauncher struct{}

func (stubLauncher) Launch(context.Context, browser.LaunchOptions) (browser.Session, error) {
	return stubSession{}, nil
}

type fixture struct {
	server  *Server
	actors  *actor.Registry
	manager *browser.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	settings := config.DefaultBrowserSettings()
	settings.ProfilesDir = t.TempDir()
	settings.DownloadsDir = t.TempDir()
	settings.ScreenshotsDir = t.TempDir()
	settings.ExecutablePath = "/usr/bin/chromium"

	manager := browser.NewManager(stubLauncher{}, settings,
		browser.WithProbe(browser.Probe{}),
		browser.WithStrategies(browser.SessionReported{}),
	)
	actors := actor.NewRegistry()
	t.Cleanup(actors.CloseAll)

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "browseragent_test_total", Help: "test"})
	reg := prometheus.NewRegistry()
	reg.MustRegister(counter)
	counter.Inc()

	return &fixture{server: NewServer(actors, reg), actors: actors, manager: manager}
}

// withSession registers an actor whose state has a live session.
func (f *fixture) withSession(t *testing.T, id string) *actor.Context {
	t.Helper()
	a := f.actors.GetOrCreate(id)
	state := f.manager.NewState(id)
	require.NoError(t, f.manager.EnsureSession(context.Background(), state))
	supervisor.BindState(a, f.manager, state)
	return a
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestControl_UnknownContext(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/browser/control?context=nope", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["active"])
	assert.Equal(t, "No agent found in context", body["error"])
	assert.Nil(t, body["ws_endpoint"])
	assert.Nil(t, body["devtools_link"])
}

func TestControl_NoSession(t *testing.T) {
	f := newFixture(t)
	f.actors.GetOrCreate("ctx-1")

	body := decode(t, f.do(http.MethodGet, "/api/browser/control?context=ctx-1", ""))
	assert.Equal(t, false, body["active"])
	assert.Equal(t, "No active browser session found", body["error"])
}

func TestControl_ActiveSession(t *testing.T) {
	f := newFixture(t)
	f.withSession(t, "ctx-1")

	w := f.do(http.MethodGet, "/api/browser/control?context=ctx-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp ControlResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Active)
	assert.Empty(t, resp.Error)
	assert.Equal(t, "local", resp.Environment)
	require.NotNil(t, resp.WSEndpoint)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", *resp.WSEndpoint)
	require.NotNil(t, resp.DevToolsLink)
	assert.Equal(t, "chrome-devtools://devtools/bundled/inspector.html?ws=127.0.0.1:9222/devtools/browser/abc", *resp.DevToolsLink)
	assert.Nil(t, resp.VNCURL)
	assert.Equal(t, []browser.ControlOption{{
		Kind:     browser.ControlCDP,
		Endpoint: "ws://127.0.0.1:9222/devtools/browser/abc",
		Link:     "chrome-devtools://devtools/bundled/inspector.html?ws=127.0.0.1:9222/devtools/browser/abc",
	}}, resp.ControlOptions)
}

func TestTakeoverAndResume(t *testing.T) {
	f := newFixture(t)
	a := f.withSession(t, "ctx-1")

	w := f.do(http.MethodPost, "/api/browser/takeover", `{"context":"ctx-1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var h browser.Handoff
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &h))
	assert.Equal(t, "local", h.Environment)
	assert.Contains(t, h.Message, "DevTools Link: chrome-devtools://")
	assert.Len(t, h.Options, 1)
	assert.True(t, a.IsPaused())

	body := decode(t, f.do(http.MethodPost, "/api/browser/resume", `{"context":"ctx-1"}`))
	assert.Equal(t, true, body["resumed"])
	assert.Equal(t, false, body["paused"])
	assert.False(t, a.IsPaused())

	// resuming a running actor is a no-op
	body = decode(t, f.do(http.MethodPost, "/api/browser/resume", `{"context":"ctx-1"}`))
	assert.Equal(t, false, body["resumed"])
}

func TestTakeover_Errors(t *testing.T) {
	f := newFixture(t)
	f.actors.GetOrCreate("bare")
	withState := f.actors.GetOrCreate("no-endpoint")
	supervisor.BindState(withState, f.manager, f.manager.NewState("no-endpoint"))

	tests := []struct {
		name string
		body string
		code int
	}{
		{"missing context", `{}`, http.StatusBadRequest},
		{"malformed body", `{`, http.StatusBadRequest},
		{"unknown context", `{"context":"nope"}`, http.StatusNotFound},
		{"no state", `{"context":"bare"}`, http.StatusNotFound},
		{"no control surface", `{"context":"no-endpoint"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/api/browser/takeover", tt.body)
			assert.Equal(t, tt.code, w.Code)
			assert.NotEmpty(t, decode(t, w)["error"])
		})
	}
	assert.False(t, withState.IsPaused())
}

func TestContexts(t *testing.T) {
	f := newFixture(t)
	f.actors.GetOrCreate("b")
	f.actors.GetOrCreate("a")

	body := decode(t, f.do(http.MethodGet, "/api/contexts", ""))
	assert.Equal(t, []any{"a", "b"}, body["contexts"])
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "browseragent_test_total 1")
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- f.server.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()
	assert.NoError(t, <-errCh)
}
