package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// ErrEndpointRecovery is returned when no strategy found the debug endpoint.
// Sessions keep working without it; only manual control is unavailable.
var ErrEndpointRecovery = errors.New("remote-debugging endpoint not available")

const devToolsActivePortFile = "DevToolsActivePort"

// EndpointStrategy is one way of finding a session's debug websocket endpoint.
type EndpointStrategy interface {
	Name() string
	Recover(ctx context.Context, sess Session) (string, error)
}

// DefaultStrategies returns the strategies in the order they are tried.
func DefaultStrategies() []EndpointStrategy {
	return []EndpointStrategy{
		SessionReported{},
		DevToolsActivePort{Wait: 2 * time.Second},
		JSONVersion{Client: &http.Client{Timeout: 3 * time.Second}},
	}
}

// RecoverEndpoint tries the strategies in order; the first success wins.
func RecoverEndpoint(ctx context.Context, strategies []EndpointStrategy, sess Session) (string, error) {
	var errs []error
	for _, s := range strategies {
		endpoint, err := s.Recover(ctx, sess)
		if err == nil && endpoint != "" {
			browserLog.Debugf("Debug endpoint recovered by %s: %s", s.Name(), endpoint)
			return endpoint, nil
		}
		if err == nil {
			err = errors.New("empty endpoint")
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	return "", fmt.Errorf("%w: %w", ErrEndpointRecovery, errors.Join(errs...))
}

// VerifyEndpoint dials the websocket endpoint and closes the connection.
func VerifyEndpoint(ctx context.Context, endpoint string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}
	return conn.Close()
}

// SessionReported asks the launcher.
type SessionReported struct{}

// Name returns the strategy name.
func (SessionReported) Name() string { return "session-reported" }

// Recover returns the endpoint the session reports.
func (SessionReported) Recover(_ context.Context, sess Session) (string, error) {
	if ep := sess.ReportedEndpoint(); ep != "" {
		return ep, nil
	}
	return "", errors.New("launcher does not expose the endpoint")
}

// DevToolsActivePort reads the port file Chromium writes into the profile
// directory when started with --remote-debugging-port.
type DevToolsActivePort struct {
	Wait time.Duration
}

// Name returns the strategy name.
func (DevToolsActivePort) Name() string { return "devtools-active-port" }

// Recover reads <profile>/DevToolsActivePort, polling until Wait elapses.
func (s DevToolsActivePort) Recover(ctx context.Context, sess Session) (string, error) {
	port, path, err := readActivePort(ctx, sess.ProfileDir(), s.Wait)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("%s has no browser path", devToolsActivePortFile)
	}
	return fmt.Sprintf("ws://127.0.0.1:%d%s", port, path), nil
}

// JSONVersion queries the /json/version endpoint of the debug port.
type JSONVersion struct {
	Client *http.Client
}

// Name returns the strategy name.
func (JSONVersion) Name() string { return "json-version" }

// Recover fetches webSocketDebuggerUrl from http://127.0.0.1:<port>/json/version.
func (s JSONVersion) Recover(ctx context.Context, sess Session) (string, error) {
	port := sess.DebugPort()
	if port == 0 {
		p, _, err := readActivePort(ctx, sess.ProfileDir(), 0)
		if err != nil {
			return "", fmt.Errorf("debug port unknown: %w", err)
		}
		port = p
	}
	return fetchDebuggerURL(ctx, s.Client, fmt.Sprintf("http://127.0.0.1:%d/json/version", port))
}

func fetchDebuggerURL(ctx context.Context, client *http.Client, url string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned %s", url, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", err
	}
	ws := gjson.GetBytes(body, "webSocketDebuggerUrl")
	if !ws.Exists() || ws.String() == "" {
		return "", errors.New("webSocketDebuggerUrl missing from /json/version")
	}
	return ws.String(), nil
}

func readActivePort(ctx context.Context, profileDir string, wait time.Duration) (int, string, error) {
	if profileDir == "" {
		return 0, "", errors.New("session has no profile directory")
	}
	file := filepath.Join(profileDir, devToolsActivePortFile)
	deadline := time.Now().Add(wait)

	for {
		data, err := os.ReadFile(file)
		if err == nil {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			port, convErr := strconv.Atoi(strings.TrimSpace(lines[0]))
			if convErr != nil || port <= 0 {
				return 0, "", fmt.Errorf("invalid port in %s: %q", devToolsActivePortFile, lines[0])
			}
			path := ""
			if len(lines) > 1 {
				path = strings.TrimSpace(lines[1])
			}
			return port, path, nil
		}
		if !time.Now().Before(deadline) {
			return 0, "", fmt.Errorf("failed to read %s: %w", devToolsActivePortFile, err)
		}
		if err := sleepCtx(ctx, 100*time.Millisecond); err != nil {
			return 0, "", err
		}
	}
}
