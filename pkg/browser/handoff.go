package browser

import (
	"errors"
	"fmt"
	"strings"
)

// ErrControlUnavailable is returned when neither a CDP nor a VNC endpoint exists.
var ErrControlUnavailable = errors.New("browser control not available - no CDP or VNC endpoints found")

const devToolsInspector = "chrome-devtools://devtools/bundled/inspector.html?ws="

// ControlKind names a manual control surface.
type ControlKind string

const (
	ControlCDP ControlKind = "cdp" // ControlCDP is Chrome DevTools over the debug endpoint.
	ControlVNC ControlKind = "vnc" // ControlVNC is the VNC relay of the virtual display.
)

// ControlOption is one way for an operator to reach the browser. CDP
// options carry Endpoint and Link, VNC options carry URL and Port.
type ControlOption struct {
	Kind     ControlKind `json:"type"`
	Endpoint string      `json:"ws_endpoint,omitempty"`
	Link     string      `json:"devtools_link,omitempty"`
	URL      string      `json:"vnc_url,omitempty"`
	Port     int         `json:"display_port,omitempty"`
}

// Handoff is the result of handing control to an operator.
type Handoff struct {
	Message     string          `json:"message"`
	Options     []ControlOption `json:"control_options"`
	Environment string          `json:"environment"`
}

// Primary returns the preferred option.
func (h *Handoff) Primary() ControlOption {
	if len(h.Options) == 0 {
		return ControlOption{}
	}
	return h.Options[0]
}

// Pauser pauses the owning actor.
type Pauser interface {
	Pause() bool
}

// DevToolsLink builds the DevTools inspector URL for a websocket endpoint.
func DevToolsLink(endpoint string) string {
	path := strings.TrimPrefix(strings.TrimPrefix(endpoint, "ws://"), "wss://")
	return devToolsInspector + path
}

// ControlOptions lists the control surfaces the state currently exposes.
func ControlOptions(state *State) []ControlOption {
	var opts []ControlOption
	if ep := state.DebugEndpoint(); ep != "" {
		opts = append(opts, ControlOption{Kind: ControlCDP, Endpoint: ep, Link: DevToolsLink(ep)})
	}
	if url, port := state.ViewingURL(), state.DisplayPort(); url != "" && port != 0 {
		opts = append(opts, ControlOption{Kind: ControlVNC, URL: url, Port: port})
	}
	return opts
}

// HandOverControl pauses the actor and describes how to take over the
// browser. Without any control surface the actor is left running and
// ErrControlUnavailable is returned. Resuming the actor ends the handoff.
func HandOverControl(state *State, actor Pauser) (*Handoff, error) {
	opts := ControlOptions(state)
	if len(opts) == 0 {
		browserLog.Warnf("Manual control requested for actor %s but no endpoints are available", state.ActorID())
		return nil, ErrControlUnavailable
	}

	actor.Pause()
	browserLog.Infof("Actor %s paused for manual browser control", state.ActorID())

	return &Handoff{
		Message:     handoffMessage(opts, state.Environment()),
		Options:     opts,
		Environment: state.Environment(),
	}, nil
}

func handoffMessage(opts []ControlOption, environment string) string {
	var b strings.Builder
	b.WriteString("🔍 Manual browser control requested.\n\n")

	for _, o := range opts {
		switch o.Kind {
		case ControlCDP:
			b.WriteString("🌐 **DevTools Control (Recommended)**:\n")
			fmt.Fprintf(&b, "DevTools Link: %s\n\n", o.Link)
			b.WriteString("To use DevTools:\n")
			b.WriteString("1. Copy the DevTools link above\n")
			b.WriteString("2. Paste it into Chrome's address bar\n")
			b.WriteString("3. Use DevTools to inspect and interact with the page\n\n")
		case ControlVNC:
			b.WriteString("🖥️ **VNC Control (Docker/Headless)**:\n")
			fmt.Fprintf(&b, "VNC URL: %s\nVNC Port: %d\n\n", o.URL, o.Port)
			b.WriteString("To use VNC:\n")
			fmt.Fprintf(&b, "1. Connect with a VNC client to localhost:%d\n", o.Port)
			b.WriteString("2. Interact directly with the browser window\n\n")
		}
	}

	b.WriteString("When finished, resume the agent to continue automation.\n\n")
	fmt.Fprintf(&b, "🔍 Environment: %s", environmentLabel(environment))
	return b.String()
}

func environmentLabel(env string) string {
	if env == "docker" {
		return "Docker"
	}
	return "Local"
}
