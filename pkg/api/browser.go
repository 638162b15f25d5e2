package api

import (
	"errors"
	"net/http"

	"github.com/entrhq/browseragent/pkg/agent/actor"
	"github.com/entrhq/browseragent/pkg/browser"
	"github.com/entrhq/browseragent/pkg/supervisor"
	"github.com/gin-gonic/gin"
)

const (
	msgNoActor   = "No agent found in context"
	msgNoSession = "No active browser session found"
)

// ControlResponse describes how an operator can reach an actor's browser.
type ControlResponse struct {
	Active         bool                    `json:"active"`
	Error          string                  `json:"error,omitempty"`
	Environment    string                  `json:"environment,omitempty"`
	ControlOptions []browser.ControlOption `json:"control_options"`
	WSEndpoint     *string                 `json:"ws_endpoint"`
	DevToolsLink   *string                 `json:"devtools_link"`
	VNCURL         *string                 `json:"vnc_url,omitempty"`
	DisplayPort    int                     `json:"display_port,omitempty"`
}

// ContextRequest names the actor a POST acts on.
type ContextRequest struct {
	Context string `json:"context" binding:"required"`
}

// Control handles GET /api/browser/control?context=<id>
func (s *Server) Control(c *gin.Context) {
	a, ok := s.actors.Get(c.Query("context"))
	if !ok {
		c.JSON(http.StatusOK, ControlResponse{Error: msgNoActor, ControlOptions: []browser.ControlOption{}})
		return
	}
	state := supervisor.StateOf(a)
	if state == nil {
		c.JSON(http.StatusOK, ControlResponse{Error: msgNoSession, ControlOptions: []browser.ControlOption{}})
		return
	}

	resp := ControlResponse{
		Active:         true,
		Environment:    state.Environment(),
		ControlOptions: browser.ControlOptions(state),
		DisplayPort:    state.DisplayPort(),
	}
	if resp.ControlOptions == nil {
		resp.ControlOptions = []browser.ControlOption{}
	}
	if ep := state.DebugEndpoint(); ep != "" {
		link := browser.DevToolsLink(ep)
		resp.WSEndpoint = &ep
		resp.DevToolsLink = &link
	}
	if url := state.ViewingURL(); url != "" {
		resp.VNCURL = &url
	}
	c.JSON(http.StatusOK, resp)
}

// Takeover handles POST /api/browser/takeover. The actor is paused until
// resumed.
func (s *Server) Takeover(c *gin.Context) {
	a, ok := s.bindActor(c)
	if !ok {
		return
	}
	state := supervisor.StateOf(a)
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": msgNoSession})
		return
	}

	h, err := browser.HandOverControl(state, a)
	if errors.Is(err, browser.ErrControlUnavailable) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	apiLog.Infof("Operator took over browser of context %s", a.ID())
	c.JSON(http.StatusOK, h)
}

// Resume handles POST /api/browser/resume
func (s *Server) Resume(c *gin.Context) {
	a, ok := s.bindActor(c)
	if !ok {
		return
	}
	resumed := a.Resume()
	if resumed {
		apiLog.Infof("Context %s resumed", a.ID())
	}
	c.JSON(http.StatusOK, gin.H{"resumed": resumed, "paused": a.IsPaused()})
}

// Contexts handles GET /api/contexts
func (s *Server) Contexts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"contexts": s.actors.IDs()})
}

func (s *Server) bindActor(c *gin.Context) (*actor.Context, bool) {
	var req ContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	a, ok := s.actors.Get(req.Context)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": msgNoActor})
		return nil, false
	}
	return a, true
}
