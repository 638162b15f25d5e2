package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

const (
	firstDisplay = 1
	lastDisplay  = 99
	vncBasePort  = 5900
)

// ErrNoFreeDisplay is returned when every candidate display port is taken.
var ErrNoFreeDisplay = errors.New("could not find an available display port")

// Process is a started background process.
type Process interface {
	Stop() error
}

// CommandRunner starts long-running helper processes.
type CommandRunner interface {
	Start(name string, args ...string) (Process, error)
}

// ExecRunner starts processes with os/exec.
type ExecRunner struct{}

// Start launches the command without waiting for it.
func (ExecRunner) Start(name string, args ...string) (Process, error) {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd}, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	once sync.Once
}

func (p *execProcess) Stop() error {
	var err error
	p.once.Do(func() {
		if killErr := p.cmd.Process.Kill(); killErr != nil {
			err = killErr
			return
		}
		_ = p.cmd.Wait()
	})
	return err
}

// Display is a virtual X display with a VNC relay.
type Display struct {
	Number int
	Port   int
	ID     string

	xvfb Process
	vnc  Process
}

// ViewingURL is the VNC URL of the display.
func (d *Display) ViewingURL() string {
	return fmt.Sprintf("vnc://localhost:%d", d.Port)
}

// DisplayProvisioner starts Xvfb and x11vnc on the first free display.
type DisplayProvisioner struct {
	runner   CommandRunner
	portFree func(port int) bool
	settle   time.Duration

	mu    sync.Mutex
	inUse map[int]bool
}

// NewDisplayProvisioner creates a provisioner. settle is how long to wait for
// Xvfb before attaching the VNC relay.
func NewDisplayProvisioner(runner CommandRunner, settle time.Duration) *DisplayProvisioner {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &DisplayProvisioner{
		runner:   runner,
		portFree: portAvailable,
		settle:   settle,
		inUse:    make(map[int]bool),
	}
}

// Provision starts a display on the first number whose VNC port is free.
func (p *DisplayProvisioner) Provision(ctx context.Context) (*Display, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for n := firstDisplay; n <= lastDisplay; n++ {
		port := vncBasePort + n
		if p.inUse[n] || !p.portFree(port) {
			continue
		}
		id := ":" + strconv.Itoa(n)

		xvfb, err := p.runner.Start("Xvfb", id, "-screen", "0", "1920x1080x24", "-ac", "+extension", "GLX")
		if err != nil {
			return nil, fmt.Errorf("failed to start Xvfb on %s: %w", id, err)
		}
		if err := sleepCtx(ctx, p.settle); err != nil {
			_ = xvfb.Stop()
			return nil, err
		}
		vnc, err := p.runner.Start("x11vnc", "-display", id, "-rfbport", strconv.Itoa(port), "-forever", "-shared", "-nopw")
		if err != nil {
			_ = xvfb.Stop()
			return nil, fmt.Errorf("failed to start x11vnc on port %d: %w", port, err)
		}

		p.inUse[n] = true
		browserLog.Infof("Virtual display started on %s, VNC port %d", id, port)
		return &Display{Number: n, Port: port, ID: id, xvfb: xvfb, vnc: vnc}, nil
	}
	return nil, ErrNoFreeDisplay
}

// Release stops the display processes. Safe with nil.
func (p *DisplayProvisioner) Release(d *Display) {
	if d == nil {
		return
	}
	if d.vnc != nil {
		if err := d.vnc.Stop(); err != nil {
			browserLog.Warnf("Failed to stop x11vnc on %s: %v", d.ID, err)
		}
	}
	if d.xvfb != nil {
		if err := d.xvfb.Stop(); err != nil {
			browserLog.Warnf("Failed to stop Xvfb on %s: %v", d.ID, err)
		}
	}

	p.mu.Lock()
	delete(p.inUse, d.Number)
	p.mu.Unlock()
}

func portAvailable(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
