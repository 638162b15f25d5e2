package browser

import (
	"os"
	"strings"
)

// Probe detects whether the process runs inside a container.
type Probe struct {
	DockerEnvPath string
	CgroupPath    string
}

// DefaultProbe checks the standard docker markers.
func DefaultProbe() Probe {
	return Probe{
		DockerEnvPath: "/.dockerenv",
		CgroupPath:    "/proc/1/cgroup",
	}
}

// Detect reports whether a container marker is present. Any I/O failure
// counts as "not containerized".
func (p Probe) Detect() bool {
	if p.DockerEnvPath != "" {
		if _, err := os.Stat(p.DockerEnvPath); err == nil {
			return true
		}
	}
	if p.CgroupPath == "" {
		return false
	}
	data, err := os.ReadFile(p.CgroupPath)
	if err != nil {
		return false
	}
	content := string(data)
	return strings.Contains(content, "docker") || strings.Contains(content, "containerd")
}

// IsContainerized runs the default probe.
func IsContainerized() bool {
	return DefaultProbe().Detect()
}
