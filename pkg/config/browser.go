package config

import (
	"fmt"
	"sync"
	"time"
)

const (
	// SectionIDBrowser is the identifier for the browser agent section
	SectionIDBrowser = "browser"

	defaultTaskTimeout     = 300 * time.Second
	defaultProgressTimeout = 10 * time.Second
	defaultPollInterval    = 1 * time.Second
	defaultMaxSteps        = 50
	defaultDisplaySettle   = 1 * time.Second
	defaultDownloadsDir    = "tmp/downloads"
	defaultScreenshotsDir  = "tmp/browser/screenshots"
)

// BrowserSettings is an immutable snapshot of the browser section.
type BrowserSettings struct {
	Timeout          time.Duration
	ProgressTimeout  time.Duration
	PollInterval     time.Duration
	MaxSteps         int
	UseVision        bool
	ExecutablePath   string
	ProfilesDir      string
	DownloadsDir     string
	ScreenshotsDir   string
	InitScript       string
	SystemPromptFile string
	DebugPort        int
	VerifyEndpoint   bool
	AllowedDomains   []string
	SecretsFile      string
	DisplaySettle    time.Duration
}

// DefaultBrowserSettings returns the built-in defaults.
func DefaultBrowserSettings() BrowserSettings {
	return BrowserSettings{
		Timeout:         defaultTaskTimeout,
		ProgressTimeout: defaultProgressTimeout,
		PollInterval:    defaultPollInterval,
		MaxSteps:        defaultMaxSteps,
		DownloadsDir:    defaultDownloadsDir,
		ScreenshotsDir:  defaultScreenshotsDir,
		DisplaySettle:   defaultDisplaySettle,
	}
}

// BrowserSection manages browser agent settings: timeouts, launch options and
// the automation engine budget.
type BrowserSection struct {
	settings BrowserSettings
	mu       sync.RWMutex
}

// NewBrowserSection creates a browser section with default settings.
func NewBrowserSection() *BrowserSection {
	return &BrowserSection{settings: DefaultBrowserSettings()}
}

// ID returns the section identifier.
func (s *BrowserSection) ID() string {
	return SectionIDBrowser
}

// Title returns the section title.
func (s *BrowserSection) Title() string {
	return "Browser Agent Settings"
}

// Description returns the section description.
func (s *BrowserSection) Description() string {
	return "Configure the browser agent: task and progress timeouts, step budget, vision, browser binary and profile locations, and the remote-debugging port."
}

// Data returns the current configuration data.
func (s *BrowserSection) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.settings
	domains := make([]any, 0, len(st.AllowedDomains))
	for _, d := range st.AllowedDomains {
		domains = append(domains, d)
	}
	return map[string]any{
		"timeout":            st.Timeout.String(),
		"progress_timeout":   st.ProgressTimeout.String(),
		"poll_interval":      st.PollInterval.String(),
		"max_steps":          st.MaxSteps,
		"use_vision":         st.UseVision,
		"executable_path":    st.ExecutablePath,
		"profiles_dir":       st.ProfilesDir,
		"downloads_dir":      st.DownloadsDir,
		"screenshots_dir":    st.ScreenshotsDir,
		"init_script":        st.InitScript,
		"system_prompt_file": st.SystemPromptFile,
		"debug_port":         st.DebugPort,
		"verify_endpoint":    st.VerifyEndpoint,
		"allowed_domains":    domains,
		"secrets_file":       st.SecretsFile,
		"display_settle":     st.DisplaySettle.String(),
	}
}

// SetData updates the configuration from the provided data.
// Unknown keys are ignored for forward compatibility.
func (s *BrowserSection) SetData(data map[string]any) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.settings
	for key, value := range data {
		var err error
		switch key {
		case "timeout":
			st.Timeout, err = parseDuration(key, value)
		case "progress_timeout":
			st.ProgressTimeout, err = parseDuration(key, value)
		case "poll_interval":
			st.PollInterval, err = parseDuration(key, value)
		case "display_settle":
			st.DisplaySettle, err = parseDuration(key, value)
		case "max_steps":
			st.MaxSteps, err = parseInt(key, value)
		case "debug_port":
			st.DebugPort, err = parseInt(key, value)
		case "use_vision":
			st.UseVision, err = parseBool(key, value)
		case "verify_endpoint":
			st.VerifyEndpoint, err = parseBool(key, value)
		case "executable_path":
			st.ExecutablePath, err = parseString(key, value)
		case "profiles_dir":
			st.ProfilesDir, err = parseString(key, value)
		case "downloads_dir":
			st.DownloadsDir, err = parseString(key, value)
		case "screenshots_dir":
			st.ScreenshotsDir, err = parseString(key, value)
		case "init_script":
			st.InitScript, err = parseString(key, value)
		case "system_prompt_file":
			st.SystemPromptFile, err = parseString(key, value)
		case "secrets_file":
			st.SecretsFile, err = parseString(key, value)
		case "allowed_domains":
			st.AllowedDomains, err = parseStringList(key, value)
		default:
			continue
		}
		if err != nil {
			return err
		}
	}

	s.settings = st
	return nil
}

// Validate validates the current configuration.
func (s *BrowserSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.settings
	if st.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", st.Timeout)
	}
	if st.ProgressTimeout <= 0 || st.ProgressTimeout > st.Timeout {
		return fmt.Errorf("progress_timeout must be positive and not exceed timeout, got %v", st.ProgressTimeout)
	}
	if st.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", st.PollInterval)
	}
	if st.MaxSteps < 1 || st.MaxSteps > 500 {
		return fmt.Errorf("max_steps must be between 1 and 500, got %d", st.MaxSteps)
	}
	if st.DebugPort < 0 || st.DebugPort > 65535 {
		return fmt.Errorf("debug_port must be a valid port or 0, got %d", st.DebugPort)
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *BrowserSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = DefaultBrowserSettings()
}

// Settings returns a snapshot of the current settings.
func (s *BrowserSection) Settings() BrowserSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.settings
	st.AllowedDomains = append([]string(nil), s.settings.AllowedDomains...)
	return st
}

func parseDuration(key string, value any) (time.Duration, error) {
	switch v := value.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid duration string for %s: %w", key, err)
		}
		return d, nil
	case float64:
		// JSON numbers come as float64
		return time.Duration(v), nil
	case int:
		return time.Duration(v), nil
	case int64:
		return time.Duration(v), nil
	default:
		return 0, fmt.Errorf("invalid value type for %s: expected string or number, got %T", key, value)
	}
}

func parseInt(key string, value any) (int, error) {
	switch v := value.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("invalid value type for %s: expected number, got %T", key, value)
	}
}

func parseBool(key string, value any) (bool, error) {
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("invalid value type for %s: expected bool, got %T", key, value)
	}
	return b, nil
}

func parseString(key string, value any) (string, error) {
	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("invalid value type for %s: expected string, got %T", key, value)
	}
	return str, nil
}

func parseStringList(key string, value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("invalid entry in %s: expected string, got %T", key, item)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("invalid value type for %s: expected list, got %T", key, value)
	}
}
