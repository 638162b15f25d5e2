// Package secrets loads operator secrets from a .env-style file and masks
// their values in any text leaving the process.
package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// Placeholder returns the masked form of the secret named key.
func Placeholder(key string) string {
	return "§§secret(" + key + ")"
}

// Manager holds secret values keyed by name.
type Manager struct {
	mu       sync.RWMutex
	values   map[string]string
	replacer *strings.Replacer
}

// New creates a manager from a fixed set of secrets. Empty values are ignored.
func New(values map[string]string) *Manager {
	m := &Manager{}
	m.set(values)
	return m
}

// Load reads secrets from a .env file. A missing file yields an empty manager.
func Load(path string) (*Manager, error) {
	if path == "" {
		return New(nil), nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return New(nil), nil
		}
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	return New(values), nil
}

// Reload replaces the secrets with the contents of path.
func (m *Manager) Reload(path string) error {
	fresh, err := Load(path)
	if err != nil {
		return err
	}
	m.set(fresh.Values())
	return nil
}

func (m *Manager) set(values map[string]string) {
	clean := make(map[string]string, len(values))
	for k, v := range values {
		if k != "" && v != "" {
			clean[k] = v
		}
	}

	// longer values first so a secret containing another is masked whole
	keys := make([]string, 0, len(clean))
	for k := range clean {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if li, lj := len(clean[keys[i]]), len(clean[keys[j]]); li != lj {
			return li > lj
		}
		return keys[i] < keys[j]
	})
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, clean[k], Placeholder(k))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = clean
	m.replacer = strings.NewReplacer(pairs...)
}

// Values returns a copy of the secrets.
func (m *Manager) Values() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// Keys returns the secret names in sorted order.
func (m *Manager) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Mask replaces every secret value in text with its placeholder. Safe on a
// nil manager.
func (m *Manager) Mask(text string) string {
	if m == nil || text == "" {
		return text
	}
	m.mu.RLock()
	r := m.replacer
	m.mu.RUnlock()
	if r == nil {
		return text
	}
	return r.Replace(text)
}
