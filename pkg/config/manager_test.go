package config

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSection struct {
	id          string
	data        map[string]any
	validateErr error
	resets      int
}

func (f *fakeSection) ID() string                     { return f.id }
func (f *fakeSection) Title() string                  { return f.id }
func (f *fakeSection) Description() string            { return "fake " + f.id }
func (f *fakeSection) Data() map[string]any           { return f.data }
func (f *fakeSection) SetData(d map[string]any) error { f.data = d; return nil }
func (f *fakeSection) Validate() error                { return f.validateErr }
func (f *fakeSection) Reset()                         { f.data = map[string]any{}; f.resets++ }

type memoryStore struct {
	sections map[string]map[string]any
	loadErr  error
	saveErr  error
	saves    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sections: map[string]map[string]any{}}
}

func (m *memoryStore) Load() error { return m.loadErr }
func (m *memoryStore) Save() error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	return nil
}
func (m *memoryStore) GetSection(id string) (map[string]any, error) {
	return m.sections[id], nil
}
func (m *memoryStore) SetSection(id string, data map[string]any) error {
	m.sections[id] = data
	return nil
}
func (m *memoryStore) GetAll() (map[string]map[string]any, error) { return m.sections, nil }
func (m *memoryStore) SetAll(data map[string]map[string]any) error {
	m.sections = data
	return nil
}

func TestManager_RegisterSection(t *testing.T) {
	m := NewManager(newMemoryStore())
	require.NoError(t, m.RegisterSection(&fakeSection{id: "b"}))
	require.NoError(t, m.RegisterSection(&fakeSection{id: "a"}))
	assert.Error(t, m.RegisterSection(&fakeSection{id: "a"}))

	sections := m.GetSections()
	require.Len(t, sections, 2)
	assert.Equal(t, "b", sections[0].ID())
	assert.Equal(t, "a", sections[1].ID())

	_, ok := m.GetSection("missing")
	assert.False(t, ok)
}

func TestManager_LoadAll(t *testing.T) {
	t.Run("applies stored data and skips absent sections", func(t *testing.T) {
		store := newMemoryStore()
		store.sections["stored"] = map[string]any{"k": "v"}
		m := NewManager(store)

		stored := &fakeSection{id: "stored"}
		absent := &fakeSection{id: "absent", data: map[string]any{"default": true}}
		require.NoError(t, m.RegisterSection(stored))
		require.NoError(t, m.RegisterSection(absent))

		require.NoError(t, m.LoadAll())
		assert.Equal(t, "v", stored.data["k"])
		assert.Equal(t, true, absent.data["default"])
	})

	t.Run("store errors propagate", func(t *testing.T) {
		store := newMemoryStore()
		store.loadErr = errors.New("disk gone")
		assert.Error(t, NewManager(store).LoadAll())
	})
}

func TestManager_SaveAll(t *testing.T) {
	t.Run("validation failure writes nothing", func(t *testing.T) {
		store := newMemoryStore()
		m := NewManager(store)
		require.NoError(t, m.RegisterSection(&fakeSection{id: "ok", data: map[string]any{"a": 1}}))
		require.NoError(t, m.RegisterSection(&fakeSection{id: "bad", validateErr: errors.New("nope")}))

		assert.Error(t, m.SaveAll())
		assert.Empty(t, store.sections)
		assert.Zero(t, store.saves)
	})

	t.Run("writes every section then saves", func(t *testing.T) {
		store := newMemoryStore()
		m := NewManager(store)
		require.NoError(t, m.RegisterSection(&fakeSection{id: "one", data: map[string]any{"a": 1}}))

		require.NoError(t, m.SaveAll())
		assert.Equal(t, 1, store.sections["one"]["a"])
		assert.Equal(t, 1, store.saves)
	})

	t.Run("save error propagates", func(t *testing.T) {
		store := newMemoryStore()
		store.saveErr = errors.New("read-only")
		m := NewManager(store)
		require.NoError(t, m.RegisterSection(&fakeSection{id: "one"}))
		assert.Error(t, m.SaveAll())
	})
}

func TestManager_ResetAll(t *testing.T) {
	m := NewManager(newMemoryStore())
	s := &fakeSection{id: "s", data: map[string]any{"x": 1}}
	require.NoError(t, m.RegisterSection(s))

	m.ResetAll()
	assert.Empty(t, s.data)
	assert.Equal(t, 1, s.resets)
}

func TestManager_ConcurrentRegistration(t *testing.T) {
	m := NewManager(newMemoryStore())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = m.RegisterSection(&fakeSection{id: fmt.Sprintf("s%d", i)})
			m.GetSections()
		}(i)
	}
	wg.Wait()

	assert.Len(t, m.GetSections(), 10)
}
