package actor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Iteration(t *testing.T) {
	c := New("a")
	assert.Equal(t, uint64(0), c.Iteration())
	assert.Equal(t, uint64(1), c.NextIteration())
	assert.Equal(t, uint64(1), c.Iteration())
}

func TestContext_PauseResume(t *testing.T) {
	c := New("a")
	require.NoError(t, c.WaitIfPaused(context.Background()), "unpaused actor must not block")

	assert.True(t, c.Pause())
	assert.False(t, c.Pause())
	assert.True(t, c.IsPaused())

	done := make(chan error, 1)
	go func() { done <- c.WaitIfPaused(context.Background()) }()

	select {
	case <-done:
		t.Fatal("waiter returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	assert.True(t, c.Resume())
	assert.False(t, c.Resume())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by Resume")
	}
}

func TestContext_WaitIfPausedContextCancel(t *testing.T) {
	c := New("a")
	c.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.WaitIfPaused(ctx), context.DeadlineExceeded)
}

func TestContext_HandleIntervention(t *testing.T) {
	t.Run("kill releases a paused waiter", func(t *testing.T) {
		c := New("a")
		c.Pause()

		done := make(chan error, 1)
		go func() { done <- c.HandleIntervention(context.Background()) }()

		c.Kill()
		select {
		case err := <-done:
			assert.True(t, errors.Is(err, ErrKilled))
		case <-time.After(time.Second):
			t.Fatal("kill did not release waiter")
		}
	})

	t.Run("killed without pause", func(t *testing.T) {
		c := New("a")
		assert.NoError(t, c.HandleIntervention(context.Background()))
		c.Kill()
		c.Kill()
		assert.ErrorIs(t, c.HandleIntervention(context.Background()), ErrKilled)
		assert.True(t, c.IsKilled())
	})
}

func TestContext_Data(t *testing.T) {
	c := New("a")
	_, ok := c.GetData("k")
	assert.False(t, ok)

	c.SetData("k", 1)
	v, ok := c.GetData("k")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	c.SetData("k", nil)
	_, ok = c.GetData("k")
	assert.False(t, ok)
}

func TestContext_Close(t *testing.T) {
	c := New("a")
	var order []int
	c.OnClose(func() { order = append(order, 1) })
	c.OnClose(func() { order = append(order, 2) })

	c.Close()
	c.Close()
	assert.Equal(t, []int{2, 1}, order)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := r.GetOrCreate("b")
	assert.Same(t, a, r.GetOrCreate("b"))
	r.GetOrCreate("a")
	assert.Equal(t, []string{"a", "b"}, r.IDs())

	closed := false
	a.OnClose(func() { closed = true })
	r.Remove("b")
	r.Remove("missing")
	assert.True(t, closed)

	_, ok := r.Get("b")
	assert.False(t, ok)

	r.CloseAll()
	assert.Empty(t, r.IDs())
}
