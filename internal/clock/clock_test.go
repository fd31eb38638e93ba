package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("sleep advances time and records duration", func(t *testing.T) {
		f := NewFake(start)

		require.NoError(t, f.Sleep(context.Background(), 2*time.Second))
		require.NoError(t, f.Sleep(context.Background(), 3*time.Second))

		assert.Equal(t, start.Add(5*time.Second), f.Now())
		assert.Equal(t, []time.Duration{2 * time.Second, 3 * time.Second}, f.Sleeps())
		assert.Equal(t, 5*time.Second, f.TotalSlept())
	})

	t.Run("advance does not record a sleep", func(t *testing.T) {
		f := NewFake(start)
		f.Advance(time.Minute)

		assert.Equal(t, start.Add(time.Minute), f.Now())
		assert.Empty(t, f.Sleeps())
	})

	t.Run("sleep honours a cancelled context", func(t *testing.T) {
		f := NewFake(start)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := f.Sleep(ctx, time.Second)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, start, f.Now())
	})
}

func TestReal_Sleep(t *testing.T) {
	t.Run("returns after the duration", func(t *testing.T) {
		c := Real()
		before := c.Now()
		require.NoError(t, c.Sleep(context.Background(), 5*time.Millisecond))
		assert.GreaterOrEqual(t, c.Now().Sub(before), 5*time.Millisecond)
	})

	t.Run("returns early when the context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()

		err := Real().Sleep(ctx, time.Minute)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("non-positive duration returns immediately", func(t *testing.T) {
		assert.NoError(t, Real().Sleep(context.Background(), 0))
	})
}
