package signal_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagsync/pkg/signal"
)

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func TestValue(t *testing.T) {
	t.Parallel()

	t.Run("subscriber gets current value first", func(t *testing.T) {
		v := signal.NewValue(true)
		ch := v.Subscribe(t.Context())
		assert.True(t, recv(t, ch))

		assert.True(t, v.Set(false))
		assert.False(t, recv(t, ch))
		assert.False(t, v.Get())
	})

	t.Run("set same value is noop", func(t *testing.T) {
		v := signal.NewValue(1)
		ch := v.Subscribe(t.Context())
		recv(t, ch)
		assert.False(t, v.Set(1))
		select {
		case <-ch:
			t.Fatal("unexpected notification")
		case <-time.After(20 * time.Millisecond):
		}
	})

	t.Run("slow reader sees latest", func(t *testing.T) {
		v := signal.NewValue(0)
		ch := v.Subscribe(t.Context())
		for i := 1; i <= 10; i++ {
			v.Set(i)
		}
		assert.Equal(t, 10, recv(t, ch))
	})

	t.Run("context cancel closes channel", func(t *testing.T) {
		v := signal.NewValue("a")
		ctx, cancel := context.WithCancel(context.Background())
		ch := v.Subscribe(ctx)
		recv(t, ch)
		cancel()
		require.Eventually(t, func() bool {
			select {
			case _, ok := <-ch:
				return !ok
			default:
				return false
			}
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("close", func(t *testing.T) {
		v := signal.NewValue(false)
		ch := v.Subscribe(t.Context())
		recv(t, ch)
		v.Close()
		_, ok := <-ch
		assert.False(t, ok)
		assert.False(t, v.Set(true))

		_, ok = <-v.Subscribe(t.Context())
		assert.False(t, ok)
	})
}
