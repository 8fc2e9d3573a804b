package localbus

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBus(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers to subscribers in subscription order", func(t *testing.T) {
		bus := NewMemoryBus()
		var got []string

		_, err := bus.Subscribe("chatter", "std_msgs/String", func(ctx context.Context, payload interface{}) {
			got = append(got, "a:"+payload.(string))
		})
		require.NoError(t, err)
		_, err = bus.Subscribe("chatter", "std_msgs/String", func(ctx context.Context, payload interface{}) {
			got = append(got, "b:"+payload.(string))
		})
		require.NoError(t, err)

		require.NoError(t, bus.Publish(ctx, "chatter", "std_msgs/String", "hi"))
		assert.Equal(t, []string{"a:hi", "b:hi"}, got)
	})

	t.Run("publish without subscribers succeeds", func(t *testing.T) {
		bus := NewMemoryBus()
		assert.NoError(t, bus.Publish(ctx, "nobody", "std_msgs/String", "hi"))
	})

	t.Run("rejects a second type on the same topic", func(t *testing.T) {
		bus := NewMemoryBus()
		_, err := bus.Subscribe("chatter", "std_msgs/String", func(context.Context, interface{}) {})
		require.NoError(t, err)

		_, err = bus.Subscribe("chatter", "std_msgs/Int32", func(context.Context, interface{}) {})
		assert.ErrorIs(t, err, ErrTypeMismatch)
		assert.ErrorIs(t, bus.Publish(ctx, "chatter", "std_msgs/Int32", int32(1)), ErrTypeMismatch)
	})

	t.Run("peer count transitions are reported", func(t *testing.T) {
		bus := NewMemoryBus()
		var counts []int
		cancel := bus.OnPeerCountChange("chatter", func(count int) {
			counts = append(counts, count)
		})

		first, err := bus.Subscribe("chatter", "std_msgs/String", func(context.Context, interface{}) {})
		require.NoError(t, err)
		second, err := bus.Subscribe("chatter", "std_msgs/String", func(context.Context, interface{}) {})
		require.NoError(t, err)
		assert.Equal(t, 2, bus.ConnectedPeerCount("chatter"))

		require.NoError(t, bus.Unsubscribe(first))
		require.NoError(t, bus.Unsubscribe(second))
		assert.Zero(t, bus.ConnectedPeerCount("chatter"))
		assert.Equal(t, []int{1, 2, 1, 0}, counts)

		cancel()
		cancel()
		_, err = bus.Subscribe("chatter", "std_msgs/String", func(context.Context, interface{}) {})
		require.NoError(t, err)
		assert.Len(t, counts, 4)
	})

	t.Run("unsubscribe of unknown token fails", func(t *testing.T) {
		bus := NewMemoryBus()
		assert.ErrorIs(t, bus.Unsubscribe(Token("missing")), ErrUnknownToken)

		token, err := bus.Subscribe("chatter", "std_msgs/String", func(context.Context, interface{}) {})
		require.NoError(t, err)
		require.NoError(t, bus.Unsubscribe(token))
		assert.ErrorIs(t, bus.Unsubscribe(token), ErrUnknownToken)
	})

	t.Run("unsubscribed handler receives nothing", func(t *testing.T) {
		bus := NewMemoryBus()
		calls := 0
		token, err := bus.Subscribe("chatter", "std_msgs/String", func(context.Context, interface{}) { calls++ })
		require.NoError(t, err)
		require.NoError(t, bus.Unsubscribe(token))

		require.NoError(t, bus.Publish(ctx, "chatter", "std_msgs/String", "hi"))
		assert.Zero(t, calls)
	})

	t.Run("concurrent subscribers settle at zero", func(t *testing.T) {
		bus := NewMemoryBus()
		var mu sync.Mutex
		last := -1
		bus.OnPeerCountChange("chatter", func(count int) {
			mu.Lock()
			last = count
			mu.Unlock()
		})

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 25; j++ {
					token, err := bus.Subscribe("chatter", "std_msgs/String", func(context.Context, interface{}) {})
					if !assert.NoError(t, err) {
						return
					}
					assert.NoError(t, bus.Unsubscribe(token))
				}
			}()
		}
		wg.Wait()

		assert.Zero(t, bus.ConnectedPeerCount("chatter"))
		mu.Lock()
		assert.Zero(t, last)
		mu.Unlock()
	})
}
