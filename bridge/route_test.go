package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/gdp-bridge/contracts"
	"github.com/glimte/gdp-bridge/serialization"
)

func TestLocalToRemoteRoute(t *testing.T) {
	ctx := context.Background()

	t.Run("advertises eagerly and forwards local messages", func(t *testing.T) {
		proxy, link, bus := newTestProxy(t, []RouteConfig{LocalToRemote("cmd", "robot/cmd", stringType)})

		assert.Equal(t, 1, link.Count(contracts.OpAdvertise, "robot/cmd"))
		assert.True(t, proxy.Routes()[0].Active)
		assert.Equal(t, 1, bus.ConnectedPeerCount("cmd"))

		require.NoError(t, bus.Publish(ctx, "cmd", stringType, &serialization.String{Data: "go"}))

		frames := link.Frames()
		require.Len(t, frames, 2)
		assert.Equal(t, contracts.OpPublish, frames[1].Op)
		assert.Equal(t, "robot/cmd", frames[1].Topic)
		assert.JSONEq(t, `{"data":"go"}`, string(frames[1].Msg))
	})

	t.Run("two routes on one remote topic advertise once", func(t *testing.T) {
		routes := []RouteConfig{
			LocalToRemote("left", "chatter", stringType),
			LocalToRemote("right", "chatter", stringType),
		}
		proxy, link, _ := newTestProxy(t, routes)

		assert.Equal(t, 1, link.Count(contracts.OpAdvertise, "chatter"))
		assert.Equal(t, map[string]int{"chatter": 2}, proxy.Client().Stats().Publications)

		left, ok := proxy.Route(routes[0].Name())
		require.True(t, ok)
		require.NoError(t, left.release(ctx))
		assert.Zero(t, link.Count(contracts.OpUnadvertise, "chatter"))

		right, ok := proxy.Route(routes[1].Name())
		require.True(t, ok)
		require.NoError(t, right.release(ctx))
		assert.Equal(t, 1, link.Count(contracts.OpUnadvertise, "chatter"))

		require.NoError(t, left.release(ctx))
		assert.Equal(t, 1, link.Count(contracts.OpUnadvertise, "chatter"))
	})

	t.Run("conversion failures are dropped", func(t *testing.T) {
		metrics := newRecordingMetrics()
		_, link, bus := newTestProxy(t, []RouteConfig{LocalToRemote("cmd", "cmd", stringType)}, WithMetrics(metrics))

		require.NoError(t, bus.Publish(ctx, "cmd", stringType, &serialization.Int32{Data: 1}))

		assert.Zero(t, link.Count(contracts.OpPublish, ""))
		assert.Equal(t, 1, metrics.droppedFor(DropConversion))
	})

	t.Run("messages after release are not forwarded", func(t *testing.T) {
		routes := []RouteConfig{LocalToRemote("cmd", "cmd", stringType)}
		proxy, link, bus := newTestProxy(t, routes)

		route, ok := proxy.Route(routes[0].Name())
		require.True(t, ok)
		require.NoError(t, route.release(ctx))

		require.NoError(t, bus.Publish(ctx, "cmd", stringType, &serialization.String{Data: "late"}))
		assert.Zero(t, link.Count(contracts.OpPublish, ""))
		assert.False(t, route.Active())
	})
}
