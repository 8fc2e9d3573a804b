package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/gdp-bridge/bridge"
	"github.com/glimte/gdp-bridge/contracts"
)

func TestPrometheusCollector(t *testing.T) {
	t.Run("records control frames by op and result", func(t *testing.T) {
		c, err := NewPrometheusCollector(prometheus.NewRegistry())
		require.NoError(t, err)

		c.RecordControlFrame(contracts.OpSubscribe, time.Millisecond, nil)
		c.RecordControlFrame(contracts.OpSubscribe, time.Millisecond, nil)
		c.RecordControlFrame(contracts.OpPublish, time.Millisecond, errors.New("broken pipe"))

		assert.Equal(t, 2.0, testutil.ToFloat64(c.controlFrames.WithLabelValues("subscribe", "ok")))
		assert.Equal(t, 1.0, testutil.ToFloat64(c.controlFrames.WithLabelValues("publish", "error")))
		assert.Equal(t, 2, testutil.CollectAndCount(c.controlDuration))
	})

	t.Run("records route activity", func(t *testing.T) {
		c, err := NewPrometheusCollector(prometheus.NewRegistry())
		require.NoError(t, err)
		route := "remote_to_local/chatter->chatter"

		c.RecordForwarded(route, contracts.RemoteToLocal)
		c.RecordDropped(route, bridge.DropNoPeers)
		c.RecordDropped(route, bridge.DropConversion)
		c.RecordDropped(route, bridge.DropConversion)
		c.SetRouteActive(route, true)

		assert.Equal(t, 1.0, testutil.ToFloat64(c.forwarded.WithLabelValues(route, "remote_to_local")))
		assert.Equal(t, 1.0, testutil.ToFloat64(c.dropped.WithLabelValues(route, "no_peers")))
		assert.Equal(t, 2.0, testutil.ToFloat64(c.dropped.WithLabelValues(route, "conversion")))
		assert.Equal(t, 1.0, testutil.ToFloat64(c.routeActive.WithLabelValues(route)))

		c.SetRouteActive(route, false)
		assert.Equal(t, 0.0, testutil.ToFloat64(c.routeActive.WithLabelValues(route)))
	})

	t.Run("records dispatch results", func(t *testing.T) {
		c, err := NewPrometheusCollector(prometheus.NewRegistry())
		require.NoError(t, err)

		c.RecordDispatch("chatter", 2, true)
		c.RecordDispatch("stale", 0, false)

		assert.Equal(t, 1.0, testutil.ToFloat64(c.dispatched.WithLabelValues("delivered")))
		assert.Equal(t, 1.0, testutil.ToFloat64(c.dispatched.WithLabelValues("no_subscription")))
	})

	t.Run("double registration fails", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		_, err := NewPrometheusCollector(reg)
		require.NoError(t, err)

		_, err = NewPrometheusCollector(reg)
		assert.Error(t, err)
	})

	t.Run("handler exposes the namespace", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		c, err := NewPrometheusCollector(reg)
		require.NoError(t, err)
		c.SetRouteActive("r", true)

		rec := httptest.NewRecorder()
		Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), `gdp_bridge_route_active{route="r"} 1`))
	})
}
