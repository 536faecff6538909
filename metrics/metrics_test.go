package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-relay-server/domain"
)

var _ domain.Metrics = (*Recorder)(nil)

func TestRecorder(t *testing.T) {
	r := New()

	r.SetConnections(3)
	r.SetRooms(2)
	r.IncDelivered()
	r.IncDelivered()
	r.IncDropped()
	r.IncPublishErrors()
	r.IncEvent("table:update", "relayed")
	r.IncEvent("table:update", "relayed")
	r.IncEvent("table:update", "rejected")

	assert.Equal(t, 3.0, testutil.ToFloat64(r.connections))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.rooms))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.delivered))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.dropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.publishErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.events.WithLabelValues("table:update", "relayed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.events.WithLabelValues("table:update", "rejected")))
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.SetConnections(1)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pos_relay_connections 1")
}
