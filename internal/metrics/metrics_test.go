package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ImageOp("ingest", ResultOK)
	m.ImageOp("ingest", ResultOK)
	m.ImageOp("delete", ResultError)
	m.ImageStored(2048)
	m.Notification("removeUser")
	m.RequestTransition("accepted")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.imageOps.WithLabelValues("ingest", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.imageOps.WithLabelValues("delete", ResultError)))
	assert.Equal(t, 2048.0, testutil.ToFloat64(m.imageBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("removeUser")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("accepted")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ImageOp("ingest", ResultOK)
		m.ImageStored(1)
		m.Notification("incomingRequest")
		m.RequestTransition("created")
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ImageOp("replace", ResultUnchanged)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	assert.True(t, strings.Contains(string(body), `tripsync_images_operations_total{op="replace",result="unchanged"} 1`))
}
