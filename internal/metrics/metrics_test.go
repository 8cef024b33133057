package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/usersvc/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHandlerMetrics(reg)

	m.Observe("get-user-by-id", OutcomeSuccess, 10*time.Millisecond)
	m.Observe("get-user-by-id", OutcomeSuccess, 20*time.Millisecond)
	m.Observe("get-user-by-id", OutcomeNotFound, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("get-user-by-id", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("get-user-by-id", OutcomeNotFound)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Duration))
}

func TestNilMetrics_AreNoOps(t *testing.T) {
	var h *HandlerMetrics
	var c *CascadeMetrics

	assert.NotPanics(t, func() {
		h.Observe("q", OutcomeSuccess, time.Second)
		c.Observe("deleted", time.Second)
	})
}

func TestCascadeMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCascadeMetrics(reg)

	m.Observe("timeout", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Calls.WithLabelValues("timeout")))
}

func TestBrokerMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBrokerMetrics(reg)

	m.Observe("brpop", false, time.Millisecond)
	m.Observe("brpop", true, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Ops.WithLabelValues("brpop", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Ops.WithLabelValues("brpop", "error")))
}

func TestHandler_ServesRegisteredMetrics(t *testing.T) {
	reg := NewRegistry()
	m := NewHandlerMetrics(reg)
	m.Observe("create-user", OutcomeInvalidInput, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `usersvc_requests_total{outcome="invalid_input",queue="create-user"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestServe_StopsOnContextCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	reg := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, reg, logging.Nop{}) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && strings.Contains(string(b), "process_")
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
