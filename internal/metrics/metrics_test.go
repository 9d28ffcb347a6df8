package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-keypool-service/internal/metrics"
	"github.com/tinywideclouds/go-keypool-service/pkg/keypool"
)

func TestPoolMetrics(t *testing.T) {
	m := metrics.NewPoolMetrics("keypool")

	m.RecordOperation("advance", metrics.OutcomeSuccess)
	m.RecordOperation("advance", metrics.OutcomeSuccess)
	m.RecordOperation("exhaust", metrics.OutcomeNotFound)
	m.ObservePool(keypool.Stats{Total: 4, Active: 3, Exhausted: 1, Unused: 2})

	count, err := testutil.GatherAndCount(m.Registry(), "keypool_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per operation/outcome pair")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `keypool_operations_total{operation="advance",outcome="success"} 2`)
	assert.Contains(t, string(body), `keypool_keys{state="active"} 3`)
}

func TestNoOp(t *testing.T) {
	var r metrics.Recorder = metrics.NoOp{}
	assert.NotPanics(t, func() {
		r.RecordOperation("advance", metrics.OutcomeSuccess)
		r.ObservePool(keypool.Stats{})
	})
}
