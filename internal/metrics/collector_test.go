package metrics

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/snapfs/pkg/errors"
)

func TestNewCollector(t *testing.T) {
	t.Run("nil config uses defaults", func(t *testing.T) {
		collector, err := NewCollector(nil)
		require.NoError(t, err)
		assert.True(t, collector.config.Enabled)
		assert.Equal(t, "/metrics", collector.config.Path)
		assert.Equal(t, "snapfs", collector.config.Namespace)
		assert.NotNil(t, collector.registry)
	})

	t.Run("disabled collector still tracks operations", func(t *testing.T) {
		collector, err := NewCollector(&Config{Enabled: false})
		require.NoError(t, err)
		assert.Nil(t, collector.registry)

		collector.RecordOperation("lookup", time.Millisecond, 0, true)
		collector.RecordCacheHit("data:abc", 10)
		collector.RecordError("lookup", fmt.Errorf("boom"))

		ops := collector.GetMetrics()["operations"].(map[string]OperationMetrics)
		assert.Equal(t, int64(1), ops["lookup"].Count)
	})
}

func TestRecordOperation(t *testing.T) {
	collector, err := NewCollector(&Config{Enabled: true, Namespace: "test"})
	require.NoError(t, err)

	collector.RecordOperation("read", 2*time.Millisecond, 100, true)
	collector.RecordOperation("read", 4*time.Millisecond, 50, true)
	collector.RecordOperation("read", time.Millisecond, 0, false)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.operationCounter.WithLabelValues("read", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.operationCounter.WithLabelValues("read", "error")))
	assert.Equal(t, 150.0, testutil.ToFloat64(collector.bytesRead))

	ops := collector.GetMetrics()["operations"].(map[string]OperationMetrics)
	read := ops["read"]
	assert.Equal(t, int64(3), read.Count)
	assert.Equal(t, int64(1), read.Errors)
	assert.Equal(t, int64(150), read.TotalSize)
	assert.Equal(t, 7*time.Millisecond/3, read.AvgDuration)

	collector.ResetMetrics()
	ops = collector.GetMetrics()["operations"].(map[string]OperationMetrics)
	assert.Empty(t, ops)
}

func TestRecordCacheAndErrors(t *testing.T) {
	collector, err := NewCollector(nil)
	require.NoError(t, err)

	collector.RecordCacheHit("data:0123", 4096)
	collector.RecordCacheHit("data:4567", 4096)
	collector.RecordCacheMiss("tree:89ab", 0)
	collector.RecordCacheMiss("weird", 0)
	collector.RecordError("open", errors.Forbidden("open", "/x"))
	collector.UpdateCacheSize(8192)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.cacheCounter.WithLabelValues("hit", "data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheCounter.WithLabelValues("miss", "tree")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.cacheCounter.WithLabelValues("miss", "unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.errorCounter.WithLabelValues("open", "forbidden")))
	assert.Equal(t, 8192.0, testutil.ToFloat64(collector.cacheSizeGauge))
}

func TestHandler(t *testing.T) {
	collector, err := NewCollector(nil)
	require.NoError(t, err)
	collector.RecordOperation("lookup", time.Millisecond, 0, true)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `snapfs_operations_total{operation="lookup",status="success"} 1`))

	disabled, err := NewCollector(&Config{Enabled: false})
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	disabled.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartServesRoutes(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	collector, err := NewCollector(&Config{Enabled: true, Address: addr, Namespace: "snapfs"})
	require.NoError(t, err)
	collector.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, collector.Start(ctx))
	defer func() { _ = collector.Stop(context.Background()) }()

	get := func(path string) (int, string) {
		var resp *http.Response
		require.Eventually(t, func() bool {
			resp, err = http.Get("http://" + addr + path)
			return err == nil
		}, 5*time.Second, 10*time.Millisecond)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "snapfs_cache_size_bytes")
}

func TestCacheSource(t *testing.T) {
	assert.Equal(t, "data", cacheSource("data:abc"))
	assert.Equal(t, "tree", cacheSource("tree:abc"))
	assert.Equal(t, "unknown", cacheSource("abc"))
	assert.Equal(t, "unknown", cacheSource(":abc"))
}
