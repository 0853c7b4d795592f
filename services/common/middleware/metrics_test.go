package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	awspkg "github.com/shopswift/commerce-backend/pkg/aws"
)

type recordedMetric struct {
	name string
	dims map[string]string
}

type fakeRecorder struct {
	mu      sync.Mutex
	metrics []recordedMetric
}

func (f *fakeRecorder) record(name string, dims map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = append(f.metrics, recordedMetric{name: name, dims: dims})
	return nil
}

func (f *fakeRecorder) RecordCount(_ context.Context, name string, dims map[string]string) error {
	return f.record(name, dims)
}

func (f *fakeRecorder) RecordLatency(_ context.Context, name string, _ time.Duration, dims map[string]string) error {
	return f.record(name, dims)
}

func (f *fakeRecorder) RecordValue(_ context.Context, name string, _ float64, dims map[string]string) error {
	return f.record(name, dims)
}

func (f *fakeRecorder) IsEnabled() bool { return true }

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := &fakeRecorder{}
	r := gin.New()
	r.Use(MetricsMiddleware(rec, "cart-service"))
	r.GET("/cart/:user", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/cart/alice", nil))

	names := make([]string, 0, len(rec.metrics))
	for _, m := range rec.metrics {
		names = append(names, m.name)
	}
	assert.Equal(t, []string{awspkg.MetricHTTPRequests, awspkg.MetricHTTPLatency, awspkg.MetricHTTPErrors, awspkg.MetricHTTP4xx}, names)
	assert.Equal(t, "/cart/:user", rec.metrics[0].dims["Path"])
	assert.Equal(t, "4xx", rec.metrics[0].dims["Status"])
	assert.Equal(t, "cart-service", rec.metrics[0].dims["Service"])
}

func TestMetricsMiddlewareSkipsNopRecorder(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(MetricsMiddleware(awspkg.NopRecorder{}, "svc"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsMiddlewareCountsServerErrorsInAggregate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := &fakeRecorder{}
	r := gin.New()
	r.Use(MetricsMiddleware(rec, "svc"))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	counts := map[string]int{}
	for _, m := range rec.metrics {
		counts[m.name]++
	}
	assert.Equal(t, 2, counts[awspkg.MetricHTTPRequests])
	assert.Equal(t, 1, counts[awspkg.MetricHTTPErrors])
	assert.Equal(t, 1, counts[awspkg.MetricHTTP5xx])
	assert.Zero(t, counts[awspkg.MetricHTTP4xx])
}
