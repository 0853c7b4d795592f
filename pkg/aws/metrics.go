package aws

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Recorder is what components record metrics through. MetricsClient is the CloudWatch
// implementation; NopRecorder discards everything.
type Recorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	RecordLatency(ctx context.Context, metricName string, duration time.Duration, dimensions map[string]string) error
	RecordValue(ctx context.Context, metricName string, value float64, dimensions map[string]string) error
	IsEnabled() bool
}

type cloudwatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// metricBatchSize is the PutMetricData datum limit.
const metricBatchSize = 1000

// MetricsClient buffers data points and ships them to CloudWatch in PutMetricData batches,
// every interval and on Flush. Recording never blocks on the network.
type MetricsClient struct {
	client    cloudwatchAPI
	namespace string

	mu      sync.Mutex
	pending []types.MetricDatum
}

// NewMetricsClient returns a client flushing every 10s until ctx is done, with a final flush.
func NewMetricsClient(ctx context.Context, cfg aws.Config, namespace string) *MetricsClient {
	m := newMetricsClient(cloudwatch.NewFromConfig(cfg), namespace)
	go m.loop(ctx, 10*time.Second)
	return m
}

func newMetricsClient(api cloudwatchAPI, namespace string) *MetricsClient {
	if namespace == "" {
		namespace = "ShopSwift"
	}
	return &MetricsClient{client: api, namespace: namespace}
}

func (m *MetricsClient) loop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = m.Flush(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = m.Flush(flushCtx)
			cancel()
			return
		}
	}
}

func (m *MetricsClient) add(name string, value float64, unit types.StandardUnit, dimensions map[string]string) {
	names := make([]string, 0, len(dimensions))
	for k := range dimensions {
		names = append(names, k)
	}
	sort.Strings(names)
	dims := make([]types.Dimension, 0, len(names))
	for _, k := range names {
		dims = append(dims, types.Dimension{Name: aws.String(k), Value: aws.String(dimensions[k])})
	}

	m.mu.Lock()
	m.pending = append(m.pending, types.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(time.Now()),
		Dimensions: dims,
	})
	m.mu.Unlock()
}

// Flush sends everything recorded so far. Data points of a failed batch are dropped.
func (m *MetricsClient) Flush(ctx context.Context) error {
	m.mu.Lock()
	data := m.pending
	m.pending = nil
	m.mu.Unlock()

	var errs []error
	for start := 0; start < len(data); start += metricBatchSize {
		end := min(start+metricBatchSize, len(data))
		_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(m.namespace),
			MetricData: data[start:end],
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("put %d metrics: %w", end-start, err))
		}
	}
	return errors.Join(errs...)
}

func (m *MetricsClient) RecordCount(_ context.Context, metricName string, dimensions map[string]string) error {
	m.add(metricName, 1, types.StandardUnitCount, dimensions)
	return nil
}

// RecordLatency records duration in milliseconds.
func (m *MetricsClient) RecordLatency(_ context.Context, metricName string, duration time.Duration, dimensions map[string]string) error {
	m.add(metricName, float64(duration.Milliseconds()), types.StandardUnitMilliseconds, dimensions)
	return nil
}

func (m *MetricsClient) RecordValue(_ context.Context, metricName string, value float64, dimensions map[string]string) error {
	m.add(metricName, value, types.StandardUnitNone, dimensions)
	return nil
}

func (m *MetricsClient) IsEnabled() bool { return true }

// NopRecorder drops every metric.
type NopRecorder struct{}

func (NopRecorder) RecordCount(context.Context, string, map[string]string) error { return nil }
func (NopRecorder) RecordLatency(context.Context, string, time.Duration, map[string]string) error {
	return nil
}
func (NopRecorder) RecordValue(context.Context, string, float64, map[string]string) error { return nil }
func (NopRecorder) IsEnabled() bool                                                       { return false }

// Common metric names for standardization
const (
	// HTTP metrics
	MetricHTTPRequests = "HTTPRequests"
	MetricHTTPLatency  = "HTTPLatency"
	MetricHTTP4xx      = "HTTP4xxErrors"
	MetricHTTP5xx      = "HTTP5xxErrors"
	MetricHTTPErrors   = "HTTPErrors"

	// Cascade metrics
	MetricCascadeApplied      = "CascadeApplied"
	MetricCascadeFailed       = "CascadeFailed"
	MetricCascadeLatency      = "CascadeLatency"
	MetricCascadeItemsRemoved = "CascadeItemsRemoved"
	MetricCascadeSwept        = "CascadeSweptItems"

	// Event path metrics
	MetricOutboxPublished = "OutboxPublished"
	MetricOutboxFailed    = "OutboxPublishFailed"
	MetricDeadLettered    = "EventsDeadLettered"

	// Business metrics
	MetricUsersDeleted    = "UsersDeleted"
	MetricProductsCreated = "ProductsCreated"
	MetricProductsDeleted = "ProductsDeleted"
)
