package aws

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

const (
	logBatchEvents = 500
	// PutLogEvents counts 26 bytes of overhead per event against its 1 MiB request limit.
	logEventOverhead = 26
	logBatchBytes    = 512 * 1024
	logFlushInterval = 2 * time.Second
	logRetentionDays = 30
)

type logsAPI interface {
	CreateLogGroup(ctx context.Context, in *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	PutRetentionPolicy(ctx context.Context, in *cloudwatchlogs.PutRetentionPolicyInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutRetentionPolicyOutput, error)
	CreateLogStream(ctx context.Context, in *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, in *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// CloudWatchLogsClient is an io.Writer that ships each written log line to one CloudWatch
// Logs stream. Lines are buffered and sent in batches, on a timer or when a batch fills.
// Shipping errors go to stderr; the logger never fails because of them.
type CloudWatchLogsClient struct {
	api    logsAPI
	group  string
	stream string

	mu       sync.Mutex
	pending  []types.InputLogEvent
	bytes    int
	sendMu   sync.Mutex
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewCloudWatchLogsClient creates the log group and a per-process stream and starts the
// background flusher, which stops when ctx is done. When enabled is false the client
// discards everything and makes no AWS calls.
func NewCloudWatchLogsClient(ctx context.Context, cfg aws.Config, logGroupName, serviceName string, enabled bool) (*CloudWatchLogsClient, error) {
	if !enabled {
		return &CloudWatchLogsClient{}, nil
	}
	return newCloudWatchLogsClient(ctx, cloudwatchlogs.NewFromConfig(cfg), logGroupName, serviceName, logFlushInterval)
}

func newCloudWatchLogsClient(ctx context.Context, api logsAPI, group, serviceName string, every time.Duration) (*CloudWatchLogsClient, error) {
	if group == "" {
		group = "/shopswift/services"
	}
	host, _ := os.Hostname()
	c := &CloudWatchLogsClient{
		api:    api,
		group:  group,
		stream: fmt.Sprintf("%s/%s/%d", serviceName, host, time.Now().Unix()),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if err := c.setup(ctx); err != nil {
		return nil, err
	}
	go c.loop(ctx, every)
	return c, nil
}

func (c *CloudWatchLogsClient) setup(ctx context.Context) error {
	_, err := c.api.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{LogGroupName: aws.String(c.group)})
	var exists *types.ResourceAlreadyExistsException
	if err != nil && !errors.As(err, &exists) {
		return fmt.Errorf("create log group %s: %w", c.group, err)
	}
	if err == nil {
		_, err = c.api.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
			LogGroupName:    aws.String(c.group),
			RetentionInDays: aws.Int32(logRetentionDays),
		})
		if err != nil {
			return fmt.Errorf("set retention on %s: %w", c.group, err)
		}
	}
	_, err = c.api.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(c.group),
		LogStreamName: aws.String(c.stream),
	})
	if err != nil {
		return fmt.Errorf("create log stream %s: %w", c.stream, err)
	}
	return nil
}

func (c *CloudWatchLogsClient) loop(ctx context.Context, every time.Duration) {
	defer close(c.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			c.flush(ctx)
		case <-ctx.Done():
			c.flush(context.Background())
			return
		case <-c.stop:
			c.flush(context.Background())
			return
		}
	}
}

// Write buffers one log line. zap reuses p, so it is copied.
func (c *CloudWatchLogsClient) Write(p []byte) (int, error) {
	if c.api == nil {
		return len(p), nil
	}

	c.mu.Lock()
	c.pending = append(c.pending, types.InputLogEvent{
		Message:   aws.String(string(p)),
		Timestamp: aws.Int64(time.Now().UnixMilli()),
	})
	c.bytes += len(p) + logEventOverhead
	full := len(c.pending) >= logBatchEvents || c.bytes >= logBatchBytes
	c.mu.Unlock()

	if full {
		c.flush(context.Background())
	}
	return len(p), nil
}

// Sync sends everything buffered so far. zap calls it on logger.Sync.
func (c *CloudWatchLogsClient) Sync() error {
	if c.api == nil {
		return nil
	}
	return c.flush(context.Background())
}

// Close stops the flusher after a final flush.
func (c *CloudWatchLogsClient) Close() error {
	if c.api == nil {
		return nil
	}
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
	return nil
}

func (c *CloudWatchLogsClient) flush(ctx context.Context) error {
	// sendMu keeps batches in write order.
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.bytes = 0
	c.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := c.api.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(c.group),
		LogStreamName: aws.String(c.stream),
		LogEvents:     batch,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "cloudwatch logs: dropped %d events: %v\n", len(batch), err)
		return err
	}
	return nil
}

// IsEnabled reports whether lines are shipped.
func (c *CloudWatchLogsClient) IsEnabled() bool {
	return c.api != nil
}
