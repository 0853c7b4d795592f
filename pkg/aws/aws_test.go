package aws

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	logtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	return &sns.PublishOutput{}, f.err
}

func TestSNSPublishSetsFIFOAttributes(t *testing.T) {
	fake := &fakeSNS{}
	client := &SNSClient{client: fake}

	err := client.Publish(context.Background(), PublishInput{
		TopicArn:        "arn:aws:sns:us-east-1:000000000000:cart-events.fifo",
		Message:         []byte(`{"type":"product_deleted"}`),
		GroupID:         "p1",
		DeduplicationID: "tok",
		Attributes:      map[string]string{"event_type": "product_deleted"},
	})
	require.NoError(t, err)
	require.Len(t, fake.inputs, 1)

	in := fake.inputs[0]
	assert.Equal(t, "p1", sdkaws.ToString(in.MessageGroupId))
	assert.Equal(t, "tok", sdkaws.ToString(in.MessageDeduplicationId))
	assert.Equal(t, "product_deleted", sdkaws.ToString(in.MessageAttributes["event_type"].StringValue))
}

func TestSNSPublishRejectsEmptyTopic(t *testing.T) {
	client := &SNSClient{client: &fakeSNS{}}
	assert.Error(t, client.Publish(context.Background(), PublishInput{Message: []byte("x")}))
}

type fakeSQS struct {
	mu       sync.Mutex
	batches  [][]types.Message
	deleted  []string
	received int
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received++
	if len(f.batches) == 0 {
		return &sqs.ReceiveMessageOutput{}, nil
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return &sqs.ReceiveMessageOutput{Messages: b}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, sdkaws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSPollOnceDeletesOnlyHandledMessages(t *testing.T) {
	fake := &fakeSQS{batches: [][]types.Message{{
		{MessageId: sdkaws.String("m1"), Body: sdkaws.String("ok"), ReceiptHandle: sdkaws.String("r1"),
			Attributes: map[string]string{"ApproximateReceiveCount": "3"}},
		{MessageId: sdkaws.String("m2"), Body: sdkaws.String("fail"), ReceiptHandle: sdkaws.String("r2")},
	}}}
	consumer := newSQSConsumer(fake, "queue", nil)

	var seen []Message
	err := consumer.pollOnce(context.Background(), func(_ context.Context, m Message) error {
		seen = append(seen, m)
		if m.Body == "fail" {
			return errors.New("handler failed")
		}
		return nil
	})

	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Equal(t, 3, seen[0].ReceiveCount)
	assert.Equal(t, 1, seen[1].ReceiveCount)
	assert.Equal(t, []string{"r1"}, fake.deleted)
}

func TestSQSStartPollingStopsOnCancel(t *testing.T) {
	consumer := newSQSConsumer(&fakeSQS{}, "queue", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := consumer.StartPolling(ctx, func(context.Context, Message) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type fakeSecrets struct {
	calls  int
	values map[string]string
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	v, ok := f.values[sdkaws.ToString(in.SecretId)]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: sdkaws.String(v)}, nil
}

func TestSecretsAreCached(t *testing.T) {
	fake := &fakeSecrets{values: map[string]string{"users/db": "postgres://u:p@db/users"}}
	s := newSecretsClient(fake)

	v1, err := s.GetSecret(context.Background(), "users/db")
	require.NoError(t, err)
	v2, err := s.GetSecret(context.Background(), "users/db")
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db/users", v1)
	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, fake.calls)

	_, err = s.GetSecret(context.Background(), "missing")
	assert.Error(t, err)
}

func TestGetPostgresDSN(t *testing.T) {
	fake := &fakeSecrets{values: map[string]string{
		"plain": "host=db user=u password=p dbname=users",
		"rds":   `{"engine":"postgres","username":"app","password":"s3cret","host":"users.rds.local","port":5432,"dbname":"users"}`,
		"bad":   `{"username":"app"}`,
	}}
	s := newSecretsClient(fake)
	ctx := context.Background()

	dsn, err := s.GetPostgresDSN(ctx, "plain", "disable")
	require.NoError(t, err)
	assert.Equal(t, "host=db user=u password=p dbname=users", dsn)

	dsn, err = s.GetPostgresDSN(ctx, "rds", "")
	require.NoError(t, err)
	assert.Equal(t, "host=users.rds.local user=app password=s3cret dbname=users port=5432 sslmode=require", dsn)

	_, err = s.GetPostgresDSN(ctx, "bad", "")
	assert.Error(t, err)
}

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestMetricsClientBatchesOnFlush(t *testing.T) {
	fake := &fakeCloudWatch{}
	m := newMetricsClient(fake, "")

	require.NoError(t, m.RecordLatency(context.Background(), MetricCascadeLatency, 1500*time.Millisecond, map[string]string{"Service": "cart", "EventType": "product_deleted"}))
	for i := 0; i < metricBatchSize; i++ {
		require.NoError(t, m.RecordCount(context.Background(), MetricCascadeApplied, nil))
	}
	assert.Empty(t, fake.inputs)

	require.NoError(t, m.Flush(context.Background()))
	require.Len(t, fake.inputs, 2)
	assert.Equal(t, "ShopSwift", sdkaws.ToString(fake.inputs[0].Namespace))
	assert.Len(t, fake.inputs[0].MetricData, metricBatchSize)
	assert.Len(t, fake.inputs[1].MetricData, 1)

	first := fake.inputs[0].MetricData[0]
	assert.Equal(t, 1500.0, sdkaws.ToFloat64(first.Value))
	require.Len(t, first.Dimensions, 2)
	assert.Equal(t, "EventType", sdkaws.ToString(first.Dimensions[0].Name))

	require.NoError(t, m.Flush(context.Background()))
	assert.Len(t, fake.inputs, 2)
}

type fakeLogs struct {
	mu          sync.Mutex
	groupExists bool
	retention   int
	streams     []string
	batches     [][]string
}

func (f *fakeLogs) CreateLogGroup(context.Context, *cloudwatchlogs.CreateLogGroupInput, ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error) {
	if f.groupExists {
		return nil, &logtypes.ResourceAlreadyExistsException{Message: sdkaws.String("exists")}
	}
	return &cloudwatchlogs.CreateLogGroupOutput{}, nil
}

func (f *fakeLogs) PutRetentionPolicy(_ context.Context, in *cloudwatchlogs.PutRetentionPolicyInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutRetentionPolicyOutput, error) {
	f.retention = int(sdkaws.ToInt32(in.RetentionInDays))
	return &cloudwatchlogs.PutRetentionPolicyOutput{}, nil
}

func (f *fakeLogs) CreateLogStream(_ context.Context, in *cloudwatchlogs.CreateLogStreamInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error) {
	f.streams = append(f.streams, sdkaws.ToString(in.LogStreamName))
	return &cloudwatchlogs.CreateLogStreamOutput{}, nil
}

func (f *fakeLogs) PutLogEvents(_ context.Context, in *cloudwatchlogs.PutLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var lines []string
	for _, e := range in.LogEvents {
		lines = append(lines, sdkaws.ToString(e.Message))
	}
	f.batches = append(f.batches, lines)
	return &cloudwatchlogs.PutLogEventsOutput{}, nil
}

func (f *fakeLogs) sent() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.batches...)
}

func TestCloudWatchLogsBatchesUntilSync(t *testing.T) {
	fake := &fakeLogs{}
	c, err := newCloudWatchLogsClient(context.Background(), fake, "/test", "cart-service", time.Hour)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, 30, fake.retention)
	require.Len(t, fake.streams, 1)
	assert.Contains(t, fake.streams[0], "cart-service/")

	line := []byte(`{"msg":"one"}`)
	_, _ = c.Write(line)
	copy(line, `{"msg":"two"}`)
	_, _ = c.Write(line)
	assert.Empty(t, fake.sent())

	require.NoError(t, c.Sync())
	assert.Equal(t, [][]string{{`{"msg":"one"}`, `{"msg":"two"}`}}, fake.sent())
}

func TestCloudWatchLogsFlushesFullBatchAndOnClose(t *testing.T) {
	fake := &fakeLogs{groupExists: true}
	c, err := newCloudWatchLogsClient(context.Background(), fake, "/test", "svc", time.Hour)
	require.NoError(t, err)
	assert.Zero(t, fake.retention)

	for i := 0; i < logBatchEvents+1; i++ {
		_, _ = c.Write([]byte("line"))
	}
	require.Len(t, fake.sent(), 1)
	assert.Len(t, fake.sent()[0], logBatchEvents)

	require.NoError(t, c.Close())
	require.Len(t, fake.sent(), 2)
	assert.Len(t, fake.sent()[1], 1)
}

func TestCloudWatchLogsDisabledDiscards(t *testing.T) {
	c, err := NewCloudWatchLogsClient(context.Background(), sdkaws.Config{}, "", "svc", false)
	require.NoError(t, err)
	n, err := c.Write([]byte("x"))
	assert.Equal(t, 1, n)
	assert.NoError(t, err)
	assert.False(t, c.IsEnabled())
	assert.NoError(t, c.Sync())
}
