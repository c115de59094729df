package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"future-self-go/internal/config"
	"future-self-go/pkg/tasks"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader 每条消息只投递一次，与 kafka-go 在同一会话内不重投未提交消息的行为一致。
type fakeReader struct {
	fetchErrs []error
	msgs      []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.fetchErrs) > 0 {
		err := f.fetchErrs[0]
		f.fetchErrs = f.fetchErrs[1:]
		return kafka.Message{}, err
	}
	if len(f.msgs) == 0 {
		return kafka.Message{}, context.Canceled
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

// fakeProcessor 前 failures 次调用返回 err，failures < 0 表示一直失败。
type fakeProcessor struct {
	err      error
	failures int
	calls    []tasks.MemoryIndexTask
}

func (f *fakeProcessor) Process(_ context.Context, task tasks.MemoryIndexTask) error {
	f.calls = append(f.calls, task)
	if f.err != nil && (f.failures < 0 || len(f.calls) <= f.failures) {
		return f.err
	}
	return nil
}

func message(t *testing.T, task tasks.MemoryIndexTask) kafka.Message {
	t.Helper()
	b, err := json.Marshal(task)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(task.Key()), Value: b}
}

func newConsumer(t *testing.T, reader *fakeReader, proc TaskProcessor) (*Consumer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return &Consumer{reader: reader, processor: proc, redisClient: client}, mr
}

func TestBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, brokers(config.KafkaConfig{Brokers: " a:9092, ,b:9092"}))
	assert.Empty(t, brokers(config.KafkaConfig{}))
}

func TestConsumer_CommitsOnSuccess(t *testing.T) {
	task := tasks.NewMemoryIndexTask(tasks.OpUpsert, "m1", "u1")
	reader := &fakeReader{msgs: []kafka.Message{message(t, task)}}
	proc := &fakeProcessor{}
	c, _ := newConsumer(t, reader, proc)

	c.Run(context.Background())
	require.Len(t, proc.calls, 1)
	assert.Equal(t, "m1", proc.calls[0].MemoryID)
	assert.Len(t, reader.committed, 1)
	assert.True(t, reader.closed)
}

func TestConsumer_MalformedMessageIsCommitted(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{{Value: []byte("not json")}}}
	proc := &fakeProcessor{}
	c, _ := newConsumer(t, reader, proc)

	c.Run(context.Background())
	assert.Empty(t, proc.calls)
	assert.Len(t, reader.committed, 1)
}

func TestConsumer_GivesUpAfterMaxAttempts(t *testing.T) {
	task := tasks.NewMemoryIndexTask(tasks.OpDelete, "m2", "u1")
	next := tasks.NewMemoryIndexTask(tasks.OpUpsert, "m3", "u1")
	reader := &fakeReader{msgs: []kafka.Message{message(t, task), message(t, next)}}
	proc := &fakeProcessor{err: errors.New("es down"), failures: maxAttempts}
	c, mr := newConsumer(t, reader, proc)

	c.Run(context.Background())
	require.Len(t, proc.calls, maxAttempts+1)
	for _, call := range proc.calls[:maxAttempts] {
		assert.Equal(t, "m2", call.MemoryID)
	}
	assert.Equal(t, "m3", proc.calls[maxAttempts].MemoryID)
	assert.Len(t, reader.committed, 2)

	v, err := mr.Get(attemptsKey(task))
	require.NoError(t, err)
	assert.Equal(t, "3", v)
}

func TestConsumer_RetriesUntilSuccess(t *testing.T) {
	task := tasks.NewMemoryIndexTask(tasks.OpUpsert, "m4", "u1")
	reader := &fakeReader{msgs: []kafka.Message{message(t, task)}}
	proc := &fakeProcessor{err: errors.New("tika timeout"), failures: 2}
	c, mr := newConsumer(t, reader, proc)

	c.Run(context.Background())
	assert.Len(t, proc.calls, 3)
	assert.Len(t, reader.committed, 1)
	assert.False(t, mr.Exists(attemptsKey(task)))
}

func TestConsumer_ResumesAttemptCountAfterRedelivery(t *testing.T) {
	task := tasks.NewMemoryIndexTask(tasks.OpUpsert, "m5", "u1")
	reader := &fakeReader{msgs: []kafka.Message{message(t, task)}}
	proc := &fakeProcessor{err: errors.New("es down"), failures: -1}
	c, mr := newConsumer(t, reader, proc)
	require.NoError(t, mr.Set(attemptsKey(task), "2"))

	c.Run(context.Background())
	assert.Len(t, proc.calls, 1)
	assert.Len(t, reader.committed, 1)
}

func TestConsumer_SurvivesFetchErrors(t *testing.T) {
	task := tasks.NewMemoryIndexTask(tasks.OpUpsert, "m6", "u1")
	reader := &fakeReader{
		fetchErrs: []error{errors.New("broker not available"), errors.New("rebalance in progress")},
		msgs:      []kafka.Message{message(t, task)},
	}
	proc := &fakeProcessor{}
	c, _ := newConsumer(t, reader, proc)

	c.Run(context.Background())
	require.Len(t, proc.calls, 1)
	assert.Len(t, reader.committed, 1)
}

func TestConsumer_CancelDuringBackoffLeavesOffset(t *testing.T) {
	task := tasks.NewMemoryIndexTask(tasks.OpUpsert, "m7", "u1")
	reader := &fakeReader{msgs: []kafka.Message{message(t, task)}}
	proc := &fakeProcessor{err: errors.New("es down"), failures: -1}
	c, _ := newConsumer(t, reader, proc)
	c.backoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	c.Run(ctx)
	assert.Len(t, proc.calls, 1)
	assert.Empty(t, reader.committed)
}
