// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"future-self-go/internal/config"
	"future-self-go/pkg/log"
	"future-self-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

const (
	// maxAttempts 是单条消息的最大处理次数，超过后提交 offset 放弃。
	maxAttempts = 3
	// defaultBackoff 是第一次重试前的等待时间，之后每次翻倍。
	defaultBackoff = 500 * time.Millisecond
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.MemoryIndexTask) error
}

func brokers(cfg config.KafkaConfig) []string {
	parts := strings.Split(cfg.Brokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Producer 发布记忆索引任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers(cfg)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Publish 发送一个索引任务到 Kafka，以记忆 ID 作为 key。
func (p *Producer) Publish(ctx context.Context, task tasks.MemoryIndexTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(task.Key()), Value: taskBytes}); err != nil {
		return fmt.Errorf("failed to publish index task: %w", err)
	}
	return nil
}

// Close 刷新并关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// messageReader 是消费循环用到的 kafka.Reader 方法子集。
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer 消费索引任务。处理失败时在进程内按退避重试，累计次数记录在 Redis 中，
// 进程重启后重新投递的消息会接着之前的次数计算。
type Consumer struct {
	reader      messageReader
	processor   TaskProcessor
	redisClient *redis.Client
	backoff     time.Duration
}

// NewConsumer 创建一个消费者。
func NewConsumer(cfg config.KafkaConfig, processor TaskProcessor, redisClient *redis.Client) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers(cfg),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, processor: processor, redisClient: redisClient, backoff: defaultBackoff}
}

func attemptsKey(task tasks.MemoryIndexTask) string {
	return fmt.Sprintf("kafka:attempts:%s:%s", task.Op, task.MemoryID)
}

// sleep 等待 d，ctx 取消时返回 false。
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Run 阻塞消费直到 ctx 被取消。读取失败只记录日志并退避，不会终止消费。
func (c *Consumer) Run(ctx context.Context) {
	log.Info("Kafka 消费者已启动")
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			if !sleep(ctx, c.backoff) {
				log.Info("Kafka 消费者已停止")
				return
			}
			continue
		}
		c.handle(ctx, m)
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}

// recordAttempt 累加失败次数。Redis 不可用时退回到本次会话内的计数。
func (c *Consumer) recordAttempt(ctx context.Context, task tasks.MemoryIndexTask, local int64) int64 {
	key := attemptsKey(task)
	attempts, err := c.redisClient.Incr(ctx, key).Result()
	if err != nil {
		log.Warnf("记录索引任务失败次数出错: %v", err)
		return local
	}
	_ = c.redisClient.Expire(ctx, key, 24*time.Hour).Err()
	if attempts < local {
		return local
	}
	return attempts
}

// handle 处理一条消息，成功或放弃后都会提交 offset。ctx 取消时不提交，消息会在下次启动时重新投递。
func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	var task tasks.MemoryIndexTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		// 消息格式错误，直接提交，避免阻塞队列
		c.commit(ctx, m)
		return
	}

	for local := int64(1); ; local++ {
		err := c.processor.Process(ctx, task)
		if err == nil {
			_ = c.redisClient.Del(ctx, attemptsKey(task)).Err()
			c.commit(ctx, m)
			return
		}
		log.Errorw("处理索引任务失败", "op", task.Op, "memory_id", task.MemoryID, "error", err)

		attempts := c.recordAttempt(ctx, task, local)
		if attempts >= maxAttempts {
			log.Errorw("索引任务多次失败，提交 offset 终止重试", "memory_id", task.MemoryID, "attempts", attempts)
			c.commit(ctx, m)
			return
		}
		if !sleep(ctx, c.backoff*time.Duration(1<<(attempts-1))) {
			return
		}
	}
}
