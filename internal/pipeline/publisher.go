package pipeline

import (
	"context"
	"time"

	"future-self-go/pkg/log"
	"future-self-go/pkg/tasks"
)

// InlinePublisher 在未配置 Kafka 时使用，在后台 goroutine 中直接调用 Indexer。
type InlinePublisher struct {
	indexer *Indexer
	timeout time.Duration
}

// NewInlinePublisher 创建进程内的索引任务发布器。
func NewInlinePublisher(indexer *Indexer) *InlinePublisher {
	return &InlinePublisher{indexer: indexer, timeout: 2 * time.Minute}
}

// Publish 立即返回，索引在独立的上下文中完成，不受原请求取消影响。
func (p *InlinePublisher) Publish(_ context.Context, task tasks.MemoryIndexTask) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.indexer.Process(ctx, task); err != nil {
			log.Errorw("Inline index task failed", "op", task.Op, "memory_id", task.MemoryID, "error", err)
		}
	}()
	return nil
}
