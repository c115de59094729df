// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// IndexOp 是索引任务的操作类型。
type IndexOp string

const (
	OpUpsert IndexOp = "upsert"
	OpDelete IndexOp = "delete"
)

// MemoryIndexTask represents a request to (re)index or remove one memory in the search index.
type MemoryIndexTask struct {
	Op         IndexOp   `json:"op"`
	MemoryID   string    `json:"memory_id"`
	UserID     string    `json:"user_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewMemoryIndexTask 创建一个带入队时间的索引任务。
func NewMemoryIndexTask(op IndexOp, memoryID, userID string) MemoryIndexTask {
	return MemoryIndexTask{Op: op, MemoryID: memoryID, UserID: userID, EnqueuedAt: time.Now().UTC()}
}

// Key 作为 Kafka 消息的 key，保证同一条记忆的事件落在同一分区并保持顺序。
func (t MemoryIndexTask) Key() string {
	return t.MemoryID
}
