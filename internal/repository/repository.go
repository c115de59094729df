// Package repository 定义了与数据库进行数据交换的接口和实现。
// 每个仓储都有 GORM 与内存两种实现，在 main 中构造时选择。
package repository

import (
	"context"
	"errors"

	"future-self-go/internal/model"

	"gorm.io/gorm"
)

var (
	// ErrNotFound 表示记录不存在或不属于调用方。
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate 表示违反了唯一约束。
	ErrDuplicate = errors.New("duplicate record")
)

// UserRepository 接口定义了用户数据的持久化操作。
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id model.ID) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
}

// MemoryRepository 接口定义了记忆的持久化操作。所有读写都按 userID 限定范围。
type MemoryRepository interface {
	Create(ctx context.Context, memory *model.Memory) error
	FindByID(ctx context.Context, userID, id model.ID) (*model.Memory, error)
	// FindByIDs 返回属于 userID 的记忆，忽略不存在或不属于该用户的 ID，顺序不保证。
	FindByIDs(ctx context.Context, userID model.ID, ids []model.ID) ([]model.Memory, error)
	// ListByUser 按 created_at 倒序返回。
	ListByUser(ctx context.Context, userID model.ID, skip, limit int) ([]model.Memory, error)
	Update(ctx context.Context, memory *model.Memory) error
	Delete(ctx context.Context, userID, id model.ID) error
}

// ConversationRepository 接口定义了会话与消息的持久化操作。
type ConversationRepository interface {
	// Create 同时写入会话及其初始消息，并为消息分配序号。
	Create(ctx context.Context, conv *model.Conversation) error
	// FindByID 返回会话及按 (timestamp, seq) 排序的全部消息。
	FindByID(ctx context.Context, userID, id model.ID) (*model.Conversation, error)
	// ListByUser 按 updated_at 倒序返回。
	ListByUser(ctx context.Context, userID model.ID, skip, limit int) ([]model.Conversation, error)
	// AppendMessages 在会话末尾追加消息，msgs 中的 ConversationID 与 Seq 会被就地填充。
	AppendMessages(ctx context.Context, userID, id model.ID, msgs []model.Message) error
	Delete(ctx context.Context, userID, id model.ID) error
}

// translateError 把 GORM 的错误转换为仓储层的哨兵错误。
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

// AutoMigrate 创建或更新所有表结构。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.User{}, &model.Memory{}, &model.Conversation{}, &model.Message{})
}
