package repository

import (
	"context"
	"time"

	"future-self-go/internal/model"

	"gorm.io/gorm"
)

type conversationRepository struct {
	db *gorm.DB
}

// NewGormConversationRepository 创建基于 MySQL 的 ConversationRepository。
// 消息存放在独立的 messages 表中，通过 (conversation_id, seq) 保证顺序。
func NewGormConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func orderedMessages(db *gorm.DB) *gorm.DB {
	return db.Order("timestamp ASC, seq ASC")
}

func (r *conversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	for i := range conv.Messages {
		conv.Messages[i].ConversationID = conv.ID
		conv.Messages[i].Seq = i + 1
	}
	return translateError(r.db.WithContext(ctx).Create(conv).Error)
}

func (r *conversationRepository) FindByID(ctx context.Context, userID, id model.ID) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.WithContext(ctx).
		Preload("Messages", orderedMessages).
		Where("id = ? AND user_id = ?", id, userID).
		First(&conv).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &conv, nil
}

func (r *conversationRepository) ListByUser(ctx context.Context, userID model.ID, skip, limit int) ([]model.Conversation, error) {
	convs := make([]model.Conversation, 0, limit)
	err := r.db.WithContext(ctx).
		Preload("Messages", orderedMessages).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Offset(skip).
		Limit(limit).
		Find(&convs).Error
	return convs, translateError(err)
}

func (r *conversationRepository) AppendMessages(ctx context.Context, userID, id model.ID, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	db := r.db.WithContext(ctx)
	var conv model.Conversation
	if err := db.Select("id").Where("id = ? AND user_id = ?", id, userID).First(&conv).Error; err != nil {
		return translateError(err)
	}

	// 单文档写入语义：不加锁，并发追加时 seq 可能重复，排序仍以 timestamp 为主键
	var maxSeq int
	if err := db.Model(&model.Message{}).
		Where("conversation_id = ?", id).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&maxSeq).Error; err != nil {
		return translateError(err)
	}
	for i := range msgs {
		msgs[i].ConversationID = id
		msgs[i].Seq = maxSeq + i + 1
	}
	if err := db.Create(&msgs).Error; err != nil {
		return translateError(err)
	}
	return translateError(db.Model(&model.Conversation{}).Where("id = ?", id).Update("updated_at", time.Now().UTC()).Error)
}

// Delete 删除会话，消息通过外键 ON DELETE CASCADE 一并删除。
func (r *conversationRepository) Delete(ctx context.Context, userID, id model.ID) error {
	result := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&model.Conversation{})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
