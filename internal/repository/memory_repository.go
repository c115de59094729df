package repository

import (
	"context"
	"time"

	"future-self-go/internal/model"

	"gorm.io/gorm"
)

type memoryRepository struct {
	db *gorm.DB
}

// NewGormMemoryRepository 创建基于 MySQL 的 MemoryRepository。
func NewGormMemoryRepository(db *gorm.DB) MemoryRepository {
	return &memoryRepository{db: db}
}

func (r *memoryRepository) Create(ctx context.Context, memory *model.Memory) error {
	return translateError(r.db.WithContext(ctx).Create(memory).Error)
}

func (r *memoryRepository) FindByID(ctx context.Context, userID, id model.ID) (*model.Memory, error) {
	var memory model.Memory
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&memory).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &memory, nil
}

func (r *memoryRepository) FindByIDs(ctx context.Context, userID model.ID, ids []model.ID) ([]model.Memory, error) {
	if len(ids) == 0 {
		return []model.Memory{}, nil
	}
	var memories []model.Memory
	err := r.db.WithContext(ctx).Where("user_id = ? AND id IN ?", userID, ids).Find(&memories).Error
	return memories, translateError(err)
}

func (r *memoryRepository) ListByUser(ctx context.Context, userID model.ID, skip, limit int) ([]model.Memory, error) {
	memories := make([]model.Memory, 0, limit)
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(skip).
		Limit(limit).
		Find(&memories).Error
	return memories, translateError(err)
}

// Update 覆盖可编辑字段，作用范围限定在 memory.UserID 之内。
func (r *memoryRepository) Update(ctx context.Context, memory *model.Memory) error {
	memory.UpdatedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).
		Model(&model.Memory{}).
		Where("id = ? AND user_id = ?", memory.ID, memory.UserID).
		Select("title", "description", "significance", "tags", "attachments", "updated_at").
		Updates(memory).Error
	return translateError(err)
}

func (r *memoryRepository) Delete(ctx context.Context, userID, id model.ID) error {
	result := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&model.Memory{})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
