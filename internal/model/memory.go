package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	MinSignificance     = 1
	MaxSignificance     = 5
	DefaultSignificance = 3
)

// Attachment 是记忆附件在对象存储中的引用。
type Attachment struct {
	Key         string    `json:"key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Memory 对应于数据库中的 'memories' 表，只属于其创建者。
type Memory struct {
	ID           ID                              `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID       ID                              `gorm:"type:varchar(36);not null;index:idx_memories_user_created,priority:1" json:"user_id"`
	Title        string                          `gorm:"type:varchar(255);not null" json:"title"`
	Description  string                          `gorm:"type:text;not null" json:"description"`
	Significance int                             `gorm:"not null;default:3" json:"significance"`
	Tags         datatypes.JSONSlice[string]     `gorm:"type:json" json:"tags"`
	Attachments  datatypes.JSONSlice[Attachment] `gorm:"type:json" json:"attachments"`
	CreatedAt    time.Time                       `gorm:"index:idx_memories_user_created,priority:2" json:"created_at"`
	UpdatedAt    time.Time                       `json:"updated_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Memory) TableName() string {
	return "memories"
}

// MemoryPatch 描述一次部分更新，nil 字段保持不变。
type MemoryPatch struct {
	Title        *string
	Description  *string
	Significance *int
	Tags         *[]string
}

// IsEmpty 报告补丁是否没有任何字段。
func (p MemoryPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Significance == nil && p.Tags == nil
}

// Apply 将补丁应用到记忆上。
func (p MemoryPatch) Apply(m *Memory) {
	if p.Title != nil {
		m.Title = *p.Title
	}
	if p.Description != nil {
		m.Description = *p.Description
	}
	if p.Significance != nil {
		m.Significance = *p.Significance
	}
	if p.Tags != nil {
		m.Tags = datatypes.JSONSlice[string](append([]string{}, (*p.Tags)...))
	}
}
