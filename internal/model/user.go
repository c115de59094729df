package model

import (
	"time"

	"gorm.io/datatypes"
)

// UserPreferences 保存用户对记忆存储和人格沟通方式的偏好。
type UserPreferences struct {
	MemoryStorageOptIn           bool   `json:"memory_storage_opt_in"`
	DataPurgingPreference        string `json:"data_purging_preference,omitempty"`
	CommunicationStylePreference string `json:"communication_style_preference,omitempty"`
	ReceiveNotifications         bool   `json:"receive_notifications"`
}

// PersonaCharacteristics 是嵌入在用户上的"未来的自己"人格特征。
type PersonaCharacteristics struct {
	CoreTrait      string    `json:"core_trait,omitempty"`
	VoiceTone      string    `json:"voice_tone,omitempty"`
	KeyLifeLessons []string  `json:"key_life_lessons,omitempty"`
	WisdomSnippets []string  `json:"wisdom_snippets,omitempty"`
	LastUpdated    time.Time `json:"last_updated,omitempty"`
}

// IsEmpty 报告人格特征是否尚未设置。
func (p PersonaCharacteristics) IsEmpty() bool {
	return p.CoreTrait == "" && p.VoiceTone == "" && len(p.KeyLifeLessons) == 0 && len(p.WisdomSnippets) == 0
}

// DefaultPreferences 返回新注册用户的默认偏好。
func DefaultPreferences() UserPreferences {
	return UserPreferences{MemoryStorageOptIn: true}
}

// User 对应于数据库中的 'users' 表。明文密码从不落库，Password 仅保存哈希。
type User struct {
	ID          ID                                         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email       string                                     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Username    *string                                    `gorm:"type:varchar(100);uniqueIndex" json:"username,omitempty"`
	FullName    string                                     `gorm:"type:varchar(255)" json:"full_name,omitempty"`
	Password    string                                     `gorm:"type:varchar(255);not null" json:"-"`
	IsActive    bool                                       `gorm:"not null;default:true" json:"is_active"`
	Preferences datatypes.JSONType[UserPreferences]        `gorm:"type:json" json:"preferences"`
	Persona     datatypes.JSONType[PersonaCharacteristics] `gorm:"type:json" json:"persona"`
	CreatedAt   time.Time                                  `json:"created_at"`
	UpdatedAt   time.Time                                  `json:"updated_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}

// DisplayName 返回人格提示中对用户的称呼：优先全名，其次用户名，最后是邮箱前缀。
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	for i, r := range u.Email {
		if r == '@' {
			return u.Email[:i]
		}
	}
	return u.Email
}
