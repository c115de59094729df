package model

import "time"

// MessageRole 是会话消息的内部角色，取值集合是封闭的。
type MessageRole string

const (
	RoleUser       MessageRole = "user"
	RoleFutureSelf MessageRole = "future_self"
)

// Valid 报告角色是否属于封闭集合。
func (r MessageRole) Valid() bool {
	switch r {
	case RoleUser, RoleFutureSelf:
		return true
	}
	return false
}

// Message 代表会话中的单条消息，追加后不可变。
type Message struct {
	ID             ID          `gorm:"type:varchar(36);primaryKey" json:"id"`
	ConversationID ID          `gorm:"type:varchar(36);not null;index:idx_messages_conv_seq,priority:1" json:"-"`
	Seq            int         `gorm:"not null;index:idx_messages_conv_seq,priority:2" json:"-"`
	Role           MessageRole `gorm:"type:varchar(20);not null" json:"role"`
	Content        string      `gorm:"type:text;not null" json:"content"`
	Timestamp      time.Time   `gorm:"not null" json:"timestamp"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Message) TableName() string {
	return "messages"
}

// Conversation 是用户与"未来的自己"之间的一次对话。
type Conversation struct {
	ID        ID        `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    ID        `gorm:"type:varchar(36);not null;index:idx_conversations_user_updated,priority:1" json:"user_id"`
	Title     string    `gorm:"type:varchar(255)" json:"title,omitempty"`
	Messages  []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index:idx_conversations_user_updated,priority:2" json:"updated_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Conversation) TableName() string {
	return "conversations"
}

// NewMessage 创建一条带时间戳的新消息，Seq 由追加时分配。
func NewMessage(role MessageRole, content string) Message {
	return Message{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}
