package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 消息角色。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// 消息类型。
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

// Message 代表会话中的一条消息。消息创建后不可修改。
// 同一会话内按 created_at 升序排列，该顺序用于还原聊天记录
// 以及构造下一次模型调用的历史。
type Message struct {
	ID             string    `gorm:"type:char(36);primaryKey" json:"id"`
	ConversationID string    `gorm:"type:char(36);index;not null;column:conversation_id" json:"conversationId"`
	Role           string    `gorm:"type:varchar(16);not null" json:"role"`
	Content        string    `gorm:"type:text" json:"content"`
	MessageType    string    `gorm:"type:varchar(16);not null;default:text;column:message_type" json:"type"`
	ImageURL       *string   `gorm:"type:varchar(512);column:image_url" json:"imageUrl,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime;column:created_at" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

// BeforeCreate 在插入前生成 UUID 主键。
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// ChatTurn 代表一轮对话中的单条历史消息，用于模型调用的上下文。
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
