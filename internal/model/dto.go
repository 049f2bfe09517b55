package model

import "time"

// MessageHit 是消息全文检索的单条命中结果。
type MessageHit struct {
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	MessageType    string    `json:"type"`
	CreatedAt      time.Time `json:"createdAt"`
}
