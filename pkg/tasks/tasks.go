// Package tasks 定义了在消息队列中流转的任务负载。
package tasks

import "time"

// MessageIndexTask 描述一条等待写入搜索索引的消息。
// 每条持久化成功的消息都会投递一个这样的任务。
type MessageIndexTask struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	MessageType    string    `json:"message_type"`
	CreatedAt      time.Time `json:"created_at"`
}
