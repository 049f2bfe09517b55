// Package pipeline 实现了消息搜索索引的异步处理。
package pipeline

import (
	"context"

	"gemchat-go/internal/config"
	"gemchat-go/pkg/es"
	"gemchat-go/pkg/tasks"
)

// Indexer 把队列里的消息索引任务写入 Elasticsearch。
type Indexer struct {
	esCfg config.ElasticsearchConfig
}

// NewIndexer 创建一个新的 Indexer。
func NewIndexer(esCfg config.ElasticsearchConfig) *Indexer {
	return &Indexer{esCfg: esCfg}
}

// Index 将单个任务写入搜索索引。满足 kafka.TaskIndexer 接口。
func (ix *Indexer) Index(ctx context.Context, task tasks.MessageIndexTask) error {
	doc := es.MessageDocument{
		MessageID:      task.MessageID,
		ConversationID: task.ConversationID,
		UserID:         task.UserID,
		Role:           task.Role,
		Content:        task.Content,
		MessageType:    task.MessageType,
		CreatedAt:      task.CreatedAt,
	}
	return es.IndexMessage(ctx, ix.esCfg.IndexName, doc)
}
