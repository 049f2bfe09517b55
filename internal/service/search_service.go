package service

import (
	"context"

	"gemchat-go/internal/config"
	"gemchat-go/internal/model"
	"gemchat-go/pkg/es"
)

// SearchService 定义了消息全文检索的业务逻辑接口。
type SearchService interface {
	SearchMessages(ctx context.Context, userID, query string, limit int) ([]model.MessageHit, error)
}

type searchService struct {
	esCfg config.ElasticsearchConfig
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(esCfg config.ElasticsearchConfig) SearchService {
	return &searchService{esCfg: esCfg}
}

// SearchMessages 在用户自己的消息里做全文检索，最新的排在前面。
// 未认证调用方得到空结果。
func (s *searchService) SearchMessages(ctx context.Context, userID, query string, limit int) ([]model.MessageHit, error) {
	if userID == "" {
		return []model.MessageHit{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	docs, err := es.SearchMessages(ctx, s.esCfg.IndexName, userID, query, limit)
	if err != nil {
		return nil, err
	}

	hits := make([]model.MessageHit, 0, len(docs))
	for _, doc := range docs {
		hits = append(hits, model.MessageHit{
			MessageID:      doc.MessageID,
			ConversationID: doc.ConversationID,
			Role:           doc.Role,
			Content:        doc.Content,
			MessageType:    doc.MessageType,
			CreatedAt:      doc.CreatedAt,
		})
	}
	return hits, nil
}
