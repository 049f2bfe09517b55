package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gemchat-go/internal/model"
	"gemchat-go/pkg/log"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// 最近对话缓存：每个会话保留最近 20 轮，7 天过期。
const (
	historyCacheLimit = 20
	historyCacheTTL   = 7 * 24 * time.Hour
)

// MessageRepository 定义了消息记录的持久化操作。
// 消息创建后不可修改，因此没有更新接口。
type MessageRepository interface {
	Create(ctx context.Context, message *model.Message) error
	ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error)
	RecentTurns(ctx context.Context, conversationID string) ([]model.ChatTurn, error)
}

// messageRepository 以 MySQL 为准，同时在 Redis 中维护一份
// 最近历史的缓存，供模型调用重建上下文时使用。
type messageRepository struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewMessageRepository 创建一个新的 MessageRepository 实例。
func NewMessageRepository(db *gorm.DB, redisClient *redis.Client) MessageRepository {
	return &messageRepository{db: db, redisClient: redisClient}
}

func historyCacheKey(conversationID string) string {
	return fmt.Sprintf("chat:history:%s", conversationID)
}

// Create 插入一条消息，并把它追加到会话的历史缓存中。
// 缓存维护是尽力而为的，失败只记日志。
func (r *messageRepository) Create(ctx context.Context, message *model.Message) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	r.appendToHistoryCache(ctx, message)
	return nil
}

// ListByConversation 返回会话的全部消息，按 created_at 升序排列。
// 该顺序用于还原聊天记录展示与下一次模型调用。
func (r *messageRepository) ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// RecentTurns 返回会话最近的历史轮次，优先读缓存，未命中时回源数据库并回填。
func (r *messageRepository) RecentTurns(ctx context.Context, conversationID string) ([]model.ChatTurn, error) {
	key := historyCacheKey(conversationID)
	jsonData, err := r.redisClient.Get(ctx, key).Result()
	if err == nil {
		var turns []model.ChatTurn
		if err := json.Unmarshal([]byte(jsonData), &turns); err == nil {
			return turns, nil
		}
		log.Warnf("历史缓存内容无法解析，回源数据库: conversation=%s", conversationID)
	} else if err != redis.Nil {
		log.Warnf("读取历史缓存失败，回源数据库: %v", err)
	}

	messages, err := r.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	turns := make([]model.ChatTurn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, model.ChatTurn{Role: m.Role, Content: m.Content})
	}
	if len(turns) > historyCacheLimit {
		turns = turns[len(turns)-historyCacheLimit:]
	}
	r.setHistoryCache(ctx, key, turns)
	return turns, nil
}

// appendToHistoryCache 把新消息追加进历史缓存（读-改-写，超出上限截断）。
func (r *messageRepository) appendToHistoryCache(ctx context.Context, message *model.Message) {
	key := historyCacheKey(message.ConversationID)
	var turns []model.ChatTurn
	jsonData, err := r.redisClient.Get(ctx, key).Result()
	if err == nil {
		if err := json.Unmarshal([]byte(jsonData), &turns); err != nil {
			turns = nil
		}
	} else if err != redis.Nil {
		log.Warnf("读取历史缓存失败，跳过追加: %v", err)
		return
	}
	turns = append(turns, model.ChatTurn{Role: message.Role, Content: message.Content})
	if len(turns) > historyCacheLimit {
		turns = turns[len(turns)-historyCacheLimit:]
	}
	r.setHistoryCache(ctx, key, turns)
}

func (r *messageRepository) setHistoryCache(ctx context.Context, key string, turns []model.ChatTurn) {
	jsonData, err := json.Marshal(turns)
	if err != nil {
		log.Warnf("序列化历史缓存失败: %v", err)
		return
	}
	if err := r.redisClient.Set(ctx, key, jsonData, historyCacheTTL).Err(); err != nil {
		log.Warnf("写入历史缓存失败: %v", err)
	}
}
