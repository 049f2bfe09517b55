// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"fmt"
	"time"

	"gemchat-go/internal/model"

	"gorm.io/gorm"
)

// ConversationRepository 定义了会话记录的持久化操作。
// 所有读写都以用户身份过滤，跨用户访问在这一层就被拦截。
type ConversationRepository interface {
	ListByUser(ctx context.Context, userID string) ([]model.Conversation, error)
	FindByID(ctx context.Context, conversationID, userID string) (*model.Conversation, error)
	Create(ctx context.Context, conversation *model.Conversation) error
	Rename(ctx context.Context, conversationID, userID, title string) error
	Delete(ctx context.Context, conversationID, userID string) error
	Touch(ctx context.Context, conversationID string) error
}

// conversationRepository 是 ConversationRepository 接口的 GORM 实现。
type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// ListByUser 返回用户的全部会话，按 updated_at 降序排列。
func (r *conversationRepository) ListByUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	var conversations []model.Conversation
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&conversations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

// FindByID 按会话 ID 和用户身份查找会话。
// 会话不存在或不属于该用户时返回 gorm.ErrRecordNotFound。
func (r *conversationRepository) FindByID(ctx context.Context, conversationID, userID string) (*model.Conversation, error) {
	var conversation model.Conversation
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", conversationID, userID).
		First(&conversation).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// Create 在数据库中创建一个新的会话记录。
func (r *conversationRepository) Create(ctx context.Context, conversation *model.Conversation) error {
	return r.db.WithContext(ctx).Create(conversation).Error
}

// Rename 更新会话标题。更新语句同时按用户过滤，
// 匹配零行（会话不属于该用户）时静默跳过。
func (r *conversationRepository) Rename(ctx context.Context, conversationID, userID, title string) error {
	return r.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("id = ? AND user_id = ?", conversationID, userID).
		Updates(map[string]interface{}{"title": title, "updated_at": time.Now()}).Error
}

// Delete 删除会话及其全部消息。先确认会话归属，
// 再分两步删除：消息在前，会话行在后（应用层维护引用完整性）。
// 不属于该用户的会话是无操作，不会触碰其他用户的数据。
func (r *conversationRepository) Delete(ctx context.Context, conversationID, userID string) error {
	if _, err := r.FindByID(ctx, conversationID, userID); err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return fmt.Errorf("failed to look up conversation: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Delete(&model.Message{}).Error; err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", conversationID, userID).
		Delete(&model.Conversation{}).Error; err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// Touch 将会话的 updated_at 刷新为当前时间。
func (r *conversationRepository) Touch(ctx context.Context, conversationID string) error {
	return r.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("id = ?", conversationID).
		Update("updated_at", time.Now()).Error
}
