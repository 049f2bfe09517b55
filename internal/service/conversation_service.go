package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gemchat-go/internal/model"
	"gemchat-go/internal/repository"

	"gorm.io/gorm"
)

// ErrNotAuthenticated 表示调用方没有携带有效的用户身份。
var ErrNotAuthenticated = errors.New("user not authenticated")

// ErrEmptyTitle 表示标题在校验层就被拒绝，不会到达存储。
var ErrEmptyTitle = errors.New("title cannot be empty")

// ConversationService 定义了会话管理的业务逻辑接口。
// 读操作对未认证调用方降级为空结果；写操作直接失败。
type ConversationService interface {
	ListConversations(ctx context.Context, userID string) ([]model.Conversation, error)
	ListMessages(ctx context.Context, conversationID, userID string) ([]model.Message, error)
	CreateConversation(ctx context.Context, userID, title string) (*model.Conversation, error)
	RenameConversation(ctx context.Context, conversationID, userID, title string) error
	DeleteConversation(ctx context.Context, conversationID, userID string) error
}

type conversationService struct {
	convRepo repository.ConversationRepository
	msgRepo  repository.MessageRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(convRepo repository.ConversationRepository, msgRepo repository.MessageRepository) ConversationService {
	return &conversationService{convRepo: convRepo, msgRepo: msgRepo}
}

// ListConversations 返回用户的会话列表，按最近更新时间降序。
func (s *conversationService) ListConversations(ctx context.Context, userID string) ([]model.Conversation, error) {
	if userID == "" {
		return []model.Conversation{}, nil
	}
	conversations, err := s.convRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if conversations == nil {
		conversations = []model.Conversation{}
	}
	return conversations, nil
}

// ListMessages 返回会话内的消息，按创建时间升序。
// 先确认会话归属：不属于该用户的会话和不存在的会话一样，返回空列表。
func (s *conversationService) ListMessages(ctx context.Context, conversationID, userID string) ([]model.Message, error) {
	if userID == "" {
		return []model.Message{}, nil
	}
	if _, err := s.convRepo.FindByID(ctx, conversationID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []model.Message{}, nil
		}
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}
	messages, err := s.msgRepo.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []model.Message{}
	}
	return messages, nil
}

// CreateConversation 为用户创建一个新会话。
func (s *conversationService) CreateConversation(ctx context.Context, userID, title string) (*model.Conversation, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	if strings.TrimSpace(title) == "" {
		return nil, ErrEmptyTitle
	}
	conversation := &model.Conversation{UserID: userID, Title: title}
	if err := s.convRepo.Create(ctx, conversation); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conversation, nil
}

// RenameConversation 重命名会话。会话不属于该用户时，
// 过滤后的更新匹配零行，静默无操作。
func (s *conversationService) RenameConversation(ctx context.Context, conversationID, userID, title string) error {
	if userID == "" {
		return ErrNotAuthenticated
	}
	if strings.TrimSpace(title) == "" {
		return ErrEmptyTitle
	}
	if err := s.convRepo.Rename(ctx, conversationID, userID, title); err != nil {
		return fmt.Errorf("failed to rename conversation: %w", err)
	}
	return nil
}

// DeleteConversation 删除会话，消息先于会话行被删除。
func (s *conversationService) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	if userID == "" {
		return ErrNotAuthenticated
	}
	if err := s.convRepo.Delete(ctx, conversationID, userID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}
