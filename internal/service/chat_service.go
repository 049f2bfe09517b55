package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"gemchat-go/internal/model"
	"gemchat-go/internal/repository"
	"gemchat-go/pkg/gemini"
	"gemchat-go/pkg/log"
	"gemchat-go/pkg/tasks"

	"gorm.io/gorm"
)

// NewConversationSentinel 是 sendMessage 中"创建新会话"的哨兵值。
const NewConversationSentinel = "new"

// ErrConversationNotFound 表示目标会话不存在或不属于该用户。
var ErrConversationNotFound = errors.New("conversation not found")

// 标题合成：超过 50 个字符时截断并追加省略号。
const maxTitleRunes = 50

// 四条互斥的用户可见文案。模型方的原始错误文本永远不会出现在这里，
// 只进日志。
const (
	defaultAssistantContent = "I'm an AI assistant powered by Gemini. How can I help you today?"

	quotaExceededContent = "🚫 **Service Temporarily Unavailable**\n\n" +
		"I'm experiencing high demand right now. Please try again in a few moments, " +
		"or consider upgrading your API plan for higher quotas.\n\n" +
		"*This helps ensure consistent service for all users.*"

	processingErrorContent = "⚠️ **Processing Error**\n\n" +
		"I encountered an issue while processing your request. Please try rephrasing " +
		"your message or try again in a moment.\n\n" +
		"*If the issue persists, please check your connection.*"

	serviceIssueContent = "⚠️ **Temporary Service Issue**\n\n" +
		"I'm having trouble connecting to my AI services right now. Please try again " +
		"in a moment.\n\n" +
		"*This is usually a temporary issue that resolves quickly.*"
)

// SendMessageInput 是一次用户回合的输入。
type SendMessageInput struct {
	Message        string
	ConversationID string // 会话 ID 或 "new" 哨兵
	ImageData      string // 可选，data URI
	History        []model.ChatTurn
}

// SendMessageResult 是一次完整回合的统一结果。
// ConversationID 永远回传工作会话 ID，调用方以 "new" 发起时据此采用新 ID。
type SendMessageResult struct {
	Content        string  `json:"content"`
	MessageType    string  `json:"messageType"`
	ImageURL       *string `json:"imageUrl,omitempty"`
	ConversationID string  `json:"conversationId"`
}

// ChatImageStore 把上传的聊天图片落到对象存储，返回可访问的 URL。
type ChatImageStore interface {
	PutImage(ctx context.Context, payload []byte, mimeType string) (string, error)
}

// IndexTaskProducer 投递消息索引任务。
type IndexTaskProducer interface {
	ProduceIndexTask(task tasks.MessageIndexTask) error
}

// ChatService 是每条用户消息触发的回合编排：
// 解析或创建目标会话 -> 落库用户回合 -> 调用模型 -> 可选地解析图片 ->
// 落库助手回合 -> 刷新会话时间戳 -> 返回统一结果。
type ChatService interface {
	SendMessage(ctx context.Context, userID string, in SendMessageInput) (*SendMessageResult, error)
}

type chatService struct {
	convRepo   repository.ConversationRepository
	msgRepo    repository.MessageRepository
	llmClient  gemini.Client
	imageSvc   ImageService
	imageStore ChatImageStore    // 可为 nil，未配置对象存储时跳过
	producer   IndexTaskProducer // 可为 nil，未配置消息队列时跳过
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	llmClient gemini.Client,
	imageSvc ImageService,
	imageStore ChatImageStore,
	producer IndexTaskProducer,
) ChatService {
	return &chatService{
		convRepo:   convRepo,
		msgRepo:    msgRepo,
		llmClient:  llmClient,
		imageSvc:   imageSvc,
		imageStore: imageStore,
		producer:   producer,
	}
}

// SendMessage 执行一个完整回合。模型侧的任何失败都被吞进回复文案，
// 调用方拿到的仍是成功结果；只有认证失败和会话创建失败会作为错误传播。
func (s *chatService) SendMessage(ctx context.Context, userID string, in SendMessageInput) (*SendMessageResult, error) {
	// 1. 必须有认证身份
	if userID == "" {
		return nil, ErrNotAuthenticated
	}

	// 2. 解析工作会话：哨兵值触发创建，否则校验归属
	conversationID := in.ConversationID
	if conversationID == NewConversationSentinel {
		conversation := &model.Conversation{UserID: userID, Title: synthesizeTitle(in.Message)}
		if err := s.convRepo.Create(ctx, conversation); err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		conversationID = conversation.ID
	} else {
		if _, err := s.convRepo.FindByID(ctx, conversationID, userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrConversationNotFound
			}
			return nil, fmt.Errorf("failed to look up conversation: %w", err)
		}
	}

	// 3. 调用方没带历史且会话已有记录时，从存储重建上下文。
	// 重建必须发生在当前回合落库之前，否则当前消息会先进入历史、
	// 再作为发出的这条消息重复出现。
	history := in.History
	if len(history) == 0 && in.ConversationID != NewConversationSentinel {
		turns, err := s.msgRepo.RecentTurns(ctx, conversationID)
		if err != nil {
			log.Warnf("重建会话历史失败，以空历史继续: %v", err)
		} else {
			history = turns
		}
	}

	// 4. 落库用户回合。失败只记日志，不中断整个回合。
	userMessage := &model.Message{
		ConversationID: conversationID,
		Role:           model.RoleUser,
		Content:        in.Message,
		MessageType:    model.MessageTypeText,
	}
	if in.ImageData != "" {
		userMessage.MessageType = model.MessageTypeImage
		if url := s.storeUploadedImage(ctx, in.ImageData); url != "" {
			userMessage.ImageURL = &url
		}
	}
	if err := s.msgRepo.Create(ctx, userMessage); err != nil {
		log.Errorf("保存用户消息失败: conversation=%s, error: %v", conversationID, err)
	} else {
		s.produceIndexTask(userID, userMessage)
	}

	// 5. 调用模型。
	result := s.llmClient.Converse(ctx, in.Message, toGeminiTurns(history), in.ImageData)

	// 6. 对封闭的结果类型逐一匹配，恰好选出一条回复文案。
	content := defaultAssistantContent
	messageType := model.MessageTypeText
	var imageURL *string

	switch result.Outcome {
	case gemini.OutcomeOK:
		if result.Type == gemini.TypeImageGeneration {
			image := s.imageSvc.Resolve(ctx, result.ImagePrompt)
			content = composeImageContent(result.ImagePrompt, image.Description)
			messageType = model.MessageTypeImage
			imageURL = &image.ImageURL
		} else if result.Content != "" {
			content = result.Content
		}
	case gemini.OutcomeQuotaExceeded:
		log.Warnf("模型配额耗尽: %s", result.Err)
		content = quotaExceededContent
	case gemini.OutcomeProviderError:
		log.Errorf("模型调用失败: %s", result.Err)
		content = processingErrorContent
	case gemini.OutcomeTransportError:
		log.Errorf("模型服务不可达: %s", result.Err)
		content = serviceIssueContent
	}

	// 7. 落库助手回合。同样只记日志，不中断。
	assistantMessage := &model.Message{
		ConversationID: conversationID,
		Role:           model.RoleAssistant,
		Content:        content,
		MessageType:    messageType,
		ImageURL:       imageURL,
	}
	if err := s.msgRepo.Create(ctx, assistantMessage); err != nil {
		log.Errorf("保存助手消息失败: conversation=%s, error: %v", conversationID, err)
	} else {
		s.produceIndexTask(userID, assistantMessage)
	}

	// 8. 刷新会话的 updated_at
	if err := s.convRepo.Touch(ctx, conversationID); err != nil {
		log.Errorf("刷新会话时间戳失败: conversation=%s, error: %v", conversationID, err)
	}

	// 9. 回传工作会话 ID
	return &SendMessageResult{
		Content:        content,
		MessageType:    messageType,
		ImageURL:       imageURL,
		ConversationID: conversationID,
	}, nil
}

// storeUploadedImage 把 data URI 里的图片解码后写入对象存储。
// 任何一步失败都只记日志，回合继续，只是少了一个可回放的 URL。
func (s *chatService) storeUploadedImage(ctx context.Context, imageData string) string {
	if s.imageStore == nil {
		return ""
	}
	mimeType, payload, err := gemini.ParseDataURI(imageData)
	if err != nil {
		log.Warnf("上传的图片不是合法的 data URI: %v", err)
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		log.Warnf("解码图片数据失败: %v", err)
		return ""
	}
	url, err := s.imageStore.PutImage(ctx, raw, mimeType)
	if err != nil {
		log.Warnf("保存上传图片到对象存储失败: %v", err)
		return ""
	}
	return url
}

// produceIndexTask 投递索引任务，尽力而为。
func (s *chatService) produceIndexTask(userID string, message *model.Message) {
	if s.producer == nil {
		return
	}
	task := tasks.MessageIndexTask{
		MessageID:      message.ID,
		ConversationID: message.ConversationID,
		UserID:         userID,
		Role:           message.Role,
		Content:        message.Content,
		MessageType:    message.MessageType,
		CreatedAt:      message.CreatedAt,
	}
	if err := s.producer.ProduceIndexTask(task); err != nil {
		log.Warnf("投递消息索引任务失败: message=%s, error: %v", message.ID, err)
	}
}

// synthesizeTitle 用首条消息合成会话标题：超长截断到 50 字符加省略号。
func synthesizeTitle(message string) string {
	runes := []rune(message)
	if len(runes) > maxTitleRunes {
		return string(runes[:maxTitleRunes]) + "..."
	}
	return message
}

// composeImageContent 为图片生成回合组装富文本回复。
func composeImageContent(optimizedPrompt, description string) string {
	return fmt.Sprintf("🎨 **Image Generated Successfully**\n\n"+
		"**Optimized Prompt:** %s\n\n%s\n\n"+
		"*Powered by Gemini AI*", optimizedPrompt, description)
}

func toGeminiTurns(history []model.ChatTurn) []gemini.Turn {
	if len(history) == 0 {
		return nil
	}
	turns := make([]gemini.Turn, 0, len(history))
	for _, t := range history {
		turns = append(turns, gemini.Turn{Role: t.Role, Content: t.Content})
	}
	return turns
}
