package handler

import (
	"errors"
	"net/http"

	"gemchat-go/internal/middleware"
	"gemchat-go/internal/model"
	"gemchat-go/internal/service"
	"gemchat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ChatHandler 处理消息回合相关的 API 请求。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// SendMessageRequest 定义了发送消息 API 的请求体结构。
// conversationId 允许 "new" 哨兵值；imageData 是可选的 data URI。
type SendMessageRequest struct {
	Message             string           `json:"message" binding:"required,min=1"`
	ConversationID      string           `json:"conversationId" binding:"required"`
	ImageData           string           `json:"imageData"`
	ConversationHistory []model.ChatTurn `json:"conversationHistory"`
}

// SendMessage 处理一次用户回合。
// 模型侧失败不会让这个接口返回错误，它们已被编排层转换为回复文案；
// 只有认证、会话归属和会话创建失败会变成非 200 响应。
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("SendMessage: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message cannot be empty"})
		return
	}

	userID := middleware.UserIDFrom(c)
	result, err := h.chatService.SendMessage(c.Request.Context(), userID, service.SendMessageInput{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		ImageData:      req.ImageData,
		History:        req.ConversationHistory,
	})
	if err != nil {
		if errors.Is(err, service.ErrNotAuthenticated) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}
		if errors.Is(err, service.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
			return
		}
		log.Errorf("SendMessage 失败: user=%s, error: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process message"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"content":        result.Content,
		"messageType":    result.MessageType,
		"imageUrl":       result.ImageURL,
		"conversationId": result.ConversationID,
	})
}
