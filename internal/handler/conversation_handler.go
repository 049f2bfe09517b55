// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"gemchat-go/internal/middleware"
	"gemchat-go/internal/service"
	"gemchat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理会话管理相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// ListConversations 返回当前用户的会话列表。
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := middleware.UserIDFrom(c)

	conversations, err := h.service.ListConversations(c.Request.Context(), userID)
	if err != nil {
		log.Errorf("获取会话列表失败: user=%s, error: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "Failed to retrieve conversations",
			"data":    nil,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    conversations,
	})
}

// ListMessages 返回某个会话内的消息，按创建时间升序。
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	userID := middleware.UserIDFrom(c)
	conversationID := c.Param("conversationId")

	messages, err := h.service.ListMessages(c.Request.Context(), conversationID, userID)
	if err != nil {
		log.Errorf("获取消息列表失败: conversation=%s, error: %v", conversationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "Failed to retrieve messages",
			"data":    nil,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    messages,
	})
}

// CreateConversationRequest 定义了创建会话 API 的请求体结构。
type CreateConversationRequest struct {
	Title string `json:"title" binding:"required,min=1"`
}

// CreateConversation 显式创建一个新会话。
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title cannot be empty"})
		return
	}

	userID := middleware.UserIDFrom(c)
	conversation, err := h.service.CreateConversation(c.Request.Context(), userID, req.Title)
	if err != nil {
		h.writeError(c, "Failed to create conversation", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    conversation,
	})
}

// RenameConversationRequest 定义了重命名会话 API 的请求体结构。
type RenameConversationRequest struct {
	Title string `json:"title" binding:"required,min=1"`
}

// RenameConversation 更新会话标题。空标题在绑定层即被拒绝，不会到达存储。
func (h *ConversationHandler) RenameConversation(c *gin.Context) {
	var req RenameConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title cannot be empty"})
		return
	}

	userID := middleware.UserIDFrom(c)
	conversationID := c.Param("conversationId")
	if err := h.service.RenameConversation(c.Request.Context(), conversationID, userID, req.Title); err != nil {
		h.writeError(c, "Failed to rename conversation", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteConversation 删除会话及其全部消息。
func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	userID := middleware.UserIDFrom(c)
	conversationID := c.Param("conversationId")

	if err := h.service.DeleteConversation(c.Request.Context(), conversationID, userID); err != nil {
		h.writeError(c, "Failed to delete conversation", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// writeError 把业务错误映射为响应状态码。
func (h *ConversationHandler) writeError(c *gin.Context, msg string, err error) {
	if errors.Is(err, service.ErrNotAuthenticated) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	if errors.Is(err, service.ErrEmptyTitle) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title cannot be empty"})
		return
	}
	log.Errorf("%s: %v", msg, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
