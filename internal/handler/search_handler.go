package handler

import (
	"net/http"
	"strconv"

	"gemchat-go/internal/middleware"
	"gemchat-go/internal/service"
	"gemchat-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 处理消息检索相关的 API 请求。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// SearchMessages 在当前用户自己的消息里做全文检索。
func (h *SearchHandler) SearchMessages(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的查询参数"})
		return
	}

	limitStr := c.DefaultQuery("limit", "20")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 20
	}

	userID := middleware.UserIDFrom(c)
	hits, err := h.searchService.SearchMessages(c.Request.Context(), userID, query, limit)
	if err != nil {
		log.Errorf("[SearchHandler] 消息检索失败, query: '%s', error: %v", query, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "搜索失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": hits})
}
