// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"gemchat-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// ContextUserIDKey 是认证后的用户标识在 Gin 上下文中的键。
const ContextUserIDKey = "userID"

// AuthMiddleware 创建一个 Gin 中间件，验证外部身份提供方签发的令牌。
// 验证通过后把用户标识存入 Gin 的上下文，供后续处理函数读取。
// 本服务从不签发生产令牌，只做验证。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "请求未包含授权头"})
			return
		}

		// Token 以 "Bearer <token>" 的形式提供
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的授权头格式"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效或已过期的 token"})
			return
		}

		c.Set(ContextUserIDKey, claims.UserID())
		c.Next()
	}
}

// UserIDFrom 从 Gin 上下文读取认证后的用户标识，未认证时返回空串。
func UserIDFrom(c *gin.Context) string {
	userID, _ := c.Get(ContextUserIDKey)
	s, _ := userID.(string)
	return s
}
