// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"study-indexer-go/internal/model"
	"study-indexer-go/pkg/token"
)

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它从请求头中提取 token，验证其有效性，并将请求方身份存入 Gin 的上下文中。
// 身份信息（用户、角色、选课列表）完全来自 token claims，本服务不维护用户表。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 从 Authorization 请求头中获取 token
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			// 如果请求头为空，则中止请求，返回未授权状态
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "请求未包含授权头"})
			return
		}

		// Token 通常以 "Bearer <token>" 的形式提供，我们需要提取出 token 本身
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

		// 将请求方身份存储在 context 中，供后续处理函数使用
		requester := &model.Requester{
			UserID:   claims.UserID,
			Username: claims.Username,
			Role:     claims.Role,
			Courses:  claims.Courses,
		}
		c.Set("requester", requester)

		// 继续处理请求链中的下一个处理器
		c.Next()
	}
}

// RequesterFrom 从 Gin 上下文中取出 AuthMiddleware 写入的请求方身份。
func RequesterFrom(c *gin.Context) (*model.Requester, bool) {
	value, exists := c.Get("requester")
	if !exists {
		return nil, false
	}
	requester, ok := value.(*model.Requester)
	return requester, ok
}
