package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// InternalSecretMiddleware 保护仅供渲染 Worker 回连的内部接口。
func InternalSecretMiddleware(secret string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal api secret is not configured"})
			return
		}
		// 内部调用必须通过 Header 传递密钥，避免 query 泄露到浏览器/日志。
		token := strings.TrimSpace(c.GetHeader("X-Internal-Secret"))
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
