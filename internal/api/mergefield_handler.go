package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"certCanvas/internal/design"
)

// ListMergeFields 返回动态字段目录，前端字段面板据此渲染。
// 目录是编译期常量，直接返回即可。
func ListMergeFields(c *gin.Context) {
	if _, ok := userIDFromContext(c); !ok {
		AbortUnauthorized(c)
		return
	}

	fields := design.CatalogFields()
	out := make([]gin.H, 0, len(fields))
	for _, f := range fields {
		out = append(out, gin.H{
			"key":    f.Key,
			"label":  f.Label,
			"sample": f.Sample,
		})
	}
	c.JSON(http.StatusOK, gin.H{"fields": out})
}
