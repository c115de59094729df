package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// DefaultMaxJSONBytes 是非 multipart 请求体的默认上限。
const DefaultMaxJSONBytes = 1 << 20

// BodyLimit 限制请求体大小：multipart 请求使用 maxMultipart，其余使用 maxJSON。
// 上限 <= 0 表示不限制。超出时读取请求体会返回 *http.MaxBytesError。
func BodyLimit(maxJSON, maxMultipart int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := maxJSON
		if strings.HasPrefix(c.ContentType(), "multipart/") {
			limit = maxMultipart
		}
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
