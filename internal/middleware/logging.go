// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"future-self-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// 超过该长度的请求/响应体在日志中被截断。
const maxLoggedBody = 2048

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 实现了 io.Writer 接口，将响应写入 gin.ResponseWriter 和一个内部的 buffer
func (w bodyLogWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody - w.body.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		w.body.Write(b[:room])
	}
	return w.ResponseWriter.Write(b)
}

// sensitivePaths 的请求与响应包含密码或 token，正文不写入日志。
var sensitivePaths = []string{"/auth/", "/chat/"}

// loggableBody 判断请求与响应的正文是否可以写入日志。
func loggableBody(c *gin.Context) bool {
	if strings.HasPrefix(c.ContentType(), "multipart/") || c.GetHeader("Upgrade") != "" {
		return false
	}
	for _, p := range sensitivePaths {
		if strings.Contains(c.Request.URL.Path, p) {
			return false
		}
	}
	return true
}

// loggedPath 优先使用路由模板，避免把路径参数中的 token 写入日志。
func loggedPath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}

// peekBody 最多读取 maxLoggedBody+1 字节用于日志，并把已读部分放回请求体。
func peekBody(c *gin.Context) string {
	head, _ := io.ReadAll(io.LimitReader(c.Request.Body, maxLoggedBody+1))
	c.Request.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(head), c.Request.Body), Closer: c.Request.Body}
	if len(head) > maxLoggedBody {
		return string(head[:maxLoggedBody]) + "...(truncated)"
	}
	return string(head)
}

type readCloser struct {
	io.Reader
	io.Closer
}

// RequestLogger 是一个 Gin 中间件，用于记录请求和响应日志。
// 认证、WebSocket 与文件上传请求只记录元数据。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		logBody := loggableBody(c)
		var requestBody string
		var blw *bodyLogWriter
		if logBody {
			if c.Request.Body != nil {
				requestBody = peekBody(c)
			}
			blw = &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
			c.Writer = blw
		}

		c.Next()

		fields := []interface{}{
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", loggedPath(c),
		}
		if logBody {
			fields = append(fields, "requestBody", requestBody, "responseBody", blw.body.String())
		}
		log.Infow("HTTP Request Log", fields...)
	}
}
