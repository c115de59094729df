// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"future-self-go/internal/model"
	"future-self-go/internal/service"
	"future-self-go/pkg/llm"
	"future-self-go/pkg/log"
	"future-self-go/pkg/token"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserKey   = "user"
	ctxClaimsKey = "claims"
)

// statusFor 把业务错误映射为 HTTP 状态码与返回给客户端的消息。
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusUnprocessableEntity, strings.TrimPrefix(err.Error(), service.ErrValidation.Error()+": ")
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "Resource not found"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, strings.TrimPrefix(err.Error(), service.ErrConflict.Error()+": ")
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Incorrect username or password"
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, "Could not validate credentials"
	case errors.Is(err, service.ErrPersonaUnavailable),
		errors.Is(err, llm.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "AI服务暂时不可用，请稍后重试"
	case errors.Is(err, service.ErrSearchUnavailable),
		errors.Is(err, service.ErrAttachmentsUnavailable),
		errors.Is(err, service.ErrPreviewUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// respondError 统一输出错误响应，上游的详细信息只写日志。
func respondError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorw("Request failed", "method", c.Request.Method, "path", c.FullPath(), "status", status, "error", err)
	} else {
		log.Warnf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// badRequest 输出 422；请求体超过上限时输出 413。
func badRequest(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		log.Warnf("%s %s: request body exceeds %d bytes", c.Request.Method, c.FullPath(), tooLarge.Limit)
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "请求体过大"})
		return
	}
	log.Warnf("%s %s: invalid request payload: %v", c.Request.Method, c.FullPath(), err)
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "无效的请求负载", "detail": err.Error()})
}

// currentUser 取出由 AuthMiddleware 注入的用户。
func currentUser(c *gin.Context) *model.User {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}

func currentClaims(c *gin.Context) *token.CustomClaims {
	v, ok := c.Get(ctxClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*token.CustomClaims)
	return claims
}

// mustUser 在上下文中没有用户时直接返回 401。
func mustUser(c *gin.Context) (*model.User, bool) {
	user := currentUser(c)
	if user == nil {
		respondError(c, service.ErrUnauthorized)
		return nil, false
	}
	return user, true
}

// pathID 解析路径中的 ID，格式错误按资源不存在处理。
func pathID(c *gin.Context, name string) (model.ID, bool) {
	id, err := model.ParseID(c.Param(name))
	if err != nil {
		respondError(c, service.ErrNotFound)
		return "", false
	}
	return id, true
}

// pagination 解析 skip/limit 查询参数，范围校验交给 service。
func pagination(c *gin.Context) (skip, limit int, ok bool) {
	skip, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil {
		badRequest(c, errors.New("skip must be an integer"))
		return 0, 0, false
	}
	limit, err = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(service.DefaultPageLimit)))
	if err != nil {
		badRequest(c, errors.New("limit must be an integer"))
		return 0, 0, false
	}
	return skip, limit, true
}
