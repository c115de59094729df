// Package service 包含了应用的业务逻辑层。
package service

import (
	"errors"
	"fmt"

	"future-self-go/internal/repository"
)

// 业务错误分类，由 handler 统一映射为 HTTP 状态码。
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("resource not found")
	ErrConflict           = errors.New("resource already exists")
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrUnauthorized       = errors.New("could not validate credentials")
	// ErrPersonaUnavailable 表示补全服务凭证缺失，人格对话能力未初始化。
	ErrPersonaUnavailable = errors.New("AI persona service is not configured")
	// ErrSearchUnavailable 表示未配置 Elasticsearch。
	ErrSearchUnavailable = errors.New("memory search is not configured")
	// ErrAttachmentsUnavailable 表示未配置对象存储。
	ErrAttachmentsUnavailable = errors.New("attachment storage is not configured")
	// ErrPreviewUnavailable 表示未配置 Tika，附件无法预览。
	ErrPreviewUnavailable = errors.New("attachment preview is not configured")
)

// validationf 创建一个包裹 ErrValidation 的错误，消息会原样返回给客户端。
func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// translateRepoError 把仓储层的哨兵错误转换为业务错误。
func translateRepoError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return ErrConflict
	default:
		return err
	}
}

const (
	// DefaultPageLimit 是列表接口的默认页大小。
	DefaultPageLimit = 20
	// MaxPageLimit 是列表接口允许的最大页大小。
	MaxPageLimit = 100
)

// validatePage 校验分页参数：skip >= 0，1 <= limit <= 100。
func validatePage(skip, limit int) error {
	if skip < 0 {
		return validationf("skip must be greater than or equal to 0")
	}
	if limit < 1 || limit > MaxPageLimit {
		return validationf("limit must be between 1 and %d", MaxPageLimit)
	}
	return nil
}
