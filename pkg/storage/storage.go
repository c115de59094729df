// Package storage 提供了附件的对象存储抽象及其 MinIO 与内存实现。
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound 表示对象不存在。
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore 是附件存储的能力集合。Put 返回可用于后续读取的稳定引用（对象键）。
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}
