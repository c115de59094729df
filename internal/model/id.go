// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidID 表示无法解析的标识符。
var ErrInvalidID = errors.New("invalid identifier")

// ID 是所有实体共用的不透明标识符，文本形式为规范化的 UUID。
// 只能通过 NewID 或 ParseID 构造，在 HTTP 边界解析一次后不再重复校验。
type ID string

// NewID 生成一个新的随机标识符。
func NewID() ID {
	return ID(uuid.NewString())
}

// ParseID 解析外部输入的标识符。
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", ErrInvalidID
	}
	return ID(u.String()), nil
}

// MustParseID 仅用于测试与常量初始化。
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID) String() string {
	return string(id)
}

// IsZero 报告标识符是否未设置。
func (id ID) IsZero() bool {
	return id == ""
}
