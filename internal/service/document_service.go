package service

import (
	"context"
	"fmt"
	"io"
	"unicode/utf8"

	"future-self-go/internal/model"
	"future-self-go/pkg/storage"
)

// DefaultPreviewChars 是附件预览返回的最大字符数。
const DefaultPreviewChars = 10000

// TextExtractor 从文件流中提取纯文本，由 tika.Client 实现。
type TextExtractor interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// PreviewInfo 封装了附件预览所需的信息。
type PreviewInfo struct {
	Key       string `json:"key"`
	FileName  string `json:"file_name"`
	Content   string `json:"content"`
	FileSize  int64  `json:"file_size"`
	Truncated bool   `json:"truncated"`
}

// DocumentService 提供附件的纯文本预览。
type DocumentService interface {
	Preview(ctx context.Context, userID, memoryID model.ID, key string) (*PreviewInfo, error)
}

type documentService struct {
	memories  MemoryService
	objects   storage.ObjectStore
	extractor TextExtractor
	maxChars  int
}

// NewDocumentService 创建一个新的 DocumentService 实例。maxChars <= 0 时使用 DefaultPreviewChars。
func NewDocumentService(memories MemoryService, objects storage.ObjectStore, extractor TextExtractor, maxChars int) DocumentService {
	if maxChars <= 0 {
		maxChars = DefaultPreviewChars
	}
	return &documentService{memories: memories, objects: objects, extractor: extractor, maxChars: maxChars}
}

// Preview 获取附件的纯文本预览内容，key 必须属于调用者的该条记忆。
func (s *documentService) Preview(ctx context.Context, userID, memoryID model.ID, key string) (*PreviewInfo, error) {
	if s.objects == nil {
		return nil, ErrAttachmentsUnavailable
	}
	if s.extractor == nil {
		return nil, ErrPreviewUnavailable
	}
	memory, err := s.memories.Get(ctx, userID, memoryID)
	if err != nil {
		return nil, err
	}

	var target *model.Attachment
	for i := range memory.Attachments {
		if memory.Attachments[i].Key == key {
			target = &memory.Attachments[i]
			break
		}
	}
	if target == nil {
		return nil, ErrNotFound
	}

	object, err := s.objects.Get(ctx, target.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to open attachment: %w", err)
	}
	defer object.Close()

	// 将文件流发送给 Tika 进行文本提取
	content, err := s.extractor.ExtractText(ctx, object, target.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract attachment text: %w", err)
	}

	info := &PreviewInfo{Key: target.Key, FileName: target.FileName, FileSize: target.Size}
	info.Content, info.Truncated = truncateRunes(content, s.maxChars)
	return info, nil
}

func truncateRunes(s string, max int) (string, bool) {
	if utf8.RuneCountInString(s) <= max {
		return s, false
	}
	runes := []rune(s)
	return string(runes[:max]), true
}
