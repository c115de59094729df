// Package pipeline 定义了记忆检索索引的处理流程：
// 读取记忆、提取附件文本、可选向量化，并写入 Elasticsearch。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"future-self-go/internal/metrics"
	"future-self-go/internal/model"
	"future-self-go/internal/repository"
	"future-self-go/pkg/log"
	"future-self-go/pkg/storage"
	"future-self-go/pkg/tasks"
)

// maxAttachmentRunes 限制写入索引的附件文本总长度。
const maxAttachmentRunes = 20000

// SearchIndex 是索引写入端，由 es.Client 实现。
type SearchIndex interface {
	IndexMemory(ctx context.Context, doc model.MemoryDocument) error
	DeleteMemory(ctx context.Context, memoryID string) error
}

// TextExtractor 从附件中提取纯文本，由 tika.Client 实现。
type TextExtractor interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// Embedder 把文本转换为向量，由 embedding.Client 实现。
type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Indexer 封装了记忆索引的所有依赖和逻辑。extractor 与 embedder 可以为 nil。
type Indexer struct {
	memories  repository.MemoryRepository
	objects   storage.ObjectStore
	index     SearchIndex
	extractor TextExtractor
	embedder  Embedder
}

// NewIndexer 创建一个新的 Indexer 实例。
func NewIndexer(
	memories repository.MemoryRepository,
	objects storage.ObjectStore,
	index SearchIndex,
	extractor TextExtractor,
	embedder Embedder,
) *Indexer {
	return &Indexer{
		memories:  memories,
		objects:   objects,
		index:     index,
		extractor: extractor,
		embedder:  embedder,
	}
}

// Process 处理一个索引任务。记忆已被删除时，upsert 退化为删除索引文档。
func (p *Indexer) Process(ctx context.Context, task tasks.MemoryIndexTask) (err error) {
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.IndexTasksTotal.WithLabelValues(string(task.Op), status).Inc()
	}()

	memoryID, err := model.ParseID(task.MemoryID)
	if err != nil {
		return fmt.Errorf("invalid memory id %q: %w", task.MemoryID, err)
	}
	userID, err := model.ParseID(task.UserID)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", task.UserID, err)
	}

	switch task.Op {
	case tasks.OpDelete:
		return p.remove(ctx, memoryID)
	case tasks.OpUpsert:
		memory, err := p.memories.FindByID(ctx, userID, memoryID)
		if errors.Is(err, repository.ErrNotFound) {
			log.Infof("[Indexer] 记忆 %s 已不存在，删除索引文档", memoryID)
			return p.remove(ctx, memoryID)
		}
		if err != nil {
			return fmt.Errorf("failed to load memory: %w", err)
		}
		return p.upsert(ctx, memory)
	default:
		return fmt.Errorf("unknown index op %q", task.Op)
	}
}

func (p *Indexer) remove(ctx context.Context, memoryID model.ID) error {
	if err := p.index.DeleteMemory(ctx, memoryID.String()); err != nil {
		return fmt.Errorf("failed to delete memory document: %w", err)
	}
	return nil
}

func (p *Indexer) upsert(ctx context.Context, memory *model.Memory) error {
	doc := model.MemoryDocument{
		MemoryID:     memory.ID.String(),
		UserID:       memory.UserID.String(),
		Title:        memory.Title,
		Description:  memory.Description,
		Tags:         append([]string{}, memory.Tags...),
		Significance: memory.Significance,
		CreatedAt:    memory.CreatedAt.UTC().Format(time.RFC3339),
	}
	doc.AttachmentText = p.attachmentText(ctx, memory)

	if p.embedder != nil {
		vector, err := p.embedder.CreateEmbedding(ctx, embeddingInput(memory))
		if err != nil {
			return fmt.Errorf("向量化失败: %w", err)
		}
		doc.Vector = vector
	}

	if err := p.index.IndexMemory(ctx, doc); err != nil {
		return fmt.Errorf("索引到 Elasticsearch 失败: %w", err)
	}
	log.Infof("[Indexer] 记忆索引成功, MemoryID: %s, 附件文本长度: %d", memory.ID, utf8.RuneCountInString(doc.AttachmentText))
	return nil
}

// attachmentText 逐个提取附件文本。单个附件失败只记录日志，不影响记忆本身的索引。
func (p *Indexer) attachmentText(ctx context.Context, memory *model.Memory) string {
	if p.extractor == nil || p.objects == nil || len(memory.Attachments) == 0 {
		return ""
	}
	parts := make([]string, 0, len(memory.Attachments))
	for _, att := range memory.Attachments {
		text, err := p.extract(ctx, att)
		if err != nil {
			log.Warnf("[Indexer] 附件文本提取失败, Key: %s, Error: %v", att.Key, err)
			continue
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return truncateRunes(strings.Join(parts, "\n\n"), maxAttachmentRunes)
}

func (p *Indexer) extract(ctx context.Context, att model.Attachment) (string, error) {
	obj, err := p.objects.Get(ctx, att.Key)
	if err != nil {
		return "", err
	}
	defer obj.Close()
	return p.extractor.ExtractText(ctx, obj, att.FileName)
}

func embeddingInput(memory *model.Memory) string {
	var b strings.Builder
	b.WriteString(memory.Title)
	b.WriteString("\n")
	b.WriteString(memory.Description)
	if len(memory.Tags) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(memory.Tags, ", "))
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
