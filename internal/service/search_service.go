package service

import (
	"context"
	"strings"

	"future-self-go/internal/model"
	"future-self-go/internal/repository"
	"future-self-go/pkg/log"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// SearchBackend 是检索端，由 es.Client 实现。
type SearchBackend interface {
	SearchMemories(ctx context.Context, userID, query string, queryVector []float32, size int) ([]model.SearchHit, error)
}

// QueryEmbedder 把查询文本向量化，由 embedding.Client 实现。
type QueryEmbedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// SearchService 定义了记忆检索的接口。
type SearchService interface {
	SearchMemories(ctx context.Context, userID model.ID, query string, limit int) ([]model.MemorySearchResult, error)
}

type searchService struct {
	backend  SearchBackend
	embedder QueryEmbedder
	memories repository.MemoryRepository
}

// NewSearchService 创建一个新的 SearchService 实例。backend 为 nil 时检索不可用，embedder 可以为 nil。
func NewSearchService(backend SearchBackend, embedder QueryEmbedder, memories repository.MemoryRepository) SearchService {
	return &searchService{backend: backend, embedder: embedder, memories: memories}
}

// SearchMemories 在 ES 中检索后通过仓储回表，回表同样按 userID 限定，索引中的陈旧文档会被丢弃。
func (s *searchService) SearchMemories(ctx context.Context, userID model.ID, query string, limit int) ([]model.MemorySearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, validationf("query must not be empty")
	}
	if limit == 0 {
		limit = defaultSearchLimit
	}
	if limit < 1 || limit > maxSearchLimit {
		return nil, validationf("limit must be between 1 and %d", maxSearchLimit)
	}
	if s.backend == nil {
		return nil, ErrSearchUnavailable
	}

	var vector []float32
	if s.embedder != nil {
		v, err := s.embedder.CreateEmbedding(ctx, query)
		if err != nil {
			log.Warnf("Query embedding failed, falling back to text search: %v", err)
		} else {
			vector = v
		}
	}

	hits, err := s.backend.SearchMemories(ctx, userID.String(), query, vector, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]model.ID, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.MemoryID)
	}
	memories, err := s.memories.FindByIDs(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[model.ID]model.Memory, len(memories))
	for _, m := range memories {
		byID[m.ID] = m
	}

	results := make([]model.MemorySearchResult, 0, len(hits))
	for _, h := range hits {
		m, ok := byID[h.MemoryID]
		if !ok {
			continue
		}
		results = append(results, model.MemorySearchResult{Memory: m, Score: h.Score})
	}
	return results, nil
}
