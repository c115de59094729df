package persona

import (
	"context"
	"net/http"

	"future-self-go/internal/model"
	"future-self-go/internal/repository"
	"future-self-go/pkg/llm"
	"future-self-go/pkg/log"
)

// MemoryAccessor 读取用户最近的记忆，按 created_at 倒序，结果只包含该用户自己的记录。
type MemoryAccessor interface {
	RecentMemories(ctx context.Context, userID model.ID, limit int) ([]model.Memory, error)
}

type repositoryAccessor struct {
	repo repository.MemoryRepository
}

// NewMemoryAccessor 基于 MemoryRepository 创建 MemoryAccessor。
func NewMemoryAccessor(repo repository.MemoryRepository) MemoryAccessor {
	return &repositoryAccessor{repo: repo}
}

func (a *repositoryAccessor) RecentMemories(ctx context.Context, userID model.ID, limit int) ([]model.Memory, error) {
	return a.repo.ListByUser(ctx, userID, 0, limit)
}

// Service 执行一次完整的人格回复流程。
type Service struct {
	memories    MemoryAccessor
	llmClient   llm.Client
	memoryLimit int
	maxHistory  int
}

// NewService 创建人格服务。memoryLimit 与 maxHistory 分别是记忆窗口与历史窗口的大小。
func NewService(memories MemoryAccessor, llmClient llm.Client, memoryLimit, maxHistory int) *Service {
	return &Service{
		memories:    memories,
		llmClient:   llmClient,
		memoryLimit: memoryLimit,
		maxHistory:  maxHistory,
	}
}

// MemoryContext 返回格式化后的记忆上下文。数据源失败时返回 MemoriesUnavailableText，从不返回错误。
func (s *Service) MemoryContext(ctx context.Context, userID model.ID) string {
	memories, err := s.memories.RecentMemories(ctx, userID, s.memoryLimit)
	if err != nil {
		log.Errorw("Failed to fetch memories for persona context", "user_id", userID, "error", err)
		return MemoriesUnavailableText
	}
	return FormatMemories(memories)
}

// Respond 根据会话历史（已包含本轮用户消息）生成人格回复。
func (s *Service) Respond(ctx context.Context, user *model.User, history []model.Message) (string, error) {
	memoryContext := s.MemoryContext(ctx, user.ID)
	window := TruncateHistory(history, s.maxHistory)

	messages, err := AssemblePrompt(user.DisplayName(), user.Persona.Data(), memoryContext, window)
	if err != nil {
		return "", err
	}
	log.Debugf("Calling completion service for user '%s' with %d messages", user.ID, len(messages))

	reply, err := s.llmClient.Complete(ctx, messages)
	if err != nil {
		return "", err
	}
	if reply == "" {
		return "", &llm.ServiceError{StatusCode: http.StatusOK, Detail: "empty completion content"}
	}
	return reply, nil
}
