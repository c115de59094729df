package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"future-self-go/internal/model"
	"future-self-go/internal/repository"
	"future-self-go/pkg/log"
)

// PersonaResponder 根据会话历史生成"未来的自己"的回复，由 persona.Service 实现。
type PersonaResponder interface {
	Respond(ctx context.Context, user *model.User, history []model.Message) (string, error)
}

// ConversationService 接口定义了会话相关的业务操作。
type ConversationService interface {
	// Create 以首条消息开启会话；人格回复失败时不落库。
	Create(ctx context.Context, user *model.User, initialMessage, title string) (*model.Conversation, error)
	// SendMessage 追加用户消息与人格回复；人格回复失败时两条都不落库。
	SendMessage(ctx context.Context, user *model.User, id model.ID, content string) (*model.Conversation, error)
	Get(ctx context.Context, userID, id model.ID) (*model.Conversation, error)
	List(ctx context.Context, userID model.ID, skip, limit int) ([]model.Conversation, error)
	Delete(ctx context.Context, userID, id model.ID) error
}

type conversationService struct {
	repo      repository.ConversationRepository
	history   repository.HistoryCache
	responder PersonaResponder
}

// NewConversationService 创建一个新的 ConversationService 实例。
// responder 为 nil 表示人格能力未配置；history 为 nil 时每次都从数据库读取历史。
func NewConversationService(repo repository.ConversationRepository, history repository.HistoryCache, responder PersonaResponder) ConversationService {
	return &conversationService{repo: repo, history: history, responder: responder}
}

// DefaultConversationTitle 返回形如 "Conversation 2024-05-01 14:30" 的默认标题（UTC）。
func DefaultConversationTitle(now time.Time) string {
	return "Conversation " + now.UTC().Format("2006-01-02 15:04")
}

func validateContent(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", validationf("message content must not be empty")
	}
	return content, nil
}

func (s *conversationService) Create(ctx context.Context, user *model.User, initialMessage, title string) (*model.Conversation, error) {
	content, err := validateContent(initialMessage)
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) > maxTitleLen {
		return nil, validationf("title must be at most %d characters", maxTitleLen)
	}
	if title == "" {
		title = DefaultConversationTitle(time.Now())
	}
	if s.responder == nil {
		return nil, ErrPersonaUnavailable
	}

	userMsg := model.NewMessage(model.RoleUser, content)
	reply, err := s.responder.Respond(ctx, user, []model.Message{userMsg})
	if err != nil {
		return nil, err
	}

	conv := &model.Conversation{
		ID:       model.NewID(),
		UserID:   user.ID,
		Title:    title,
		Messages: []model.Message{userMsg, model.NewMessage(model.RoleFutureSelf, reply)},
	}
	if err := s.repo.Create(ctx, conv); err != nil {
		return nil, translateRepoError(err)
	}
	log.Infow("Conversation created", "user_id", user.ID, "conversation_id", conv.ID)
	return conv, nil
}

// loadHistory 优先读取 Redis 中的历史窗口，未命中时使用数据库中的完整消息并回填缓存。
func (s *conversationService) loadHistory(ctx context.Context, conv *model.Conversation) []model.Message {
	if s.history == nil {
		return conv.Messages
	}
	cached, ok, err := s.history.Get(ctx, conv.ID)
	if err != nil {
		log.Warnf("Failed to read cached history for conversation %s: %v", conv.ID, err)
		return conv.Messages
	}
	if ok {
		return cached
	}
	if err := s.history.Store(ctx, conv.ID, conv.Messages); err != nil {
		log.Warnf("Failed to cache history for conversation %s: %v", conv.ID, err)
	}
	return conv.Messages
}

func (s *conversationService) SendMessage(ctx context.Context, user *model.User, id model.ID, content string) (*model.Conversation, error) {
	content, err := validateContent(content)
	if err != nil {
		return nil, err
	}
	conv, err := s.repo.FindByID(ctx, user.ID, id)
	if err != nil {
		return nil, translateRepoError(err)
	}
	if s.responder == nil {
		return nil, ErrPersonaUnavailable
	}

	userMsg := model.NewMessage(model.RoleUser, content)
	prior := s.loadHistory(ctx, conv)
	history := make([]model.Message, 0, len(prior)+1)
	history = append(history, prior...)
	history = append(history, userMsg)

	reply, err := s.responder.Respond(ctx, user, history)
	if err != nil {
		return nil, err
	}

	newMsgs := []model.Message{userMsg, model.NewMessage(model.RoleFutureSelf, reply)}
	if err := s.repo.AppendMessages(ctx, user.ID, id, newMsgs); err != nil {
		return nil, translateRepoError(err)
	}
	if s.history != nil {
		if err := s.history.Append(ctx, id, newMsgs...); err != nil {
			log.Warnf("Failed to append cached history for conversation %s: %v", id, err)
		}
	}

	conv.Messages = append(conv.Messages, newMsgs...)
	conv.UpdatedAt = time.Now().UTC()
	return conv, nil
}

func (s *conversationService) Get(ctx context.Context, userID, id model.ID) (*model.Conversation, error) {
	conv, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return conv, nil
}

func (s *conversationService) List(ctx context.Context, userID model.ID, skip, limit int) ([]model.Conversation, error) {
	if err := validatePage(skip, limit); err != nil {
		return nil, err
	}
	return s.repo.ListByUser(ctx, userID, skip, limit)
}

func (s *conversationService) Delete(ctx context.Context, userID, id model.ID) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return translateRepoError(err)
	}
	if s.history != nil {
		if err := s.history.Invalidate(ctx, id); err != nil {
			log.Warnf("Failed to invalidate cached history for conversation %s: %v", id, err)
		}
	}
	return nil
}
