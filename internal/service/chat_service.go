package service

import (
	"context"
	"strings"

	"future-self-go/internal/model"
)

// ChatTurn 是 WebSocket 通道上的一轮输入。ConversationID 为空时开启新会话。
type ChatTurn struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Title          string `json:"title,omitempty"`
	Content        string `json:"content"`
}

// ChatReply 是一轮对话的结果。
type ChatReply struct {
	ConversationID model.ID      `json:"conversation_id"`
	Title          string        `json:"title"`
	Message        model.Message `json:"message"`
}

// ChatService 定义了实时聊天通道的接口，复用会话服务的人格流程。
type ChatService interface {
	Turn(ctx context.Context, user *model.User, turn ChatTurn) (*ChatReply, error)
}

type chatService struct {
	conversations ConversationService
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(conversations ConversationService) ChatService {
	return &chatService{conversations: conversations}
}

// Turn 执行一轮对话并返回人格回复。
func (s *chatService) Turn(ctx context.Context, user *model.User, turn ChatTurn) (*ChatReply, error) {
	var (
		conv *model.Conversation
		err  error
	)
	if strings.TrimSpace(turn.ConversationID) == "" {
		conv, err = s.conversations.Create(ctx, user, turn.Content, turn.Title)
	} else {
		id, parseErr := model.ParseID(turn.ConversationID)
		if parseErr != nil {
			return nil, ErrNotFound
		}
		conv, err = s.conversations.SendMessage(ctx, user, id, turn.Content)
	}
	if err != nil {
		return nil, err
	}
	return &ChatReply{
		ConversationID: conv.ID,
		Title:          conv.Title,
		Message:        conv.Messages[len(conv.Messages)-1],
	}, nil
}
