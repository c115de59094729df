package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"future-self-go/internal/model"

	"gorm.io/datatypes"
)

// 内存实现用于测试与本地开发，返回值都是副本，调用方修改不会影响存储。

type memoryUserRepository struct {
	mu    sync.RWMutex
	users map[model.ID]model.User
}

// NewMemoryUserRepository 创建内存版 UserRepository。
func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{users: make(map[model.ID]model.User)}
}

func (r *memoryUserRepository) conflicts(u *model.User) bool {
	for id, existing := range r.users {
		if id == u.ID {
			continue
		}
		if strings.EqualFold(existing.Email, u.Email) {
			return true
		}
		if u.Username != nil && existing.Username != nil && *existing.Username == *u.Username {
			return true
		}
	}
	return false
}

func (r *memoryUserRepository) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; ok || r.conflicts(user) {
		return ErrDuplicate
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	r.users[user.ID] = cloneUser(*user)
	return nil
}

func (r *memoryUserRepository) find(match func(model.User) bool) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if match(u) {
			c := cloneUser(u)
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryUserRepository) FindByID(_ context.Context, id model.ID) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.ID == id })
}

func (r *memoryUserRepository) FindByEmail(_ context.Context, email string) (*model.User, error) {
	return r.find(func(u model.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *memoryUserRepository) FindByUsername(_ context.Context, username string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.Username != nil && *u.Username == username })
}

func (r *memoryUserRepository) Update(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return ErrNotFound
	}
	if r.conflicts(user) {
		return ErrDuplicate
	}
	user.UpdatedAt = time.Now().UTC()
	r.users[user.ID] = cloneUser(*user)
	return nil
}

func cloneUser(u model.User) model.User {
	if u.Username != nil {
		name := *u.Username
		u.Username = &name
	}
	p := u.Persona.Data()
	p.KeyLifeLessons = append([]string(nil), p.KeyLifeLessons...)
	p.WisdomSnippets = append([]string(nil), p.WisdomSnippets...)
	u.Persona = datatypes.NewJSONType(p)
	return u
}

type memoryMemoryRepository struct {
	mu       sync.RWMutex
	memories map[model.ID]memoryEntry
	next     int64
}

type memoryEntry struct {
	memory model.Memory
	order  int64
}

// NewMemoryMemoryRepository 创建内存版 MemoryRepository。
func NewMemoryMemoryRepository() MemoryRepository {
	return &memoryMemoryRepository{memories: make(map[model.ID]memoryEntry)}
}

func cloneMemory(m model.Memory) model.Memory {
	m.Tags = append(datatypes.JSONSlice[string]{}, m.Tags...)
	m.Attachments = append(datatypes.JSONSlice[model.Attachment]{}, m.Attachments...)
	return m
}

func (r *memoryMemoryRepository) Create(_ context.Context, memory *model.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.memories[memory.ID]; ok {
		return ErrDuplicate
	}
	now := time.Now().UTC()
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = now
	}
	memory.UpdatedAt = now
	r.next++
	r.memories[memory.ID] = memoryEntry{memory: cloneMemory(*memory), order: r.next}
	return nil
}

func (r *memoryMemoryRepository) FindByID(_ context.Context, userID, id model.ID) (*model.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.memories[id]
	if !ok || e.memory.UserID != userID {
		return nil, ErrNotFound
	}
	m := cloneMemory(e.memory)
	return &m, nil
}

func (r *memoryMemoryRepository) FindByIDs(_ context.Context, userID model.ID, ids []model.ID) ([]model.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Memory, 0, len(ids))
	for _, id := range ids {
		if e, ok := r.memories[id]; ok && e.memory.UserID == userID {
			out = append(out, cloneMemory(e.memory))
		}
	}
	return out, nil
}

func (r *memoryMemoryRepository) ListByUser(_ context.Context, userID model.ID, skip, limit int) ([]model.Memory, error) {
	r.mu.RLock()
	entries := make([]memoryEntry, 0)
	for _, e := range r.memories {
		if e.memory.UserID == userID {
			entries = append(entries, e)
		}
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.memory.CreatedAt.Equal(b.memory.CreatedAt) {
			return a.memory.CreatedAt.After(b.memory.CreatedAt)
		}
		return a.order > b.order
	})
	out := make([]model.Memory, 0, limit)
	for _, e := range page(entries, skip, limit) {
		out = append(out, cloneMemory(e.memory))
	}
	return out, nil
}

func (r *memoryMemoryRepository) Update(_ context.Context, memory *model.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.memories[memory.ID]
	if !ok || e.memory.UserID != memory.UserID {
		return ErrNotFound
	}
	memory.CreatedAt = e.memory.CreatedAt
	memory.UpdatedAt = time.Now().UTC()
	e.memory = cloneMemory(*memory)
	r.memories[memory.ID] = e
	return nil
}

func (r *memoryMemoryRepository) Delete(_ context.Context, userID, id model.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.memories[id]
	if !ok || e.memory.UserID != userID {
		return ErrNotFound
	}
	delete(r.memories, id)
	return nil
}

type memoryConversationRepository struct {
	mu    sync.RWMutex
	convs map[model.ID]model.Conversation
}

// NewMemoryConversationRepository 创建内存版 ConversationRepository。
func NewMemoryConversationRepository() ConversationRepository {
	return &memoryConversationRepository{convs: make(map[model.ID]model.Conversation)}
}

func cloneConversation(c model.Conversation) model.Conversation {
	c.Messages = append([]model.Message{}, c.Messages...)
	return c
}

func (r *memoryConversationRepository) Create(_ context.Context, conv *model.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.convs[conv.ID]; ok {
		return ErrDuplicate
	}
	for i := range conv.Messages {
		conv.Messages[i].ConversationID = conv.ID
		conv.Messages[i].Seq = i + 1
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now
	r.convs[conv.ID] = cloneConversation(*conv)
	return nil
}

func (r *memoryConversationRepository) FindByID(_ context.Context, userID, id model.ID) (*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.convs[id]
	if !ok || c.UserID != userID {
		return nil, ErrNotFound
	}
	out := cloneConversation(c)
	return &out, nil
}

func (r *memoryConversationRepository) ListByUser(_ context.Context, userID model.ID, skip, limit int) ([]model.Conversation, error) {
	r.mu.RLock()
	convs := make([]model.Conversation, 0)
	for _, c := range r.convs {
		if c.UserID == userID {
			convs = append(convs, cloneConversation(c))
		}
	}
	r.mu.RUnlock()

	sort.Slice(convs, func(i, j int) bool {
		if !convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
		}
		return convs[i].ID > convs[j].ID
	})
	return append([]model.Conversation{}, page(convs, skip, limit)...), nil
}

func (r *memoryConversationRepository) AppendMessages(_ context.Context, userID, id model.ID, msgs []model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok || c.UserID != userID {
		return ErrNotFound
	}
	c = cloneConversation(c)
	last := 0
	if n := len(c.Messages); n > 0 {
		last = c.Messages[n-1].Seq
	}
	for i := range msgs {
		msgs[i].ConversationID = id
		msgs[i].Seq = last + i + 1
		c.Messages = append(c.Messages, msgs[i])
	}
	c.UpdatedAt = time.Now().UTC()
	r.convs[id] = c
	return nil
}

func (r *memoryConversationRepository) Delete(_ context.Context, userID, id model.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok || c.UserID != userID {
		return ErrNotFound
	}
	delete(r.convs, id)
	return nil
}

// page 对已排序的切片做 offset/limit 截取。
func page[T any](items []T, skip, limit int) []T {
	n := len(items)
	if skip >= n {
		return []T{}
	}
	end := skip + limit
	if limit <= 0 || end > n {
		end = n
	}
	return items[skip:end]
}
