package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"future-self-go/internal/model"
	"future-self-go/internal/repository"
	"future-self-go/pkg/log"
	"future-self-go/pkg/storage"
	"future-self-go/pkg/tasks"

	"gorm.io/datatypes"
)

const (
	maxTitleLen       = 255
	maxTags           = 20
	presignExpiry     = 15 * time.Minute
	defaultObjectType = "application/octet-stream"
)

// IndexPublisher 发布记忆索引任务，由 kafka.Producer 或 pipeline.InlinePublisher 实现。
type IndexPublisher interface {
	Publish(ctx context.Context, task tasks.MemoryIndexTask) error
}

// FileUpload 是一个待上传的附件。
type FileUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// CreateMemoryInput 是创建记忆的业务输入。Significance 为 nil 时使用默认值 3。
type CreateMemoryInput struct {
	Title        string
	Description  string
	Significance *int
	Tags         []string
	Files        []FileUpload
}

// AttachmentLink 是附件的临时下载链接。
type AttachmentLink struct {
	Key       string    `json:"key"`
	FileName  string    `json:"file_name"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MemoryService 接口定义了记忆相关的业务操作，所有操作都限定在调用者自己的记忆内。
type MemoryService interface {
	Create(ctx context.Context, userID model.ID, in CreateMemoryInput) (*model.Memory, error)
	List(ctx context.Context, userID model.ID, skip, limit int) ([]model.Memory, error)
	Get(ctx context.Context, userID, id model.ID) (*model.Memory, error)
	Update(ctx context.Context, userID, id model.ID, patch model.MemoryPatch) (*model.Memory, error)
	Delete(ctx context.Context, userID, id model.ID) error
	AddAttachment(ctx context.Context, userID, id model.ID, file FileUpload) (*model.Memory, error)
	AttachmentURL(ctx context.Context, userID, id model.ID, key string) (*AttachmentLink, error)
}

type memoryService struct {
	repo      repository.MemoryRepository
	objects   storage.ObjectStore
	publisher IndexPublisher
}

// NewMemoryService 创建一个新的 MemoryService 实例。objects 与 publisher 可以为 nil。
func NewMemoryService(repo repository.MemoryRepository, objects storage.ObjectStore, publisher IndexPublisher) MemoryService {
	return &memoryService{repo: repo, objects: objects, publisher: publisher}
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", validationf("title must not be empty")
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return "", validationf("title must be at most %d characters", maxTitleLen)
	}
	return title, nil
}

func validateDescription(desc string) (string, error) {
	if strings.TrimSpace(desc) == "" {
		return "", validationf("description must not be empty")
	}
	return desc, nil
}

func validateSignificance(v int) error {
	if v < model.MinSignificance || v > model.MaxSignificance {
		return validationf("significance must be between %d and %d", model.MinSignificance, model.MaxSignificance)
	}
	return nil
}

// normalizeTags 去除空白与空标签，保持原有顺序。
func normalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	if len(out) > maxTags {
		return nil, validationf("at most %d tags are allowed", maxTags)
	}
	return out, nil
}

func (s *memoryService) publish(ctx context.Context, op tasks.IndexOp, m *model.Memory) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, tasks.NewMemoryIndexTask(op, m.ID.String(), m.UserID.String())); err != nil {
		// 索引是派生数据，发布失败不影响主流程
		log.Errorw("Failed to publish memory index task", "op", op, "memory_id", m.ID, "error", err)
	}
}

func attachmentKey(userID, memoryID model.ID, fileName string) string {
	return fmt.Sprintf("memories/%s/%s/%s_%s", userID, memoryID, model.NewID(), fileName)
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "attachment"
	}
	return name
}

// upload 把附件写入对象存储，并返回附件元数据。
func (s *memoryService) upload(ctx context.Context, userID, memoryID model.ID, file FileUpload) (model.Attachment, error) {
	if s.objects == nil {
		return model.Attachment{}, ErrAttachmentsUnavailable
	}
	name := sanitizeFileName(file.FileName)
	contentType := file.ContentType
	if contentType == "" {
		contentType = defaultObjectType
	}
	key := attachmentKey(userID, memoryID, name)
	if err := s.objects.Put(ctx, key, file.Reader, file.Size, contentType); err != nil {
		return model.Attachment{}, fmt.Errorf("failed to store attachment %q: %w", name, err)
	}
	return model.Attachment{
		Key:         key,
		FileName:    name,
		ContentType: contentType,
		Size:        file.Size,
		UploadedAt:  time.Now().UTC(),
	}, nil
}

func (s *memoryService) removeObjects(ctx context.Context, attachments []model.Attachment) {
	if s.objects == nil {
		return
	}
	for _, a := range attachments {
		if err := s.objects.Remove(ctx, a.Key); err != nil {
			log.Warnf("Failed to remove attachment object %s: %v", a.Key, err)
		}
	}
}

func (s *memoryService) Create(ctx context.Context, userID model.ID, in CreateMemoryInput) (*model.Memory, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	desc, err := validateDescription(in.Description)
	if err != nil {
		return nil, err
	}
	significance := model.DefaultSignificance
	if in.Significance != nil {
		if err := validateSignificance(*in.Significance); err != nil {
			return nil, err
		}
		significance = *in.Significance
	}
	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return nil, err
	}

	memory := &model.Memory{
		ID:           model.NewID(),
		UserID:       userID,
		Title:        title,
		Description:  desc,
		Significance: significance,
		Tags:         datatypes.JSONSlice[string](tags),
		Attachments:  datatypes.JSONSlice[model.Attachment]{},
	}

	// 先上传附件，任何一个失败都回滚已上传的对象
	for _, f := range in.Files {
		att, err := s.upload(ctx, userID, memory.ID, f)
		if err != nil {
			s.removeObjects(ctx, memory.Attachments)
			return nil, err
		}
		memory.Attachments = append(memory.Attachments, att)
	}

	if err := s.repo.Create(ctx, memory); err != nil {
		s.removeObjects(ctx, memory.Attachments)
		return nil, translateRepoError(err)
	}
	log.Infow("Memory created", "user_id", userID, "memory_id", memory.ID, "attachments", len(memory.Attachments))
	s.publish(ctx, tasks.OpUpsert, memory)
	return memory, nil
}

func (s *memoryService) List(ctx context.Context, userID model.ID, skip, limit int) ([]model.Memory, error) {
	if err := validatePage(skip, limit); err != nil {
		return nil, err
	}
	memories, err := s.repo.ListByUser(ctx, userID, skip, limit)
	if err != nil {
		return nil, err
	}
	return memories, nil
}

func (s *memoryService) Get(ctx context.Context, userID, id model.ID) (*model.Memory, error) {
	memory, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return memory, nil
}

// Update 应用部分更新，空补丁视为输入错误。
func (s *memoryService) Update(ctx context.Context, userID, id model.ID, patch model.MemoryPatch) (*model.Memory, error) {
	if patch.IsEmpty() {
		return nil, validationf("no fields to update")
	}
	if patch.Title != nil {
		title, err := validateTitle(*patch.Title)
		if err != nil {
			return nil, err
		}
		patch.Title = &title
	}
	if patch.Description != nil {
		if _, err := validateDescription(*patch.Description); err != nil {
			return nil, err
		}
	}
	if patch.Significance != nil {
		if err := validateSignificance(*patch.Significance); err != nil {
			return nil, err
		}
	}
	if patch.Tags != nil {
		tags, err := normalizeTags(*patch.Tags)
		if err != nil {
			return nil, err
		}
		patch.Tags = &tags
	}

	memory, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, translateRepoError(err)
	}
	patch.Apply(memory)
	if err := s.repo.Update(ctx, memory); err != nil {
		return nil, translateRepoError(err)
	}
	s.publish(ctx, tasks.OpUpsert, memory)
	return memory, nil
}

func (s *memoryService) Delete(ctx context.Context, userID, id model.ID) error {
	memory, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return translateRepoError(err)
	}
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return translateRepoError(err)
	}
	s.removeObjects(ctx, memory.Attachments)
	s.publish(ctx, tasks.OpDelete, memory)
	log.Infow("Memory deleted", "user_id", userID, "memory_id", id)
	return nil
}

func (s *memoryService) AddAttachment(ctx context.Context, userID, id model.ID, file FileUpload) (*model.Memory, error) {
	memory, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, translateRepoError(err)
	}
	att, err := s.upload(ctx, userID, id, file)
	if err != nil {
		return nil, err
	}
	memory.Attachments = append(memory.Attachments, att)
	if err := s.repo.Update(ctx, memory); err != nil {
		s.removeObjects(ctx, []model.Attachment{att})
		return nil, translateRepoError(err)
	}
	s.publish(ctx, tasks.OpUpsert, memory)
	return memory, nil
}

// AttachmentURL 为记忆上的某个附件生成临时下载链接，key 必须属于该记忆。
func (s *memoryService) AttachmentURL(ctx context.Context, userID, id model.ID, key string) (*AttachmentLink, error) {
	if s.objects == nil {
		return nil, ErrAttachmentsUnavailable
	}
	memory, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, translateRepoError(err)
	}
	for _, a := range memory.Attachments {
		if a.Key != key {
			continue
		}
		url, err := s.objects.PresignedURL(ctx, a.Key, presignExpiry)
		if err != nil {
			return nil, fmt.Errorf("failed to presign attachment: %w", err)
		}
		return &AttachmentLink{Key: a.Key, FileName: a.FileName, URL: url, ExpiresAt: time.Now().UTC().Add(presignExpiry)}, nil
	}
	return nil, ErrNotFound
}
