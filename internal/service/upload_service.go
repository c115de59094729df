package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"future-self-go/internal/model"
	"future-self-go/internal/repository"
	"future-self-go/pkg/log"
	"future-self-go/pkg/storage"
)

const (
	// DefaultChunkSize 是分片上传的默认分片大小 (5MB)。
	DefaultChunkSize = 5 * 1024 * 1024
	// DefaultUploadSessionTTL 是未完成的分片上传会话的保留时间。
	DefaultUploadSessionTTL = 24 * time.Hour
)

// InitUploadInput 是开始一次分片上传的输入。
type InitUploadInput struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	TotalSize   int64  `json:"total_size"`
}

// UploadProgress 描述一次分片上传的进度。
type UploadProgress struct {
	Session  *model.UploadSession `json:"session"`
	Uploaded []int                `json:"uploaded_chunks"`
	Progress float64              `json:"progress"`
}

// UploadService 接口定义了附件分片上传的业务操作。
// 所有分片写入对象存储的临时位置，Complete 时按序合并为记忆的一个附件。
type UploadService interface {
	Init(ctx context.Context, userID, memoryID model.ID, in InitUploadInput) (*model.UploadSession, error)
	UploadChunk(ctx context.Context, userID, memoryID, uploadID model.ID, index int, r io.Reader, size int64) (*UploadProgress, error)
	Status(ctx context.Context, userID, memoryID, uploadID model.ID) (*UploadProgress, error)
	Complete(ctx context.Context, userID, memoryID, uploadID model.ID) (*model.Memory, error)
}

type uploadService struct {
	uploads      repository.UploadRepository
	memories     MemoryService
	objects      storage.ObjectStore
	chunkSize    int64
	maxFileBytes int64
}

// NewUploadService 创建一个新的 UploadService 实例。chunkSize <= 0 时使用 DefaultChunkSize，
// maxFileBytes <= 0 表示不限制文件大小。
func NewUploadService(uploads repository.UploadRepository, memories MemoryService, objects storage.ObjectStore, chunkSize, maxFileBytes int64) UploadService {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &uploadService{
		uploads:      uploads,
		memories:     memories,
		objects:      objects,
		chunkSize:    chunkSize,
		maxFileBytes: maxFileBytes,
	}
}

func chunkObjectKey(userID, uploadID model.ID, index int) string {
	return fmt.Sprintf("uploads/%s/%s/chunk_%d", userID, uploadID, index)
}

func (s *uploadService) Init(ctx context.Context, userID, memoryID model.ID, in InitUploadInput) (*model.UploadSession, error) {
	if s.objects == nil {
		return nil, ErrAttachmentsUnavailable
	}
	if _, err := s.memories.Get(ctx, userID, memoryID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.FileName)
	if name == "" {
		return nil, validationf("file_name must not be empty")
	}
	if in.TotalSize <= 0 {
		return nil, validationf("total_size must be greater than 0")
	}
	if s.maxFileBytes > 0 && in.TotalSize > s.maxFileBytes {
		return nil, validationf("total_size must not exceed %d bytes", s.maxFileBytes)
	}

	session := &model.UploadSession{
		ID:          model.NewID(),
		UserID:      userID,
		MemoryID:    memoryID,
		FileName:    sanitizeFileName(name),
		ContentType: in.ContentType,
		TotalSize:   in.TotalSize,
		ChunkSize:   s.chunkSize,
		TotalChunks: int((in.TotalSize + s.chunkSize - 1) / s.chunkSize),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.uploads.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create upload session: %w", err)
	}
	log.Infow("Upload session created", "user_id", userID, "memory_id", memoryID,
		"upload_id", session.ID, "total_chunks", session.TotalChunks)
	return session, nil
}

// session 加载会话并确认它属于指定的记忆。
func (s *uploadService) session(ctx context.Context, userID, memoryID, uploadID model.ID) (*model.UploadSession, error) {
	if s.objects == nil {
		return nil, ErrAttachmentsUnavailable
	}
	session, err := s.uploads.GetSession(ctx, userID, uploadID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	if session.MemoryID != memoryID {
		return nil, ErrNotFound
	}
	return session, nil
}

func (s *uploadService) progress(ctx context.Context, session *model.UploadSession) (*UploadProgress, error) {
	uploaded, err := s.uploads.UploadedChunks(ctx, session.UserID, session.ID, session.TotalChunks)
	if err != nil {
		return nil, err
	}
	return &UploadProgress{
		Session:  session,
		Uploaded: uploaded,
		Progress: calculateProgress(len(uploaded), session.TotalChunks),
	}, nil
}

// calculateProgress 返回百分比，保留两位小数。
func calculateProgress(uploaded, total int) float64 {
	if total == 0 {
		return 0
	}
	p := float64(uploaded) / float64(total) * 100
	return float64(int(p*100+0.5)) / 100
}

func (s *uploadService) UploadChunk(ctx context.Context, userID, memoryID, uploadID model.ID, index int, r io.Reader, size int64) (*UploadProgress, error) {
	session, err := s.session(ctx, userID, memoryID, uploadID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= session.TotalChunks {
		return nil, validationf("chunk index must be between 0 and %d", session.TotalChunks-1)
	}

	// 重复上传的分片直接返回当前进度
	done, err := s.uploads.IsChunkUploaded(ctx, userID, uploadID, index)
	if err != nil {
		return nil, err
	}
	if done {
		log.Infof("分片 %d 已上传，跳过。UploadID: %s", index, uploadID)
		return s.progress(ctx, session)
	}

	if expected := session.ChunkSizeAt(index); size != expected {
		return nil, validationf("chunk %d must be %d bytes, got %d", index, expected, size)
	}
	if err := s.objects.Put(ctx, chunkObjectKey(userID, uploadID, index), r, size, defaultObjectType); err != nil {
		return nil, fmt.Errorf("failed to store chunk %d: %w", index, err)
	}
	if err := s.uploads.MarkChunkUploaded(ctx, userID, uploadID, index); err != nil {
		return nil, err
	}
	return s.progress(ctx, session)
}

func (s *uploadService) Status(ctx context.Context, userID, memoryID, uploadID model.ID) (*UploadProgress, error) {
	session, err := s.session(ctx, userID, memoryID, uploadID)
	if err != nil {
		return nil, err
	}
	return s.progress(ctx, session)
}

// Complete 在所有分片都到齐后，把分片按顺序拼接为一个附件挂到记忆上，并清理临时对象。
func (s *uploadService) Complete(ctx context.Context, userID, memoryID, uploadID model.ID) (*model.Memory, error) {
	session, err := s.session(ctx, userID, memoryID, uploadID)
	if err != nil {
		return nil, err
	}
	uploaded, err := s.uploads.UploadedChunks(ctx, userID, uploadID, session.TotalChunks)
	if err != nil {
		return nil, err
	}
	if len(uploaded) != session.TotalChunks {
		return nil, validationf("upload is incomplete: %d of %d chunks received", len(uploaded), session.TotalChunks)
	}

	reader := &chunkReader{ctx: ctx, objects: s.objects, session: session}
	defer reader.Close()
	memory, err := s.memories.AddAttachment(ctx, userID, memoryID, FileUpload{
		FileName:    session.FileName,
		ContentType: session.ContentType,
		Size:        session.TotalSize,
		Reader:      reader,
	})
	if err != nil {
		return nil, err
	}

	for i := 0; i < session.TotalChunks; i++ {
		if err := s.objects.Remove(ctx, chunkObjectKey(userID, uploadID, i)); err != nil {
			log.Warnf("Failed to remove chunk object %d of upload %s: %v", i, uploadID, err)
		}
	}
	if err := s.uploads.DeleteSession(ctx, userID, uploadID); err != nil {
		log.Warnf("Failed to delete upload session %s: %v", uploadID, err)
	}
	log.Infow("Chunked upload completed", "user_id", userID, "memory_id", memoryID,
		"upload_id", uploadID, "file_name", session.FileName)
	return memory, nil
}

// chunkReader 依次打开每个分片对象，对外表现为一个连续的流。
type chunkReader struct {
	ctx     context.Context
	objects storage.ObjectStore
	session *model.UploadSession
	next    int
	current io.ReadCloser
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for {
		if r.current == nil {
			if r.next >= r.session.TotalChunks {
				return 0, io.EOF
			}
			rc, err := r.objects.Get(r.ctx, chunkObjectKey(r.session.UserID, r.session.ID, r.next))
			if err != nil {
				return 0, fmt.Errorf("failed to open chunk %d: %w", r.next, err)
			}
			r.current = rc
			r.next++
		}
		n, err := r.current.Read(p)
		if errors.Is(err, io.EOF) {
			_ = r.current.Close()
			r.current = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *chunkReader) Close() error {
	if r.current == nil {
		return nil
	}
	err := r.current.Close()
	r.current = nil
	return err
}
