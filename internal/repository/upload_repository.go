package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"future-self-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// UploadRepository 保存分片上传会话与分片完成状态。
// 会话元数据是一个 JSON 字符串，分片状态是一个 bitmap，二者共用同一个 TTL。
type UploadRepository interface {
	CreateSession(ctx context.Context, session *model.UploadSession) error
	// GetSession 只返回属于 userID 的会话，否则返回 ErrNotFound。
	GetSession(ctx context.Context, userID, uploadID model.ID) (*model.UploadSession, error)
	IsChunkUploaded(ctx context.Context, userID, uploadID model.ID, chunkIndex int) (bool, error)
	MarkChunkUploaded(ctx context.Context, userID, uploadID model.ID, chunkIndex int) error
	UploadedChunks(ctx context.Context, userID, uploadID model.ID, totalChunks int) ([]int, error)
	DeleteSession(ctx context.Context, userID, uploadID model.ID) error
}

// uploadRepository 是 UploadRepository 接口的 Redis 实现。
type uploadRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewUploadRepository 创建一个新的 UploadRepository 实例，ttl 是未完成会话的保留时间。
func NewUploadRepository(redisClient *redis.Client, ttl time.Duration) UploadRepository {
	return &uploadRepository{redisClient: redisClient, ttl: ttl}
}

func uploadBitmapKey(userID, uploadID model.ID) string {
	return fmt.Sprintf("upload:%s:%s", userID, uploadID)
}

func uploadMetaKey(userID, uploadID model.ID) string {
	return uploadBitmapKey(userID, uploadID) + ":meta"
}

func (r *uploadRepository) CreateSession(ctx context.Context, session *model.UploadSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal upload session: %w", err)
	}
	ok, err := r.redisClient.SetNX(ctx, uploadMetaKey(session.UserID, session.ID), data, r.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicate
	}
	return nil
}

func (r *uploadRepository) GetSession(ctx context.Context, userID, uploadID model.ID) (*model.UploadSession, error) {
	data, err := r.redisClient.Get(ctx, uploadMetaKey(userID, uploadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var session model.UploadSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal upload session: %w", err)
	}
	return &session, nil
}

// IsChunkUploaded 检查 Redis bitmap 中分片是否已标记。key 不存在时 GETBIT 返回 0。
func (r *uploadRepository) IsChunkUploaded(ctx context.Context, userID, uploadID model.ID, chunkIndex int) (bool, error) {
	val, err := r.redisClient.GetBit(ctx, uploadBitmapKey(userID, uploadID), int64(chunkIndex)).Result()
	if err != nil {
		return false, err
	}
	return val == 1, nil
}

func (r *uploadRepository) MarkChunkUploaded(ctx context.Context, userID, uploadID model.ID, chunkIndex int) error {
	key := uploadBitmapKey(userID, uploadID)
	_, err := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetBit(ctx, key, int64(chunkIndex), 1)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	return err
}

// UploadedChunks 从 bitmap 中解析出已上传的分片序号，按升序返回。
func (r *uploadRepository) UploadedChunks(ctx context.Context, userID, uploadID model.ID, totalChunks int) ([]int, error) {
	if totalChunks == 0 {
		return []int{}, nil
	}
	bitmap, err := r.redisClient.Get(ctx, uploadBitmapKey(userID, uploadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []int{}, nil
	}
	if err != nil {
		return nil, err
	}

	uploaded := make([]int, 0, totalChunks)
	for i := 0; i < totalChunks; i++ {
		byteIndex := i / 8
		bitIndex := i % 8
		if byteIndex < len(bitmap) && (bitmap[byteIndex]>>(7-bitIndex))&1 == 1 {
			uploaded = append(uploaded, i)
		}
	}
	return uploaded, nil
}

func (r *uploadRepository) DeleteSession(ctx context.Context, userID, uploadID model.ID) error {
	return r.redisClient.Del(ctx, uploadMetaKey(userID, uploadID), uploadBitmapKey(userID, uploadID)).Err()
}
