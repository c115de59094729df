package model

import "time"

// UploadSession 是一次分片上传附件的会话，保存在 Redis 中，完成或过期后消失。
type UploadSession struct {
	ID          ID        `json:"upload_id"`
	UserID      ID        `json:"user_id"`
	MemoryID    ID        `json:"memory_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type,omitempty"`
	TotalSize   int64     `json:"total_size"`
	ChunkSize   int64     `json:"chunk_size"`
	TotalChunks int       `json:"total_chunks"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChunkSizeAt 返回第 index 个分片的期望大小，最后一个分片可能更小。
func (s *UploadSession) ChunkSizeAt(index int) int64 {
	if index == s.TotalChunks-1 {
		return s.TotalSize - s.ChunkSize*int64(s.TotalChunks-1)
	}
	return s.ChunkSize
}
