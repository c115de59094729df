package model

// MemoryDocument 是存储在 Elasticsearch 中的记忆文档结构。
type MemoryDocument struct {
	MemoryID       string    `json:"memory_id"`
	UserID         string    `json:"user_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Tags           []string  `json:"tags"`
	AttachmentText string    `json:"attachment_text,omitempty"`
	Significance   int       `json:"significance"`
	Vector         []float32 `json:"vector,omitempty"`
	CreatedAt      string    `json:"created_at"`
}

// SearchHit 是一次命中的记忆 ID 与得分。
type SearchHit struct {
	MemoryID ID      `json:"memory_id"`
	Score    float64 `json:"score"`
}

// MemorySearchResult 定义了返回给前端的搜索结果结构。
type MemorySearchResult struct {
	Memory Memory  `json:"memory"`
	Score  float64 `json:"score"`
}
