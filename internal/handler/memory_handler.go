package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"future-self-go/internal/model"
	"future-self-go/internal/service"
	"future-self-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// MemoryHandler 处理记忆的增删改查与附件。请求体大小由 middleware.BodyLimit 限制。
type MemoryHandler struct {
	memoryService service.MemoryService
}

// NewMemoryHandler 创建一个新的 MemoryHandler。
func NewMemoryHandler(memoryService service.MemoryService) *MemoryHandler {
	return &MemoryHandler{memoryService: memoryService}
}

// CreateMemoryRequest 是 JSON 形式的创建请求。
type CreateMemoryRequest struct {
	Title        string   `json:"title" binding:"required"`
	Description  string   `json:"description" binding:"required"`
	Significance *int     `json:"significance"`
	Tags         []string `json:"tags"`
}

// UpdateMemoryRequest 是部分更新请求，省略的字段保持不变。
type UpdateMemoryRequest struct {
	Title        *string   `json:"title"`
	Description  *string   `json:"description"`
	Significance *int      `json:"significance"`
	Tags         *[]string `json:"tags"`
}

// List 分页返回当前用户的记忆，按创建时间倒序。
func (h *MemoryHandler) List(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	skip, limit, ok := pagination(c)
	if !ok {
		return
	}
	memories, err := h.memoryService.List(c.Request.Context(), user.ID, skip, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, memories)
}

// Create 支持 JSON 与 multipart 两种提交方式，multipart 可以携带多个附件。
func (h *MemoryHandler) Create(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}

	var in service.CreateMemoryInput
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			badRequest(c, err)
			return
		}
		in, err = createInputFromForm(form)
		if err != nil {
			badRequest(c, err)
			return
		}
		files, err := openUploads(form.File["files"])
		defer closeUploads(files)
		if err != nil {
			badRequest(c, err)
			return
		}
		in.Files = uploadsOf(files)
	} else {
		var req CreateMemoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		in = service.CreateMemoryInput{
			Title:        req.Title,
			Description:  req.Description,
			Significance: req.Significance,
			Tags:         req.Tags,
		}
	}

	memory, err := h.memoryService.Create(c.Request.Context(), user.ID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, memory)
}

func createInputFromForm(form *multipart.Form) (service.CreateMemoryInput, error) {
	value := func(key string) string {
		if v := form.Value[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}
	in := service.CreateMemoryInput{
		Title:       value("title"),
		Description: value("description"),
	}
	if raw := strings.TrimSpace(value("significance")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return in, errors.New("significance must be an integer")
		}
		in.Significance = &v
	}
	if raw := strings.TrimSpace(value("tags_json")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.Tags); err != nil {
			return in, fmt.Errorf("tags_json must be a JSON array of strings: %w", err)
		}
	}
	return in, nil
}

type openedUpload struct {
	header *multipart.FileHeader
	file   multipart.File
}

func openUploads(headers []*multipart.FileHeader) ([]openedUpload, error) {
	out := make([]openedUpload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return out, fmt.Errorf("无法打开上传的文件 %q: %w", fh.Filename, err)
		}
		out = append(out, openedUpload{header: fh, file: f})
	}
	return out, nil
}

func closeUploads(files []openedUpload) {
	for _, f := range files {
		_ = f.file.Close()
	}
}

func uploadsOf(files []openedUpload) []service.FileUpload {
	out := make([]service.FileUpload, 0, len(files))
	for _, f := range files {
		out = append(out, service.FileUpload{
			FileName:    f.header.Filename,
			ContentType: f.header.Header.Get("Content-Type"),
			Size:        f.header.Size,
			Reader:      f.file,
		})
	}
	return out
}

// Get 返回一条记忆，不存在或属于他人时返回 404。
func (h *MemoryHandler) Get(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	memory, err := h.memoryService.Get(c.Request.Context(), user.ID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, memory)
}

// Update 部分更新一条记忆。
func (h *MemoryHandler) Update(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	memory, err := h.memoryService.Update(c.Request.Context(), user.ID, id, model.MemoryPatch{
		Title:        req.Title,
		Description:  req.Description,
		Significance: req.Significance,
		Tags:         req.Tags,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, memory)
}

// Delete 删除一条记忆及其附件。
func (h *MemoryHandler) Delete(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.memoryService.Delete(c.Request.Context(), user.ID, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddAttachment 向已有记忆追加一个附件，表单字段为 file。
func (h *MemoryHandler) AddAttachment(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, err)
		return
	}
	files, err := openUploads([]*multipart.FileHeader{fh})
	defer closeUploads(files)
	if err != nil {
		badRequest(c, err)
		return
	}

	memory, err := h.memoryService.AddAttachment(c.Request.Context(), user.ID, id, uploadsOf(files)[0])
	if err != nil {
		respondError(c, err)
		return
	}
	log.Infow("Attachment added", "user_id", user.ID, "memory_id", id, "file_name", fh.Filename)
	c.JSON(http.StatusOK, memory)
}

// AttachmentURL 为附件生成临时下载链接，key 通过查询参数传入。
func (h *MemoryHandler) AttachmentURL(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	key := c.Query("key")
	if key == "" {
		badRequest(c, errors.New("key is required"))
		return
	}
	link, err := h.memoryService.AttachmentURL(c.Request.Context(), user.ID, id, key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}
