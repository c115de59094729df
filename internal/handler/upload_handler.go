package handler

import (
	"errors"
	"net/http"
	"strconv"

	"future-self-go/internal/model"
	"future-self-go/internal/service"
	"future-self-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UploadHandler 负责大附件的分片上传，每个分片是一次独立的请求。
type UploadHandler struct {
	uploadService service.UploadService
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(uploadService service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// uploadIDs 解析路径中的记忆 ID 与上传会话 ID。
func uploadIDs(c *gin.Context) (memoryID, uploadID model.ID, ok bool) {
	if memoryID, ok = pathID(c, "id"); !ok {
		return "", "", false
	}
	if uploadID, ok = pathID(c, "uploadId"); !ok {
		return "", "", false
	}
	return memoryID, uploadID, true
}

// Init 创建一个分片上传会话，返回分片大小与分片数量。
func (h *UploadHandler) Init(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	memoryID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.InitUploadInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	session, err := h.uploadService.Init(c.Request.Context(), user.ID, memoryID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// UploadChunk 处理单个分片，分片内容放在 multipart 的 file 字段中。
func (h *UploadHandler) UploadChunk(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	memoryID, uploadID, ok := uploadIDs(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, errors.New("chunk index must be an integer"))
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, err)
		return
	}
	file, err := fh.Open()
	if err != nil {
		log.Error("UploadChunk: failed to open chunk", err)
		badRequest(c, err)
		return
	}
	defer file.Close()

	progress, err := h.uploadService.UploadChunk(c.Request.Context(), user.ID, memoryID, uploadID, index, file, fh.Size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// Status 返回已上传的分片与进度，客户端据此断点续传。
func (h *UploadHandler) Status(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	memoryID, uploadID, ok := uploadIDs(c)
	if !ok {
		return
	}
	progress, err := h.uploadService.Status(c.Request.Context(), user.ID, memoryID, uploadID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

// Complete 合并分片并把文件挂到记忆上，返回更新后的记忆。
func (h *UploadHandler) Complete(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	memoryID, uploadID, ok := uploadIDs(c)
	if !ok {
		return
	}
	memory, err := h.uploadService.Complete(c.Request.Context(), user.ID, memoryID, uploadID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, memory)
}
