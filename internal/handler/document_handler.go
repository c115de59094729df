package handler

import (
	"errors"
	"net/http"

	"future-self-go/internal/service"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 提供附件的文本预览。
type DocumentHandler struct {
	documentService service.DocumentService
}

func NewDocumentHandler(documentService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// PreviewAttachment 返回附件提取出的纯文本，key 通过查询参数传入。
func (h *DocumentHandler) PreviewAttachment(c *gin.Context) {
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
	info, err := h.documentService.Preview(c.Request.Context(), user.ID, id, key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}
