package handler

import (
	"net/http"
	"strconv"

	"future-self-go/internal/service"
	"future-self-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了记忆检索的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// SearchMemories 在当前用户自己的记忆中检索。
func (h *SearchHandler) SearchMemories(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	query := c.Query("q")
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		limit = 0
	}
	log.Infof("[SearchHandler] 收到记忆检索请求, limit: %d", limit)

	results, err := h.searchService.SearchMemories(c.Request.Context(), user.ID, query, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Infof("[SearchHandler] 检索成功, 返回 %d 条结果", len(results))
	c.JSON(http.StatusOK, results)
}
