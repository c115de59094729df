package handler

import (
	"net/http"

	"future-self-go/internal/model"
	"future-self-go/internal/service"
	"future-self-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UserHandler 负责处理当前用户资料相关的 API 请求。
type UserHandler struct {
	userService service.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GetProfile 获取当前登录用户的个人信息。
// 用户信息已经由 AuthMiddleware 注入到上下文中。
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateProfileRequest 中省略的字段保持不变。
type UpdateProfileRequest struct {
	FullName    *string                       `json:"full_name"`
	Username    *string                       `json:"username"`
	Preferences *model.UserPreferences        `json:"preferences"`
	Persona     *model.PersonaCharacteristics `json:"persona"`
}

// UpdateProfile 更新当前用户的资料、偏好与人格特征。
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	updated, err := h.userService.UpdateProfile(c.Request.Context(), user.ID, service.ProfileUpdate{
		FullName:    req.FullName,
		Username:    req.Username,
		Preferences: req.Preferences,
		Persona:     req.Persona,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	log.Infof("User '%s' updated profile", user.ID)
	c.JSON(http.StatusOK, updated)
}
