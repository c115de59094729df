package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"future-self-go/internal/service"
	"future-self-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ChatHandler 负责处理 WebSocket 聊天连接，每条文本消息是一轮对话。
type ChatHandler struct {
	chatService service.ChatService
	userService service.UserService
	upgrader    websocket.Upgrader
}

// NewChatHandler 创建一个新的 ChatHandler。allowedOrigins 为空时允许所有来源。
func NewChatHandler(chatService service.ChatService, userService service.UserService, allowedOrigins []string) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		userService: userService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r.Header.Get("Origin"), allowedOrigins)
			},
		},
	}
}

func originAllowed(origin string, allowed []string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// Handle 处理一个传入的 WebSocket 连接，token 通过路径传入。
func (h *ChatHandler) Handle(c *gin.Context) {
	user, _, err := h.userService.Authenticate(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s", user.ID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			break
		}

		var turn service.ChatTurn
		if err := json.Unmarshal(message, &turn); err != nil {
			// 非 JSON 文本视为在新会话中发送的内容
			turn = service.ChatTurn{Content: string(message)}
		}

		reply, err := h.chatService.Turn(c.Request.Context(), user, turn)
		if err != nil {
			_, msg := statusFor(err)
			log.Errorf("处理聊天消息失败: %v", err)
			writeJSON(conn, gin.H{"error": msg})
			writeJSON(conn, completion("error"))
			continue
		}
		writeJSON(conn, gin.H{"type": "reply", "data": reply})
		writeJSON(conn, completion("finished"))
	}
}

func completion(status string) gin.H {
	now := time.Now()
	return gin.H{
		"type":      "completion",
		"status":    status,
		"message":   "响应已完成",
		"timestamp": now.UnixMilli(),
		"date":      now.Format("2006-01-02T15:04:05"),
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error("序列化 WebSocket 消息失败", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("写入 WebSocket 消息失败: %v", err)
	}
}
