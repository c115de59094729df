package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"future-self-go/internal/config"
	"future-self-go/internal/model"
	"future-self-go/internal/persona"
	"future-self-go/internal/repository"
	"future-self-go/internal/service"
	"future-self-go/pkg/llm"
	"future-self-go/pkg/storage"
	"future-self-go/pkg/token"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router  *gin.Engine
	objects *storage.MemoryStore
}

// newTestEnv 组装完整的路由；llmHandler 为 nil 时人格能力未配置。
func newTestEnv(t *testing.T, llmHandler http.HandlerFunc) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	userRepo := repository.NewMemoryUserRepository()
	memoryRepo := repository.NewMemoryMemoryRepository()
	convRepo := repository.NewMemoryConversationRepository()
	objects := storage.NewMemoryStore()
	jwtManager := token.NewJWTManager("test-secret", 30*time.Minute, 24*time.Hour)

	var responder service.PersonaResponder
	if llmHandler != nil {
		server := httptest.NewServer(llmHandler)
		t.Cleanup(server.Close)
		client, err := llm.NewClient(config.LLMConfig{
			APIKey:         "test-key",
			BaseURL:        server.URL + "/v1",
			Model:          "test-model",
			TimeoutSeconds: 5,
			Generation:     config.LLMGenerationConfig{Temperature: 0.7, MaxTokens: 450},
		})
		require.NoError(t, err)
		responder = persona.NewService(persona.NewMemoryAccessor(memoryRepo), client, 5, 10)
	}

	memories := service.NewMemoryService(memoryRepo, objects, nil)
	users := service.NewUserService(userRepo, repository.NewRedisTokenBlacklist(rdb), jwtManager)
	conversations := service.NewConversationService(convRepo, repository.NewRedisHistoryCache(rdb, 10, time.Hour), responder)
	router := NewRouter(Services{
		Users:         users,
		Memories:      memories,
		Conversations: conversations,
		Search:        service.NewSearchService(nil, nil, memoryRepo),
		Chat:          service.NewChatService(conversations),
		Uploads:       service.NewUploadService(repository.NewUploadRepository(rdb, time.Hour), memories, objects, 4, 64),
		Documents:     service.NewDocumentService(memories, objects, upperExtractor{}, 8),
	}, RouterOptions{MaxUploadBytes: 1 << 20})
	return &testEnv{router: router, objects: objects}
}

// upperExtractor 把附件内容转成大写，代替 Tika。
type upperExtractor struct{}

func (upperExtractor) ExtractText(_ context.Context, r io.Reader, _ string) (string, error) {
	data, err := io.ReadAll(r)
	return strings.ToUpper(string(data)), err
}

func (e *testEnv) do(t *testing.T, method, path, accessToken string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// signup 注册并以表单方式登录，返回 access token。
func (e *testEnv) signup(t *testing.T, email, username string) service.TokenPair {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": email, "username": username, "password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	form := url.Values{"username": {email}, "password": {"correct-horse"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	lw := httptest.NewRecorder()
	e.router.ServeHTTP(lw, req)
	require.Equal(t, http.StatusOK, lw.Code, lw.Body.String())
	return decode[service.TokenPair](t, lw)
}

func TestWelcomeAndHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Welcome")

	w = env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterLoginAndEmptyList(t *testing.T) {
	env := newTestEnv(t, nil)
	pair := env.signup(t, "alex@example.com", "alex")
	assert.Equal(t, "bearer", pair.TokenType)
	assert.NotEmpty(t, pair.RefreshToken)

	w := env.do(t, http.MethodGet, "/api/v1/memories", pair.AccessToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": "ALEX@example.com", "password": "another-pass",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": "short@example.com", "password": "short",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/token", "", gin.H{"username": "alex", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	w = env.do(t, http.MethodPost, "/api/v1/auth/token", "", gin.H{"username": "alex", "password": "correct-horse"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/users/me", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[map[string]interface{}](t, w)
	assert.Equal(t, "alex@example.com", me["email"])
	assert.NotContains(t, me, "password")
}

func TestAuthenticationRequired(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/api/v1/memories", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/memories", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	pair := env.signup(t, "sam@example.com", "sam")
	w = env.do(t, http.MethodGet, "/api/v1/memories", pair.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/logout", pair.AccessToken, gin.H{"refresh_token": pair.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/users/me", pair.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = env.do(t, http.MethodPost, "/api/v1/auth/refreshToken", "", gin.H{"refresh_token": pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshTokenRotation(t *testing.T) {
	env := newTestEnv(t, nil)
	pair := env.signup(t, "kim@example.com", "kim")

	w := env.do(t, http.MethodPost, "/api/v1/auth/refreshToken", "", gin.H{"refresh_token": pair.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	next := decode[service.TokenPair](t, w)

	w = env.do(t, http.MethodGet, "/api/v1/users/me", next.AccessToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/auth/refreshToken", "", gin.H{"refresh_token": pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t, nil)
	pair := env.signup(t, "lee@example.com", "lee")

	w := env.do(t, http.MethodPatch, "/api/v1/users/me", pair.AccessToken, gin.H{
		"full_name": "Lee Park",
		"persona":   gin.H{"core_trait": "patient", "key_life_lessons": []string{"rest matters"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	me := decode[map[string]interface{}](t, w)
	assert.Equal(t, "Lee Park", me["full_name"])
	assert.Equal(t, "patient", me["persona"].(map[string]interface{})["core_trait"])

	w = env.do(t, http.MethodPatch, "/api/v1/users/me", pair.AccessToken, gin.H{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestMemoryLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	pair := env.signup(t, "ana@example.com", "ana")

	w := env.do(t, http.MethodPost, "/api/v1/memories", pair.AccessToken, gin.H{
		"title": "Graduation", "description": "Finally done", "tags": []string{"school"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[model.Memory](t, w)
	assert.Equal(t, model.DefaultSignificance, created.Significance)
	path := "/api/v1/memories/" + created.ID.String()

	w = env.do(t, http.MethodPatch, path, pair.AccessToken, gin.H{"significance": 5})
	require.Equal(t, http.StatusOK, w.Code)
	patched := decode[model.Memory](t, w)
	assert.Equal(t, 5, patched.Significance)
	assert.Equal(t, "Graduation", patched.Title)

	w = env.do(t, http.MethodPatch, path, pair.AccessToken, gin.H{"significance": 7})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(t, http.MethodGet, path, pair.AccessToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodDelete, path, pair.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, path, pair.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/memories/not-a-uuid", pair.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/memories?limit=0", pair.AccessToken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = env.do(t, http.MethodGet, "/api/v1/memories?skip=-1", pair.AccessToken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestMemoryCrossUserIsolation(t *testing.T) {
	env := newTestEnv(t, nil)
	owner := env.signup(t, "owner@example.com", "owner")
	other := env.signup(t, "other@example.com", "other")

	w := env.do(t, http.MethodPost, "/api/v1/memories", owner.AccessToken, gin.H{"title": "Secret", "description": "mine"})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[model.Memory](t, w)
	path := "/api/v1/memories/" + created.ID.String()

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, other.AccessToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPatch, path, other.AccessToken, gin.H{"title": "x"}).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, path, other.AccessToken, nil).Code)

	w = env.do(t, http.MethodGet, "/api/v1/memories", other.AccessToken, nil)
	assert.JSONEq(t, `[]`, w.Body.String())

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, path, owner.AccessToken, nil).Code)
}

func TestMemoryMultipartCreateAndAttachments(t *testing.T) {
	env := newTestEnv(t, nil)
	pair := env.signup(t, "mia@example.com", "mia")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "Concert"))
	require.NoError(t, mw.WriteField("description", "Front row"))
	require.NoError(t, mw.WriteField("significance", "4"))
	require.NoError(t, mw.WriteField("tags_json", `["music","friends"]`))
	fw, err := mw.CreateFormFile("files", "ticket.txt")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("row A seat 1"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/memories", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decode[model.Memory](t, w)
	assert.Equal(t, 4, created.Significance)
	assert.Equal(t, []string{"music", "friends"}, []string(created.Tags))
	require.Len(t, created.Attachments, 1)
	key := created.Attachments[0].Key
	assert.True(t, env.objects.Has(key))

	w = env.do(t, http.MethodGet, "/api/v1/memories/"+created.ID.String()+"/attachments/url?key="+url.QueryEscape(key), pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	link := decode[service.AttachmentLink](t, w)
	assert.Equal(t, "ticket.txt", link.FileName)
	assert.NotEmpty(t, link.URL)

	var abuf bytes.Buffer
	amw := multipart.NewWriter(&abuf)
	afw, err := amw.CreateFormFile("file", "photo.jpg")
	require.NoError(t, err)
	_, _ = afw.Write([]byte("jpeg"))
	require.NoError(t, amw.Close())
	req = httptest.NewRequest(http.MethodPost, "/api/v1/memories/"+created.ID.String()+"/attachments", &abuf)
	req.Header.Set("Content-Type", amw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[model.Memory](t, w).Attachments, 2)
}

func TestSearchNotConfigured(t *testing.T) {
	env := newTestEnv(t, nil)
	pair := env.signup(t, "zoe@example.com", "zoe")
	w := env.do(t, http.MethodGet, "/api/v1/memories/search?q=trip", pair.AccessToken, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "test-model",
		"choices": []map[string]interface{}{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
}

func TestConversationFlow(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, "It works out. Keep going.")
	})
	pair := env.signup(t, "ray@example.com", "ray")

	w := env.do(t, http.MethodPost, "/api/v1/conversations", pair.AccessToken, gin.H{"initial_message": "Am I on the right path?"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	conv := decode[model.Conversation](t, w)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, model.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, model.RoleFutureSelf, conv.Messages[1].Role)
	assert.Equal(t, "It works out. Keep going.", conv.Messages[1].Content)
	path := "/api/v1/conversations/" + conv.ID.String()

	w = env.do(t, http.MethodPost, path+"/messages", pair.AccessToken, gin.H{"content": "Thanks"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[model.Conversation](t, w).Messages, 4)

	w = env.do(t, http.MethodGet, "/api/v1/conversations", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]model.Conversation](t, w), 1)

	other := env.signup(t, "eve@example.com", "eve")
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, other.AccessToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, path+"/messages", other.AccessToken, gin.H{"content": "hi"}).Code)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, path, pair.AccessToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, path, pair.AccessToken, nil).Code)
}

func TestConversationCompletionAuthFailure(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	})
	pair := env.signup(t, "jo@example.com", "jo")

	w := env.do(t, http.MethodPost, "/api/v1/conversations", pair.AccessToken, gin.H{"initial_message": "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "Invalid API Key")

	w = env.do(t, http.MethodGet, "/api/v1/conversations", pair.AccessToken, nil)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestConversationPersonaNotConfigured(t *testing.T) {
	env := newTestEnv(t, nil)
	pair := env.signup(t, "max@example.com", "max")

	w := env.do(t, http.MethodPost, "/api/v1/conversations", pair.AccessToken, gin.H{"initial_message": "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/conversations", pair.AccessToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
