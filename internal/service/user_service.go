package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"future-self-go/internal/model"
	"future-self-go/internal/repository"
	"future-self-go/pkg/hash"
	"future-self-go/pkg/log"
	"future-self-go/pkg/token"

	"gorm.io/datatypes"
)

const (
	minPasswordLen = 8
	// bcrypt 只使用前 72 字节
	maxPasswordBytes = 72
	minUsernameLen   = 3
	maxUsernameLen   = 100
)

// RegisterInput 是注册请求的业务输入。
type RegisterInput struct {
	Email    string
	Username string
	Password string
	FullName string
}

// TokenPair 是登录与刷新接口的返回体。
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// ProfileUpdate 描述用户资料的部分更新，nil 字段保持不变。
type ProfileUpdate struct {
	FullName    *string
	Username    *string
	Preferences *model.UserPreferences
	Persona     *model.PersonaCharacteristics
}

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Register(ctx context.Context, in RegisterInput) (*model.User, error)
	Login(ctx context.Context, identifier, password string) (*TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, accessClaims *token.CustomClaims, refreshToken string) error
	// Authenticate 校验 access token（含黑名单）并返回对应的活跃用户。
	Authenticate(ctx context.Context, accessToken string) (*model.User, *token.CustomClaims, error)
	GetProfile(ctx context.Context, userID model.ID) (*model.User, error)
	UpdateProfile(ctx context.Context, userID model.ID, update ProfileUpdate) (*model.User, error)
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo   repository.UserRepository
	blacklist  repository.TokenBlacklist
	jwtManager *token.JWTManager
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, blacklist repository.TokenBlacklist, jwtManager *token.JWTManager) UserService {
	return &userService{
		userRepo:   userRepo,
		blacklist:  blacklist,
		jwtManager: jwtManager,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < minUsernameLen || n > maxUsernameLen {
		return validationf("username must be between %d and %d characters", minUsernameLen, maxUsernameLen)
	}
	if strings.Contains(username, "@") {
		return validationf("username must not contain '@'")
	}
	return nil
}

// Register 处理用户注册的业务逻辑。
func (s *userService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, validationf("a valid email address is required")
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLen {
		return nil, validationf("password must be at least %d characters", minPasswordLen)
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, validationf("password must be at most %d bytes", maxPasswordBytes)
	}
	var username *string
	if name := strings.TrimSpace(in.Username); name != "" {
		if err := validateUsername(name); err != nil {
			return nil, err
		}
		username = &name
	}

	// 1. 检查邮箱与用户名是否已存在
	if _, err := s.userRepo.FindByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if username != nil {
		if _, err := s.userRepo.FindByUsername(ctx, *username); err == nil {
			return nil, fmt.Errorf("%w: username already taken", ErrConflict)
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	// 2. 对密码进行哈希处理
	hashedPassword, err := hash.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	// 3. 写入数据库，唯一索引兜底并发注册
	newUser := &model.User{
		ID:          model.NewID(),
		Email:       email,
		Username:    username,
		FullName:    strings.TrimSpace(in.FullName),
		Password:    hashedPassword,
		IsActive:    true,
		Preferences: datatypes.NewJSONType(model.DefaultPreferences()),
	}
	if err := s.userRepo.Create(ctx, newUser); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: email or username already registered", ErrConflict)
		}
		return nil, err
	}
	log.Infow("User registered", "user_id", newUser.ID)
	return newUser, nil
}

// findByIdentifier 按邮箱或用户名查找用户。
func (s *userService) findByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return s.userRepo.FindByEmail(ctx, normalizeEmail(identifier))
	}
	return s.userRepo.FindByUsername(ctx, identifier)
}

func (s *userService) issueTokens(user *model.User) (*TokenPair, error) {
	accessToken, err := s.jwtManager.GenerateToken(user.ID.String(), user.Email)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID.String(), user.Email)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken, TokenType: "bearer"}, nil
}

// Login 处理用户登录的业务逻辑。identifier 可以是邮箱或用户名。
func (s *userService) Login(ctx context.Context, identifier, password string) (*TokenPair, error) {
	// 1. 查找用户
	user, err := s.findByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	// 2. 验证密码
	if !hash.CheckPasswordHash(password, user.Password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: inactive user", ErrInvalidCredentials)
	}

	// 3. 生成 access token 和 refresh token
	return s.issueTokens(user)
}

// RefreshToken 使用 refresh token 换取新的 token 对，旧的 refresh token 被拉黑。
func (s *userService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.jwtManager.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrUnauthorized
	}
	user, err := s.activeUser(ctx, claims)
	if err != nil {
		return nil, err
	}
	pair, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}
	if err := s.blacklist.Add(ctx, claims.ID, time.Until(claims.ExpiresAt.Time)); err != nil {
		log.Error("Failed to blacklist rotated refresh token", err)
	}
	return pair, nil
}

// Logout 将当前 access token（以及可选的 refresh token）加入 Redis 黑名单，直到其过期。
func (s *userService) Logout(ctx context.Context, accessClaims *token.CustomClaims, refreshToken string) error {
	if err := s.blacklist.Add(ctx, accessClaims.ID, time.Until(accessClaims.ExpiresAt.Time)); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}
	rc, err := s.jwtManager.VerifyRefreshToken(refreshToken)
	if err != nil || rc.Subject != accessClaims.Subject {
		// 无效或不属于当前用户的 refresh token 直接忽略
		return nil
	}
	return s.blacklist.Add(ctx, rc.ID, time.Until(rc.ExpiresAt.Time))
}

// activeUser 检查黑名单并加载 token 对应的活跃用户。
func (s *userService) activeUser(ctx context.Context, claims *token.CustomClaims) (*model.User, error) {
	revoked, err := s.blacklist.Contains(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrUnauthorized
	}
	userID, err := model.ParseID(claims.Subject)
	if err != nil {
		return nil, ErrUnauthorized
	}
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: inactive user", ErrUnauthorized)
	}
	return user, nil
}

func (s *userService) Authenticate(ctx context.Context, accessToken string) (*model.User, *token.CustomClaims, error) {
	claims, err := s.jwtManager.VerifyToken(accessToken)
	if err != nil {
		return nil, nil, ErrUnauthorized
	}
	user, err := s.activeUser(ctx, claims)
	if err != nil {
		return nil, nil, err
	}
	return user, claims, nil
}

// GetProfile 根据用户 ID 获取用户详细信息。
func (s *userService) GetProfile(ctx context.Context, userID model.ID) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return user, nil
}

// UpdateProfile 更新全名、用户名、偏好与人格特征。
func (s *userService) UpdateProfile(ctx context.Context, userID model.ID, update ProfileUpdate) (*model.User, error) {
	if update.FullName == nil && update.Username == nil && update.Preferences == nil && update.Persona == nil {
		return nil, validationf("no fields to update")
	}
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, translateRepoError(err)
	}

	if update.FullName != nil {
		user.FullName = strings.TrimSpace(*update.FullName)
	}
	if update.Username != nil {
		name := strings.TrimSpace(*update.Username)
		if err := validateUsername(name); err != nil {
			return nil, err
		}
		if existing, err := s.userRepo.FindByUsername(ctx, name); err == nil && existing.ID != user.ID {
			return nil, fmt.Errorf("%w: username already taken", ErrConflict)
		} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		user.Username = &name
	}
	if update.Preferences != nil {
		user.Preferences = datatypes.NewJSONType(*update.Preferences)
	}
	if update.Persona != nil {
		p := *update.Persona
		p.LastUpdated = time.Now().UTC()
		user.Persona = datatypes.NewJSONType(p)
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, translateRepoError(err)
	}
	return user, nil
}
