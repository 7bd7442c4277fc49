// Package auth manages accounts: registration, login with rename-chain
// resolution, password changes and JWT session tokens.
package auth

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"mailagent/core/domain"
	"mailagent/core/port/out"
	"mailagent/pkg/apperr"
)

const tokenTTL = 7 * 24 * time.Hour

// Service owns the in-memory user map. The map is authoritative between
// saves; every mutation writes through the store.
type Service struct {
	store     out.UserStorePort
	jwtSecret []byte
	log       zerolog.Logger

	mu    sync.Mutex
	users map[string]*domain.User // keyed by current username
}

// NewService loads the user map and returns the service.
func NewService(store out.UserStorePort, jwtSecret string, log zerolog.Logger) (*Service, error) {
	users, err := store.LoadUsers()
	if err != nil {
		return nil, err
	}
	return &Service{
		store:     store,
		jwtSecret: []byte(jwtSecret),
		users:     users,
		log:       log.With().Str("component", "auth").Logger(),
	}, nil
}

// Register creates a new account with a fresh user id.
func (s *Service) Register(username, password, email, authCode string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperr.MissingField("username")
	}
	if len(password) < 6 {
		return nil, apperr.InvalidInput("password", "至少 6 位")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; ok {
		return nil, apperr.AlreadyExists("用户名")
	}
	// a name that was ever renamed away stays reserved, otherwise old
	// sessions would silently attach to the new account
	if _, mapped := s.store.MappedTo(username); mapped {
		return nil, apperr.AlreadyExists("用户名")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.InternalWithError(err)
	}

	u := &domain.User{
		UserID:        newUserID(),
		Username:      username,
		Password:      string(hash),
		Email:         email,
		EmailAuthCode: authCode,
		Settings: domain.AISettings{
			CheckInterval:     5,
			BatchSize:         4,
			SingleConcurrency: 2,
		},
		RegisterTime: time.Now().Format("2006-01-02 15:04:05"),
	}
	s.users[username] = u

	if err := s.store.SaveUsers(s.users); err != nil {
		delete(s.users, username)
		return nil, err
	}
	s.log.Info().Str("username", username).Str("user_id", u.UserID).Msg("user registered")
	return u, nil
}

// Login verifies credentials and returns a signed token. Logging in with a
// renamed username fails with a pointer to the new name.
func (s *Service) Login(username, password, deviceID, deviceName, userAgent, ip string) (string, *domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		if current := s.store.ResolveUsername(username); current != username {
			if _, live := s.users[current]; live {
				return "", nil, apperr.Unauthorized(fmt.Sprintf("用户名已更改，请使用新用户名 '%s' 登录", current))
			}
		}
		return "", nil, apperr.Unauthorized("用户名或密码错误")
	}

	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return "", nil, apperr.Unauthorized("用户名或密码错误")
	}

	u.LastLogin = time.Now().Format("2006-01-02 15:04:05")
	if deviceID != "" {
		u.TouchDevice(deviceID, deviceName, userAgent, ip)
	}
	if err := s.store.SaveUsers(s.users); err != nil {
		s.log.Warn().Err(err).Str("username", username).Msg("login bookkeeping save failed")
	}

	token, err := s.issueToken(u)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// ChangePassword verifies the old password and sets the new one.
func (s *Service) ChangePassword(username, oldPassword, newPassword string) error {
	if len(newPassword) < 6 {
		return apperr.InvalidInput("password", "至少 6 位")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return apperr.NotFound("用户")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(oldPassword)) != nil {
		return apperr.Unauthorized("原密码错误")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperr.InternalWithError(err)
	}
	u.Password = string(hash)
	return s.store.SaveUsers(s.users)
}

// ResetPassword sets a new password after verifying the account email.
func (s *Service) ResetPassword(username, email, newPassword string) error {
	if len(newPassword) < 6 {
		return apperr.InvalidInput("password", "至少 6 位")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return apperr.NotFound("用户")
	}
	if u.Email == "" || !strings.EqualFold(u.Email, email) {
		return apperr.Unauthorized("邮箱验证失败")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperr.InternalWithError(err)
	}
	u.Password = string(hash)
	return s.store.SaveUsers(s.users)
}

// Rename changes the display name, recording the old name in the mapping
// chain. The data file keyed by user_id is untouched.
func (s *Service) Rename(username, newName string) (*domain.User, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, apperr.MissingField("new_username")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return nil, apperr.NotFound("用户")
	}
	if _, taken := s.users[newName]; taken {
		return nil, apperr.AlreadyExists("用户名")
	}
	if _, mapped := s.store.MappedTo(newName); mapped {
		return nil, apperr.AlreadyExists("用户名")
	}

	if err := s.store.RecordRename(username, newName); err != nil {
		return nil, err
	}
	delete(s.users, username)
	u.Username = newName
	s.users[newName] = u

	if err := s.store.SaveUsers(s.users); err != nil {
		return nil, err
	}
	s.log.Info().Str("old", username).Str("new", newName).Msg("user renamed")
	return u, nil
}

// User returns the record for a live username.
func (s *Service) User(username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, apperr.NotFound("用户")
	}
	return u, nil
}

// UpdateUser applies fn to the user record under the service lock and
// persists the map.
func (s *Service) UpdateUser(username string, fn func(*domain.User)) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, apperr.NotFound("用户")
	}
	fn(u)
	if err := s.store.SaveUsers(s.users); err != nil {
		return nil, err
	}
	return u, nil
}

// issueToken signs an HS256 token carrying the stable user id and the
// current username.
func (s *Service) issueToken(u *domain.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id":  u.UserID,
		"username": u.Username,
		"exp":      time.Now().Add(tokenTTL).Unix(),
		"iat":      time.Now().Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", apperr.InternalWithError(err)
	}
	return token, nil
}

func newUserID() string { return uuid.NewString() }

// ParseToken validates a token and returns (user_id, username).
func (s *Service) ParseToken(tokenString string) (string, string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", "", apperr.InvalidToken("登录已过期，请重新登录")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", apperr.InvalidToken("invalid claims")
	}
	userID, _ := claims["user_id"].(string)
	username, _ := claims["username"].(string)
	if userID == "" || username == "" {
		return "", "", apperr.InvalidToken("invalid claims")
	}
	return userID, username, nil
}
