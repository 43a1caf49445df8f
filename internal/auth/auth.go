package auth

import (
	"context"
	"errors"
	"fmt"
	"freelance-market-bot/internal/db"
	"freelance-market-bot/internal/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"regexp"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrBadUsername        = errors.New("username must be 3-32 latin letters, digits or _")
	ErrWeakPassword       = errors.New("password is too short")
	ErrNotLoggedIn        = errors.New("not logged in")
)

const minPasswordLen = 4

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,32}$`)

type Service struct {
	users db.Users
	cost  int
}

func NewService(users db.Users) *Service {
	return &Service{users: users, cost: bcrypt.DefaultCost}
}

// WithCost нужен тестам, чтобы bcrypt не тормозил.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

// ValidateUsername проверяет логин до того, как спрашивать пароль.
func (s *Service) ValidateUsername(ctx context.Context, username string) error {
	if !usernameRe.MatchString(username) {
		return ErrBadUsername
	}
	if _, err := s.users.GetUser(ctx, username); err == nil {
		return ErrUsernameTaken
	} else if !errors.Is(err, db.ErrNotFound) {
		return err
	}
	return nil
}

// Register создаёт пользователя и сразу привязывает к нему чат, если chatID != 0.
func (s *Service) Register(ctx context.Context, username, password string, role db.Role, chatID int64) (*db.User, error) {
	if !usernameRe.MatchString(username) {
		return nil, ErrBadUsername
	}
	if len([]rune(password)) < minPasswordLen {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &db.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		Balance:      decimal.Zero,
		Status:       db.UserStatusActive,
		CreatedAt:    time.Now(),
	}
	if role == db.RoleContractor {
		u.Rating = db.DefaultRating
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	if chatID != 0 {
		if err := s.users.BindChat(ctx, username, chatID); err != nil {
			return nil, err
		}
		u.ChatID = db.Ptr(chatID)
	}
	logger.Info("User registered", zap.String("username", username), zap.String("role", string(role)))
	return u, nil
}

// Login проверяет пароль и роль и привязывает чат к аккаунту.
func (s *Service) Login(ctx context.Context, username, password string, role db.Role, chatID int64) (*db.User, error) {
	u, err := s.users.GetUser(ctx, username)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if u.Role != role || u.Status == db.UserStatusBlocked {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := s.users.BindChat(ctx, username, chatID); err != nil {
		return nil, err
	}
	u.ChatID = db.Ptr(chatID)
	logger.Info("User logged in", zap.String("username", username), zap.Int64("chat_id", chatID))
	return u, nil
}

// Logout отвязывает чат. Уведомления по заказам до следующего входа не доставляются.
func (s *Service) Logout(ctx context.Context, chatID int64, role db.Role) (*db.User, error) {
	u, err := s.Current(ctx, chatID, role)
	if err != nil {
		return nil, err
	}
	if err := s.users.UnbindChat(ctx, u.Username); err != nil {
		return nil, err
	}
	return u, nil
}

// Current: пользователь роли, вошедший из этого чата.
func (s *Service) Current(ctx context.Context, chatID int64, role db.Role) (*db.User, error) {
	u, err := s.users.UserByChat(ctx, chatID, role)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotLoggedIn
	}
	return u, err
}
