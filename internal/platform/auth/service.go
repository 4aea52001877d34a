package auth

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
)

const (
	RoleManager    = "manager"
	RoleCareworker = "careworker"

	tokenTTL          = 24 * time.Hour
	minPasswordLength = 8
)

var (
	ErrAlreadyExists   = errors.New("already exists")
	ErrNotFound        = errors.New("not found")
	ErrAuthFailed      = errors.New("authentication failed")
	ErrAccountDisabled = errors.New("account disabled")
	ErrWeakPassword    = errors.New("password too short")
)

type AuthService interface {
	Login(ctx context.Context, email, password string) (string, error)
	Register(ctx context.Context, name, email, password string) (int64, error)
	ChangePassword(ctx context.Context, userID int64, current, next string) error
	SetDisabled(ctx context.Context, userID int64, disabled bool) error
	SetPassword(ctx context.Context, userID int64, password string) error
}

type Service struct {
	store  AccountStore
	secret []byte
	now    func() time.Time
}

func NewService(conn *sql.DB, secret []byte) *Service {
	return &Service{store: NewStore(conn), secret: secret, now: time.Now}
}

func ValidRole(role string) bool {
	return role == RoleManager || role == RoleCareworker
}

// NormalizeEmail: 前後空白除去 + case fold（大文字小文字違いで別ユーザにしない）
func NormalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	acct, err := s.store.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return "", err
	}
	if acct == nil {
		return "", ErrAuthFailed
	}
	if acct.IsDisabled {
		return "", ErrAccountDisabled
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return "", ErrAuthFailed
	}
	return s.IssueToken(acct.UserID, acct.Role)
}

// IssueToken: sub はユーザIDの10進文字列
func (s *Service) IssueToken(userID int64, role string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	})
	return token.SignedString(s.secret)
}

// Register: 自己登録は常に careworker
func (s *Service) Register(ctx context.Context, name, email, password string) (int64, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return 0, err
	}
	return s.store.CreateWithUser(ctx, strings.TrimSpace(name), NormalizeEmail(email), RoleCareworker, string(hash))
}

// CreateManager: 最初の manager を作る（CLI の create-manager 用）
func (s *Service) CreateManager(ctx context.Context, name, email, password string) (int64, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return 0, err
	}
	return s.store.CreateWithUser(ctx, strings.TrimSpace(name), NormalizeEmail(email), RoleManager, string(hash))
}

// SetPassword: manager が既存ユーザの初期パスワードを設定/再設定する
func (s *Service) SetPassword(ctx context.Context, userID int64, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	return s.store.SetPassword(ctx, userID, string(hash))
}

func hashPassword(password string) ([]byte, error) {
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	acct, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if acct == nil {
		return ErrNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(current)); err != nil {
		return ErrAuthFailed
	}
	hash, err := hashPassword(next)
	if err != nil {
		return err
	}
	n, err := s.store.UpdatePassword(ctx, userID, string(hash))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) SetDisabled(ctx context.Context, userID int64, disabled bool) error {
	acct, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if acct == nil {
		return ErrNotFound
	}
	_, err = s.store.SetDisabled(ctx, userID, disabled)
	return err
}
