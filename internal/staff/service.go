package staff

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	"caresync-backend/internal/platform/auth"
	"caresync-backend/internal/platform/db"
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Service struct {
	store *Store
	clock Clock
	log   *zap.Logger
}

func NewService(conn *sql.DB, log *zap.Logger) *Service {
	return &Service{store: NewStore(conn), clock: realClock{}, log: log.Named("staff")}
}

// GET /users
func (s *Service) List(ctx context.Context) (ListResponse, error) {
	users, err := s.store.List(ctx)
	if err != nil {
		return ListResponse{}, err
	}
	out := ListResponse{Items: make([]UserResponse, 0, len(users)), Total: len(users)}
	for _, u := range users {
		out.Items = append(out.Items, u.toDTO())
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (UserResponse, error) {
	if id <= 0 {
		return UserResponse{}, ErrInvalid("user id must be > 0")
	}
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return UserResponse{}, err
	}
	return u.toDTO(), nil
}

// GET /users/lookup?email=
func (s *Service) Lookup(ctx context.Context, email string) (UserResponse, error) {
	email = auth.NormalizeEmail(email)
	if email == "" {
		return UserResponse{}, ErrInvalid("email is required")
	}
	u, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return UserResponse{}, err
	}
	return u.toDTO(), nil
}

// POST /users
func (s *Service) Create(ctx context.Context, in CreateUserRequest) (UserResponse, error) {
	name := strings.TrimSpace(in.Name)
	email := auth.NormalizeEmail(in.Email)
	if name == "" || email == "" {
		return UserResponse{}, ErrInvalid("name and email are required")
	}
	if !auth.ValidRole(in.Role) {
		return UserResponse{}, ErrInvalid("role must be manager or careworker")
	}

	if _, err := s.store.GetByEmail(ctx, email); err == nil {
		return UserResponse{}, ErrConflict("email already exists")
	} else if !isNotFound(err) {
		return UserResponse{}, err
	}

	u, err := s.store.Insert(ctx, name, email, in.Role, s.clock.Now().UTC())
	if err != nil {
		if db.IsDuplicateKey(err) {
			return UserResponse{}, ErrConflict("email already exists")
		}
		return UserResponse{}, err
	}
	s.log.Info("user created", zap.Int64("user_id", u.UserID), zap.String("role", u.Role))
	return u.toDTO(), nil
}

// POST /users/ensure: 既存ならそのまま返す（created=false）、無ければ careworker で作る
func (s *Service) Ensure(ctx context.Context, in EnsureUserRequest) (UserResponse, bool, error) {
	email := auth.NormalizeEmail(in.Email)
	if email == "" {
		return UserResponse{}, false, ErrInvalid("email is required")
	}
	u, err := s.store.GetByEmail(ctx, email)
	if err == nil {
		return u.toDTO(), false, nil
	}
	if !isNotFound(err) {
		return UserResponse{}, false, err
	}

	res, err := s.Create(ctx, CreateUserRequest{Name: in.Name, Email: email, Role: auth.RoleCareworker})
	if err != nil {
		// 同時リクエストで先に作られた場合
		if api, ok := err.(*APIError); ok && api.Code == CodeConflict {
			u, err := s.store.GetByEmail(ctx, email)
			if err != nil {
				return UserResponse{}, false, err
			}
			return u.toDTO(), false, nil
		}
		return UserResponse{}, false, err
	}
	return res, true, nil
}

// PATCH /users/:id/role
func (s *Service) UpdateRole(ctx context.Context, id int64, role string) (UserResponse, error) {
	if !auth.ValidRole(role) {
		return UserResponse{}, ErrInvalid("role must be manager or careworker")
	}
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return UserResponse{}, err
	}
	if err := s.store.UpdateRole(ctx, id, role); err != nil {
		return UserResponse{}, err
	}
	u.Role = role
	s.log.Info("user role updated", zap.Int64("user_id", id), zap.String("role", role))
	return u.toDTO(), nil
}

// DELETE /users/:id
func (s *Service) Delete(ctx context.Context, id int64) error {
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound("user not found")
	}
	s.log.Info("user deleted", zap.Int64("user_id", id))
	return nil
}

func isNotFound(err error) bool {
	api, ok := err.(*APIError)
	return ok && api.Code == CodeNotFound
}
