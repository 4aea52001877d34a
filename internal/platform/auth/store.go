package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"caresync-backend/internal/platform/db"
)

type Account struct {
	UserID       int64
	Email        string
	Role         string
	PasswordHash string
	IsDisabled   bool
}

type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByUserID(ctx context.Context, userID int64) (*Account, error)
	CreateWithUser(ctx context.Context, name, email, role, passwordHash string) (int64, error)
	SetPassword(ctx context.Context, userID int64, passwordHash string) error
	UpdatePassword(ctx context.Context, userID int64, passwordHash string) (int64, error)
	SetDisabled(ctx context.Context, userID int64, disabled bool) (int64, error)
}

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) AccountStore {
	return &Store{db: conn}
}

const selectAccount = `
SELECT u.user_id, u.email, u.role, a.password_hash, a.is_disabled
FROM auth_accounts a
JOIN users u ON u.user_id = a.user_id
`

func (s *Store) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, selectAccount+`WHERE u.email = ? LIMIT 1`, email))
}

func (s *Store) GetByUserID(ctx context.Context, userID int64) (*Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, selectAccount+`WHERE u.user_id = ? LIMIT 1`, userID))
}

func scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	var isDisabledInt int
	err := row.Scan(&a.UserID, &a.Email, &a.Role, &a.PasswordHash, &isDisabledInt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.IsDisabled = isDisabledInt != 0
	return &a, nil
}

// CreateWithUser: users と auth_accounts を同一Txで作る
func (s *Store) CreateWithUser(ctx context.Context, name, email, role, passwordHash string) (int64, error) {
	var userID int64
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE email = ? LIMIT 1`, email).Scan(&exists)
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO users (name, email, role, created_at) VALUES (?, ?, ?, ?)`,
			name, email, role, now)
		if err != nil {
			return err
		}
		userID, err = res.LastInsertId()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO auth_accounts (user_id, password_hash, is_disabled, created_at) VALUES (?, ?, 0, ?)`,
			userID, passwordHash, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	return userID, nil
}

// SetPassword: 既存ユーザにアカウントが無ければ作り、あればハッシュを置き換える。
// ユーザが無ければ ErrNotFound
func (s *Store) SetPassword(ctx context.Context, userID int64, passwordHash string) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE user_id = ?`, userID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		err = tx.QueryRowContext(ctx, `SELECT 1 FROM auth_accounts WHERE user_id = ?`, userID).Scan(&one)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx,
				`INSERT INTO auth_accounts (user_id, password_hash, is_disabled, created_at) VALUES (?, ?, 0, ?)`,
				userID, passwordHash, time.Now().UTC())
			return err
		case err != nil:
			return err
		default:
			_, err = tx.ExecContext(ctx, `UPDATE auth_accounts SET password_hash = ? WHERE user_id = ?`, passwordHash, userID)
			return err
		}
	})
}

func (s *Store) UpdatePassword(ctx context.Context, userID int64, passwordHash string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE auth_accounts SET password_hash = ? WHERE user_id = ?`, passwordHash, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) SetDisabled(ctx context.Context, userID int64, disabled bool) (int64, error) {
	v := 0
	if disabled {
		v = 1
	}
	res, err := s.db.ExecContext(ctx, `UPDATE auth_accounts SET is_disabled = ? WHERE user_id = ?`, v, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
