package settings

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"caresync-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

func (s *Store) Get(ctx context.Context, name string) (Setting, error) {
	var st Setting
	err := s.db.QueryRowContext(ctx,
		`SELECT name, value, updated_at FROM settings WHERE name = ?`, name,
	).Scan(&st.Name, &st.Value, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Setting{}, ErrNotFound("setting not found")
	}
	if err != nil {
		return Setting{}, err
	}
	return st, nil
}

// Upsert: MySQL/SQLite で構文が違うので SELECT → UPDATE/INSERT を1Txで
func (s *Store) Upsert(ctx context.Context, name, value string, now time.Time) (Setting, error) {
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM settings WHERE name = ?`, name).Scan(&one)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx,
				`INSERT INTO settings (name, value, updated_at) VALUES (?, ?, ?)`, name, value, now)
			return err
		case err != nil:
			return err
		default:
			_, err = tx.ExecContext(ctx,
				`UPDATE settings SET value = ?, updated_at = ? WHERE name = ?`, value, now, name)
			return err
		}
	})
	if err != nil {
		return Setting{}, err
	}
	return Setting{Name: name, Value: value, UpdatedAt: now}, nil
}
