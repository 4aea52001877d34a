package db

import (
	"context"
	"database/sql"
	"fmt"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id    BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		name       VARCHAR(128) NOT NULL,
		email      VARCHAR(255) NOT NULL,
		role       VARCHAR(32)  NOT NULL DEFAULT 'careworker',
		created_at DATETIME(6)  NOT NULL,
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS auth_accounts (
		user_id       BIGINT UNSIGNED NOT NULL PRIMARY KEY,
		password_hash VARCHAR(255) NOT NULL,
		is_disabled   TINYINT(1)   NOT NULL DEFAULT 0,
		created_at    DATETIME(6)  NOT NULL,
		CONSTRAINT fk_auth_accounts_user FOREIGN KEY (user_id) REFERENCES users(user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS clock_events (
		event_id   BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		event_ulid CHAR(26)        NOT NULL,
		user_id    BIGINT UNSIGNED NOT NULL,
		type       ENUM('IN','OUT') NOT NULL,
		note       TEXT NULL,
		latitude   DOUBLE NOT NULL,
		longitude  DOUBLE NOT NULL,
		clocked_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_clock_events_ulid (event_ulid),
		KEY idx_clock_events_user_time (user_id, clocked_at),
		KEY idx_clock_events_time (clocked_at),
		CONSTRAINT fk_clock_events_user FOREIGN KEY (user_id) REFERENCES users(user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS settings (
		name       VARCHAR(64) NOT NULL PRIMARY KEY,
		value      TEXT        NOT NULL,
		updated_at DATETIME(6) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id    INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL,
		email      TEXT NOT NULL UNIQUE,
		role       TEXT NOT NULL DEFAULT 'careworker',
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS auth_accounts (
		user_id       INTEGER PRIMARY KEY REFERENCES users(user_id),
		password_hash TEXT NOT NULL,
		is_disabled   INTEGER NOT NULL DEFAULT 0,
		created_at    DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS clock_events (
		event_id   INTEGER PRIMARY KEY AUTOINCREMENT,
		event_ulid TEXT NOT NULL UNIQUE,
		user_id    INTEGER NOT NULL REFERENCES users(user_id),
		type       TEXT NOT NULL CHECK(type IN ('IN','OUT')),
		note       TEXT,
		latitude   REAL NOT NULL,
		longitude  REAL NOT NULL,
		clocked_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_clock_events_user_time ON clock_events(user_id, clocked_at)`,
	`CREATE INDEX IF NOT EXISTS idx_clock_events_time ON clock_events(clocked_at)`,
	`CREATE TABLE IF NOT EXISTS settings (
		name       TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
}

// Migrate: 全テーブルを CREATE IF NOT EXISTS で作る（何度流しても良い）
func Migrate(ctx context.Context, conn *sql.DB, driver string) error {
	stmts := mysqlSchema
	if driver == DriverSQLite {
		stmts = sqliteSchema
	}
	for i, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
