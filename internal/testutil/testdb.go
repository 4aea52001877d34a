package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"caresync-backend/internal/platform/db"
)

// NewTestDB creates an in-memory SQLite database with the schema applied.
// The database is closed when the test completes.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
	})
	if err := db.Migrate(context.Background(), conn, db.DriverSQLite); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return conn
}

// InsertUser inserts a users row and returns its id.
func InsertUser(t *testing.T, conn *sql.DB, name, email, role string) int64 {
	t.Helper()
	res, err := conn.Exec(`INSERT INTO users (name, email, role, created_at) VALUES (?, ?, ?, ?)`,
		name, email, role, time.Now().UTC())
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("last insert id: %v", err)
	}
	return id
}

// InsertClockEvent inserts a clock_events row at the given instant.
func InsertClockEvent(t *testing.T, conn *sql.DB, userID int64, typ string, at time.Time) {
	t.Helper()
	_, err := conn.Exec(`
		INSERT INTO clock_events (event_ulid, user_id, type, note, latitude, longitude, clocked_at)
		VALUES (?, ?, ?, NULL, 0, 0, ?)`,
		NewULID(t, at), userID, typ, at.UTC())
	if err != nil {
		t.Fatalf("insert clock event: %v", err)
	}
}

// InsertAccount gives userID an enabled auth account. The hash is not a valid bcrypt hash,
// so the account can authenticate with tokens only.
func InsertAccount(t *testing.T, conn *sql.DB, userID int64) {
	t.Helper()
	_, err := conn.Exec(`INSERT INTO auth_accounts (user_id, password_hash, is_disabled, created_at) VALUES (?, 'x', 0, ?)`,
		userID, time.Now().UTC())
	if err != nil {
		t.Fatalf("insert account: %v", err)
	}
}

// InsertStaff inserts a user together with an auth account and returns its id.
func InsertStaff(t *testing.T, conn *sql.DB, name, email, role string) int64 {
	t.Helper()
	id := InsertUser(t, conn, name, email, role)
	InsertAccount(t, conn, id)
	return id
}
