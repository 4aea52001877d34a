package attendance

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"caresync-backend/internal/platform/db"
	"caresync-backend/internal/shift"
)

type Store struct{ db db.DBTX }

func NewStore(conn db.DBTX) *Store { return &Store{db: conn} }

const eventColumns = `e.event_id, e.event_ulid, e.user_id, e.type, e.note, e.latitude, e.longitude, e.clocked_at`

// Insert: 確定した event_id をセットして返す
func (s *Store) Insert(ctx context.Context, ev ClockEvent) (ClockEvent, error) {
	res, err := s.db.ExecContext(ctx, `
	INSERT INTO clock_events (event_ulid, user_id, type, note, latitude, longitude, clocked_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.EventULID, ev.UserID, string(ev.Type), noteOrNil(ev.Note), ev.Latitude, ev.Longitude, ev.ClockedAt)
	if err != nil {
		return ClockEvent{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ClockEvent{}, err
	}
	ev.EventID = id
	return ev, nil
}

// GetUser: 存在しなければ NOT_FOUND
func (s *Store) GetUser(ctx context.Context, userID int64) (UserRef, error) {
	var u UserRef
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, name, email FROM users WHERE user_id = ?`, userID,
	).Scan(&u.UserID, &u.Name, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return UserRef{}, ErrNotFound("user not found")
	}
	if err != nil {
		return UserRef{}, err
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]UserRef, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, name, email FROM users ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserRef
	for rows.Next() {
		var u UserRef
		if err := rows.Scan(&u.UserID, &u.Name, &u.Email); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type listFilter struct {
	UserID int64
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
	Sort   string
}

// List: 条件に応じて動的WHERE + ORDER + LIMIT/OFFSET
func (s *Store) List(ctx context.Context, f listFilter) ([]ClockEvent, int64, error) {
	var (
		buf    bytes.Buffer
		args   []any
		wheres []string
	)

	buf.WriteString(`SELECT ` + eventColumns + ` FROM clock_events e`)
	if f.UserID > 0 {
		wheres = append(wheres, "e.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.From != nil {
		wheres = append(wheres, "e.clocked_at >= ?")
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		wheres = append(wheres, "e.clocked_at <= ?")
		args = append(args, f.To.UTC())
	}
	if len(wheres) > 0 {
		buf.WriteString(" WHERE " + strings.Join(wheres, " AND "))
	}

	// ORDER
	switch f.Sort {
	case SortClockedAtAsc:
		buf.WriteString(" ORDER BY e.clocked_at ASC, e.event_id ASC")
	default:
		buf.WriteString(" ORDER BY e.clocked_at DESC, e.event_id DESC")
	}

	// LIMIT/OFFSET
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	offset := max(f.Offset, 0)
	buf.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	out, err := s.queryEvents(ctx, buf.String(), args...)
	if err != nil {
		return nil, 0, err
	}

	// COUNT（ORDER BY より前までを再構築）
	var cntBuf bytes.Buffer
	cntBuf.WriteString("SELECT COUNT(*) FROM clock_events e")
	if len(wheres) > 0 {
		cntBuf.WriteString(" WHERE " + strings.Join(wheres, " AND "))
	}
	var total int64
	if err := s.db.QueryRowContext(ctx, cntBuf.String(), args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// EventsInWindow: 集計用。[from, to] を昇順（同時刻は event_id 順）で返す
func (s *Store) EventsInWindow(ctx context.Context, userID int64, from, to time.Time) ([]ClockEvent, error) {
	return s.queryEvents(ctx, `
	SELECT `+eventColumns+`
	FROM clock_events e
	WHERE e.user_id = ? AND e.clocked_at >= ? AND e.clocked_at <= ?
	ORDER BY e.clocked_at ASC, e.event_id ASC`,
		userID, from.UTC(), to.UTC())
}

// EventsSince: since 以降の全ユーザの打刻をユーザ情報付きで。
// typ が空なら IN/OUT 両方。ユーザ毎・昇順に並ぶ
func (s *Store) EventsSince(ctx context.Context, since time.Time, typ shift.Type) ([]eventWithUser, error) {
	q := `
	SELECT ` + eventColumns + `, u.name, u.email
	FROM clock_events e
	JOIN users u ON u.user_id = e.user_id
	WHERE e.clocked_at >= ?`
	args := []any{since.UTC()}
	if typ != "" {
		q += ` AND e.type = ?`
		args = append(args, string(typ))
	}
	q += ` ORDER BY e.user_id ASC, e.clocked_at ASC, e.event_id ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []eventWithUser
	for rows.Next() {
		var r clockEventRow
		var u UserRef
		if err := rows.Scan(&r.EventID, &r.EventULID, &r.UserID, &r.Type, &r.Note,
			&r.Latitude, &r.Longitude, &r.ClockedAt, &u.Name, &u.Email); err != nil {
			return nil, err
		}
		u.UserID = r.UserID
		ev, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, eventWithUser{ClockEvent: ev, User: u})
	}
	return out, rows.Err()
}

func (s *Store) queryEvents(ctx context.Context, q string, args ...any) ([]ClockEvent, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClockEvent
	for rows.Next() {
		var r clockEventRow
		if err := rows.Scan(&r.EventID, &r.EventULID, &r.UserID, &r.Type, &r.Note,
			&r.Latitude, &r.Longitude, &r.ClockedAt); err != nil {
			return nil, err
		}
		ev, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ===== helpers =====

func noteOrNil(s *string) any {
	if s == nil {
		return nil
	}
	if *s == "" {
		return nil
	}
	return *s
}
