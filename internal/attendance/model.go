package attendance

import (
	"database/sql"
	"fmt"
	"time"

	"caresync-backend/internal/shift"
)

// DB行に対応（スキャン用）
type clockEventRow struct {
	EventID   int64
	EventULID string
	UserID    int64
	Type      string
	Note      sql.NullString
	Latitude  float64
	Longitude float64
	ClockedAt time.Time
}

// Service ↔ Store で使うモデル
type ClockEvent struct {
	EventID   int64
	EventULID string
	UserID    int64
	Type      shift.Type
	Note      *string
	Latitude  float64
	Longitude float64
	ClockedAt time.Time
}

// toModel: IN/OUT 以外の type は集計に流さずエラーにする
func (r clockEventRow) toModel() (ClockEvent, error) {
	typ := shift.Type(r.Type)
	if !typ.Valid() {
		return ClockEvent{}, fmt.Errorf("clock event %d: unknown type %q", r.EventID, r.Type)
	}
	ev := ClockEvent{
		EventID:   r.EventID,
		EventULID: r.EventULID,
		UserID:    r.UserID,
		Type:      typ,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		ClockedAt: r.ClockedAt.UTC(),
	}
	if r.Note.Valid {
		n := r.Note.String
		ev.Note = &n
	}
	return ev, nil
}

func (e ClockEvent) toDTO() ClockEventResponse {
	return ClockEventResponse{
		EventID:   e.EventID,
		EventULID: e.EventULID,
		UserID:    e.UserID,
		Type:      string(e.Type),
		Note:      e.Note,
		Latitude:  e.Latitude,
		Longitude: e.Longitude,
		ClockedAt: e.ClockedAt,
	}
}

func (e ClockEvent) toShiftEvent() shift.Event {
	return shift.Event{UserID: e.UserID, Type: e.Type, Timestamp: e.ClockedAt}
}

// 打刻 + ユーザ情報（JOIN 結果）
type eventWithUser struct {
	ClockEvent
	User UserRef
}

func toShiftEvents(evs []ClockEvent) []shift.Event {
	out := make([]shift.Event, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.toShiftEvent())
	}
	return out
}
