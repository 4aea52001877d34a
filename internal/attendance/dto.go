package attendance

import "time"

const (
	SortClockedAtDesc = "clocked_at_desc"
	SortClockedAtAsc  = "clocked_at_asc"
	DefaultPageLimit  = 50
	MaxPageLimit      = 200
	DefaultSort       = SortClockedAtDesc

	DefaultWindowDays = 7
	MaxWindowDays     = 31
)

// 打刻リクエスト（clock-in / clock-out 共通）
// 緯度経度は 0 も有効値なのでポインタで必須判定する
type ClockRequest struct {
	UserID    int64    `json:"user_id" binding:"required"`
	Note      *string  `json:"note,omitempty"`
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

type ClockEventResponse struct {
	EventID   int64     `json:"event_id"`
	EventULID string    `json:"event_ulid"`
	UserID    int64     `json:"user_id"`
	Type      string    `json:"type"`
	Note      *string   `json:"note,omitempty"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	ClockedAt time.Time `json:"clocked_at"`
}

type ListQuery struct {
	UserID int64
	From   *string // YYYY-MM-DD or RFC3339
	To     *string
	Limit  int
	Offset int
	Sort   string
}

type ListResponse struct {
	Items []ClockEventResponse `json:"items"`
	Total int64                `json:"total"`
}

type UserRef struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

type TodayClockIn struct {
	EventID   int64     `json:"event_id"`
	User      UserRef   `json:"user"`
	ClockedAt time.Time `json:"clocked_at"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}

type DailyCount struct {
	Date  string `json:"date"` // YYYY-MM-DD（設定タイムゾーン）
	Count int    `json:"count"`
}

type StaffStats struct {
	UserID        int64   `json:"user_id"`
	Name          string  `json:"name"`
	TotalHours    float64 `json:"total_hours"`
	AvgDailyHours float64 `json:"avg_daily_hours"`
	DaysPresent   int     `json:"days_present"`
}

type StaffStatsResponse struct {
	WindowStart time.Time    `json:"window_start"`
	WindowEnd   time.Time    `json:"window_end"`
	Items       []StaffStats `json:"items"`
}
