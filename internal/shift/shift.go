// Package shift pairs clock-in/clock-out events into shifts and derives
// worked-hours statistics from them. Everything here is pure: no I/O and no
// shared state, so callers may run one aggregation per worker in parallel.
package shift

import (
	"math"
	"sort"
	"time"
)

const DateLayout = "2006-01-02"

type Type string

const (
	In  Type = "IN"
	Out Type = "OUT"
)

func (t Type) Valid() bool { return t == In || t == Out }

// Event は1件の打刻（入力専用）
type Event struct {
	UserID    int64
	Type      Type
	Timestamp time.Time
}

// Totals は Aggregate の結果
type Totals struct {
	TotalHours    float64
	AvgDailyHours float64
	DaysPresent   int
}

// Stats は作業者ごとの集計結果（保存しない、都度計算）
type Stats struct {
	UserID        int64
	Name          string
	TotalHours    float64
	AvgDailyHours float64
	DaysPresent   int
}

// Aggregate walks events, which must be in ascending timestamp order, and
// sums every IN immediately followed by an OUT. Each shift is credited to the
// calendar date of its IN event in loc (nil means UTC), so a shift crossing
// midnight counts toward the day it started. Unmatched events are dropped:
// an open shift contributes nothing.
func Aggregate(events []Event, loc *time.Location) Totals {
	if loc == nil {
		loc = time.UTC
	}

	var total float64
	perDay := make(map[string]float64)

	for i := 0; i < len(events); {
		if events[i].Type == In && i+1 < len(events) && events[i+1].Type == Out {
			hours := events[i+1].Timestamp.Sub(events[i].Timestamp).Hours()
			total += hours
			day := events[i].Timestamp.In(loc).Format(DateLayout)
			perDay[day] += hours
			// ペアは消費済み。直後の OUT を IN と再マッチさせない
			i += 2
			continue
		}
		i++
	}

	days := 0
	for _, h := range perDay {
		if h != 0 {
			days++
		}
	}

	return Totals{
		TotalHours:    round2(total),
		AvgDailyHours: round2(total / float64(max(days, 1))),
		DaysPresent:   days,
	}
}

// Summarize は Aggregate に識別子を付けたもの
func Summarize(userID int64, name string, events []Event, loc *time.Location) Stats {
	t := Aggregate(events, loc)
	return Stats{
		UserID:        userID,
		Name:          name,
		TotalHours:    t.TotalHours,
		AvgDailyHours: t.AvgDailyHours,
		DaysPresent:   t.DaysPresent,
	}
}

type DailyCount struct {
	Date  string // YYYY-MM-DD (loc 基準)
	Count int
}

// GroupByLocalDate counts distinct users with at least one IN event per local
// calendar date, for the windowDays dates ending today (in loc, relative to
// now). Dates without any IN are omitted. Oldest date first.
func GroupByLocalDate(events []Event, windowDays int, now time.Time, loc *time.Location) []DailyCount {
	if loc == nil {
		loc = time.UTC
	}
	if windowDays < 1 {
		windowDays = 1
	}

	first := StartOfDay(now, loc).AddDate(0, 0, -(windowDays - 1)).Format(DateLayout)
	last := now.In(loc).Format(DateLayout)

	users := make(map[string]map[int64]struct{})
	for _, e := range events {
		if e.Type != In {
			continue
		}
		day := e.Timestamp.In(loc).Format(DateLayout)
		// YYYY-MM-DD は文字列比較で日付順になる
		if day < first || day > last {
			continue
		}
		set, ok := users[day]
		if !ok {
			set = make(map[int64]struct{})
			users[day] = set
		}
		set[e.UserID] = struct{}{}
	}

	out := make([]DailyCount, 0, len(users))
	for day, set := range users {
		out = append(out, DailyCount{Date: day, Count: len(set)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// IsClockedIn reports whether the latest of the ascending events is an IN.
func IsClockedIn(events []Event) bool {
	if len(events) == 0 {
		return false
	}
	return events[len(events)-1].Type == In
}

// StartOfDay: loc における t の日付の 00:00
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
