package attendance

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"caresync-backend/internal/geofence"
	"caresync-backend/internal/platform/events"
	"caresync-backend/internal/platform/metrics"
	"caresync-backend/internal/shift"
)

const publishTimeout = 3 * time.Second

// ===== インターフェース群 =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type IDGen interface {
	New() string
}

// ulid.Make はプロセス共通の単調増加エントロピーを使う（goroutine safe）
type ulidGen struct{}

func (ulidGen) New() string { return ulid.Make().String() }

// PerimeterSource は settings.Service が満たす
type PerimeterSource interface {
	GeoPerimeter(ctx context.Context) (geofence.Perimeter, bool, error)
}

type Options struct {
	Location         *time.Location
	EnforcePerimeter bool
	StatsWorkers     int
	Perimeter        PerimeterSource
	Publisher        events.Publisher
	Metrics          *metrics.Metrics
	Logger           *zap.Logger
}

// ===== Service本体 =====

type Service struct {
	store     *Store
	clock     Clock
	id        IDGen
	loc       *time.Location
	enforce   bool
	workers   int
	perimeter PerimeterSource
	publisher events.Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func NewService(conn *sql.DB, opts Options) *Service {
	s := &Service{
		store:     NewStore(conn),
		clock:     realClock{},
		id:        ulidGen{},
		loc:       opts.Location,
		enforce:   opts.EnforcePerimeter,
		workers:   opts.StatsWorkers,
		perimeter: opts.Perimeter,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		log:       opts.Logger,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.workers <= 0 {
		s.workers = 8
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("attendance")
	return s
}

// POST /attendance/clock-in
func (s *Service) ClockIn(ctx context.Context, in ClockRequest) (ClockEventResponse, error) {
	return s.record(ctx, shift.In, in)
}

// POST /attendance/clock-out
func (s *Service) ClockOut(ctx context.Context, in ClockRequest) (ClockEventResponse, error) {
	return s.record(ctx, shift.Out, in)
}

func (s *Service) record(ctx context.Context, typ shift.Type, in ClockRequest) (ClockEventResponse, error) {
	if in.UserID <= 0 {
		return ClockEventResponse{}, ErrInvalid("user_id must be > 0")
	}
	if in.Latitude == nil || in.Longitude == nil {
		return ClockEventResponse{}, ErrInvalid("latitude and longitude are required")
	}
	lat, lng := *in.Latitude, *in.Longitude
	if !geofence.ValidCoordinate(lat, lng) {
		return ClockEventResponse{}, ErrInvalid("latitude must be in [-90,90] and longitude in [-180,180]")
	}

	if _, err := s.store.GetUser(ctx, in.UserID); err != nil {
		return ClockEventResponse{}, err
	}

	if err := s.checkPerimeter(ctx, lat, lng); err != nil {
		return ClockEventResponse{}, err
	}

	var note *string
	if in.Note != nil {
		if n := strings.TrimSpace(*in.Note); n != "" {
			note = &n
		}
	}

	// MySQL DATETIME(6) に合わせてマイクロ秒で切る
	now := s.clock.Now().UTC().Truncate(time.Microsecond)
	ev, err := s.store.Insert(ctx, ClockEvent{
		EventULID: s.id.New(),
		UserID:    in.UserID,
		Type:      typ,
		Note:      note,
		Latitude:  lat,
		Longitude: lng,
		ClockedAt: now,
	})
	if err != nil {
		return ClockEventResponse{}, err
	}

	s.metrics.ClockEvent(string(typ))
	s.log.Info("clock event recorded",
		zap.Int64("user_id", ev.UserID),
		zap.String("type", string(typ)),
		zap.String("event_ulid", ev.EventULID))
	s.publish(ctx, ev)

	return ev.toDTO(), nil
}

func (s *Service) checkPerimeter(ctx context.Context, lat, lng float64) error {
	if !s.enforce || s.perimeter == nil {
		return nil
	}
	p, ok, err := s.perimeter.GeoPerimeter(ctx)
	if err != nil {
		return err
	}
	// 未設定なら制限なし
	if !ok {
		return nil
	}
	if !p.Contains(lat, lng) {
		s.log.Warn("clock rejected outside perimeter",
			zap.Float64("distance_km", geofence.DistanceKm(p.Lat, p.Lng, lat, lng)),
			zap.Float64("radius_km", p.Radius))
		return ErrOutsidePerimeter()
	}
	return nil
}

// publish: 打刻はコミット済みなので失敗してもログだけ
func (s *Service) publish(ctx context.Context, ev ClockEvent) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := s.publisher.PublishClockEvent(pctx, events.ClockEventMessage{
		EventULID: ev.EventULID,
		UserID:    ev.UserID,
		Type:      string(ev.Type),
		Latitude:  ev.Latitude,
		Longitude: ev.Longitude,
		ClockedAt: ev.ClockedAt,
	})
	if err != nil {
		s.metrics.PublishFailed()
		s.log.Warn("clock event publish failed", zap.String("event_ulid", ev.EventULID), zap.Error(err))
	}
}

// GET /users/:id/clock-events
func (s *Service) ListEvents(ctx context.Context, q ListQuery) (ListResponse, error) {
	if q.UserID <= 0 {
		return ListResponse{}, ErrInvalid("user id must be > 0")
	}
	if q.Sort == "" {
		q.Sort = DefaultSort
	}
	if q.Sort != SortClockedAtAsc && q.Sort != SortClockedAtDesc {
		return ListResponse{}, ErrInvalid("sort must be clocked_at_asc or clocked_at_desc")
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	if q.Offset < 0 {
		return ListResponse{}, ErrInvalid("offset must be >= 0")
	}

	f := listFilter{UserID: q.UserID, Limit: q.Limit, Offset: q.Offset, Sort: q.Sort}
	if q.From != nil && *q.From != "" {
		t, err := s.parseBound(*q.From, false)
		if err != nil {
			return ListResponse{}, ErrInvalid("from must be YYYY-MM-DD or RFC3339")
		}
		f.From = &t
	}
	if q.To != nil && *q.To != "" {
		t, err := s.parseBound(*q.To, true)
		if err != nil {
			return ListResponse{}, ErrInvalid("to must be YYYY-MM-DD or RFC3339")
		}
		f.To = &t
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return ListResponse{}, ErrInvalid("to must be >= from")
	}

	if _, err := s.store.GetUser(ctx, q.UserID); err != nil {
		return ListResponse{}, err
	}

	rows, total, err := s.store.List(ctx, f)
	if err != nil {
		return ListResponse{}, err
	}
	out := ListResponse{Items: make([]ClockEventResponse, 0, len(rows)), Total: total}
	for i := 0; i < len(rows); i++ {
		out.Items = append(out.Items, rows[i].toDTO())
	}
	return out, nil
}

// GET /attendance/clocked-in: 本日（設定TZ）最後の打刻が IN のユーザ
func (s *Service) CurrentlyClockedIn(ctx context.Context) ([]UserRef, error) {
	since := shift.StartOfDay(s.clock.Now(), s.loc)
	evs, err := s.store.EventsSince(ctx, since, "")
	if err != nil {
		return nil, err
	}

	out := make([]UserRef, 0)
	// EventsSince はユーザ毎に連続して並ぶ
	for start := 0; start < len(evs); {
		end := start
		for end < len(evs) && evs[end].UserID == evs[start].UserID {
			end++
		}
		group := make([]shift.Event, 0, end-start)
		for _, e := range evs[start:end] {
			group = append(group, e.toShiftEvent())
		}
		if shift.IsClockedIn(group) {
			out = append(out, evs[start].User)
		}
		start = end
	}
	return out, nil
}

// GET /attendance/today: 本日の IN 打刻（新しい順）
func (s *Service) TodayClockIns(ctx context.Context) ([]TodayClockIn, error) {
	since := shift.StartOfDay(s.clock.Now(), s.loc)
	evs, err := s.store.EventsSince(ctx, since, shift.In)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(evs, func(i, j int) bool {
		if evs[i].ClockedAt.Equal(evs[j].ClockedAt) {
			return evs[i].EventID > evs[j].EventID
		}
		return evs[i].ClockedAt.After(evs[j].ClockedAt)
	})

	out := make([]TodayClockIn, 0, len(evs))
	for _, e := range evs {
		out = append(out, TodayClockIn{
			EventID:   e.EventID,
			User:      e.User,
			ClockedAt: e.ClockedAt,
			Latitude:  e.Latitude,
			Longitude: e.Longitude,
		})
	}
	return out, nil
}

// GET /attendance/daily-count?days=
func (s *Service) DailyClockInCount(ctx context.Context, days int) ([]DailyCount, error) {
	days = windowDays(days)
	now := s.clock.Now()
	since := shift.StartOfDay(now, s.loc).AddDate(0, 0, -(days - 1))

	evs, err := s.store.EventsSince(ctx, since, shift.In)
	if err != nil {
		return nil, err
	}
	plain := make([]shift.Event, 0, len(evs))
	for _, e := range evs {
		plain = append(plain, e.toShiftEvent())
	}

	grouped := shift.GroupByLocalDate(plain, days, now, s.loc)
	out := make([]DailyCount, 0, len(grouped))
	for _, g := range grouped {
		out = append(out, DailyCount{Date: g.Date, Count: g.Count})
	}
	return out, nil
}

// GET /attendance/staff-stats?days=
// ユーザ毎に取得→集計を並列で行う。結果の順序は user_id 順
func (s *Service) StaffStats(ctx context.Context, days int) (StaffStatsResponse, error) {
	days = windowDays(days)
	started := time.Now()

	end := s.clock.Now().UTC()
	start := end.AddDate(0, 0, -days)

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return StaffStatsResponse{}, err
	}

	out := make([]StaffStats, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, u := range users {
		i, u := i, u
		g.Go(func() error {
			evs, err := s.store.EventsInWindow(gctx, u.UserID, start, end)
			if err != nil {
				return err
			}
			st := shift.Summarize(u.UserID, u.Name, toShiftEvents(evs), s.loc)
			out[i] = StaffStats{
				UserID:        st.UserID,
				Name:          st.Name,
				TotalHours:    st.TotalHours,
				AvgDailyHours: st.AvgDailyHours,
				DaysPresent:   st.DaysPresent,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return StaffStatsResponse{}, err
	}

	s.metrics.StatsComputed(time.Since(started))
	s.log.Debug("staff stats computed", zap.Int("users", len(users)), zap.Int("days", days))
	return StaffStatsResponse{WindowStart: start, WindowEnd: end, Items: out}, nil
}

// parseBound: YYYY-MM-DD は設定TZの日付として扱う（to はその日の終わり）
func (s *Service) parseBound(v string, endOfDay bool) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.ParseInLocation(shift.DateLayout, v, s.loc)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		return d.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return d, nil
}

// windowDays: 0 は既定値、それ以外は [1, MaxWindowDays] に丸める
func windowDays(days int) int {
	if days == 0 {
		return DefaultWindowDays
	}
	return min(max(days, 1), MaxWindowDays)
}
