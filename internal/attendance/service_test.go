package attendance

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"caresync-backend/internal/geofence"
	"caresync-backend/internal/platform/events"
	"caresync-backend/internal/platform/metrics"
	"caresync-backend/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []events.ClockEventMessage
	err  error
}

func (p *fakePublisher) PublishClockEvent(_ context.Context, msg events.ClockEventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakePerimeter struct {
	p   geofence.Perimeter
	ok  bool
	err error
}

func (f fakePerimeter) GeoPerimeter(context.Context) (geofence.Perimeter, bool, error) {
	return f.p, f.ok, f.err
}

// 2025-03-05 (水) 15:00 UTC
var now = time.Date(2025, 3, 5, 15, 0, 0, 0, time.UTC)

type fixture struct {
	conn *sql.DB
	svc  *Service
	pub  *fakePublisher
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	conn := testutil.NewTestDB(t)
	pub := &fakePublisher{}
	if opts.Publisher == nil {
		opts.Publisher = pub
	}
	opts.Metrics = metrics.New(prometheus.NewRegistry())
	opts.Logger = zap.NewNop()
	svc := NewService(conn, opts)
	svc.clock = testutil.FixedClock{T: now}
	return fixture{conn: conn, svc: svc, pub: pub}
}

func coords(lat, lng float64) (*float64, *float64) { return &lat, &lng }

func clockReq(userID int64, lat, lng float64) ClockRequest {
	la, lo := coords(lat, lng)
	return ClockRequest{UserID: userID, Latitude: la, Longitude: lo}
}

func codeOf(t *testing.T, err error) Code {
	t.Helper()
	var api *APIError
	require.True(t, errors.As(err, &api), "expected *APIError, got %v", err)
	return api.Code
}

func TestClockIn_RecordsAndPublishes(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	uid := testutil.InsertUser(t, f.conn, "Asha", "asha@example.com", "careworker")

	req := clockReq(uid, 12.9716, 77.5946)
	note := "  morning  "
	req.Note = &note
	in, err := f.svc.ClockIn(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(1), in.EventID)
	assert.Equal(t, "IN", in.Type)
	assert.Len(t, in.EventULID, 26)
	require.NotNil(t, in.Note)
	assert.Equal(t, "morning", *in.Note)
	assert.True(t, in.ClockedAt.Equal(now))

	out, err := f.svc.ClockOut(ctx, clockReq(uid, 12.9716, 77.5946))
	require.NoError(t, err)
	assert.Equal(t, "OUT", out.Type)
	assert.Nil(t, out.Note)
	assert.NotEqual(t, in.EventULID, out.EventULID)

	require.Len(t, f.pub.msgs, 2)
	assert.Equal(t, in.EventULID, f.pub.msgs[0].EventULID)
	assert.Equal(t, "OUT", f.pub.msgs[1].Type)
	assert.Equal(t, uid, f.pub.msgs[1].UserID)

	list, err := f.svc.ListEvents(ctx, ListQuery{UserID: uid})
	require.NoError(t, err)
	assert.Equal(t, int64(2), list.Total)
}

func TestClockIn_Validation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	uid := testutil.InsertUser(t, f.conn, "Asha", "asha@example.com", "careworker")

	tests := []struct {
		name string
		req  ClockRequest
		want Code
	}{
		{"zero user", clockReq(0, 0, 0), CodeInvalidArgument},
		{"missing coords", ClockRequest{UserID: uid}, CodeInvalidArgument},
		{"latitude out of range", clockReq(uid, 91, 0), CodeInvalidArgument},
		{"longitude out of range", clockReq(uid, 0, -180.5), CodeInvalidArgument},
		{"unknown user", clockReq(uid+1, 0, 0), CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ClockIn(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.want, codeOf(t, err))
		})
	}
	assert.Empty(t, f.pub.msgs)
}

func TestClockIn_Perimeter(t *testing.T) {
	office := geofence.Perimeter{Lat: 12.9716, Lng: 77.5946, Radius: 1}

	tests := []struct {
		name     string
		opts     Options
		lat, lng float64
		want     Code
	}{
		{"inside", Options{EnforcePerimeter: true, Perimeter: fakePerimeter{p: office, ok: true}}, 12.975, 77.595, ""},
		{"outside", Options{EnforcePerimeter: true, Perimeter: fakePerimeter{p: office, ok: true}}, 13.5, 77.5946, CodeOutsidePerimeter},
		{"not enforced", Options{EnforcePerimeter: false, Perimeter: fakePerimeter{p: office, ok: true}}, 13.5, 77.5946, ""},
		{"perimeter unset", Options{EnforcePerimeter: true, Perimeter: fakePerimeter{}}, 13.5, 77.5946, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.opts)
			uid := testutil.InsertUser(t, f.conn, "Asha", "asha@example.com", "careworker")
			_, err := f.svc.ClockIn(context.Background(), clockReq(uid, tt.lat, tt.lng))
			if tt.want == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.want, codeOf(t, err))
			assert.Equal(t, 403, toHTTPStatus(err))
		})
	}
}

func TestClockIn_PerimeterLookupError(t *testing.T) {
	boom := errors.New("settings unavailable")
	f := newFixture(t, Options{EnforcePerimeter: true, Perimeter: fakePerimeter{err: boom}})
	uid := testutil.InsertUser(t, f.conn, "Asha", "asha@example.com", "careworker")

	_, err := f.svc.ClockIn(context.Background(), clockReq(uid, 0, 0))
	assert.ErrorIs(t, err, boom)
}

func TestClockIn_PublishFailureIsNotReturned(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	f := newFixture(t, Options{Publisher: pub})
	ctx := context.Background()
	uid := testutil.InsertUser(t, f.conn, "Asha", "asha@example.com", "careworker")

	_, err := f.svc.ClockIn(ctx, clockReq(uid, 0, 0))
	require.NoError(t, err)

	list, err := f.svc.ListEvents(ctx, ListQuery{UserID: uid})
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Total)
}

func TestListEvents(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	uid := testutil.InsertUser(t, f.conn, "Asha", "asha@example.com", "careworker")
	other := testutil.InsertUser(t, f.conn, "Ravi", "ravi@example.com", "careworker")

	testutil.InsertClockEvent(t, f.conn, uid, "IN", testutil.Date(2025, 3, 3, 9, 0))
	testutil.InsertClockEvent(t, f.conn, uid, "OUT", testutil.Date(2025, 3, 3, 17, 0))
	testutil.InsertClockEvent(t, f.conn, uid, "IN", testutil.Date(2025, 3, 4, 9, 0))
	testutil.InsertClockEvent(t, f.conn, uid, "OUT", testutil.Date(2025, 3, 4, 17, 0))
	testutil.InsertClockEvent(t, f.conn, other, "IN", testutil.Date(2025, 3, 4, 10, 0))

	hours := func(items []ClockEventResponse) []int {
		out := make([]int, 0, len(items))
		for _, it := range items {
			out = append(out, it.ClockedAt.Day()*100+it.ClockedAt.Hour())
		}
		return out
	}

	tests := []struct {
		name      string
		q         ListQuery
		wantItems []int
		wantTotal int64
	}{
		{"default newest first", ListQuery{UserID: uid}, []int{417, 409, 317, 309}, 4},
		{"ascending", ListQuery{UserID: uid, Sort: SortClockedAtAsc}, []int{309, 317, 409, 417}, 4},
		{"paged", ListQuery{UserID: uid, Limit: 2, Offset: 1}, []int{409, 317}, 4},
		{"from date", ListQuery{UserID: uid, From: ptr("2025-03-04")}, []int{417, 409}, 2},
		{"to date is inclusive", ListQuery{UserID: uid, To: ptr("2025-03-03")}, []int{317, 309}, 2},
		{"rfc3339 bounds", ListQuery{UserID: uid, From: ptr("2025-03-03T12:00:00Z"), To: ptr("2025-03-04T12:00:00Z")}, []int{409, 317}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.ListEvents(ctx, tt.q)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.wantItems, hours(got.Items)); diff != "" {
				t.Errorf("items mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.wantTotal, got.Total)
		})
	}
}

func TestListEvents_Invalid(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	uid := testutil.InsertUser(t, f.conn, "Asha", "asha@example.com", "careworker")

	tests := []struct {
		name string
		q    ListQuery
		want Code
	}{
		{"bad sort", ListQuery{UserID: uid, Sort: "name"}, CodeInvalidArgument},
		{"bad from", ListQuery{UserID: uid, From: ptr("yesterday")}, CodeInvalidArgument},
		{"negative offset", ListQuery{UserID: uid, Offset: -1}, CodeInvalidArgument},
		{"to before from", ListQuery{UserID: uid, From: ptr("2025-03-05"), To: ptr("2025-03-01")}, CodeInvalidArgument},
		{"unknown user", ListQuery{UserID: uid + 10}, CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ListEvents(ctx, tt.q)
			require.Error(t, err)
			assert.Equal(t, tt.want, codeOf(t, err))
		})
	}
}

func TestCurrentlyClockedIn(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	asha := testutil.InsertUser(t, f.conn, "Asha", "asha@example.com", "careworker")
	ravi := testutil.InsertUser(t, f.conn, "Ravi", "ravi@example.com", "careworker")
	meena := testutil.InsertUser(t, f.conn, "Meena", "meena@example.com", "careworker")
	kiran := testutil.InsertUser(t, f.conn, "Kiran", "kiran@example.com", "careworker")

	// Asha: 勤務中
	testutil.InsertClockEvent(t, f.conn, asha, "IN", testutil.Date(2025, 3, 5, 9, 0))
	// Ravi: 退勤済み
	testutil.InsertClockEvent(t, f.conn, ravi, "IN", testutil.Date(2025, 3, 5, 8, 0))
	testutil.InsertClockEvent(t, f.conn, ravi, "OUT", testutil.Date(2025, 3, 5, 12, 0))
	// Meena: 昨日の IN のみ（本日分に無いので対象外）
	testutil.InsertClockEvent(t, f.conn, meena, "IN", testutil.Date(2025, 3, 4, 22, 0))
	// Kiran: 再出勤
	testutil.InsertClockEvent(t, f.conn, kiran, "IN", testutil.Date(2025, 3, 5, 6, 0))
	testutil.InsertClockEvent(t, f.conn, kiran, "OUT", testutil.Date(2025, 3, 5, 10, 0))
	testutil.InsertClockEvent(t, f.conn, kiran, "IN", testutil.Date(2025, 3, 5, 13, 0))

	got, err := f.svc.CurrentlyClockedIn(ctx)
	require.NoError(t, err)
	want := []UserRef{
		{UserID: asha, Name: "Asha", Email: "asha@example.com"},
		{UserID: kiran, Name: "Kiran", Email: "kiran@example.com"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("clocked in mismatch (-want +got):\n%s", diff)
	}
}

func TestTodayClockIns(t *testing.T) {
	f := newFixture(t, Options{})
	asha := testutil.InsertUser(t, f.conn, "Asha", "asha@example.com", "careworker")
	ravi := testutil.InsertUser(t, f.conn, "Ravi", "ravi@example.com", "careworker")

	testutil.InsertClockEvent(t, f.conn, asha, "IN", testutil.Date(2025, 3, 4, 9, 0))
	testutil.InsertClockEvent(t, f.conn, asha, "IN", testutil.Date(2025, 3, 5, 7, 0))
	testutil.InsertClockEvent(t, f.conn, ravi, "IN", testutil.Date(2025, 3, 5, 9, 30))
	testutil.InsertClockEvent(t, f.conn, ravi, "OUT", testutil.Date(2025, 3, 5, 11, 0))

	got, err := f.svc.TodayClockIns(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Ravi", got[0].User.Name)
	assert.True(t, got[0].ClockedAt.Equal(testutil.Date(2025, 3, 5, 9, 30)))
	assert.Equal(t, "Asha", got[1].User.Name)
}

func TestTodayClockIns_UsesConfiguredZone(t *testing.T) {
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	f := newFixture(t, Options{Location: kolkata})
	asha := testutil.InsertUser(t, f.conn, "Asha", "asha@example.com", "careworker")

	// IST の 3/5 00:00 は UTC の 3/4 18:30
	testutil.InsertClockEvent(t, f.conn, asha, "IN", testutil.Date(2025, 3, 4, 18, 0))
	testutil.InsertClockEvent(t, f.conn, asha, "IN", testutil.Date(2025, 3, 4, 19, 0))

	got, err := f.svc.TodayClockIns(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].ClockedAt.Equal(testutil.Date(2025, 3, 4, 19, 0)))
}

func TestDailyClockInCount(t *testing.T) {
	f := newFixture(t, Options{})
	asha := testutil.InsertUser(t, f.conn, "Asha", "asha@example.com", "careworker")
	ravi := testutil.InsertUser(t, f.conn, "Ravi", "ravi@example.com", "careworker")

	testutil.InsertClockEvent(t, f.conn, asha, "IN", testutil.Date(2025, 2, 20, 9, 0))
	testutil.InsertClockEvent(t, f.conn, asha, "IN", testutil.Date(2025, 3, 1, 9, 0))
	testutil.InsertClockEvent(t, f.conn, asha, "IN", testutil.Date(2025, 3, 4, 9, 0))
	testutil.InsertClockEvent(t, f.conn, asha, "OUT", testutil.Date(2025, 3, 4, 12, 0))
	testutil.InsertClockEvent(t, f.conn, asha, "IN", testutil.Date(2025, 3, 4, 13, 0))
	testutil.InsertClockEvent(t, f.conn, asha, "IN", testutil.Date(2025, 3, 5, 8, 0))
	testutil.InsertClockEvent(t, f.conn, ravi, "IN", testutil.Date(2025, 3, 5, 9, 0))

	tests := []struct {
		name string
		days int
		want []DailyCount
	}{
		{"three days", 3, []DailyCount{{"2025-03-04", 1}, {"2025-03-05", 2}}},
		{"default week", 0, []DailyCount{{"2025-03-01", 1}, {"2025-03-04", 1}, {"2025-03-05", 2}}},
		{"clamped below", -4, []DailyCount{{"2025-03-05", 2}}},
		{"clamped above", 400, []DailyCount{{"2025-02-20", 1}, {"2025-03-01", 1}, {"2025-03-04", 1}, {"2025-03-05", 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.DailyClockInCount(context.Background(), tt.days)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("daily count mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStaffStats(t *testing.T) {
	f := newFixture(t, Options{StatsWorkers: 2})
	asha := testutil.InsertUser(t, f.conn, "Asha", "asha@example.com", "careworker")
	ravi := testutil.InsertUser(t, f.conn, "Ravi", "ravi@example.com", "careworker")
	meena := testutil.InsertUser(t, f.conn, "Meena", "meena@example.com", "manager")

	// Asha: 8h + 4.5h（2日）
	testutil.InsertClockEvent(t, f.conn, asha, "IN", testutil.Date(2025, 3, 3, 9, 0))
	testutil.InsertClockEvent(t, f.conn, asha, "OUT", testutil.Date(2025, 3, 3, 17, 0))
	testutil.InsertClockEvent(t, f.conn, asha, "IN", testutil.Date(2025, 3, 4, 9, 0))
	testutil.InsertClockEvent(t, f.conn, asha, "OUT", testutil.Date(2025, 3, 4, 13, 30))
	// 勤務中の IN は数えない
	testutil.InsertClockEvent(t, f.conn, asha, "IN", testutil.Date(2025, 3, 5, 9, 0))
	// Ravi: ウィンドウ外のみ
	testutil.InsertClockEvent(t, f.conn, ravi, "IN", testutil.Date(2025, 2, 20, 9, 0))
	testutil.InsertClockEvent(t, f.conn, ravi, "OUT", testutil.Date(2025, 2, 20, 17, 0))
	// Meena: 日付を跨ぐ夜勤は IN の日に計上
	testutil.InsertClockEvent(t, f.conn, meena, "IN", testutil.Date(2025, 3, 1, 22, 0))
	testutil.InsertClockEvent(t, f.conn, meena, "OUT", testutil.Date(2025, 3, 2, 6, 20))

	got, err := f.svc.StaffStats(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, got.WindowEnd.Equal(now))
	assert.True(t, got.WindowStart.Equal(now.AddDate(0, 0, -7)))

	want := []StaffStats{
		{UserID: asha, Name: "Asha", TotalHours: 12.5, AvgDailyHours: 6.25, DaysPresent: 2},
		{UserID: ravi, Name: "Ravi"},
		{UserID: meena, Name: "Meena", TotalHours: 8.33, AvgDailyHours: 8.33, DaysPresent: 1},
	}
	if diff := cmp.Diff(want, got.Items); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestStaffStats_NoUsers(t *testing.T) {
	f := newFixture(t, Options{})
	got, err := f.svc.StaffStats(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
}

func ptr(s string) *string { return &s }
