package settings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"caresync-backend/internal/geofence"
	"caresync-backend/internal/testutil"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(testutil.NewTestDB(t), zap.NewNop())
	svc.now = func() time.Time { return time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC) }
	return svc
}

func TestGet_NotFound(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, err.(*APIError).Code)
}

func TestUpdate_Upserts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Update(ctx, "shift_reminder", "on")
	require.NoError(t, err)
	_, err = svc.Update(ctx, "shift_reminder", "off")
	require.NoError(t, err)

	got, err := svc.Get(ctx, "shift_reminder")
	require.NoError(t, err)
	assert.Equal(t, "off", got.Value)
}

func TestUpdate_GeoPerimeterIsValidatedAndNormalized(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	res, err := svc.Update(ctx, GeoPerimeterName, `{"latitude": 18.5204, "longitude": 73.8567, "radius": 2}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"lat":18.5204,"lng":73.8567,"radius":2}`, res.Value)

	p, ok, err := svc.GeoPerimeter(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, geofence.Perimeter{Lat: 18.5204, Lng: 73.8567, Radius: 2}, p)

	for _, bad := range []string{
		`not json`,
		`{"lat": 18.5, "lng": 73.8}`,
		`{"lat": 95, "lng": 73.8, "radius": 1}`,
		`{"lat": 18.5, "lng": 73.8, "radius": 0}`,
	} {
		_, err := svc.Update(ctx, GeoPerimeterName, bad)
		require.Error(t, err, bad)
		assert.Equal(t, CodeInvalidArgument, err.(*APIError).Code, bad)
	}
}

func TestGeoPerimeter_Unset(t *testing.T) {
	svc := newTestService(t)
	_, ok, err := svc.GeoPerimeter(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
