package staff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"caresync-backend/internal/platform/auth"
	"caresync-backend/internal/testutil"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(testutil.NewTestDB(t), zap.NewNop())
	svc.clock = testutil.FixedClock{T: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)}
	return svc
}

func TestCreateAndLookup(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateUserRequest{Name: " Asha ", Email: "Asha@Example.com", Role: auth.RoleManager})
	require.NoError(t, err)
	assert.Equal(t, "Asha", created.Name)
	assert.Equal(t, "asha@example.com", created.Email)
	assert.Equal(t, time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC), created.CreatedAt)

	got, err := svc.Lookup(ctx, "ASHA@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.UserID, got.UserID)
	assert.Equal(t, auth.RoleManager, got.Role)
}

func TestCreate_Validation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateUserRequest{Name: "A", Email: "a@example.com", Role: "admin"})
	assert.Equal(t, CodeInvalidArgument, err.(*APIError).Code)

	_, err = svc.Create(ctx, CreateUserRequest{Name: "A", Email: "a@example.com", Role: auth.RoleCareworker})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateUserRequest{Name: "B", Email: "A@example.com", Role: auth.RoleCareworker})
	assert.Equal(t, CodeConflict, err.(*APIError).Code)
}

func TestLookup_NotFound(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Lookup(context.Background(), "ghost@example.com")
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, err.(*APIError).Code)
}

func TestEnsure(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, created, err := svc.Ensure(ctx, EnsureUserRequest{Name: "Ravi", Email: "ravi@example.com"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, auth.RoleCareworker, first.Role)

	second, created, err := svc.Ensure(ctx, EnsureUserRequest{Name: "Ravi K", Email: "RAVI@example.com"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.UserID, second.UserID)
	assert.Equal(t, "Ravi", second.Name)
}

func TestUpdateRole(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateUserRequest{Name: "A", Email: "a@example.com", Role: auth.RoleCareworker})
	require.NoError(t, err)

	updated, err := svc.UpdateRole(ctx, u.UserID, auth.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleManager, updated.Role)

	// 同じロールへの更新も成功する
	_, err = svc.UpdateRole(ctx, u.UserID, auth.RoleManager)
	require.NoError(t, err)

	_, err = svc.UpdateRole(ctx, 999, auth.RoleManager)
	assert.Equal(t, CodeNotFound, err.(*APIError).Code)
}

func TestDelete_RemovesClockEvents(t *testing.T) {
	conn := testutil.NewTestDB(t)
	svc := NewService(conn, zap.NewNop())
	ctx := context.Background()

	id := testutil.InsertUser(t, conn, "A", "a@example.com", auth.RoleCareworker)
	testutil.InsertClockEvent(t, conn, id, "IN", testutil.Date(2025, 3, 3, 9, 0))
	testutil.InsertClockEvent(t, conn, id, "OUT", testutil.Date(2025, 3, 3, 17, 0))

	require.NoError(t, svc.Delete(ctx, id))

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM clock_events WHERE user_id = ?`, id).Scan(&n))
	assert.Zero(t, n)

	err := svc.Delete(ctx, id)
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, err.(*APIError).Code)
}

func TestList(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	empty, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)
	assert.NotNil(t, empty.Items)

	for _, e := range []string{"a@example.com", "b@example.com"} {
		_, err := svc.Create(ctx, CreateUserRequest{Name: e, Email: e, Role: auth.RoleCareworker})
		require.NoError(t, err)
	}
	res, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "a@example.com", res.Items[0].Email)
}
