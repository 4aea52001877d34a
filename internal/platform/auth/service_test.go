package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caresync-backend/internal/testutil"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(testutil.NewTestDB(t), []byte("test-secret"))
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, " Asha ", "Asha@Example.com ", "correct horse")
	require.NoError(t, err)
	assert.Positive(t, id)

	token, err := svc.Login(ctx, "asha@example.com", "correct horse")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	acct, err := svc.store.GetByEmail(ctx, "asha@example.com")
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.Equal(t, RoleCareworker, acct.Role)
	assert.Equal(t, id, acct.UserID)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Asha", "asha@example.com", "correct horse")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "Other", "ASHA@example.com", "another pass")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestRegister_WeakPassword(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Register(context.Background(), "Asha", "asha@example.com", "short")
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestLogin_Failures(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, "Asha", "asha@example.com", "correct horse")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "asha@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrAuthFailed)

	_, err = svc.Login(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrAuthFailed)

	require.NoError(t, svc.SetDisabled(ctx, id, true))
	_, err = svc.Login(ctx, "asha@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestChangePassword(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, "Asha", "asha@example.com", "correct horse")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ChangePassword(ctx, id, "wrong", "battery staple"), ErrAuthFailed)
	require.NoError(t, svc.ChangePassword(ctx, id, "correct horse", "battery staple"))

	_, err = svc.Login(ctx, "asha@example.com", "battery staple")
	assert.NoError(t, err)
}

func TestSetDisabled_UnknownUser(t *testing.T) {
	svc := newTestService(t)
	assert.ErrorIs(t, svc.SetDisabled(context.Background(), 999, true), ErrNotFound)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "asha@example.com", NormalizeEmail("  ASHA@Example.COM "))
}

func TestSetPassword_GivesExistingUserAnAccount(t *testing.T) {
	conn := testutil.NewTestDB(t)
	svc := NewService(conn, []byte("test-secret"))
	ctx := context.Background()

	// manager が POST /users で作った直後はアカウントが無い
	id := testutil.InsertUser(t, conn, "Ravi", "ravi@example.com", RoleManager)
	_, err := svc.Login(ctx, "ravi@example.com", "initial pass")
	assert.ErrorIs(t, err, ErrAuthFailed)

	assert.ErrorIs(t, svc.SetPassword(ctx, id, "short"), ErrWeakPassword)
	require.NoError(t, svc.SetPassword(ctx, id, "initial pass"))

	_, err = svc.Login(ctx, "ravi@example.com", "initial pass")
	require.NoError(t, err)
	acct, err := svc.store.GetByUserID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.Equal(t, RoleManager, acct.Role)

	// 2回目はリセット
	require.NoError(t, svc.SetPassword(ctx, id, "second pass"))
	_, err = svc.Login(ctx, "ravi@example.com", "initial pass")
	assert.ErrorIs(t, err, ErrAuthFailed)
	_, err = svc.Login(ctx, "ravi@example.com", "second pass")
	assert.NoError(t, err)
}

func TestSetPassword_UnknownUser(t *testing.T) {
	svc := newTestService(t)
	assert.ErrorIs(t, svc.SetPassword(context.Background(), 999, "long enough"), ErrNotFound)
}

func TestCreateManager(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.CreateManager(ctx, "Meena", "Meena@Example.com", "manager pass")
	require.NoError(t, err)

	acct, err := svc.store.GetByEmail(ctx, "meena@example.com")
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.Equal(t, id, acct.UserID)
	assert.Equal(t, RoleManager, acct.Role)

	_, err = svc.CreateManager(ctx, "Meena", "meena@example.com", "manager pass")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}
