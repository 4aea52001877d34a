package settings

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"caresync-backend/internal/platform/auth"
	"caresync-backend/internal/testutil"
)

func TestHandler_GeoPerimeter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := []byte("test-secret")
	conn := testutil.NewTestDB(t)
	r := gin.New()
	RegisterRoutes(r.Group("/api/v1", auth.RequireAuth(secret, auth.NewStore(conn))), NewService(conn, zap.NewNop()))

	mgrID := testutil.InsertStaff(t, conn, "Meena", "meena@example.com", auth.RoleManager)
	cwID := testutil.InsertStaff(t, conn, "Asha", "asha@example.com", auth.RoleCareworker)
	authSvc := auth.NewService(conn, secret)
	mgr, err := authSvc.IssueToken(mgrID, auth.RoleManager)
	require.NoError(t, err)
	cw, err := authSvc.IssueToken(cwID, auth.RoleCareworker)
	require.NoError(t, err)

	call := func(method, token string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, "/api/v1/settings/geo_perimeter", &buf)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNotFound, call(http.MethodGet, cw, nil).Code)

	value := gin.H{"value": `{"latitude": 12.97, "longitude": 77.59, "radius": 0.5}`}
	assert.Equal(t, http.StatusForbidden, call(http.MethodPut, cw, value).Code)

	w := call(http.MethodPut, mgr, value)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = call(http.MethodGet, cw, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got SettingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.JSONEq(t, `{"lat":12.97,"lng":77.59,"radius":0.5}`, got.Value)

	w = call(http.MethodPut, mgr, gin.H{"value": `{"lat": 12.97, "lng": 77.59, "radius": -1}`})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
