package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	CtxUserIDKey = "user_id"
	CtxRoleKey   = "role"
)

// Claims: sub はユーザIDの10進文字列
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeInternal        = "INTERNAL"
)

// AccountLookup: RequireAuth がリクエスト毎に引く。*Store が満たす
type AccountLookup interface {
	GetByUserID(ctx context.Context, userID int64) (*Account, error)
}

// 他パッケージの {"error": {"code","message"}} と同じ形
func errorBody(code, msg string) gin.H {
	return gin.H{"error": gin.H{"code": code, "message": msg}}
}

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, errorBody(code, msg))
}

// RequireAuth: Authorization: Bearer <token> を検証し、アカウントを DB から引いて
// context に user_id/role を詰める。role はトークンではなく DB の値を使う
func RequireAuth(secret []byte, accounts AccountLookup) gin.HandlerFunc {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(c *gin.Context) {
		scheme, tokenStr, found := strings.Cut(c.GetHeader("Authorization"), " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			abort(c, http.StatusUnauthorized, CodeUnauthenticated, "missing or invalid Authorization header")
			return
		}
		tokenStr = strings.TrimSpace(tokenStr)
		if tokenStr == "" {
			abort(c, http.StatusUnauthorized, CodeUnauthenticated, "empty token")
			return
		}

		var claims Claims
		token, err := parser.ParseWithClaims(tokenStr, &claims, keyFunc)
		if err != nil || !token.Valid {
			abort(c, http.StatusUnauthorized, CodeUnauthenticated, "invalid token")
			return
		}

		userID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || userID <= 0 {
			abort(c, http.StatusUnauthorized, CodeUnauthenticated, "invalid sub")
			return
		}

		acct, err := accounts.GetByUserID(c.Request.Context(), userID)
		if err != nil {
			abort(c, http.StatusInternalServerError, CodeInternal, "internal error")
			return
		}
		// 削除・無効化されたアカウントの古いトークンは通さない
		if acct == nil {
			abort(c, http.StatusUnauthorized, CodeUnauthenticated, "account not found")
			return
		}
		if acct.IsDisabled {
			abort(c, http.StatusUnauthorized, CodeUnauthenticated, "account disabled")
			return
		}

		c.Set(CtxUserIDKey, userID)
		c.Set(CtxRoleKey, acct.Role)
		c.Next()
	}
}

// RequireRole: RequireAuth の後ろに付ける。例) manager のみ
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		if r != "" {
			allowed[r] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		role := c.GetString(CtxRoleKey)
		if role == "" {
			abort(c, http.StatusForbidden, CodeForbidden, "missing role")
			return
		}
		if _, ok := allowed[role]; !ok {
			abort(c, http.StatusForbidden, CodeForbidden, "role not allowed")
			return
		}
		c.Next()
	}
}

// CurrentUser: RequireAuth 済みのリクエストから (user_id, role) を取り出す
func CurrentUser(c *gin.Context) (int64, string, bool) {
	v, ok := c.Get(CtxUserIDKey)
	if !ok {
		return 0, "", false
	}
	id, ok := v.(int64)
	if !ok || id <= 0 {
		return 0, "", false
	}
	return id, c.GetString(CtxRoleKey), true
}

// CanActFor: manager は誰でも、それ以外は本人のみ
func CanActFor(c *gin.Context, userID int64) bool {
	id, role, ok := CurrentUser(c)
	if !ok {
		return false
	}
	return role == RoleManager || id == userID
}
