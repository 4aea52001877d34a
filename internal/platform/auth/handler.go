package auth

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct{ svc AuthService }

// RegisterRoutes: public は認証不要、protected は RequireAuth 済みのグループ
func RegisterRoutes(public, protected gin.IRoutes, svc AuthService) {
	h := &AuthHandler{svc: svc}
	manager := RequireRole(RoleManager)

	public.POST("/auth/login", h.Login)
	public.POST("/auth/register", h.Register)
	protected.PUT("/auth/password", h.ChangePassword)
	protected.PATCH("/auth/accounts/:id", manager, h.SetDisabled)
	protected.PUT("/auth/accounts/:id/password", manager, h.SetPassword)
}

const weakPasswordMessage = "password must be at least 8 characters"

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	token, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrAccountDisabled):
			c.JSON(http.StatusForbidden, errorBody(CodeForbidden, "account disabled"))
		case errors.Is(err, ErrAuthFailed):
			c.JSON(http.StatusUnauthorized, errorBody(CodeUnauthenticated, "invalid email or password"))
		default:
			c.JSON(http.StatusInternalServerError, errorBody(CodeInternal, "internal error"))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"message": "Login successful",
	})
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	id, err := h.svc.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyExists):
			c.JSON(http.StatusConflict, errorBody(CodeConflict, "email already exists"))
		case errors.Is(err, ErrWeakPassword):
			c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, weakPasswordMessage))
		default:
			c.JSON(http.StatusInternalServerError, errorBody(CodeInternal, "register failed"))
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "registered", "user_id": id})
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, _, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorBody(CodeUnauthenticated, "unauthenticated"))
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	if err := h.svc.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, ErrAuthFailed):
			c.JSON(http.StatusUnauthorized, errorBody(CodeUnauthenticated, "current password is wrong"))
		case errors.Is(err, ErrWeakPassword):
			c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, weakPasswordMessage))
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, errorBody(CodeNotFound, "account not found"))
		default:
			c.JSON(http.StatusInternalServerError, errorBody(CodeInternal, "change password failed"))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

type SetDisabledRequest struct {
	Disabled *bool `json:"disabled" binding:"required"`
}

func (h *AuthHandler) SetDisabled(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req SetDisabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	if err := h.svc.SetDisabled(c.Request.Context(), id, *req.Disabled); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, errorBody(CodeNotFound, "account not found"))
			return
		}
		c.JSON(http.StatusInternalServerError, errorBody(CodeInternal, "update failed"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "updated", "disabled": *req.Disabled})
}

type SetPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// SetPassword: manager が作ったユーザに初期パスワードを付ける（アカウントが無ければ作る）
func (h *AuthHandler) SetPassword(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req SetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}

	if err := h.svc.SetPassword(c.Request.Context(), id, req.Password); err != nil {
		switch {
		case errors.Is(err, ErrWeakPassword):
			c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, weakPasswordMessage))
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, errorBody(CodeNotFound, "user not found"))
		default:
			c.JSON(http.StatusInternalServerError, errorBody(CodeInternal, "set password failed"))
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password set", "user_id": id})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid id"))
		return 0, false
	}
	return id, true
}
