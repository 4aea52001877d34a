package attendance

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"caresync-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	manager := auth.RequireRole(auth.RoleManager)

	// 打刻
	r.POST("/attendance/clock-in", h.ClockIn)
	r.POST("/attendance/clock-out", h.ClockOut)
	r.GET("/users/:id/clock-events", h.ListEvents)

	// 管理者向け
	r.GET("/attendance/clocked-in", manager, h.ClockedIn)
	r.GET("/attendance/today", manager, h.Today)
	r.GET("/attendance/daily-count", manager, h.DailyCount)
	r.GET("/attendance/staff-stats", manager, h.StaffStats)
}

func (h *Handler) ClockIn(c *gin.Context) {
	h.clock(c, h.svc.ClockIn)
}

func (h *Handler) ClockOut(c *gin.Context) {
	h.clock(c, h.svc.ClockOut)
}

func (h *Handler) clock(c *gin.Context, do func(context.Context, ClockRequest) (ClockEventResponse, error)) {
	var req ClockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	if !auth.CanActFor(c, req.UserID) {
		c.JSON(http.StatusForbidden, errorBody(CodeForbidden, "cannot clock for other users"))
		return
	}
	res, err := do(c.Request.Context(), req)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusCreated, res)
}

// GET /users/:id/clock-events?limit&offset&sort&from&to
func (h *Handler) ListEvents(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorBody(CodeInvalidArgument, "invalid id"))
		return
	}
	if !auth.CanActFor(c, id) {
		c.JSON(http.StatusForbidden, errorBody(CodeForbidden, "cannot view other users"))
		return
	}

	q := ListQuery{
		UserID: id,
		Limit:  parseIntDefault(c.Query("limit"), DefaultPageLimit),
		Offset: parseIntDefault(c.Query("offset"), 0),
		Sort:   c.DefaultQuery("sort", DefaultSort),
	}
	if v := c.Query("from"); v != "" {
		q.From = &v
	}
	if v := c.Query("to"); v != "" {
		q.To = &v
	}

	res, err := h.svc.ListEvents(c.Request.Context(), q)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ClockedIn(c *gin.Context) {
	res, err := h.svc.CurrentlyClockedIn(c.Request.Context())
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": res})
}

func (h *Handler) Today(c *gin.Context) {
	res, err := h.svc.TodayClockIns(c.Request.Context())
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": res})
}

func (h *Handler) DailyCount(c *gin.Context) {
	days := parseIntDefault(c.Query("days"), DefaultWindowDays)
	res, err := h.svc.DailyClockInCount(c.Request.Context(), days)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": res})
}

func (h *Handler) StaffStats(c *gin.Context) {
	days := parseIntDefault(c.Query("days"), DefaultWindowDays)
	res, err := h.svc.StaffStats(c.Request.Context(), days)
	if err != nil {
		c.JSON(toHTTPStatus(err), errorFromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
