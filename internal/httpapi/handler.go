// Package httpapi exposes the attendance service over HTTP with gin.
package httpapi

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"presensi/internal/apiclient"
	"presensi/internal/attendance"
	"presensi/internal/auth"
	"presensi/internal/export"
	"presensi/internal/queue"
	"presensi/internal/store"
)

// Handler serves the BFF endpoints.
type Handler struct {
	Service    *attendance.Service
	Client     *apiclient.Client
	Tokens     store.TokenStore
	Queue      queue.Queue
	SigningKey string
	Issuer     string
	SessionTTL time.Duration
	Log        *slog.Logger
	// Now is the reference instant for meeting status and sync jobs.
	Now func() time.Time
}

// Register mounts every route on r. limit runs after session checks.
func (h *Handler) Register(r gin.IRouter, limit gin.HandlerFunc) {
	if h.Now == nil {
		h.Now = time.Now
	}
	if h.Log == nil {
		h.Log = slog.Default()
	}
	if limit == nil {
		limit = func(c *gin.Context) { c.Next() }
	}

	v1 := r.Group("/v1")
	v1.POST("/auth/login", limit, h.login)

	authed := v1.Group("/", auth.RequireSession(h.SigningKey, h.Issuer), limit)
	authed.POST("/auth/logout", h.logout)
	authed.GET("/me", h.me)
	authed.GET("/classes/:id/meetings", h.schedule)
	authed.GET("/classes/:id/students", h.students)
	authed.GET("/me/history", auth.RequireRole(auth.RoleStudent), h.ownHistory)

	admin := authed.Group("/", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/classes/:id/meetings", h.createMeeting)
	admin.GET("/classes/:id/meetings/:meetingID/export", h.export)
	admin.GET("/history", h.history)
	admin.POST("/sync/classes/:id", h.syncClass)
	admin.POST("/sync/history", h.syncHistory)
	h.registerCatalog(admin)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}
	up, err := h.Client.Login(c.Request.Context(), req.Username, req.Password)
	if errors.Is(err, apiclient.ErrUnauthorized) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	sess, err := auth.Issue(strconv.FormatInt(up.User.ID, 10), up.User.Role, up.User.Name, up.User.NIM,
		h.Issuer, h.SigningKey, h.SessionTTL, time.Now())
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Tokens.Set(c.Request.Context(), sess.ID, up.Token, h.SessionTTL); err != nil {
		h.fail(c, err)
		return
	}
	h.Log.Info("session opened", slog.Int64("user_id", up.User.ID), slog.String("role", up.User.Role))
	c.JSON(http.StatusOK, gin.H{"token": sess.Token, "expires_at": sess.ExpiresAt, "user": up.User})
}

func (h *Handler) logout(c *gin.Context) {
	if err := h.upstream(c).Logout(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) me(c *gin.Context) {
	u, err := h.upstream(c).Profile(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) schedule(c *gin.Context) {
	classID, ok := pathID(c, "id")
	if !ok {
		return
	}
	items, err := h.Service.Schedule(c.Request.Context(), sessionKey(c), classID, c.Query("day"), h.Now())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meetings": items})
}

func (h *Handler) students(c *gin.Context) {
	classID, ok := pathID(c, "id")
	if !ok {
		return
	}
	items, err := h.Service.Students(c.Request.Context(), sessionKey(c), classID, c.Query("q"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": items})
}

func (h *Handler) createMeeting(c *gin.Context) {
	classID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req apiclient.CreateMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.ClassID = classID
	m, err := h.upstream(c).CreateMeeting(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.enqueue(c.Request.Context(), queue.NewJob(queue.KindSyncClass, sessionKey(c), classID, h.Now()))
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) history(c *gin.Context) {
	h.serveHistory(c, "")
}

func (h *Handler) ownHistory(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	if claims.NIM == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "session has no student number"})
		return
	}
	h.serveHistory(c, claims.NIM)
}

func (h *Handler) serveHistory(c *gin.Context, nim string) {
	var q attendance.HistoryQuery
	if err := c.ShouldBindQuery(&q.Criteria); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q.Query = c.Query("q")
	if f := c.Query("fields"); f != "" {
		q.Fields = strings.Split(f, ",")
	}
	q.Descending = c.Query("sort") != "asc"
	q.StudentNIM = nim

	res, err := h.Service.History(c.Request.Context(), sessionKey(c), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) export(c *gin.Context) {
	classID, ok := pathID(c, "id")
	if !ok {
		return
	}
	meetingID, ok := pathID(c, "meetingID")
	if !ok {
		return
	}
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sheet, err := h.Service.MeetingAttendance(c.Request.Context(), sessionKey(c), classID, meetingID)
	if err != nil {
		h.fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := sheet.Write(&buf, format, h.Service.Location()); err != nil {
		h.Log.Error("export failed", slog.Int64("meeting_id", meetingID), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+sheet.Filename(format)+`"`)
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (h *Handler) syncClass(c *gin.Context) {
	classID, ok := pathID(c, "id")
	if !ok {
		return
	}
	h.requestSync(c, queue.NewJob(queue.KindSyncClass, sessionKey(c), classID, h.Now()))
}

func (h *Handler) syncHistory(c *gin.Context) {
	h.requestSync(c, queue.NewJob(queue.KindSyncHistory, sessionKey(c), 0, h.Now()))
}

func (h *Handler) requestSync(c *gin.Context, job queue.Job) {
	if h.Queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync queue not configured"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), enqueueTimeout)
	defer cancel()
	if err := h.Queue.Publish(ctx, job); err != nil {
		if errors.Is(err, queue.ErrFull) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync queue is full, try again later"})
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
}

// enqueueTimeout bounds a publish so a stuck queue cannot hold a request.
const enqueueTimeout = 2 * time.Second

// enqueue publishes a follow-up job. Failures only log.
func (h *Handler) enqueue(ctx context.Context, job queue.Job) {
	if h.Queue == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	if err := h.Queue.Publish(ctx, job); err != nil {
		h.Log.Warn("enqueue sync failed", slog.String("kind", job.Kind), slog.Any("error", err))
	}
}

func (h *Handler) upstream(c *gin.Context) *apiclient.Client {
	return h.Client.As(sessionKey(c))
}

// sessionKey is the token store key of the caller's upstream token.
func sessionKey(c *gin.Context) string {
	claims, _ := auth.FromContext(c)
	return claims.ID
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	var apiErr *apiclient.APIError
	switch {
	case errors.Is(err, apiclient.ErrNoToken), errors.Is(err, apiclient.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired, please sign in again"})
	case errors.Is(err, apiclient.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &apiErr):
		code := http.StatusBadGateway
		if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			code = apiErr.StatusCode
		}
		c.JSON(code, gin.H{"error": apiErr.Message})
	default:
		h.Log.Error("request failed", slog.String("path", c.FullPath()), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
