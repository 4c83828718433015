// Package handler exposes the record store and auth session over HTTP.
// It speaks JSON both ways; rendering, exports and email stay with the
// presentation tier consuming these endpoints.
package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"churchattend/internal/auth"
	"churchattend/internal/records"
	"churchattend/internal/session"
	"churchattend/internal/sheets"
)

const workspaceKey = "workspace"

// Handler carries the shared pieces every endpoint needs: the bootstrap
// workspace that serves logins, the registry of per-session workspaces, and
// the JWT signing material.
type Handler struct {
	bootstrap *session.Workspace
	registry  *session.Registry

	jwtIssuer string
	jwtKey    string
	accessTTL time.Duration
}

// New wires a handler over the bootstrap workspace and session registry.
func New(bootstrap *session.Workspace, registry *session.Registry, jwtIssuer, jwtKey string, accessTTL time.Duration) *Handler {
	return &Handler{
		bootstrap: bootstrap,
		registry:  registry,
		jwtIssuer: jwtIssuer,
		jwtKey:    jwtKey,
		accessTTL: accessTTL,
	}
}

// WithWorkspace resolves the caller's workspace from the token's session ID
// and serializes requests within that session. It must run after
// auth.RequireAuth.
func (h *Handler) WithWorkspace(c *gin.Context) {
	claims, ok := auth.FromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	ws, ok := h.registry.Get(claims.SID)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired, log in again"})
		return
	}
	ws.Lock()
	defer ws.Unlock()
	c.Set(workspaceKey, ws)
	c.Next()
}

// workspace returns the workspace stored by WithWorkspace.
func workspace(c *gin.Context) *session.Workspace {
	return c.MustGet(workspaceKey).(*session.Workspace)
}

// fail maps service errors onto HTTP statuses per the error taxonomy:
// connectivity 503, bad credentials 401, missing records 404, broken
// invariants 409, everything the caller got wrong 400.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sheets.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "spreadsheet service unavailable, try again shortly"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrUserExists), errors.Is(err, auth.ErrLastSuperAdmin):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrUnknownRole),
		errors.Is(err, auth.ErrPasswordTooShort),
		errors.Is(err, auth.ErrPasswordUnchanged),
		errors.Is(err, records.ErrNoRecordID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("handler: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// refresh reports whether the request asked to bypass the record cache.
func refresh(c *gin.Context) bool {
	return c.Query("refresh") == "1"
}

// ---------- Health ----------

// Healthz reports liveness. A disconnected handle is normal before first
// use, so the state is informational, never a failure.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"connection": h.bootstrap.Store.Conn().State().String(),
		"sessions":   h.registry.Len(),
	})
}

// ---------- Auth ----------

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Remember bool   `json:"remember"`
}

// Login exchanges credentials for a JWT bound to a fresh workspace. With
// remember set, the response also carries a persistent token that outlives
// the JWT until the password changes.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.bootstrap.Lock()
	user, err := h.bootstrap.Auth.Login(c.Request.Context(), req.Username, req.Password)
	h.bootstrap.Unlock()
	if err != nil {
		fail(c, err)
		return
	}

	resp := h.openSession(c, user)
	if resp == nil {
		return
	}
	if req.Remember {
		resp["remember_token"] = h.bootstrap.Auth.MintRememberToken(user)
	}
	c.JSON(http.StatusOK, resp)
}

type tokenLoginRequest struct {
	Token string `json:"token" binding:"required"`
}

// TokenLogin exchanges a persistent remember token for a fresh session.
func (h *Handler) TokenLogin(c *gin.Context) {
	var req tokenLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.bootstrap.Lock()
	user, err := h.bootstrap.Auth.LoginWithToken(c.Request.Context(), req.Token)
	h.bootstrap.Unlock()
	if err != nil {
		fail(c, err)
		return
	}

	resp := h.openSession(c, user)
	if resp == nil {
		return
	}
	c.JSON(http.StatusOK, resp)
}

// openSession mints the workspace and JWT for an authenticated user. It
// writes the error response itself and returns nil when token issue fails.
func (h *Handler) openSession(c *gin.Context, user records.User) gin.H {
	ws := h.registry.Create(user.Username, user.Role)
	token, exp, err := auth.Issue(user.Username, user.Role, ws.ID, h.jwtIssuer, h.jwtKey, h.accessTTL)
	if err != nil {
		h.registry.Drop(ws.ID)
		log.Printf("handler: issue token for %s: %v", user.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return nil
	}
	return gin.H{
		"token":      token,
		"expires_at": exp.Unix(),
		"user":       user,
	}
}

// Logout drops the caller's workspace. The JWT itself simply ages out.
func (h *Handler) Logout(c *gin.Context) {
	ws := workspace(c)
	h.registry.Drop(ws.ID)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Me returns the caller's current account record.
func (h *Handler) Me(c *gin.Context) {
	ws := workspace(c)
	user, err := ws.Auth.User(c.Request.Context(), ws.Username)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ChangePassword installs a new password for the caller and so revokes any
// outstanding remember tokens.
func (h *Handler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ws := workspace(c)
	if err := ws.Auth.ChangePassword(c.Request.Context(), ws.Username, req.CurrentPassword, req.NewPassword); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Roles lists the fixed role table so the presentation tier can label
// accounts and build pickers.
func (h *Handler) Roles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"roles": auth.Roles})
}

// ---------- Members ----------

// ListMembers returns the member roster, cached unless refresh=1.
func (h *Handler) ListMembers(c *gin.Context) {
	ws := workspace(c)
	members, err := ws.Store.LoadMembers(c.Request.Context(), refresh(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members, "count": len(members)})
}

type memberRequest struct {
	MembershipNumber string `json:"membership_number"`
	FullName         string `json:"full_name" binding:"required"`
	Group            string `json:"group" binding:"required"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
}

func (r memberRequest) record() records.Member {
	return records.Member{
		MembershipNumber: r.MembershipNumber,
		FullName:         r.FullName,
		Group:            r.Group,
		Email:            r.Email,
		Phone:            r.Phone,
	}
}

// ReplaceMembers rewrites the whole roster in one call, the path bulk
// imports arrive through.
func (h *Handler) ReplaceMembers(c *gin.Context) {
	var req []memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	members := make([]records.Member, len(req))
	for i, m := range req {
		members[i] = m.record()
	}
	ws := workspace(c)
	if err := ws.Store.SaveMembers(c.Request.Context(), members); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "count": len(members)})
}

// AddMember appends one member to the roster.
func (h *Handler) AddMember(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ws := workspace(c)
	member := req.record()
	if err := ws.Store.AppendMembers(c.Request.Context(), []records.Member{member}); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"member": member})
}

// ---------- Attendance ----------

// ListAttendance returns attendance records, cached unless refresh=1.
func (h *Handler) ListAttendance(c *gin.Context) {
	ws := workspace(c)
	recs, err := ws.Store.LoadAttendance(c.Request.Context(), refresh(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attendance": recs, "count": len(recs)})
}

type attendanceRequest struct {
	Date             string `json:"date" binding:"required"`
	MembershipNumber string `json:"membership_number"`
	FullName         string `json:"full_name" binding:"required"`
	Group            string `json:"group" binding:"required"`
	Status           string `json:"status"`
	Timestamp        string `json:"timestamp"`
}

// record parses the wire form into a store record. Dates use the sheet's
// own cell layouts.
func (r attendanceRequest) record() (records.Attendance, error) {
	date, err := time.Parse(records.DateLayout, r.Date)
	if err != nil {
		return records.Attendance{}, errors.New("date must look like " + records.DateLayout)
	}
	rec := records.Attendance{
		Date:             date,
		MembershipNumber: r.MembershipNumber,
		FullName:         r.FullName,
		Group:            r.Group,
		Status:           r.Status,
	}
	if r.Timestamp != "" {
		ts, err := time.Parse(records.TimeLayout, r.Timestamp)
		if err != nil {
			return records.Attendance{}, errors.New("timestamp must look like " + records.TimeLayout)
		}
		rec.Timestamp = ts
	}
	return rec, nil
}

// MarkAttendance appends a batch of attendance records, one per member
// marked, and returns them with their assigned record IDs.
func (h *Handler) MarkAttendance(c *gin.Context) {
	var req []attendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no records supplied"})
		return
	}
	recs := make([]records.Attendance, len(req))
	for i, r := range req {
		rec, err := r.record()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		recs[i] = rec
	}
	ws := workspace(c)
	stored, err := ws.Store.AppendAttendance(c.Request.Context(), recs)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"attendance": stored, "count": len(stored)})
}

// UpdateAttendance rewrites one record by its record ID.
func (h *Handler) UpdateAttendance(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}
	var req attendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := req.record()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec.RecordID = id

	ws := workspace(c)
	ok, err := ws.Store.UpdateAttendance(c.Request.Context(), rec)
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "no record with that id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DeleteAttendance removes one record by its record ID.
func (h *Handler) DeleteAttendance(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}
	ws := workspace(c)
	ok, err := ws.Store.DeleteAttendance(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "no record with that id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ---------- Users (super admin) ----------

// ListUsers returns every account. Hashes and salts never serialize.
func (h *Handler) ListUsers(c *gin.Context) {
	ws := workspace(c)
	users, err := ws.Auth.Users(c.Request.Context(), refresh(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

type createUserRequest struct {
	Username           string `json:"username" binding:"required"`
	Password           string `json:"password" binding:"required"`
	Role               string `json:"role" binding:"required"`
	FullName           string `json:"full_name" binding:"required"`
	Email              string `json:"email"`
	MustChangePassword *bool  `json:"must_change_password"`
}

// CreateUser adds an account. New users are asked to change their temporary
// password unless the request says otherwise.
func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mustChange := true
	if req.MustChangePassword != nil {
		mustChange = *req.MustChangePassword
	}
	user := records.User{
		Username:           req.Username,
		Role:               req.Role,
		FullName:           req.FullName,
		Email:              req.Email,
		MustChangePassword: mustChange,
	}
	ws := workspace(c)
	if err := ws.Auth.CreateUser(c.Request.Context(), user, req.Password); err != nil {
		fail(c, err)
		return
	}
	created, err := ws.Auth.User(c.Request.Context(), req.Username)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": created})
}

type updateUserRequest struct {
	Role     string `json:"role" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}

// UpdateUser changes an account's role, profile and active flag.
func (h *Handler) UpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ws := workspace(c)
	user := records.User{
		Username: c.Param("username"),
		Role:     req.Role,
		FullName: req.FullName,
		Email:    req.Email,
		IsActive: req.IsActive,
	}
	if err := ws.Auth.UpdateUser(c.Request.Context(), user); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DeleteUser removes an account, refusing to take the last active super
// admin with it.
func (h *Handler) DeleteUser(c *gin.Context) {
	ws := workspace(c)
	if err := ws.Auth.DeleteUser(c.Request.Context(), c.Param("username")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ---------- Admin ----------

// Status reports the caller's connection and cache state plus the number of
// live sessions, mirroring what the admin panel displays.
func (h *Handler) Status(c *gin.Context) {
	ws := workspace(c)
	conn := ws.Store.Conn()
	cch := ws.Store.Cache()

	connection := gin.H{"state": conn.State().String()}
	if age, ok := conn.Age(); ok {
		connection["age_seconds"] = int(age.Seconds())
	}
	cacheInfo := gin.H{"entries": cch.Len()}
	if oldest, ok := cch.OldestAge(); ok {
		cacheInfo["oldest_age_seconds"] = int(oldest.Seconds())
	}
	c.JSON(http.StatusOK, gin.H{
		"connection": connection,
		"cache":      cacheInfo,
		"sessions":   h.registry.Len(),
	})
}

// ClearCache drops every cached table for the caller's session, forcing
// fresh reads.
func (h *Handler) ClearCache(c *gin.Context) {
	ws := workspace(c)
	ws.Store.Cache().InvalidateAll()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Setup creates any missing worksheets with their header rows.
func (h *Handler) Setup(c *gin.Context) {
	ws := workspace(c)
	if err := ws.Store.EnsureWorksheets(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
