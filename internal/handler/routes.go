package handler

import (
	"github.com/gin-gonic/gin"

	"churchattend/internal/auth"
)

// Register wires the v1 API tree. Login endpoints are public; everything
// else runs behind the JWT check, the workspace resolver, and a permission
// gate per route group.
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/v1")

	v1.POST("/auth/login", h.Login)
	v1.POST("/auth/token", h.TokenLogin)

	authed := v1.Group("", auth.RequireAuth(h.jwtKey, h.jwtIssuer), h.WithWorkspace)

	authed.POST("/auth/logout", h.Logout)
	authed.GET("/auth/me", h.Me)
	authed.POST("/auth/password", h.ChangePassword)
	authed.GET("/roles", h.Roles)

	authed.GET("/members", auth.RequirePermission(auth.PermViewDashboard), h.ListMembers)
	authed.PUT("/members", auth.RequirePermission(auth.PermManageMembers), h.ReplaceMembers)
	authed.POST("/members", auth.RequirePermission(auth.PermManageMembers), h.AddMember)

	authed.GET("/attendance", auth.RequirePermission(auth.PermViewHistory), h.ListAttendance)
	authed.POST("/attendance", auth.RequirePermission(auth.PermMarkAttendance), h.MarkAttendance)
	authed.PUT("/attendance/:id", auth.RequirePermission(auth.PermMarkAttendance), h.UpdateAttendance)
	authed.DELETE("/attendance/:id", auth.RequirePermission(auth.PermMarkAttendance), h.DeleteAttendance)

	users := authed.Group("/users", auth.RequireRole(auth.RoleSuperAdmin))
	users.GET("", h.ListUsers)
	users.POST("", h.CreateUser)
	users.PUT("/:username", h.UpdateUser)
	users.DELETE("/:username", h.DeleteUser)

	admin := authed.Group("/admin", auth.RequirePermission(auth.PermAdminPanel))
	admin.GET("/status", h.Status)
	admin.POST("/cache/clear", h.ClearCache)
	admin.POST("/setup", h.Setup)
}
