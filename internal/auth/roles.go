package auth

// Role names as stored in the Users sheet.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleStaff      = "staff"
	RoleViewer     = "viewer"
)

// Permissions gate individual capabilities. A role carrying PermAll has
// every permission.
const (
	PermAll             = "all"
	PermViewDashboard   = "view_dashboard"
	PermMarkAttendance  = "mark_attendance"
	PermManageMembers   = "manage_members"
	PermViewAnalytics   = "view_analytics"
	PermGenerateReports = "generate_reports"
	PermViewHistory     = "view_history"
	PermAdminPanel      = "admin_panel"
)

// RoleInfo describes one role for display and permission checks.
type RoleInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// Roles is the fixed role table.
var Roles = map[string]RoleInfo{
	RoleSuperAdmin: {
		Name:        "Super Admin",
		Description: "Complete system access including user management",
		Permissions: []string{PermAll},
	},
	RoleAdmin: {
		Name:        "Admin",
		Description: "Full church data access, cannot manage users",
		Permissions: []string{PermViewDashboard, PermMarkAttendance, PermManageMembers, PermViewAnalytics, PermGenerateReports, PermViewHistory, PermAdminPanel},
	},
	RoleStaff: {
		Name:        "Staff",
		Description: "Can mark attendance, manage members, view reports",
		Permissions: []string{PermViewDashboard, PermMarkAttendance, PermManageMembers, PermViewAnalytics, PermViewHistory},
	},
	RoleViewer: {
		Name:        "Viewer",
		Description: "Read-only access to dashboards and reports",
		Permissions: []string{PermViewDashboard, PermViewAnalytics, PermViewHistory},
	},
}

// ValidRole reports whether role names a known role.
func ValidRole(role string) bool {
	_, ok := Roles[role]
	return ok
}

// HasPermission reports whether role grants permission. Unknown roles grant
// nothing.
func HasPermission(role, permission string) bool {
	info, ok := Roles[role]
	if !ok {
		return false
	}
	for _, p := range info.Permissions {
		if p == PermAll || p == permission {
			return true
		}
	}
	return false
}
