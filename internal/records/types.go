package records

import "time"

// Worksheet titles inside the spreadsheet.
const (
	MembersSheet    = "Members"
	AttendanceSheet = "Attendance"
	UsersSheet      = "Users"
)

// Cell layouts used throughout the spreadsheet.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "2006-01-02 15:04:05"
)

// Header rows, in on-sheet column order.
var (
	MembersHeader    = []string{"Membership Number", "Full Name", "Group", "Email", "Phone"}
	AttendanceHeader = []string{"Record ID", "Date", "Membership Number", "Full Name", "Group", "Status", "Timestamp"}
	UsersHeader      = []string{"username", "password_hash", "salt", "role", "full_name", "email", "created_date", "last_login", "is_active", "must_change_password"}
)

// Member is one row of the Members sheet.
type Member struct {
	MembershipNumber string `json:"membership_number"`
	FullName         string `json:"full_name"`
	Group            string `json:"group"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
}

// Attendance is one row of the Attendance sheet. RecordID is assigned by the
// store at append time and is the only key mutations accept; rows written
// before IDs existed load with RecordID 0.
type Attendance struct {
	RecordID         int64     `json:"record_id"`
	Date             time.Time `json:"date"`
	MembershipNumber string    `json:"membership_number"`
	FullName         string    `json:"full_name"`
	Group            string    `json:"group"`
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
}

// User is one row of the Users sheet. Hash and salt never leave the server.
type User struct {
	Username           string    `json:"username"`
	PasswordHash       string    `json:"-"`
	Salt               string    `json:"-"`
	Role               string    `json:"role"`
	FullName           string    `json:"full_name"`
	Email              string    `json:"email"`
	CreatedDate        time.Time `json:"created_date"`
	LastLogin          time.Time `json:"last_login"`
	IsActive           bool      `json:"is_active"`
	MustChangePassword bool      `json:"must_change_password"`
}
