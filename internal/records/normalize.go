package records

import (
	"strconv"
	"strings"
	"time"
)

// columnIndex maps header names to their column positions. Lookups trim
// whitespace and ignore case, so reordered or sloppily edited sheets still
// load.
type columnIndex map[string]int

func indexHeader(header []string) columnIndex {
	idx := make(columnIndex, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return idx
}

// cell returns the trimmed value of the named column, or "" when the column
// is absent or the row is too short.
func (idx columnIndex) cell(row []string, name string) string {
	i, ok := idx[strings.ToLower(name)]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// col returns the 1-based sheet position of the named column, or 0 when the
// column is absent.
func (idx columnIndex) col(name string) int {
	i, ok := idx[strings.ToLower(name)]
	if !ok {
		return 0
	}
	return i + 1
}

// parseDate reads a sheet date cell. Unparseable input becomes the zero
// time rather than an error; one bad cell must not sink a whole load.
func parseDate(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		// Some rows carry a bare date in the timestamp column.
		return parseDate(s)
	}
	return t
}

func parseBool(s string) bool {
	s = strings.TrimSpace(s)
	return strings.EqualFold(s, "true") || s == "1"
}

func formatBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimeLayout)
}

// normalizePhone restores the leading zero that spreadsheet editing tends to
// strip: a 9-digit all-numeric value is padded back to 10 digits. Anything
// else passes through untouched.
func normalizePhone(s string) string {
	if len(s) != 9 {
		return s
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return s
		}
	}
	return "0" + s
}

func memberFromRow(idx columnIndex, row []string) Member {
	return Member{
		MembershipNumber: idx.cell(row, "Membership Number"),
		FullName:         idx.cell(row, "Full Name"),
		Group:            idx.cell(row, "Group"),
		Email:            idx.cell(row, "Email"),
		Phone:            normalizePhone(idx.cell(row, "Phone")),
	}
}

func memberRow(m Member) []string {
	return []string{m.MembershipNumber, m.FullName, m.Group, m.Email, m.Phone}
}

func attendanceFromRow(idx columnIndex, row []string) Attendance {
	id, _ := strconv.ParseInt(idx.cell(row, "Record ID"), 10, 64)
	status := idx.cell(row, "Status")
	if status == "" {
		status = "Present"
	}
	return Attendance{
		RecordID:         id,
		Date:             parseDate(idx.cell(row, "Date")),
		MembershipNumber: idx.cell(row, "Membership Number"),
		FullName:         idx.cell(row, "Full Name"),
		Group:            idx.cell(row, "Group"),
		Status:           status,
		Timestamp:        parseTimestamp(idx.cell(row, "Timestamp")),
	}
}

func attendanceRow(a Attendance) []string {
	return []string{
		strconv.FormatInt(a.RecordID, 10),
		formatDate(a.Date),
		a.MembershipNumber,
		a.FullName,
		a.Group,
		a.Status,
		formatTimestamp(a.Timestamp),
	}
}

func userFromRow(idx columnIndex, row []string) User {
	return User{
		Username:           idx.cell(row, "username"),
		PasswordHash:       idx.cell(row, "password_hash"),
		Salt:               idx.cell(row, "salt"),
		Role:               idx.cell(row, "role"),
		FullName:           idx.cell(row, "full_name"),
		Email:              idx.cell(row, "email"),
		CreatedDate:        parseTimestamp(idx.cell(row, "created_date")),
		LastLogin:          parseTimestamp(idx.cell(row, "last_login")),
		IsActive:           parseBool(idx.cell(row, "is_active")),
		MustChangePassword: parseBool(idx.cell(row, "must_change_password")),
	}
}

func userRow(u User) []string {
	return []string{
		u.Username,
		u.PasswordHash,
		u.Salt,
		u.Role,
		u.FullName,
		u.Email,
		formatTimestamp(u.CreatedDate),
		formatTimestamp(u.LastLogin),
		formatBool(u.IsActive),
		formatBool(u.MustChangePassword),
	}
}

// emptyRow reports whether every cell in the row is blank.
func emptyRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
