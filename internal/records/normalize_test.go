package records

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "nine digits gets leading zero back", in: "721234567", want: "0721234567"},
		{name: "ten digits untouched", in: "0721234567", want: "0721234567"},
		{name: "nine chars with letter untouched", in: "72123456a", want: "72123456a"},
		{name: "international format untouched", in: "+27721234567", want: "+27721234567"},
		{name: "empty untouched", in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePhone(tt.in))
		})
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"TRUE", true},
		{"True", true},
		{"true", true},
		{"1", true},
		{" TRUE ", true},
		{"FALSE", false},
		{"false", false},
		{"0", false},
		{"", false},
		{"yes", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseBool(tt.in), "parseBool(%q)", tt.in)
	}
}

func TestParseDateZeroOnFailure(t *testing.T) {
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), parseDate("2025-03-01"))
	assert.True(t, parseDate("01/03/2025").IsZero())
	assert.True(t, parseDate("not a date").IsZero())
	assert.True(t, parseDate("").IsZero())
}

func TestParseTimestampFallsBackToDate(t *testing.T) {
	assert.Equal(t, time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC), parseTimestamp("2025-03-01 09:30:00"))
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), parseTimestamp("2025-03-01"))
	assert.True(t, parseTimestamp("garbage").IsZero())
}

func TestHeaderMappingToleratesOrderAndWhitespace(t *testing.T) {
	idx := indexHeader([]string{" Phone ", "full name", "Membership Number", "Email", "GROUP"})
	row := []string{"721234567", " Jane Doe ", "M001", "jane@example.com", "Choir"}

	m := memberFromRow(idx, row)
	assert.Equal(t, Member{
		MembershipNumber: "M001",
		FullName:         "Jane Doe",
		Group:            "Choir",
		Email:            "jane@example.com",
		Phone:            "0721234567",
	}, m)
}

func TestMemberFromRowFillsMissingColumns(t *testing.T) {
	idx := indexHeader([]string{"Membership Number", "Full Name"})
	m := memberFromRow(idx, []string{"M002", "John"})

	assert.Equal(t, "M002", m.MembershipNumber)
	assert.Equal(t, "John", m.FullName)
	assert.Empty(t, m.Group)
	assert.Empty(t, m.Email)
	assert.Empty(t, m.Phone)
}

func TestAttendanceFromRowDefaults(t *testing.T) {
	idx := indexHeader(AttendanceHeader)

	t.Run("status defaults to present", func(t *testing.T) {
		rec := attendanceFromRow(idx, []string{"7", "2025-03-01", "M001", "Jane", "Choir", "", "2025-03-01 09:30:00"})
		assert.Equal(t, "Present", rec.Status)
		assert.Equal(t, int64(7), rec.RecordID)
	})

	t.Run("bad date becomes zero time", func(t *testing.T) {
		rec := attendanceFromRow(idx, []string{"7", "March 1st", "M001", "Jane", "Choir", "Present", ""})
		assert.True(t, rec.Date.IsZero())
	})

	t.Run("legacy row without id loads as zero", func(t *testing.T) {
		rec := attendanceFromRow(idx, []string{"", "2025-03-01", "M001", "Jane", "Choir", "Absent", ""})
		assert.Zero(t, rec.RecordID)
		assert.Equal(t, "Absent", rec.Status)
	})

	t.Run("short row fills defaults", func(t *testing.T) {
		rec := attendanceFromRow(idx, []string{"3", "2025-03-01"})
		assert.Equal(t, int64(3), rec.RecordID)
		assert.Equal(t, "Present", rec.Status)
		assert.Empty(t, rec.MembershipNumber)
	})
}

func TestUserRowRoundTrip(t *testing.T) {
	u := User{
		Username:           "grace",
		PasswordHash:       "abc123",
		Salt:               "ffee",
		Role:               "staff",
		FullName:           "Grace M",
		Email:              "grace@example.com",
		CreatedDate:        time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC),
		IsActive:           true,
		MustChangePassword: false,
	}

	row := userRow(u)
	assert.Equal(t, "TRUE", row[8])
	assert.Equal(t, "FALSE", row[9])
	assert.Equal(t, "2025-01-05 08:00:00", row[6])
	assert.Equal(t, "", row[7], "never logged in stays blank")

	got := userFromRow(indexHeader(UsersHeader), row)
	assert.Equal(t, u, got)
}
