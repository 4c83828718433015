package records

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churchattend/internal/cache"
	"churchattend/internal/ratelimit"
	"churchattend/internal/sheets"
	"churchattend/internal/sheets/sheetstest"
)

// testClock drives the cache, the limiter and the store off one fake time
// source so tests never sleep for real.
type testClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*Store, *sheetstest.Fake, *testClock) {
	t.Helper()
	fake := sheetstest.NewFake()
	clock := &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	conn := sheets.NewConn(func(ctx context.Context) (sheets.API, error) {
		return fake, nil
	}, time.Hour)
	c := cache.NewTimedWithClock(5*time.Minute, clock.Now)
	l := ratelimit.NewWithClock(clock.Now, clock.Sleep)
	s := NewStore(conn, c, l, time.Second, 2*time.Second)
	s.now = clock.Now
	return s, fake, clock
}

func countCalls(fake *sheetstest.Fake, prefix string) int {
	n := 0
	for _, call := range fake.Calls() {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

func seedMembers(fake *sheetstest.Fake) {
	fake.Seed(MembersSheet, [][]string{
		MembersHeader,
		{"M001", "Jane Doe", "Choir", "jane@example.com", "0721234567"},
		{"M002", "John Smith", "Ushers", "john@example.com", "0731234567"},
	})
}

func seedAttendance(fake *sheetstest.Fake) {
	fake.Seed(AttendanceSheet, [][]string{
		AttendanceHeader,
		{"1", "2025-02-23", "M001", "Jane Doe", "Choir", "Present", "2025-02-23 09:15:00"},
		{"2", "2025-02-23", "M002", "John Smith", "Ushers", "Absent", "2025-02-23 09:16:00"},
	})
}

func seedUsers(fake *sheetstest.Fake) {
	fake.Seed(UsersSheet, [][]string{
		UsersHeader,
		{"admin", "hash-a", "salt-a", "super_admin", "System Administrator", "admin@church.local", "2025-01-01 08:00:00", "", "TRUE", "TRUE"},
		{"grace", "hash-g", "salt-g", "staff", "Grace M", "grace@example.com", "2025-01-10 08:00:00", "2025-02-20 10:00:00", "TRUE", "FALSE"},
	})
}

func TestLoadMembersCachesResult(t *testing.T) {
	s, fake, _ := newTestStore(t)
	seedMembers(fake)

	first, err := s.LoadMembers(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := s.LoadMembers(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, countCalls(fake, "read_all"), "second load should be served from cache")
}

func TestLoadMembersExpiredCacheRefetches(t *testing.T) {
	s, fake, clock := newTestStore(t)
	seedMembers(fake)

	_, err := s.LoadMembers(context.Background(), false)
	require.NoError(t, err)

	clock.now = clock.now.Add(5 * time.Minute)
	_, err = s.LoadMembers(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, countCalls(fake, "read_all"))
}

func TestLoadMembersBypassStillRepopulatesCache(t *testing.T) {
	s, fake, _ := newTestStore(t)
	seedMembers(fake)

	_, err := s.LoadMembers(context.Background(), false)
	require.NoError(t, err)

	// The sheet changes behind our back.
	fake.Seed(MembersSheet, [][]string{
		MembersHeader,
		{"M003", "New Member", "Youth", "", ""},
	})

	fresh, err := s.LoadMembers(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "M003", fresh[0].MembershipNumber)

	// The bypassed read replaced the cached value.
	cached, err := s.LoadMembers(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, fresh, cached)
	assert.Equal(t, 2, countCalls(fake, "read_all"))
}

func TestLoadMembersToleratesReorderedColumns(t *testing.T) {
	s, fake, _ := newTestStore(t)
	fake.Seed(MembersSheet, [][]string{
		{"Email", "Phone", "Full Name", "Membership Number", "Group"},
		{"jane@example.com", "721234567", "  Jane Doe  ", "M001", "Choir"},
	})

	members, err := s.LoadMembers(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, Member{
		MembershipNumber: "M001",
		FullName:         "Jane Doe",
		Group:            "Choir",
		Email:            "jane@example.com",
		Phone:            "0721234567",
	}, members[0])
}

func TestLoadMembersSkipsBlankRows(t *testing.T) {
	s, fake, _ := newTestStore(t)
	fake.Seed(MembersSheet, [][]string{
		MembersHeader,
		{"M001", "Jane Doe", "Choir", "", ""},
		{"", "", "", "", ""},
		{"M002", "John Smith", "Ushers", "", ""},
	})

	members, err := s.LoadMembers(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestSaveMembersOverwritesSheetAndDropsWholeCache(t *testing.T) {
	s, fake, _ := newTestStore(t)
	seedMembers(fake)
	seedAttendance(fake)

	_, err := s.LoadMembers(context.Background(), false)
	require.NoError(t, err)
	_, err = s.LoadAttendance(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Cache().Len())

	err = s.SaveMembers(context.Background(), []Member{
		{MembershipNumber: "M010", FullName: "Only Member", Group: "Youth"},
	})
	require.NoError(t, err)

	rows := fake.Rows(MembersSheet)
	require.Len(t, rows, 2)
	assert.Equal(t, MembersHeader, rows[0])
	assert.Equal(t, []string{"M010", "Only Member", "Youth", "", ""}, rows[1])

	// A full save invalidates every cached table, not just members.
	assert.Equal(t, 0, s.Cache().Len())
}

func TestAppendMembersInvalidatesOnlyMembers(t *testing.T) {
	s, fake, _ := newTestStore(t)
	seedMembers(fake)
	seedAttendance(fake)

	_, err := s.LoadMembers(context.Background(), false)
	require.NoError(t, err)
	_, err = s.LoadAttendance(context.Background(), false)
	require.NoError(t, err)

	err = s.AppendMembers(context.Background(), []Member{
		{MembershipNumber: "M003", FullName: "New Member"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, s.Cache().Len(), "attendance stays cached")
	rows := fake.Rows(MembersSheet)
	assert.Len(t, rows, 4)
}

func TestAppendAttendanceAssignsIncreasingIDs(t *testing.T) {
	s, fake, clock := newTestStore(t)
	seedAttendance(fake)

	out, err := s.AppendAttendance(context.Background(), []Attendance{
		{Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), MembershipNumber: "M001", FullName: "Jane Doe", Group: "Choir"},
		{Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), MembershipNumber: "M002", FullName: "John Smith", Group: "Ushers", Status: "Absent"},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, int64(3), out[0].RecordID)
	assert.Equal(t, int64(4), out[1].RecordID)
	assert.Equal(t, "Present", out[0].Status, "missing status defaults")
	assert.Equal(t, "Absent", out[1].Status)
	assert.Equal(t, clock.Now(), out[0].Timestamp, "missing timestamp is stamped")

	rows := fake.Rows(AttendanceSheet)
	require.Len(t, rows, 5)
	assert.Equal(t, "3", rows[3][0])
	assert.Equal(t, "4", rows[4][0])
}

func TestAppendAttendanceIgnoresLegacyRowsForMax(t *testing.T) {
	s, fake, _ := newTestStore(t)
	fake.Seed(AttendanceSheet, [][]string{
		AttendanceHeader,
		{"", "2024-12-01", "M001", "Jane Doe", "Choir", "Present", ""},
		{"9", "2025-02-23", "M002", "John Smith", "Ushers", "Present", ""},
	})

	out, err := s.AppendAttendance(context.Background(), []Attendance{
		{Date: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), MembershipNumber: "M001"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(10), out[0].RecordID)
}

func TestSaveAttendanceAssignsIDsToLegacyRows(t *testing.T) {
	s, fake, _ := newTestStore(t)
	fake.Seed(AttendanceSheet, [][]string{AttendanceHeader})

	out, err := s.SaveAttendance(context.Background(), []Attendance{
		{RecordID: 5, MembershipNumber: "M001", Status: "Present"},
		{MembershipNumber: "M002"},
		{MembershipNumber: "M003"},
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, int64(5), out[0].RecordID)
	assert.Equal(t, int64(6), out[1].RecordID)
	assert.Equal(t, int64(7), out[2].RecordID)

	rows := fake.Rows(AttendanceSheet)
	require.Len(t, rows, 4)
	assert.Equal(t, AttendanceHeader, rows[0])
	assert.Equal(t, "6", rows[2][0])
}

func TestUpdateAttendanceRewritesMatchingRow(t *testing.T) {
	s, fake, _ := newTestStore(t)
	seedAttendance(fake)

	ok, err := s.UpdateAttendance(context.Background(), Attendance{
		RecordID:         2,
		Date:             time.Date(2025, 2, 23, 0, 0, 0, 0, time.UTC),
		MembershipNumber: "M002",
		FullName:         "John Smith",
		Group:            "Ushers",
		Status:           "Present",
		Timestamp:        time.Date(2025, 2, 23, 9, 16, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	rows := fake.Rows(AttendanceSheet)
	assert.Equal(t, "Present", rows[2][5])
}

func TestUpdateAttendanceKeepsTimestampWhenOmitted(t *testing.T) {
	s, fake, _ := newTestStore(t)
	seedAttendance(fake)

	ok, err := s.UpdateAttendance(context.Background(), Attendance{
		RecordID:         1,
		Date:             time.Date(2025, 2, 23, 0, 0, 0, 0, time.UTC),
		MembershipNumber: "M001",
		FullName:         "Jane Doe",
		Group:            "Choir",
		Status:           "Absent",
	})
	require.NoError(t, err)
	assert.True(t, ok)

	rows := fake.Rows(AttendanceSheet)
	assert.Equal(t, "Absent", rows[1][5])
	assert.Equal(t, "2025-02-23 09:15:00", rows[1][6], "original capture time survives the edit")
}

func TestUpdateAttendanceMissingIDReturnsFalse(t *testing.T) {
	s, fake, _ := newTestStore(t)
	seedAttendance(fake)

	ok, err := s.UpdateAttendance(context.Background(), Attendance{RecordID: 99, Status: "Present"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, countCalls(fake, "update_row"), "no write without a match")
}

func TestUpdateAttendanceRejectsLegacyRecord(t *testing.T) {
	s, _, _ := newTestStore(t)

	_, err := s.UpdateAttendance(context.Background(), Attendance{RecordID: 0})
	assert.ErrorIs(t, err, ErrNoRecordID)

	_, err = s.DeleteAttendance(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNoRecordID)
}

func TestDeleteAttendanceRemovesRow(t *testing.T) {
	s, fake, _ := newTestStore(t)
	seedAttendance(fake)

	ok, err := s.DeleteAttendance(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, ok)

	rows := fake.Rows(AttendanceSheet)
	require.Len(t, rows, 2)
	assert.Equal(t, "2", rows[1][0], "remaining row shifted up")

	ok, err = s.DeleteAttendance(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok, "second delete finds nothing")
}

func TestLoadUsersParsesFlags(t *testing.T) {
	s, fake, _ := newTestStore(t)
	seedUsers(fake)

	users, err := s.LoadUsers(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, users, 2)

	admin := users[0]
	assert.Equal(t, "admin", admin.Username)
	assert.True(t, admin.IsActive)
	assert.True(t, admin.MustChangePassword)
	assert.True(t, admin.LastLogin.IsZero(), "never logged in")

	grace := users[1]
	assert.False(t, grace.MustChangePassword)
	assert.Equal(t, time.Date(2025, 2, 20, 10, 0, 0, 0, time.UTC), grace.LastLogin)
}

func TestUpdateUserRewritesRow(t *testing.T) {
	s, fake, _ := newTestStore(t)
	seedUsers(fake)

	ok, err := s.UpdateUser(context.Background(), User{
		Username:     "grace",
		PasswordHash: "hash-g",
		Salt:         "salt-g",
		Role:         "admin",
		FullName:     "Grace M",
		Email:        "grace@example.com",
		CreatedDate:  time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC),
		IsActive:     true,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	rows := fake.Rows(UsersSheet)
	assert.Equal(t, "admin", rows[2][3])

	ok, err = s.UpdateUser(context.Background(), User{Username: "nobody"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdatePasswordTouchesOnlyPasswordCells(t *testing.T) {
	s, fake, _ := newTestStore(t)
	seedUsers(fake)

	ok, err := s.UpdatePassword(context.Background(), "admin", "new-hash", "new-salt")
	require.NoError(t, err)
	assert.True(t, ok)

	rows := fake.Rows(UsersSheet)
	admin := rows[1]
	assert.Equal(t, "new-hash", admin[1])
	assert.Equal(t, "new-salt", admin[2])
	assert.Equal(t, "FALSE", admin[9], "must_change_password cleared")
	assert.Equal(t, "super_admin", admin[3], "other cells untouched")
}

func TestTouchLastLoginStampsCell(t *testing.T) {
	s, fake, clock := newTestStore(t)
	seedUsers(fake)

	err := s.TouchLastLogin(context.Background(), "grace")
	require.NoError(t, err)

	rows := fake.Rows(UsersSheet)
	assert.Equal(t, clock.Now().Format(TimeLayout), rows[2][7])

	// Unknown users are quietly ignored.
	assert.NoError(t, s.TouchLastLogin(context.Background(), "nobody"))
}

func TestDeleteUserRemovesRow(t *testing.T) {
	s, fake, _ := newTestStore(t)
	seedUsers(fake)

	ok, err := s.DeleteUser(context.Background(), "grace")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, fake.Rows(UsersSheet), 2)

	ok, err = s.DeleteUser(context.Background(), "grace")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreReportsUnavailable(t *testing.T) {
	s, fake, _ := newTestStore(t)
	seedMembers(fake)
	fake.Err = errors.New("quota exceeded")

	_, err := s.LoadMembers(context.Background(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, sheets.ErrUnavailable)

	err = s.SaveMembers(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, sheets.ErrUnavailable)
}

func TestEnsureWorksheetsCreatesMissingSheets(t *testing.T) {
	s, fake, _ := newTestStore(t)
	seedMembers(fake)

	err := s.EnsureWorksheets(context.Background())
	require.NoError(t, err)

	assert.Equal(t, [][]string{AttendanceHeader}, fake.Rows(AttendanceSheet))
	assert.Equal(t, [][]string{UsersHeader}, fake.Rows(UsersSheet))

	// The existing Members sheet keeps its rows.
	assert.Len(t, fake.Rows(MembersSheet), 3)
	assert.Equal(t, 0, countCalls(fake, "add_sheet Members"))
}

func TestRepeatedReadsAreSpacedByLimiter(t *testing.T) {
	s, fake, clock := newTestStore(t)
	seedMembers(fake)

	_, err := s.LoadMembers(context.Background(), true)
	require.NoError(t, err)
	_, err = s.LoadMembers(context.Background(), true)
	require.NoError(t, err)

	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, time.Second, clock.sleeps[0])
	assert.Equal(t, 2, countCalls(fake, "read_all"))
}
