package records

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"churchattend/internal/cache"
	"churchattend/internal/metrics"
	"churchattend/internal/ratelimit"
	"churchattend/internal/sheets"
)

// ErrNoRecordID rejects attendance mutations on rows that predate record
// IDs. A full save reassigns IDs and makes such rows mutable again.
var ErrNoRecordID = errors.New("attendance record has no id")

// Store reads and writes the three worksheets behind one connection, one
// cache and one rate limiter. Loads go through the cache; every spreadsheet
// call is spaced out by the limiter. Not safe for concurrent use: each
// workspace owns its own Store.
type Store struct {
	conn    *sheets.Conn
	cache   *cache.Timed
	limiter *ratelimit.Limiter

	readEvery  time.Duration
	writeEvery time.Duration
	now        func() time.Time
}

// NewStore wires a store over its connection, cache and limiter. Zero
// intervals fall back to the defaults.
func NewStore(conn *sheets.Conn, c *cache.Timed, l *ratelimit.Limiter, readEvery, writeEvery time.Duration) *Store {
	if readEvery <= 0 {
		readEvery = ratelimit.DefaultReadInterval
	}
	if writeEvery <= 0 {
		writeEvery = ratelimit.DefaultWriteInterval
	}
	return &Store{
		conn:       conn,
		cache:      c,
		limiter:    l,
		readEvery:  readEvery,
		writeEvery: writeEvery,
		now:        time.Now,
	}
}

// Conn exposes the underlying connection for status reporting.
func (s *Store) Conn() *sheets.Conn { return s.conn }

// Cache exposes the cache for status reporting and manual clears.
func (s *Store) Cache() *cache.Timed { return s.cache }

// read runs one rate-limited ReadAll against a live handle.
func (s *Store) read(ctx context.Context, op, sheet string) ([][]string, error) {
	api, err := s.conn.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	var rows [][]string
	err = s.limiter.Do(op, s.readEvery, func() error {
		var rerr error
		rows, rerr = api.ReadAll(ctx, sheet)
		return rerr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sheets.ErrUnavailable, err)
	}
	return rows, nil
}

// write runs one rate-limited mutation against a live handle.
func (s *Store) write(ctx context.Context, op string, fn func(api sheets.API) error) error {
	api, err := s.conn.Ensure(ctx)
	if err != nil {
		return err
	}
	if err := s.limiter.Do(op, s.writeEvery, func() error { return fn(api) }); err != nil {
		return fmt.Errorf("%w: %v", sheets.ErrUnavailable, err)
	}
	return nil
}

// LoadMembers returns the Members sheet. bypassCache forces a fresh read;
// the result repopulates the cache either way.
func (s *Store) LoadMembers(ctx context.Context, bypassCache bool) ([]Member, error) {
	key := cache.Key("members")
	if !bypassCache {
		if v, ok := s.cache.Get(key); ok {
			metrics.CacheHitsTotal.WithLabelValues("members").Inc()
			return v.([]Member), nil
		}
		metrics.CacheMissesTotal.WithLabelValues("members").Inc()
	}
	rows, err := s.read(ctx, "load_members", MembersSheet)
	if err != nil {
		return nil, err
	}
	members := membersFromRows(rows)
	s.cache.Set(key, members)
	return members, nil
}

// SaveMembers replaces the whole Members sheet. Any cached table may now
// disagree with the sheet, so the entire cache is dropped.
func (s *Store) SaveMembers(ctx context.Context, members []Member) error {
	rows := [][]string{MembersHeader}
	for _, m := range members {
		rows = append(rows, memberRow(m))
	}
	err := s.write(ctx, "save_members", func(api sheets.API) error {
		return api.Overwrite(ctx, MembersSheet, rows)
	})
	if err != nil {
		return err
	}
	s.cache.InvalidateAll()
	return nil
}

// AppendMembers adds members to the end of the sheet.
func (s *Store) AppendMembers(ctx context.Context, members []Member) error {
	if len(members) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(members))
	for _, m := range members {
		rows = append(rows, memberRow(m))
	}
	err := s.write(ctx, "append_members", func(api sheets.API) error {
		return api.Append(ctx, MembersSheet, rows)
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(cache.Key("members"))
	return nil
}

// LoadAttendance returns the Attendance sheet.
func (s *Store) LoadAttendance(ctx context.Context, bypassCache bool) ([]Attendance, error) {
	key := cache.Key("attendance")
	if !bypassCache {
		if v, ok := s.cache.Get(key); ok {
			metrics.CacheHitsTotal.WithLabelValues("attendance").Inc()
			return v.([]Attendance), nil
		}
		metrics.CacheMissesTotal.WithLabelValues("attendance").Inc()
	}
	rows, err := s.read(ctx, "load_attendance", AttendanceSheet)
	if err != nil {
		return nil, err
	}
	recs := attendanceFromRows(rows)
	s.cache.Set(key, recs)
	return recs, nil
}

// SaveAttendance replaces the whole Attendance sheet. Records without an ID
// get one here, so a full save upgrades rows written before IDs existed.
// The returned slice carries the assigned IDs. The entire cache is dropped.
func (s *Store) SaveAttendance(ctx context.Context, recs []Attendance) ([]Attendance, error) {
	next := maxRecordID(recs) + 1
	out := make([]Attendance, len(recs))
	rows := [][]string{AttendanceHeader}
	for i, rec := range recs {
		if rec.RecordID <= 0 {
			rec.RecordID = next
			next++
		}
		if rec.Status == "" {
			rec.Status = "Present"
		}
		out[i] = rec
		rows = append(rows, attendanceRow(rec))
	}
	err := s.write(ctx, "save_attendance", func(api sheets.API) error {
		return api.Overwrite(ctx, AttendanceSheet, rows)
	})
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateAll()
	return out, nil
}

// AppendAttendance adds records to the end of the sheet, assigning each a
// record ID above everything already there. The returned slice carries the
// assigned IDs.
func (s *Store) AppendAttendance(ctx context.Context, recs []Attendance) ([]Attendance, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	// Fresh read so ID assignment never trusts a stale cache.
	existing, err := s.LoadAttendance(ctx, true)
	if err != nil {
		return nil, err
	}
	next := maxRecordID(existing) + 1

	out := make([]Attendance, len(recs))
	rows := make([][]string, 0, len(recs))
	for i, rec := range recs {
		rec.RecordID = next
		next++
		if rec.Status == "" {
			rec.Status = "Present"
		}
		if rec.Timestamp.IsZero() {
			rec.Timestamp = s.now()
		}
		out[i] = rec
		rows = append(rows, attendanceRow(rec))
	}
	err = s.write(ctx, "append_attendance", func(api sheets.API) error {
		return api.Append(ctx, AttendanceSheet, rows)
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(cache.Key("attendance"))
	return out, nil
}

// UpdateAttendance rewrites the row whose record ID matches rec. A zero
// timestamp keeps the one already on the row, so edits do not lose the
// original capture time. It returns false with no error when no row carries
// that ID.
func (s *Store) UpdateAttendance(ctx context.Context, rec Attendance) (bool, error) {
	if rec.RecordID <= 0 {
		return false, ErrNoRecordID
	}
	rowIndex, existing, err := s.findAttendanceRow(ctx, rec.RecordID)
	if err != nil {
		return false, err
	}
	if rowIndex == 0 {
		return false, nil
	}
	if rec.Status == "" {
		rec.Status = "Present"
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = existing.Timestamp
	}
	err = s.write(ctx, "update_attendance", func(api sheets.API) error {
		return api.UpdateRow(ctx, AttendanceSheet, rowIndex, attendanceRow(rec))
	})
	if err != nil {
		return false, err
	}
	s.cache.Invalidate(cache.Key("attendance"))
	return true, nil
}

// DeleteAttendance removes the row whose record ID matches id. It returns
// false with no error when no row carries that ID.
func (s *Store) DeleteAttendance(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, ErrNoRecordID
	}
	rowIndex, _, err := s.findAttendanceRow(ctx, id)
	if err != nil {
		return false, err
	}
	if rowIndex == 0 {
		return false, nil
	}
	err = s.write(ctx, "delete_attendance", func(api sheets.API) error {
		return api.DeleteRow(ctx, AttendanceSheet, rowIndex)
	})
	if err != nil {
		return false, err
	}
	s.cache.Invalidate(cache.Key("attendance"))
	return true, nil
}

// findAttendanceRow scans top to bottom for the first row carrying id and
// returns its 1-based sheet index with the record as stored, or 0 when
// absent.
func (s *Store) findAttendanceRow(ctx context.Context, id int64) (int, Attendance, error) {
	rows, err := s.read(ctx, "load_attendance", AttendanceSheet)
	if err != nil {
		return 0, Attendance{}, err
	}
	if len(rows) == 0 {
		return 0, Attendance{}, nil
	}
	idx := indexHeader(rows[0])
	for i, row := range rows[1:] {
		got, _ := strconv.ParseInt(idx.cell(row, "Record ID"), 10, 64)
		if got == id {
			return i + 2, attendanceFromRow(idx, row), nil
		}
	}
	return 0, Attendance{}, nil
}

// LoadUsers returns the Users sheet.
func (s *Store) LoadUsers(ctx context.Context, bypassCache bool) ([]User, error) {
	key := cache.Key("users")
	if !bypassCache {
		if v, ok := s.cache.Get(key); ok {
			metrics.CacheHitsTotal.WithLabelValues("users").Inc()
			return v.([]User), nil
		}
		metrics.CacheMissesTotal.WithLabelValues("users").Inc()
	}
	rows, err := s.read(ctx, "load_users", UsersSheet)
	if err != nil {
		return nil, err
	}
	users := usersFromRows(rows)
	s.cache.Set(key, users)
	return users, nil
}

// SaveUsers replaces the whole Users sheet and drops the entire cache.
func (s *Store) SaveUsers(ctx context.Context, users []User) error {
	rows := [][]string{UsersHeader}
	for _, u := range users {
		rows = append(rows, userRow(u))
	}
	err := s.write(ctx, "save_users", func(api sheets.API) error {
		return api.Overwrite(ctx, UsersSheet, rows)
	})
	if err != nil {
		return err
	}
	s.cache.InvalidateAll()
	return nil
}

// AppendUser adds one user row.
func (s *Store) AppendUser(ctx context.Context, u User) error {
	err := s.write(ctx, "append_user", func(api sheets.API) error {
		return api.Append(ctx, UsersSheet, [][]string{userRow(u)})
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(cache.Key("users"))
	return nil
}

// UpdateUser rewrites the first row whose username matches u. It returns
// false with no error when the user is absent.
func (s *Store) UpdateUser(ctx context.Context, u User) (bool, error) {
	rowIndex, _, err := s.findUserRow(ctx, u.Username)
	if err != nil {
		return false, err
	}
	if rowIndex == 0 {
		return false, nil
	}
	err = s.write(ctx, "update_user", func(api sheets.API) error {
		return api.UpdateRow(ctx, UsersSheet, rowIndex, userRow(u))
	})
	if err != nil {
		return false, err
	}
	s.cache.Invalidate(cache.Key("users"))
	return true, nil
}

// UpdatePassword rewrites the hash and salt cells of one user and clears the
// must-change flag. It returns false with no error when the user is absent.
func (s *Store) UpdatePassword(ctx context.Context, username, hash, salt string) (bool, error) {
	rowIndex, idx, err := s.findUserRow(ctx, username)
	if err != nil {
		return false, err
	}
	if rowIndex == 0 {
		return false, nil
	}
	hashCol, saltCol, mustCol := idx.col("password_hash"), idx.col("salt"), idx.col("must_change_password")
	if hashCol == 0 || saltCol == 0 || mustCol == 0 {
		return false, fmt.Errorf("records: users sheet is missing password columns")
	}
	err = s.write(ctx, "update_password", func(api sheets.API) error {
		if err := api.UpdateCell(ctx, UsersSheet, rowIndex, hashCol, hash); err != nil {
			return err
		}
		if err := api.UpdateCell(ctx, UsersSheet, rowIndex, saltCol, salt); err != nil {
			return err
		}
		return api.UpdateCell(ctx, UsersSheet, rowIndex, mustCol, "FALSE")
	})
	if err != nil {
		return false, err
	}
	s.cache.Invalidate(cache.Key("users"))
	return true, nil
}

// TouchLastLogin stamps the last_login cell of one user with the current
// time. Callers treat failures as non-fatal.
func (s *Store) TouchLastLogin(ctx context.Context, username string) error {
	rowIndex, idx, err := s.findUserRow(ctx, username)
	if err != nil {
		return err
	}
	if rowIndex == 0 {
		return nil
	}
	loginCol := idx.col("last_login")
	if loginCol == 0 {
		return fmt.Errorf("records: users sheet is missing last_login column")
	}
	stamp := s.now().Format(TimeLayout)
	err = s.write(ctx, "touch_last_login", func(api sheets.API) error {
		return api.UpdateCell(ctx, UsersSheet, rowIndex, loginCol, stamp)
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(cache.Key("users"))
	return nil
}

// DeleteUser removes the first row whose username matches. It returns false
// with no error when the user is absent.
func (s *Store) DeleteUser(ctx context.Context, username string) (bool, error) {
	rowIndex, _, err := s.findUserRow(ctx, username)
	if err != nil {
		return false, err
	}
	if rowIndex == 0 {
		return false, nil
	}
	err = s.write(ctx, "delete_user", func(api sheets.API) error {
		return api.DeleteRow(ctx, UsersSheet, rowIndex)
	})
	if err != nil {
		return false, err
	}
	s.cache.Invalidate(cache.Key("users"))
	return true, nil
}

// findUserRow scans top to bottom for the first row carrying username and
// returns its 1-based sheet index with the header index, or 0 when absent.
func (s *Store) findUserRow(ctx context.Context, username string) (int, columnIndex, error) {
	rows, err := s.read(ctx, "load_users", UsersSheet)
	if err != nil {
		return 0, nil, err
	}
	if len(rows) == 0 {
		return 0, nil, nil
	}
	idx := indexHeader(rows[0])
	for i, row := range rows[1:] {
		if idx.cell(row, "username") == username {
			return i + 2, idx, nil
		}
	}
	return 0, idx, nil
}

// EnsureWorksheets creates any of the three worksheets that are missing and
// writes their header rows. Existing sheets are left alone.
func (s *Store) EnsureWorksheets(ctx context.Context) error {
	api, err := s.conn.Ensure(ctx)
	if err != nil {
		return err
	}
	var titles []string
	err = s.limiter.Do("setup", s.readEvery, func() error {
		var terr error
		titles, terr = api.SheetTitles(ctx)
		return terr
	})
	if err != nil {
		return fmt.Errorf("%w: %v", sheets.ErrUnavailable, err)
	}
	have := make(map[string]bool, len(titles))
	for _, t := range titles {
		have[t] = true
	}

	required := []struct {
		title  string
		header []string
	}{
		{MembersSheet, MembersHeader},
		{AttendanceSheet, AttendanceHeader},
		{UsersSheet, UsersHeader},
	}
	for _, req := range required {
		if have[req.title] {
			continue
		}
		err := s.limiter.Do("setup", s.writeEvery, func() error {
			if err := api.AddSheet(ctx, req.title, 1000, 10); err != nil {
				return err
			}
			return api.Append(ctx, req.title, [][]string{req.header})
		})
		if err != nil {
			return fmt.Errorf("%w: %v", sheets.ErrUnavailable, err)
		}
	}
	return nil
}

func membersFromRows(rows [][]string) []Member {
	members := []Member{}
	if len(rows) == 0 {
		return members
	}
	idx := indexHeader(rows[0])
	for _, row := range rows[1:] {
		if emptyRow(row) {
			continue
		}
		members = append(members, memberFromRow(idx, row))
	}
	return members
}

func attendanceFromRows(rows [][]string) []Attendance {
	recs := []Attendance{}
	if len(rows) == 0 {
		return recs
	}
	idx := indexHeader(rows[0])
	for _, row := range rows[1:] {
		if emptyRow(row) {
			continue
		}
		recs = append(recs, attendanceFromRow(idx, row))
	}
	return recs
}

func usersFromRows(rows [][]string) []User {
	users := []User{}
	if len(rows) == 0 {
		return users
	}
	idx := indexHeader(rows[0])
	for _, row := range rows[1:] {
		if emptyRow(row) {
			continue
		}
		users = append(users, userFromRow(idx, row))
	}
	return users
}

func maxRecordID(recs []Attendance) int64 {
	var max int64
	for _, r := range recs {
		if r.RecordID > max {
			max = r.RecordID
		}
	}
	return max
}
