package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"churchattend/internal/records"
)

// MinPasswordLength applies to new and changed passwords.
const MinPasswordLength = 8

// Sentinel errors for the login and user-management flows. Handlers map
// them onto HTTP statuses.
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserExists         = errors.New("username already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrUnknownRole        = errors.New("unknown role")
	ErrLastSuperAdmin     = errors.New("cannot remove the last active super admin")
	ErrPasswordTooShort   = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrPasswordUnchanged  = errors.New("new password must differ from the current password")
)

// Default admin credentials created on an empty Users sheet. The account is
// flagged to change its password on first login.
const (
	DefaultAdminUsername = "admin"
	DefaultAdminPassword = "admin123"
)

// Service implements login and user administration over the Users sheet.
type Service struct {
	store          *records.Store
	rememberSecret string
	now            func() time.Time
}

// NewService wires an auth service over the given store.
func NewService(store *records.Store, rememberSecret string) *Service {
	return &Service{store: store, rememberSecret: rememberSecret, now: time.Now}
}

// Login authenticates a username and password. The users table is read
// fresh, never from cache, so a password change or deactivation applies at
// the very next attempt. Absent users, inactive users and wrong passwords
// all come back as ErrInvalidCredentials; nothing in the error says which it
// was. On success the last-login stamp is updated best effort.
func (s *Service) Login(ctx context.Context, username, password string) (records.User, error) {
	user, err := s.findUser(ctx, username, true)
	if err != nil {
		return records.User{}, err
	}
	if user == nil || !user.IsActive {
		return records.User{}, ErrInvalidCredentials
	}
	if !CheckPassword(password, user.Salt, user.PasswordHash) {
		return records.User{}, ErrInvalidCredentials
	}
	s.touchLastLogin(ctx, username)
	return *user, nil
}

// LoginWithToken authenticates a persistent remember token. The token is
// only as durable as the password hash it was minted against.
func (s *Service) LoginWithToken(ctx context.Context, token string) (records.User, error) {
	username, ok := RememberTokenUser(token)
	if !ok {
		return records.User{}, ErrInvalidCredentials
	}
	user, err := s.findUser(ctx, username, true)
	if err != nil {
		return records.User{}, err
	}
	if user == nil || !user.IsActive {
		return records.User{}, ErrInvalidCredentials
	}
	if !CheckRememberToken(s.rememberSecret, token, user.Username, user.PasswordHash) {
		return records.User{}, ErrInvalidCredentials
	}
	s.touchLastLogin(ctx, username)
	return *user, nil
}

// MintRememberToken returns a persistent token for the user.
func (s *Service) MintRememberToken(user records.User) string {
	return RememberToken(s.rememberSecret, user.Username, user.PasswordHash)
}

// EnsureDefaultAdmin creates the bootstrap super admin when the Users sheet
// has no rows at all. It reports whether it created one. Callers treat a
// failure here as non-fatal: the system must come up even when the sheet is
// unreachable.
func (s *Service) EnsureDefaultAdmin(ctx context.Context) (bool, error) {
	users, err := s.store.LoadUsers(ctx, false)
	if err != nil {
		return false, err
	}
	if len(users) > 0 {
		return false, nil
	}
	salt, err := GenerateSalt()
	if err != nil {
		return false, err
	}
	admin := records.User{
		Username:           DefaultAdminUsername,
		PasswordHash:       HashPassword(DefaultAdminPassword, salt),
		Salt:               salt,
		Role:               RoleSuperAdmin,
		FullName:           "System Administrator",
		Email:              "admin@church.local",
		CreatedDate:        s.now(),
		IsActive:           true,
		MustChangePassword: true,
	}
	if err := s.store.AppendUser(ctx, admin); err != nil {
		return false, err
	}
	return true, nil
}

// Users lists every account.
func (s *Service) Users(ctx context.Context, bypassCache bool) ([]records.User, error) {
	return s.store.LoadUsers(ctx, bypassCache)
}

// User returns one account, or ErrUserNotFound.
func (s *Service) User(ctx context.Context, username string) (records.User, error) {
	user, err := s.findUser(ctx, username, false)
	if err != nil {
		return records.User{}, err
	}
	if user == nil {
		return records.User{}, ErrUserNotFound
	}
	return *user, nil
}

// CreateUser adds a new account with a freshly salted password.
func (s *Service) CreateUser(ctx context.Context, u records.User, password string) error {
	if u.Username == "" || u.FullName == "" {
		return errors.New("username and full name are required")
	}
	if !ValidRole(u.Role) {
		return ErrUnknownRole
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	existing, err := s.findUser(ctx, u.Username, false)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrUserExists
	}
	salt, err := GenerateSalt()
	if err != nil {
		return err
	}
	u.PasswordHash = HashPassword(password, salt)
	u.Salt = salt
	u.CreatedDate = s.now()
	u.LastLogin = time.Time{}
	u.IsActive = true
	return s.store.AppendUser(ctx, u)
}

// UpdateUser changes role, profile fields and the active flag of an account.
// Credentials and timestamps are preserved. The change is rejected before
// any write when it would leave the system with no active super admin.
func (s *Service) UpdateUser(ctx context.Context, u records.User) error {
	if !ValidRole(u.Role) {
		return ErrUnknownRole
	}
	users, err := s.store.LoadUsers(ctx, false)
	if err != nil {
		return err
	}
	existing := findByUsername(users, u.Username)
	if existing == nil {
		return ErrUserNotFound
	}
	demoted := u.Role != RoleSuperAdmin || !u.IsActive
	if isActiveSuperAdmin(*existing) && demoted && countActiveSuperAdmins(users) == 1 {
		return ErrLastSuperAdmin
	}

	u.PasswordHash = existing.PasswordHash
	u.Salt = existing.Salt
	u.CreatedDate = existing.CreatedDate
	u.LastLogin = existing.LastLogin
	ok, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser removes an account. The delete is rejected before any write
// when it would remove the last active super admin.
func (s *Service) DeleteUser(ctx context.Context, username string) error {
	users, err := s.store.LoadUsers(ctx, false)
	if err != nil {
		return err
	}
	existing := findByUsername(users, username)
	if existing == nil {
		return ErrUserNotFound
	}
	if isActiveSuperAdmin(*existing) && countActiveSuperAdmins(users) == 1 {
		return ErrLastSuperAdmin
	}
	ok, err := s.store.DeleteUser(ctx, username)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

// ChangePassword verifies the current password and installs a new one. The
// store clears the must-change flag alongside the new hash, and the new hash
// revokes any outstanding remember tokens.
func (s *Service) ChangePassword(ctx context.Context, username, current, next string) error {
	if len(next) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if next == current {
		return ErrPasswordUnchanged
	}
	user, err := s.findUser(ctx, username, false)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if !CheckPassword(current, user.Salt, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	salt, err := GenerateSalt()
	if err != nil {
		return err
	}
	ok, err := s.store.UpdatePassword(ctx, username, HashPassword(next, salt), salt)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

func (s *Service) findUser(ctx context.Context, username string, fresh bool) (*records.User, error) {
	users, err := s.store.LoadUsers(ctx, fresh)
	if err != nil {
		return nil, err
	}
	return findByUsername(users, username), nil
}

// touchLastLogin stamps the login time and swallows failures: a slow or
// broken sheet must not block a valid login.
func (s *Service) touchLastLogin(ctx context.Context, username string) {
	if err := s.store.TouchLastLogin(ctx, username); err != nil {
		log.Printf("auth: update last login for %s: %v", username, err)
	}
}

func findByUsername(users []records.User, username string) *records.User {
	for i := range users {
		if users[i].Username == username {
			return &users[i]
		}
	}
	return nil
}

func isActiveSuperAdmin(u records.User) bool {
	return u.Role == RoleSuperAdmin && u.IsActive
}

func countActiveSuperAdmins(users []records.User) int {
	n := 0
	for _, u := range users {
		if isActiveSuperAdmin(u) {
			n++
		}
	}
	return n
}
