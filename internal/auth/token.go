package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// RememberToken mints a persistent login token bound to the user's current
// password hash. Changing the password changes the hash and so revokes every
// outstanding token.
func RememberToken(secret, username, passwordHash string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(username + ":" + passwordHash))
	return base64.RawURLEncoding.EncodeToString([]byte(username)) + "." + hex.EncodeToString(mac.Sum(nil))
}

// RememberTokenUser extracts the username a token claims to belong to. The
// claim is untrusted until CheckRememberToken passes against the stored hash.
func RememberTokenUser(token string) (string, bool) {
	head, _, ok := strings.Cut(token, ".")
	if !ok {
		return "", false
	}
	raw, err := base64.RawURLEncoding.DecodeString(head)
	if err != nil || len(raw) == 0 {
		return "", false
	}
	return string(raw), true
}

// CheckRememberToken reports whether token is currently valid for the user,
// in constant time.
func CheckRememberToken(secret, token, username, passwordHash string) bool {
	want := RememberToken(secret, username, passwordHash)
	return subtle.ConstantTimeCompare([]byte(token), []byte(want)) == 1
}
