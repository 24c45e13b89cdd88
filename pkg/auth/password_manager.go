// Package auth provides opaque password handling for cloud emergency
// credentials.
//
// Cloud emergency passwords are server-generated 128-bit values. Only a
// SHA-256 digest is ever persisted; the plaintext is disclosed exactly
// once at issuance and validated later by digest comparison.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// PasswordManager generates and checks opaque cloud emergency passwords.
type PasswordManager struct{}

// NewPasswordManager creates a new password manager.
func NewPasswordManager() *PasswordManager {
	return &PasswordManager{}
}

// GeneratePassword generates a new 128-bit emergency password.
//
// Returns a 32-character hex string representing 128 bits of entropy.
func (m *PasswordManager) GeneratePassword() (string, error) {
	randomBytes := make([]byte, 16)
	_, err := rand.Read(randomBytes)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(randomBytes), nil
}

// HashPassword returns the hex-encoded SHA-256 digest of a password. This
// digest is what the record store persists.
func (m *PasswordManager) HashPassword(password string) string {
	hash := sha256.Sum256([]byte(password))
	return hex.EncodeToString(hash[:])
}

// VerifyPassword reports whether a presented password matches a stored
// digest. The comparison is constant-time.
func (m *PasswordManager) VerifyPassword(password, passwordHash string) bool {
	computed := m.HashPassword(password)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(passwordHash)) == 1
}

// ValidatePasswordFormat validates emergency password format.
//
// Returns true if format is valid (exactly 32 hex characters), false otherwise.
func (m *PasswordManager) ValidatePasswordFormat(password string) bool {
	if len(password) != 32 {
		return false
	}

	_, err := hex.DecodeString(password)
	return err == nil
}

// FormatPassword formats a password with optional spacing for operator
// relay over the phone.
func (m *PasswordManager) FormatPassword(password string, addSpacing bool) string {
	if !addSpacing {
		return password
	}

	// Add spaces every 8 characters for readability
	var formatted strings.Builder
	for i, char := range password {
		if i > 0 && i%8 == 0 {
			formatted.WriteRune(' ')
		}
		formatted.WriteRune(char)
	}

	return formatted.String()
}
