package auth

import (
	"testing"
)

func TestGeneratePassword(t *testing.T) {
	manager := NewPasswordManager()

	password, err := manager.GeneratePassword()
	if err != nil {
		t.Fatalf("Failed to generate password: %v", err)
	}

	if len(password) != 32 {
		t.Errorf("Expected 32-character password, got %d characters", len(password))
	}
	if !manager.ValidatePasswordFormat(password) {
		t.Errorf("Generated password %q failed format validation", password)
	}
}

func TestGeneratePasswordUniqueness(t *testing.T) {
	manager := NewPasswordManager()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		password, err := manager.GeneratePassword()
		if err != nil {
			t.Fatalf("Failed to generate password: %v", err)
		}
		if seen[password] {
			t.Fatalf("Duplicate password generated: %s", password)
		}
		seen[password] = true
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	manager := NewPasswordManager()

	password, err := manager.GeneratePassword()
	if err != nil {
		t.Fatalf("Failed to generate password: %v", err)
	}

	hash := manager.HashPassword(password)
	if len(hash) != 64 {
		t.Errorf("Expected 64-character SHA-256 hex digest, got %d characters", len(hash))
	}
	if hash == password {
		t.Error("Hash should not equal the password")
	}

	if !manager.VerifyPassword(password, hash) {
		t.Error("Correct password failed verification")
	}
	if manager.VerifyPassword("00000000000000000000000000000000", hash) {
		t.Error("Wrong password passed verification")
	}
	if manager.VerifyPassword("", hash) {
		t.Error("Empty password passed verification")
	}
}

func TestValidatePasswordFormat(t *testing.T) {
	manager := NewPasswordManager()

	valid := []string{
		"0123456789abcdef0123456789abcdef",
		"ffffffffffffffffffffffffffffffff",
	}
	for _, password := range valid {
		if !manager.ValidatePasswordFormat(password) {
			t.Errorf("Valid password %q rejected", password)
		}
	}

	invalid := []string{
		"",
		"0123456789abcdef",                  // too short
		"0123456789abcdef0123456789abcdef0", // too long
		"0123456789abcdeg0123456789abcdef",  // non-hex
		"12345678",                          // local master password, not a cloud one
	}
	for _, password := range invalid {
		if manager.ValidatePasswordFormat(password) {
			t.Errorf("Invalid password %q accepted", password)
		}
	}
}

func TestFormatPassword(t *testing.T) {
	manager := NewPasswordManager()

	password := "0123456789abcdef0123456789abcdef"

	if got := manager.FormatPassword(password, false); got != password {
		t.Errorf("Expected unchanged password, got %q", got)
	}

	expected := "01234567 89abcdef 01234567 89abcdef"
	if got := manager.FormatPassword(password, true); got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
}
