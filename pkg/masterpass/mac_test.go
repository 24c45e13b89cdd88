package masterpass

import (
	"errors"
	"testing"
)

func TestCanonicalizeMAC(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"AA:BB:CC:DD:EE:FF", "AA:BB:CC:DD:EE:FF"},
		{"aa:bb:cc:dd:ee:ff", "AA:BB:CC:DD:EE:FF"},
		{"AA-BB-CC-DD-EE-FF", "AA:BB:CC:DD:EE:FF"},
		{"aa-bb-cc-dd-ee-ff", "AA:BB:CC:DD:EE:FF"},
		{"AABBCCDDEEFF", "AA:BB:CC:DD:EE:FF"},
		{"aabbccddeeff", "AA:BB:CC:DD:EE:FF"},
		{"aa bb cc dd ee ff", "AA:BB:CC:DD:EE:FF"},
		{"  AABBCCDDEEFF  ", "AA:BB:CC:DD:EE:FF"},
		{"00:1a:2b:3c:4d:5e", "00:1A:2B:3C:4D:5E"},
	}

	for _, tt := range tests {
		got, err := CanonicalizeMAC(tt.input)
		if err != nil {
			t.Errorf("CanonicalizeMAC(%q) returned error: %v", tt.input, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("CanonicalizeMAC(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestCanonicalizeMACIdempotent(t *testing.T) {
	canonical, err := CanonicalizeMAC("aabbccddeeff")
	if err != nil {
		t.Fatalf("CanonicalizeMAC failed: %v", err)
	}

	again, err := CanonicalizeMAC(canonical)
	if err != nil {
		t.Fatalf("CanonicalizeMAC on canonical form failed: %v", err)
	}

	if again != canonical {
		t.Errorf("Canonicalization not idempotent: %q became %q", canonical, again)
	}
}

func TestCanonicalizeMACInvalid(t *testing.T) {
	invalid := []string{
		"",
		"AA:BB:CC:DD:EE",       // too short
		"AA:BB:CC:DD:EE:FF:00", // too long
		"GG:BB:CC:DD:EE:FF",    // non-hex
		"AABBCCDDEEF",          // 11 digits
		"AABBCCDDEEFF0",        // 13 digits
		"not a mac address",
		"AA.BB.CC.DD.EE.FF", // unsupported separator
	}

	for _, input := range invalid {
		if _, err := CanonicalizeMAC(input); err == nil {
			t.Errorf("CanonicalizeMAC(%q) should have failed", input)
		} else if !errors.Is(err, ErrInvalidDeviceIdentity) {
			t.Errorf("CanonicalizeMAC(%q) error = %v, expected ErrInvalidDeviceIdentity", input, err)
		}
	}
}
