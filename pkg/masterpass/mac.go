package masterpass

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDeviceIdentity indicates a MAC address that could not be
// normalized to the canonical form.
var ErrInvalidDeviceIdentity = errors.New("invalid device identity")

// CanonicalizeMAC normalizes a MAC address to the canonical form used as
// the device binding factor: six octets, uppercase hex, colon-separated
// (AA:BB:CC:DD:EE:FF).
//
// Colon, hyphen, and whitespace separators are accepted on input. Anything
// that does not reduce to exactly 12 hex characters is rejected, never
// silently corrected.
func CanonicalizeMAC(macAddress string) (string, error) {
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case ':', '-', ' ', '\t':
			return -1
		}
		return r
	}, macAddress)

	stripped = strings.ToUpper(stripped)

	if len(stripped) != 12 {
		return "", fmt.Errorf("%w: expected 12 hex characters, got %d", ErrInvalidDeviceIdentity, len(stripped))
	}

	for _, r := range stripped {
		if !isHexDigit(r) {
			return "", fmt.Errorf("%w: non-hex character %q", ErrInvalidDeviceIdentity, r)
		}
	}

	var b strings.Builder
	b.Grow(17)
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(stripped[i : i+2])
	}

	return b.String(), nil
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F')
}
