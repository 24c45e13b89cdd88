// Package masterpass implements the local master password engine for
// offline emergency access to booth devices.
//
// An 8-digit password is the concatenation of a random 4-digit nonce and a
// 4-digit code computed as HMAC-SHA256(key, nonce || deviceID), where the
// key is stretched from the shared base secret and the device's canonical
// MAC address via PBKDF2. The issuing side and the device each hold the
// base secret, so the device can recompute and check the code with no
// network round-trip.
//
// The engine is stateless and side-effect-free per call; it is safe for
// concurrent use without locking.
package masterpass

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// MinSecretLength is the minimum accepted base secret length.
	MinSecretLength = 32

	// PasswordLength is the total length of a local master password
	// (4-digit nonce followed by 4-digit code).
	PasswordLength = 8

	nonceDigits = 4
	codeSpace   = 10000
	keyLength   = 32
)

// ErrWeakSecret indicates a base secret below the minimum length. Short
// secrets are rejected outright, never padded or truncated.
var ErrWeakSecret = errors.New("base secret too weak")

// Params holds the protocol constants for key derivation. They are fixed
// for the current protocol version; a future version would construct an
// engine with different values rather than change these.
type Params struct {
	// Salt identifies the protocol and version. Both the issuer and the
	// device verifier must use the same value.
	Salt string

	// Iterations is the PBKDF2 iteration count. Deliberately expensive to
	// slow brute-force attempts against a leaked base secret.
	Iterations int
}

// DefaultParams returns the parameters for the current protocol version.
func DefaultParams() Params {
	return Params{
		Salt:       "snapfleet-local-master-v1",
		Iterations: 100000,
	}
}

// MasterPassword is the result of one generation: the full 8-digit
// password plus its constituent parts for audit display.
type MasterPassword struct {
	Password string
	Nonce    string
	Code     string
	DeviceID string
}

// Engine derives and verifies local master passwords.
type Engine struct {
	params Params
}

// NewEngine creates an engine with the current protocol parameters.
func NewEngine() *Engine {
	return NewEngineWithParams(DefaultParams())
}

// NewEngineWithParams creates an engine with explicit protocol parameters.
func NewEngineWithParams(params Params) *Engine {
	return &Engine{params: params}
}

// Generate produces a new local master password for the given device.
//
// The base secret is length-checked and the MAC address canonicalized
// before any derivation is attempted. The returned password is the
// concatenation of a fresh random nonce and the deterministic code.
func (e *Engine) Generate(baseSecret, macAddress string) (*MasterPassword, error) {
	if len(baseSecret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d characters, got %d", ErrWeakSecret, MinSecretLength, len(baseSecret))
	}

	deviceID, err := CanonicalizeMAC(macAddress)
	if err != nil {
		return nil, err
	}

	nonce, err := randomNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %v", err)
	}

	key := e.deriveKey(baseSecret, deviceID)
	code := extractCode(key, nonce, deviceID)

	return &MasterPassword{
		Password: nonce + code,
		Nonce:    nonce,
		Code:     code,
		DeviceID: deviceID,
	}, nil
}

// Verify reports whether password is a valid local master password for the
// given base secret and device.
//
// Verify is a safe boolean predicate: malformed passwords, malformed MAC
// addresses, and weak secrets all yield false rather than an error, since
// the check typically runs on a device with no operator present to handle
// failures.
func (e *Engine) Verify(password, baseSecret, macAddress string) bool {
	if len(password) != PasswordLength || !allDigits(password) {
		return false
	}
	if len(baseSecret) < MinSecretLength {
		return false
	}

	deviceID, err := CanonicalizeMAC(macAddress)
	if err != nil {
		return false
	}

	nonce := password[:nonceDigits]
	suppliedCode := password[nonceDigits:]

	key := e.deriveKey(baseSecret, deviceID)
	expectedCode := extractCode(key, nonce, deviceID)

	return subtle.ConstantTimeCompare([]byte(suppliedCode), []byte(expectedCode)) == 1
}

// deriveKey stretches the base secret and canonical device identity into
// 256-bit HMAC key material. The derivation is deterministic: the server
// and every device must arrive at the same key independently.
func (e *Engine) deriveKey(baseSecret, deviceID string) []byte {
	return pbkdf2.Key([]byte(baseSecret+deviceID), []byte(e.params.Salt), e.params.Iterations, keyLength, sha256.New)
}

// extractCode computes the deterministic 4-digit code for a nonce and
// device. The first 4 digest bytes are read as a big-endian uint32 and
// reduced mod 10,000. The small code space is an intentional trade-off for
// a human-enterable offline password; security rests on the secrecy of the
// base secret and the device binding, not on the code width.
func extractCode(key []byte, nonce, deviceID string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(nonce + deviceID))
	digest := mac.Sum(nil)

	value := binary.BigEndian.Uint32(digest[:4]) % codeSpace
	return fmt.Sprintf("%04d", value)
}

// randomNonce produces a uniformly distributed 4-digit decimal string from
// a cryptographically secure source. Each call is independent; no nonce is
// ever retained.
func randomNonce() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
