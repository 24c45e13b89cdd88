// Package server provides core business logic for snapfleet emergency
// access operations: base secret configuration, local master password
// generation, and the cloud emergency password lifecycle.
package server

import (
	"time"

	"github.com/snapfleet/snapfleet/pkg/database"
)

const (
	// MaxIdentifierLength bounds operator-supplied string fields.
	MaxIdentifierLength = 512

	// MaxReasonLength bounds the human-entered justification.
	MaxReasonLength = 1024

	// DefaultListLimit and MaxListLimit bound audit listing page sizes.
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// AllowedValidityMinutes is the set of accepted cloud password validity
// windows.
var AllowedValidityMinutes = []int{5, 10, 15, 30}

// Computed record states as reported by list/read projections. Active,
// Used, and Revoked are stored; Expired is derived from ExpiresAt at read
// time and never written back.
const (
	StateActive  = "active"
	StateUsed    = "used"
	StateRevoked = "revoked"
	StateExpired = "expired"
)

// ConfigureBaseSecretRequest is a request to establish or rotate the
// tenant base secret.
type ConfigureBaseSecretRequest struct {
	BaseSecret string `json:"base_secret"`
}

// BaseSecretStatus reports whether a base secret is configured and its
// audit metadata. BaseSecret is populated only when the caller explicitly
// requested the value over the privileged path.
type BaseSecretStatus struct {
	IsConfigured bool   `json:"is_configured"`
	UpdatedAt    int64  `json:"updated_at,omitempty"`
	UpdatedBy    string `json:"updated_by,omitempty"`
	BaseSecret   string `json:"base_secret,omitempty"`
}

// GenerateLocalPasswordRequest asks for an offline-verifiable local master
// password for one device. The reason is recorded for audit only; it does
// not affect derivation.
type GenerateLocalPasswordRequest struct {
	DeviceID string `json:"device_id"`
	Reason   string `json:"reason"`
}

// LocalPasswordResponse carries a freshly derived local master password.
type LocalPasswordResponse struct {
	Password    string `json:"password"`
	MACAddress  string `json:"mac_address"`
	GeneratedAt int64  `json:"generated_at"`
	GeneratedBy string `json:"generated_by"`
}

// GenerateCloudPasswordRequest asks for a server-issued, time-limited
// emergency password for one device.
type GenerateCloudPasswordRequest struct {
	DeviceID        string `json:"device_id"`
	ValidityMinutes int    `json:"validity_minutes"`
	Reason          string `json:"reason"`
}

// CloudPasswordResponse carries the one-time plaintext disclosure of a
// newly issued cloud emergency password. The plaintext is not retrievable
// again through any read path.
type CloudPasswordResponse struct {
	ID              string `json:"id"`
	Password        string `json:"password"`
	ExpiresAt       int64  `json:"expires_at"`
	ValidityMinutes int    `json:"validity_minutes"`
	IssuedBy        string `json:"issued_by"`
	IssuedAt        int64  `json:"issued_at"`
}

// ValidateCloudPasswordRequest is the device-reported validation of an
// entered emergency password.
type ValidateCloudPasswordRequest struct {
	DeviceID string `json:"device_id"`
	Password string `json:"password"`
}

// ValidateCloudPasswordResponse reports whether the presented password was
// accepted. Acceptance consumes the record (Active to Used).
type ValidateCloudPasswordResponse struct {
	Valid bool `json:"valid"`
}

// ListCloudPasswordsRequest filters the audit listing. An empty DeviceID
// lists records for all devices.
type ListCloudPasswordsRequest struct {
	DeviceID string `json:"device_id,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// CloudPasswordInfo is the audit projection of one issuance. It never
// exposes the password value or its digest.
type CloudPasswordInfo struct {
	ID              string `json:"id"`
	DeviceID        string `json:"device_id"`
	IssuedBy        string `json:"issued_by"`
	IssuedAt        int64  `json:"issued_at"`
	ValidityMinutes int    `json:"validity_minutes"`
	ExpiresAt       int64  `json:"expires_at"`
	Reason          string `json:"reason"`
	Status          string `json:"status"`
	UsedAt          int64  `json:"used_at,omitempty"`
	RevokedAt       int64  `json:"revoked_at,omitempty"`
	RevokedBy       string `json:"revoked_by,omitempty"`
}

// RevokeCloudPasswordRequest revokes a still-active, unexpired record.
type RevokeCloudPasswordRequest struct {
	ID string `json:"id"`
}

// recordState computes the effective state of a record at the given time.
// Stored terminal states win; an Active record past its expiry reads as
// Expired without any write.
func recordState(record *database.EmergencyPasswordRecord, now time.Time) string {
	switch record.Status {
	case database.StatusUsed:
		return StateUsed
	case database.StatusRevoked:
		return StateRevoked
	}
	if now.Unix() > record.ExpiresAt {
		return StateExpired
	}
	return StateActive
}

// validityAllowed reports whether minutes is one of the accepted windows.
func validityAllowed(minutes int) bool {
	for _, allowed := range AllowedValidityMinutes {
		if minutes == allowed {
			return true
		}
	}
	return false
}
