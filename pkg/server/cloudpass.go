package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/snapfleet/snapfleet/pkg/auth"
	"github.com/snapfleet/snapfleet/pkg/database"
	"github.com/snapfleet/snapfleet/pkg/masterpass"
)

// IssueCloudPassword creates a new Active cloud emergency password for a
// device and returns the plaintext exactly once. Only the digest is
// persisted; no read path can recover the plaintext afterwards.
func IssueCloudPassword(db *database.Database, deviceID string, validityMinutes int, reason, issuedBy string) (*CloudPasswordResponse, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	if len(reason) > MaxReasonLength {
		return nil, fmt.Errorf("reason too long")
	}
	if len(issuedBy) > MaxIdentifierLength {
		return nil, fmt.Errorf("issued_by too long")
	}
	if !validityAllowed(validityMinutes) {
		return nil, fmt.Errorf("%w: %d minutes (allowed: 5, 10, 15, 30)", ErrInvalidValidity, validityMinutes)
	}

	canonicalID, err := masterpass.CanonicalizeMAC(deviceID)
	if err != nil {
		return nil, err
	}

	manager := auth.NewPasswordManager()
	password, err := manager.GeneratePassword()
	if err != nil {
		return nil, fmt.Errorf("failed to generate password: %v", err)
	}

	now := time.Now()
	expiresAt := now.Add(time.Duration(validityMinutes) * time.Minute)

	record := &database.EmergencyPasswordRecord{
		ID:              uuid.NewString(),
		DeviceID:        canonicalID,
		PasswordHash:    manager.HashPassword(password),
		IssuedBy:        issuedBy,
		IssuedAt:        now.Unix(),
		ValidityMinutes: validityMinutes,
		ExpiresAt:       expiresAt.Unix(),
		Reason:          reason,
	}
	if err := db.InsertEmergencyPassword(record); err != nil {
		return nil, fmt.Errorf("failed to persist issuance: %v", err)
	}

	return &CloudPasswordResponse{
		ID:              record.ID,
		Password:        password,
		ExpiresAt:       record.ExpiresAt,
		ValidityMinutes: validityMinutes,
		IssuedBy:        issuedBy,
		IssuedAt:        record.IssuedAt,
	}, nil
}

// RevokeCloudPassword revokes a still-Active, unexpired record. Records
// that already reached a terminal state, or whose validity window has
// passed, are reported with the specific conflict.
func RevokeCloudPassword(db *database.Database, id, revokedBy string) error {
	record, err := db.GetEmergencyPassword(id)
	if err != nil {
		return fmt.Errorf("database lookup failed: %v", err)
	}
	if record == nil {
		return ErrNotFound
	}

	now := time.Now()
	if err := stateConflict(record, now); err != nil {
		return err
	}

	ok, err := db.RevokeEmergencyPassword(id, revokedBy, now.Unix())
	if err != nil {
		return fmt.Errorf("failed to revoke: %v", err)
	}
	if !ok {
		// Lost the terminal-transition race; re-read to report which
		// state won.
		return terminalConflict(db, id)
	}

	return nil
}

// MarkCloudPasswordUsed transitions a record to Used when the device
// reports a successful validation by record id.
func MarkCloudPasswordUsed(db *database.Database, id string) error {
	record, err := db.GetEmergencyPassword(id)
	if err != nil {
		return fmt.Errorf("database lookup failed: %v", err)
	}
	if record == nil {
		return ErrNotFound
	}

	now := time.Now()
	if err := stateConflict(record, now); err != nil {
		return err
	}

	ok, err := db.MarkEmergencyPasswordUsed(id, now.Unix())
	if err != nil {
		return fmt.Errorf("failed to mark used: %v", err)
	}
	if !ok {
		return terminalConflict(db, id)
	}

	return nil
}

// ValidateCloudPassword checks a device-presented password against the
// device's Active, unexpired records and consumes the matching record.
//
// A non-matching or malformed password yields a negative response, not an
// error; errors are reserved for storage failures.
func ValidateCloudPassword(db *database.Database, deviceID, password string) (*ValidateCloudPasswordResponse, error) {
	canonicalID, err := masterpass.CanonicalizeMAC(deviceID)
	if err != nil {
		return &ValidateCloudPasswordResponse{Valid: false}, nil
	}

	manager := auth.NewPasswordManager()
	if !manager.ValidatePasswordFormat(password) {
		return &ValidateCloudPasswordResponse{Valid: false}, nil
	}

	now := time.Now()
	records, err := db.ListActiveForDevice(canonicalID, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("database lookup failed: %v", err)
	}

	for i := range records {
		if !manager.VerifyPassword(password, records[i].PasswordHash) {
			continue
		}

		ok, err := db.MarkEmergencyPasswordUsed(records[i].ID, now.Unix())
		if err != nil {
			return nil, fmt.Errorf("failed to mark used: %v", err)
		}
		// A concurrent revoke may have won the transition; the password
		// is then no longer acceptable.
		return &ValidateCloudPasswordResponse{Valid: ok}, nil
	}

	return &ValidateCloudPasswordResponse{Valid: false}, nil
}

// ListCloudPasswords returns the audit projection of issuances, newest
// first, with the effective state computed at read time.
func ListCloudPasswords(db *database.Database, req ListCloudPasswordsRequest) ([]CloudPasswordInfo, error) {
	deviceID := req.DeviceID
	if deviceID != "" {
		canonical, err := masterpass.CanonicalizeMAC(deviceID)
		if err != nil {
			return nil, err
		}
		deviceID = canonical
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	records, err := db.ListEmergencyPasswords(deviceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list emergency passwords: %v", err)
	}

	now := time.Now()
	infos := make([]CloudPasswordInfo, len(records))
	for i := range records {
		infos[i] = CloudPasswordInfo{
			ID:              records[i].ID,
			DeviceID:        records[i].DeviceID,
			IssuedBy:        records[i].IssuedBy,
			IssuedAt:        records[i].IssuedAt,
			ValidityMinutes: records[i].ValidityMinutes,
			ExpiresAt:       records[i].ExpiresAt,
			Reason:          records[i].Reason,
			Status:          recordState(&records[i], now),
			UsedAt:          records[i].UsedAt,
			RevokedAt:       records[i].RevokedAt,
			RevokedBy:       records[i].RevokedBy,
		}
	}

	return infos, nil
}

// stateConflict maps a record's effective state to the corresponding
// lifecycle error, or nil while the record is still actionable.
func stateConflict(record *database.EmergencyPasswordRecord, now time.Time) error {
	switch recordState(record, now) {
	case StateUsed:
		return ErrAlreadyUsed
	case StateRevoked:
		return ErrAlreadyRevoked
	case StateExpired:
		return ErrAlreadyExpired
	}
	return nil
}

// terminalConflict re-reads a record after a lost compare-and-set and
// reports the terminal state that won.
func terminalConflict(db *database.Database, id string) error {
	record, err := db.GetEmergencyPassword(id)
	if err != nil {
		return fmt.Errorf("database lookup failed: %v", err)
	}
	if record == nil {
		return ErrNotFound
	}

	switch record.Status {
	case database.StatusUsed:
		return ErrAlreadyUsed
	case database.StatusRevoked:
		return ErrAlreadyRevoked
	}
	return fmt.Errorf("emergency password in unexpected state %q", record.Status)
}
