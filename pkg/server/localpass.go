package server

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/snapfleet/snapfleet/pkg/database"
	"github.com/snapfleet/snapfleet/pkg/masterpass"
)

// GenerateLocalPassword derives an offline-verifiable local master
// password for a device using the configured base secret.
//
// The derivation itself performs no I/O; this operation additionally
// appends an audit event recording who requested a password for which
// device and why. The password is returned once and never stored.
func GenerateLocalPassword(db *database.Database, engine *masterpass.Engine, deviceID, reason, generatedBy string) (*LocalPasswordResponse, error) {
	if len(reason) > MaxReasonLength {
		return nil, fmt.Errorf("reason too long")
	}
	if len(generatedBy) > MaxIdentifierLength {
		return nil, fmt.Errorf("generated_by too long")
	}

	secret, err := db.GetBaseSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to read base secret: %v", err)
	}
	if secret == nil {
		return nil, ErrSecretNotConfigured
	}

	generated, err := engine.Generate(secret.Value, deviceID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	event := &database.LocalPasswordEvent{
		ID:          uuid.NewString(),
		DeviceID:    generated.DeviceID,
		Reason:      reason,
		GeneratedBy: generatedBy,
		GeneratedAt: now.Unix(),
	}
	if err := db.InsertLocalPasswordEvent(event); err != nil {
		return nil, fmt.Errorf("failed to record generation event: %v", err)
	}

	return &LocalPasswordResponse{
		Password:    generated.Password,
		MACAddress:  generated.DeviceID,
		GeneratedAt: now.Unix(),
		GeneratedBy: generatedBy,
	}, nil
}
