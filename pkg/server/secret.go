package server

import (
	"fmt"
	"time"

	"github.com/snapfleet/snapfleet/pkg/database"
	"github.com/snapfleet/snapfleet/pkg/masterpass"
)

// ConfigureBaseSecret establishes or rotates the tenant base secret.
//
// Secrets under the minimum length are rejected before any storage write.
// A successful write replaces the single active value; passwords derived
// under the prior value stop verifying from that point on.
func ConfigureBaseSecret(db *database.Database, newSecret, updatedBy string) error {
	if len(newSecret) < masterpass.MinSecretLength {
		return fmt.Errorf("%w: need at least %d characters, got %d",
			masterpass.ErrWeakSecret, masterpass.MinSecretLength, len(newSecret))
	}
	if len(updatedBy) > MaxIdentifierLength {
		return fmt.Errorf("updated_by too long")
	}

	if err := db.SetBaseSecret(newSecret, updatedBy, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to store base secret: %v", err)
	}

	return nil
}

// GetBaseSecretStatus reports whether a base secret is configured and who
// last changed it. The secret value itself is included only when
// includeValue is set; callers reach this with includeValue only over the
// privileged administrative path.
func GetBaseSecretStatus(db *database.Database, includeValue bool) (*BaseSecretStatus, error) {
	record, err := db.GetBaseSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to read base secret: %v", err)
	}

	if record == nil {
		return &BaseSecretStatus{IsConfigured: false}, nil
	}

	status := &BaseSecretStatus{
		IsConfigured: true,
		UpdatedAt:    record.UpdatedAt,
		UpdatedBy:    record.UpdatedBy,
	}
	if includeValue {
		status.BaseSecret = record.Value
	}

	return status, nil
}
