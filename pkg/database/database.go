// Package database provides SQLite-based storage for the emergency access
// credential system: the tenant base secret, cloud emergency password
// records, and the local-generation audit trail.
package database

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Emergency password record states. A record leaves StatusActive at most
// once, into exactly one of the terminal states. Expiry is computed from
// ExpiresAt at read time and is never stored as a state.
const (
	StatusActive  = "active"
	StatusUsed    = "used"
	StatusRevoked = "revoked"
)

// Database represents a connection to the snapfleet SQLite database
type Database struct {
	db   *sql.DB
	path string
}

// BaseSecretRecord is the single active base secret and its audit metadata.
type BaseSecretRecord struct {
	Value     string
	UpdatedAt int64
	UpdatedBy string
}

// EmergencyPasswordRecord represents one cloud emergency password
// issuance. Records are never deleted; terminal transitions update the
// row in place to preserve audit history.
type EmergencyPasswordRecord struct {
	ID              string
	DeviceID        string
	PasswordHash    string
	IssuedBy        string
	IssuedAt        int64
	ValidityMinutes int
	ExpiresAt       int64
	Reason          string
	Status          string
	UsedAt          int64
	RevokedAt       int64
	RevokedBy       string
}

// LocalPasswordEvent is one append-only audit entry for a local master
// password generation. The password itself is never recorded.
type LocalPasswordEvent struct {
	ID          string
	DeviceID    string
	Reason      string
	GeneratedBy string
	GeneratedAt int64
}

// NewDatabase creates a new database connection and initializes tables
func NewDatabase(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	database := &Database{
		db:   db,
		path: dbPath,
	}

	if err := database.createTablesIfNeeded(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	return database, nil
}

// dsn builds the connection string with the WAL, busy-timeout, and
// foreign-key pragmas in the DSN itself. database/sql pools connections,
// and a pragma sent through Exec configures only the one connection that
// happens to run it; every other connection would open with no busy
// timeout and surface SQLITE_BUSY on concurrent terminal transitions.
func dsn(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

// createTablesIfNeeded creates the necessary tables if they don't exist
func (d *Database) createTablesIfNeeded() error {
	tables := []struct {
		name      string
		createSQL string
	}{
		{
			"base_secret",
			`CREATE TABLE base_secret(
				id INTEGER PRIMARY KEY CHECK(id = 1),
				value TEXT NOT NULL,
				updated_at INTEGER NOT NULL,
				updated_by TEXT NOT NULL
			)`,
		},
		{
			"emergency_passwords",
			`CREATE TABLE emergency_passwords(
				id TEXT PRIMARY KEY,
				device_id TEXT NOT NULL,
				password_hash TEXT NOT NULL,
				issued_by TEXT NOT NULL,
				issued_at INTEGER NOT NULL,
				validity_minutes INTEGER NOT NULL,
				expires_at INTEGER NOT NULL,
				reason TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'active',
				used_at INTEGER NOT NULL DEFAULT 0,
				revoked_at INTEGER NOT NULL DEFAULT 0,
				revoked_by TEXT NOT NULL DEFAULT ''
			)`,
		},
		{
			"local_password_events",
			`CREATE TABLE local_password_events(
				id TEXT PRIMARY KEY,
				device_id TEXT NOT NULL,
				reason TEXT NOT NULL,
				generated_by TEXT NOT NULL,
				generated_at INTEGER NOT NULL
			)`,
		},
		{
			"server_config",
			`CREATE TABLE server_config(
				key TEXT PRIMARY KEY NOT NULL,
				value BLOB NOT NULL
			)`,
		},
	}

	for _, table := range tables {
		var tableName string
		err := d.db.QueryRow("SELECT name FROM sqlite_master WHERE name=?", table.name).Scan(&tableName)
		if err == sql.ErrNoRows {
			if _, err := d.db.Exec(table.createSQL); err != nil {
				return fmt.Errorf("failed to create %s table: %v", table.name, err)
			}
		} else if err != nil {
			return fmt.Errorf("failed to check %s table: %v", table.name, err)
		}
	}

	if _, err := d.db.Exec(
		"CREATE INDEX IF NOT EXISTS idx_emergency_passwords_device ON emergency_passwords(device_id, status, expires_at)",
	); err != nil {
		return fmt.Errorf("failed to create emergency_passwords index: %v", err)
	}

	return nil
}

// GetBaseSecret retrieves the active base secret and its audit metadata
func (d *Database) GetBaseSecret() (*BaseSecretRecord, error) {
	var record BaseSecretRecord
	err := d.db.QueryRow(
		"SELECT value, updated_at, updated_by FROM base_secret WHERE id = 1",
	).Scan(&record.Value, &record.UpdatedAt, &record.UpdatedBy)

	if err == sql.ErrNoRows {
		return nil, nil // Not configured
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get base secret: %v", err)
	}

	return &record, nil
}

// SetBaseSecret replaces the single active base secret. The value and its
// audit metadata are written in one statement, so a rotation is atomic
// with respect to who/when.
func (d *Database) SetBaseSecret(value, updatedBy string, updatedAt int64) error {
	_, err := d.db.Exec(
		"REPLACE INTO base_secret(id, value, updated_at, updated_by) VALUES(1, ?, ?, ?)",
		value, updatedAt, updatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to set base secret: %v", err)
	}
	return nil
}

// InsertEmergencyPassword inserts a new Active emergency password record
func (d *Database) InsertEmergencyPassword(record *EmergencyPasswordRecord) error {
	insertSQL := `
		INSERT INTO emergency_passwords(
			id, device_id, password_hash, issued_by, issued_at,
			validity_minutes, expires_at, reason, status
		) VALUES(?,?,?,?,?,?,?,?,?)
	`

	_, err := d.db.Exec(insertSQL,
		record.ID, record.DeviceID, record.PasswordHash, record.IssuedBy, record.IssuedAt,
		record.ValidityMinutes, record.ExpiresAt, record.Reason, StatusActive,
	)
	if err != nil {
		return fmt.Errorf("failed to insert emergency password: %v", err)
	}

	return nil
}

// GetEmergencyPassword retrieves a specific emergency password record by id
func (d *Database) GetEmergencyPassword(id string) (*EmergencyPasswordRecord, error) {
	lookupSQL := `
		SELECT id, device_id, password_hash, issued_by, issued_at,
		       validity_minutes, expires_at, reason, status, used_at, revoked_at, revoked_by
		FROM emergency_passwords
		WHERE id = ?
	`

	var record EmergencyPasswordRecord
	err := d.db.QueryRow(lookupSQL, id).Scan(
		&record.ID,
		&record.DeviceID,
		&record.PasswordHash,
		&record.IssuedBy,
		&record.IssuedAt,
		&record.ValidityMinutes,
		&record.ExpiresAt,
		&record.Reason,
		&record.Status,
		&record.UsedAt,
		&record.RevokedAt,
		&record.RevokedBy,
	)

	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup emergency password: %v", err)
	}

	return &record, nil
}

// MarkEmergencyPasswordUsed transitions a record from Active to Used.
//
// The update is a compare-and-set on the status column: it succeeds only
// if the record is still Active, so a concurrent revoke cannot be
// silently overwritten. Returns false when the record has already left
// the Active state (or does not exist); the caller re-reads to find out
// which terminal state won.
func (d *Database) MarkEmergencyPasswordUsed(id string, usedAt int64) (bool, error) {
	result, err := d.db.Exec(
		"UPDATE emergency_passwords SET status = ?, used_at = ? WHERE id = ? AND status = ?",
		StatusUsed, usedAt, id, StatusActive,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark emergency password used: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %v", err)
	}

	return rowsAffected == 1, nil
}

// RevokeEmergencyPassword transitions a record from Active to Revoked.
// Same compare-and-set discipline as MarkEmergencyPasswordUsed.
func (d *Database) RevokeEmergencyPassword(id, revokedBy string, revokedAt int64) (bool, error) {
	result, err := d.db.Exec(
		"UPDATE emergency_passwords SET status = ?, revoked_at = ?, revoked_by = ? WHERE id = ? AND status = ?",
		StatusRevoked, revokedAt, revokedBy, id, StatusActive,
	)
	if err != nil {
		return false, fmt.Errorf("failed to revoke emergency password: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %v", err)
	}

	return rowsAffected == 1, nil
}

// ListEmergencyPasswords lists emergency password records, newest first.
// An empty deviceID lists records for all devices.
func (d *Database) ListEmergencyPasswords(deviceID string, limit, offset int) ([]EmergencyPasswordRecord, error) {
	listSQL := `
		SELECT id, device_id, password_hash, issued_by, issued_at,
		       validity_minutes, expires_at, reason, status, used_at, revoked_at, revoked_by
		FROM emergency_passwords
		WHERE (? = '' OR device_id = ?)
		ORDER BY issued_at DESC, id
		LIMIT ? OFFSET ?
	`

	rows, err := d.db.Query(listSQL, deviceID, deviceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query emergency passwords: %v", err)
	}
	defer rows.Close()

	return scanEmergencyPasswordRows(rows)
}

// ListActiveForDevice lists the still-Active, unexpired records for a
// device, used when the device reports a password for validation.
func (d *Database) ListActiveForDevice(deviceID string, now int64) ([]EmergencyPasswordRecord, error) {
	listSQL := `
		SELECT id, device_id, password_hash, issued_by, issued_at,
		       validity_minutes, expires_at, reason, status, used_at, revoked_at, revoked_by
		FROM emergency_passwords
		WHERE device_id = ? AND status = ? AND expires_at > ?
		ORDER BY issued_at DESC, id
	`

	rows, err := d.db.Query(listSQL, deviceID, StatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query active emergency passwords: %v", err)
	}
	defer rows.Close()

	return scanEmergencyPasswordRows(rows)
}

func scanEmergencyPasswordRows(rows *sql.Rows) ([]EmergencyPasswordRecord, error) {
	var records []EmergencyPasswordRecord
	for rows.Next() {
		var record EmergencyPasswordRecord
		err := rows.Scan(
			&record.ID,
			&record.DeviceID,
			&record.PasswordHash,
			&record.IssuedBy,
			&record.IssuedAt,
			&record.ValidityMinutes,
			&record.ExpiresAt,
			&record.Reason,
			&record.Status,
			&record.UsedAt,
			&record.RevokedAt,
			&record.RevokedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan emergency password row: %v", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating emergency password rows: %v", err)
	}

	return records, nil
}

// InsertLocalPasswordEvent appends one local-generation audit event
func (d *Database) InsertLocalPasswordEvent(event *LocalPasswordEvent) error {
	_, err := d.db.Exec(
		"INSERT INTO local_password_events(id, device_id, reason, generated_by, generated_at) VALUES(?,?,?,?,?)",
		event.ID, event.DeviceID, event.Reason, event.GeneratedBy, event.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert local password event: %v", err)
	}
	return nil
}

// ListLocalPasswordEvents lists local-generation audit events, newest
// first. An empty deviceID lists events for all devices.
func (d *Database) ListLocalPasswordEvents(deviceID string, limit, offset int) ([]LocalPasswordEvent, error) {
	listSQL := `
		SELECT id, device_id, reason, generated_by, generated_at
		FROM local_password_events
		WHERE (? = '' OR device_id = ?)
		ORDER BY generated_at DESC, id
		LIMIT ? OFFSET ?
	`

	rows, err := d.db.Query(listSQL, deviceID, deviceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query local password events: %v", err)
	}
	defer rows.Close()

	var events []LocalPasswordEvent
	for rows.Next() {
		var event LocalPasswordEvent
		err := rows.Scan(&event.ID, &event.DeviceID, &event.Reason, &event.GeneratedBy, &event.GeneratedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan local password event row: %v", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating local password event rows: %v", err)
	}

	return events, nil
}

// GetServerConfig retrieves a configuration value from the server_config table
func (d *Database) GetServerConfig(key string) ([]byte, error) {
	var value []byte
	err := d.db.QueryRow("SELECT value FROM server_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get server config: %v", err)
	}
	return value, nil
}

// SetServerConfig sets a configuration value in the server_config table
func (d *Database) SetServerConfig(key string, value []byte) error {
	_, err := d.db.Exec("REPLACE INTO server_config(key, value) VALUES(?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("failed to set server config: %v", err)
	}
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// GetPath returns the database file path
func (d *Database) GetPath() string {
	return d.path
}
