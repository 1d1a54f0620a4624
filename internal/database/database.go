package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"jpjgate/internal/migrations"
	"jpjgate/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// Database is the durable message log plus the vehicle violation summaries
// this subsystem maintains. Message rows are never deleted by the core;
// retention cleanup is an explicit, operator-scheduled operation.
type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema, err := migrations.GetInitialSchema()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	enc, err := newEncryptor()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: enc}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// SaveMessage inserts a message row. The message_sid unique constraint is the
// dedup barrier for at-least-once webhook delivery: a duplicate insert is
// ignored and the existing row's id is returned with created=false.
func (d *Database) SaveMessage(ctx context.Context, msg *models.SmsMessage) (created bool, err error) {
	encSID, err := d.encryptor.EncryptForLookup(msg.ProviderMessageID)
	if err != nil {
		return false, fmt.Errorf("failed to encrypt message id: %w", err)
	}

	var encPlate *string
	if msg.PlateNumber != nil {
		p, err := d.encryptor.EncryptForLookup(*msg.PlateNumber)
		if err != nil {
			return false, fmt.Errorf("failed to encrypt plate number: %w", err)
		}
		encPlate = &p
	}

	encFrom, err := d.encryptor.Encrypt(msg.FromNumber)
	if err != nil {
		return false, fmt.Errorf("failed to encrypt from number: %w", err)
	}
	encTo, err := d.encryptor.Encrypt(msg.ToNumber)
	if err != nil {
		return false, fmt.Errorf("failed to encrypt to number: %w", err)
	}
	encBody, err := d.encryptor.Encrypt(msg.Body)
	if err != nil {
		return false, fmt.Errorf("failed to encrypt body: %w", err)
	}

	encParsed, err := d.marshalParsedData(msg.ParsedData)
	if err != nil {
		return false, err
	}

	query := `
		INSERT OR IGNORE INTO sms_messages (
			vehicle_id, plate_number, message_sid, from_number, to_number,
			direction, message_body, message_type, status, parsed_data,
			received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := d.db.ExecContext(ctx, query,
		msg.VehicleID,
		encPlate,
		encSID,
		encFrom,
		encTo,
		msg.Direction,
		encBody,
		msg.MessageType,
		msg.Status,
		encParsed,
		msg.ReceivedAt,
		msg.ProcessedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to save message: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		existing, err := d.GetMessageByProviderID(ctx, msg.ProviderMessageID)
		if err != nil {
			return false, err
		}
		if existing == nil {
			return false, fmt.Errorf("duplicate insert but existing row not found: %s", msg.ProviderMessageID)
		}
		msg.ID = existing.ID
		return false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get insert id: %w", err)
	}
	msg.ID = id
	return true, nil
}

// GetMessageByProviderID looks up a message by its provider message id, the
// natural key used for delivery-notification correlation. Returns nil when no
// row matches.
func (d *Database) GetMessageByProviderID(ctx context.Context, providerID string) (*models.SmsMessage, error) {
	encSID, err := d.encryptor.EncryptForLookup(providerID)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt message id: %w", err)
	}

	query := `
		SELECT id, vehicle_id, plate_number, message_sid, from_number, to_number,
		       direction, message_body, message_type, status, parsed_data,
		       received_at, processed_at, created_at, updated_at
		FROM sms_messages
		WHERE message_sid = ?
	`

	msg, err := d.scanMessage(d.db.QueryRowContext(ctx, query, encSID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// GetMessagesByPlate returns messages for a plate, newest first.
func (d *Database) GetMessagesByPlate(ctx context.Context, plateNumber string) ([]*models.SmsMessage, error) {
	encPlate, err := d.encryptor.EncryptForLookup(plateNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt plate number: %w", err)
	}

	query := `
		SELECT id, vehicle_id, plate_number, message_sid, from_number, to_number,
		       direction, message_body, message_type, status, parsed_data,
		       received_at, processed_at, created_at, updated_at
		FROM sms_messages
		WHERE plate_number = ?
		ORDER BY received_at DESC
	`

	rows, err := d.db.QueryContext(ctx, query, encPlate)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.SmsMessage
	for rows.Next() {
		msg, err := d.scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// UpdateMessageStatus transitions a message's status, stamping processed_at.
func (d *Database) UpdateMessageStatus(ctx context.Context, id int64, status models.MessageStatus) error {
	query := `
		UPDATE sms_messages
		SET status = ?, processed_at = ?
		WHERE id = ?
	`

	result, err := d.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no message found with id %d", id)
	}
	return nil
}

// UpdateMessageDelivery merges delivery metadata and the mapped status into a
// message row. Safe to re-apply for repeated delivery notifications.
func (d *Database) UpdateMessageDelivery(ctx context.Context, id int64, status models.MessageStatus, parsed *models.ParsedViolationData) error {
	encParsed, err := d.marshalParsedData(parsed)
	if err != nil {
		return err
	}

	query := `
		UPDATE sms_messages
		SET status = ?, parsed_data = ?, processed_at = ?
		WHERE id = ?
	`

	result, err := d.db.ExecContext(ctx, query, status, encParsed, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update delivery status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no message found with id %d", id)
	}
	return nil
}

// Vehicle operations

// SaveVehicle inserts or replaces a vehicle record keyed by plate number.
func (d *Database) SaveVehicle(ctx context.Context, v *models.Vehicle) error {
	encPlate, err := d.encryptor.EncryptForLookup(v.PlateNumber)
	if err != nil {
		return fmt.Errorf("failed to encrypt plate number: %w", err)
	}

	violations, err := json.Marshal(v.TrafficViolations)
	if err != nil {
		return fmt.Errorf("failed to marshal violations: %w", err)
	}

	query := `
		INSERT INTO vehicles (
			plate_number, make, model, traffic_violations, violations_last_checked,
			total_violations_count, total_fines_amount, has_pending_violations
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plate_number) DO UPDATE SET
			make = excluded.make,
			model = excluded.model
	`

	result, err := d.db.ExecContext(ctx, query,
		encPlate, v.Make, v.Model, string(violations), v.ViolationsLastChecked,
		v.TotalViolationsCount, v.TotalFinesAmount, v.HasPendingViolations)
	if err != nil {
		return fmt.Errorf("failed to save vehicle: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil && id != 0 {
		v.ID = id
	}
	return nil
}

// GetVehicleByPlate returns the vehicle with the given plate, or nil when no
// vehicle matches. A miss is an expected outcome, not an error.
func (d *Database) GetVehicleByPlate(ctx context.Context, plateNumber string) (*models.Vehicle, error) {
	encPlate, err := d.encryptor.EncryptForLookup(plateNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt plate number: %w", err)
	}

	query := `
		SELECT id, plate_number, make, model, traffic_violations,
		       violations_last_checked, total_violations_count,
		       total_fines_amount, has_pending_violations
		FROM vehicles
		WHERE plate_number = ?
	`

	var v models.Vehicle
	var encStoredPlate string
	var violationsJSON sql.NullString

	err = d.db.QueryRowContext(ctx, query, encPlate).Scan(
		&v.ID,
		&encStoredPlate,
		&v.Make,
		&v.Model,
		&violationsJSON,
		&v.ViolationsLastChecked,
		&v.TotalViolationsCount,
		&v.TotalFinesAmount,
		&v.HasPendingViolations,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}

	v.PlateNumber, err = d.encryptor.Decrypt(encStoredPlate)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt plate number: %w", err)
	}

	if violationsJSON.Valid && violationsJSON.String != "" {
		if err := json.Unmarshal([]byte(violationsJSON.String), &v.TrafficViolations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal violations: %w", err)
		}
	}

	return &v, nil
}

// UpdateVehicleViolations replaces a vehicle's violation summary with the
// latest parse result.
func (d *Database) UpdateVehicleViolations(ctx context.Context, vehicleID int64, parsed *models.ParsedViolationData) error {
	violations, err := json.Marshal(parsed.Violations)
	if err != nil {
		return fmt.Errorf("failed to marshal violations: %w", err)
	}

	query := `
		UPDATE vehicles
		SET traffic_violations = ?,
		    violations_last_checked = ?,
		    total_violations_count = ?,
		    total_fines_amount = ?,
		    has_pending_violations = ?
		WHERE id = ?
	`

	result, err := d.db.ExecContext(ctx, query,
		string(violations),
		time.Now().UTC(),
		len(parsed.Violations),
		parsed.TotalFinesAmount,
		parsed.HasPendingViolations,
		vehicleID,
	)
	if err != nil {
		return fmt.Errorf("failed to update vehicle violations: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no vehicle found with id %d", vehicleID)
	}
	return nil
}

// CleanupOldMessages removes message rows past the retention window.
func (d *Database) CleanupOldMessages(retentionDays int) error {
	query := `
		DELETE FROM sms_messages
		WHERE created_at < datetime('now', '-' || ? || ' days')
	`

	if _, err := d.db.Exec(query, retentionDays); err != nil {
		return fmt.Errorf("failed to cleanup old messages: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (d *Database) scanMessage(row rowScanner) (*models.SmsMessage, error) {
	msg := &models.SmsMessage{}
	var encPlate sql.NullString
	var encSID, encFrom, encTo, encBody string
	var encParsed sql.NullString

	err := row.Scan(
		&msg.ID,
		&msg.VehicleID,
		&encPlate,
		&encSID,
		&encFrom,
		&encTo,
		&msg.Direction,
		&encBody,
		&msg.MessageType,
		&msg.Status,
		&encParsed,
		&msg.ReceivedAt,
		&msg.ProcessedAt,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if msg.ProviderMessageID, err = d.encryptor.Decrypt(encSID); err != nil {
		return nil, fmt.Errorf("failed to decrypt message id: %w", err)
	}
	if msg.FromNumber, err = d.encryptor.Decrypt(encFrom); err != nil {
		return nil, fmt.Errorf("failed to decrypt from number: %w", err)
	}
	if msg.ToNumber, err = d.encryptor.Decrypt(encTo); err != nil {
		return nil, fmt.Errorf("failed to decrypt to number: %w", err)
	}
	if msg.Body, err = d.encryptor.Decrypt(encBody); err != nil {
		return nil, fmt.Errorf("failed to decrypt body: %w", err)
	}

	if encPlate.Valid {
		plate, err := d.encryptor.Decrypt(encPlate.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt plate number: %w", err)
		}
		msg.PlateNumber = &plate
	}

	if encParsed.Valid && encParsed.String != "" {
		raw, err := d.encryptor.Decrypt(encParsed.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt parsed data: %w", err)
		}
		var parsed models.ParsedViolationData
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return nil, fmt.Errorf("failed to unmarshal parsed data: %w", err)
		}
		msg.ParsedData = &parsed
	}

	return msg, nil
}

func (d *Database) marshalParsedData(parsed *models.ParsedViolationData) (*string, error) {
	if parsed == nil {
		return nil, nil
	}
	raw, err := json.Marshal(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parsed data: %w", err)
	}
	enc, err := d.encryptor.Encrypt(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt parsed data: %w", err)
	}
	return &enc, nil
}
