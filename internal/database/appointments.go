package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"salonbook/internal/interval"
	"salonbook/internal/models"
)

type appointmentScanner interface {
	Scan(dest ...interface{}) error
}

func scanAppointment(row appointmentScanner) (*models.Appointment, error) {
	var a models.Appointment
	err := row.Scan(
		&a.ID, &a.UID, &a.ProviderID, &a.Date, &a.Time, &a.DurationMin,
		&a.IsAvailable, &a.Status, &a.ClientName, &a.ClientPhone, &a.ServiceName,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const appointmentColumns = `id, uid, provider_id, date, time, duration_minutes,
	is_available, status, client_name, client_phone, service_name,
	created_at, updated_at`

// ClaimSlot conditionally flips an available row to booked. Returns the
// number of rows affected: 0 means there was no available row to claim.
func (db *DB) ClaimSlot(ctx context.Context, date, slotTime string, providerID int64, durationMin int, clientName, clientPhone, serviceName string) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE appointments
		SET is_available = 0, status = ?, duration_minutes = ?,
		    client_name = ?, client_phone = ?, service_name = ?, updated_at = ?
		WHERE date = ? AND time = ? AND provider_id = ? AND is_available = 1`,
		models.StatusBooked, durationMin,
		clientName, clientPhone, serviceName, time.Now(),
		date, slotTime, providerID,
	)
	if err != nil {
		return 0, fmt.Errorf("claim slot: %w", err)
	}
	return res.RowsAffected()
}

// InsertBooked inserts a new booked row guarded by the
// (date, time, provider_id) uniqueness constraint. A violated constraint
// surfaces as ErrDuplicateKey so the caller can treat it as a lost race.
func (db *DB) InsertBooked(ctx context.Context, a *models.Appointment) error {
	if a.UID == "" {
		a.UID = uuid.NewString()
	}
	now := time.Now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO appointments (
			uid, provider_id, date, time, duration_minutes,
			is_available, status, client_name, client_phone, service_name,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?)`,
		a.UID, a.ProviderID, a.Date, a.Time, a.DurationMin,
		models.StatusBooked, a.ClientName, a.ClientPhone, a.ServiceName,
		now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert booked: %w", err)
	}
	a.ID, _ = res.LastInsertId()
	a.Status = models.StatusBooked
	return nil
}

// ReleaseSlot reverts a booked row to an available placeholder, clearing
// client fields but keeping the slot skeleton for re-offering.
func (db *DB) ReleaseSlot(ctx context.Context, id int64) (*models.Appointment, error) {
	existing, err := db.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := db.ExecContext(ctx, `
		UPDATE appointments
		SET is_available = 1, status = ?, client_name = '',
		    client_phone = '', service_name = '', updated_at = ?
		WHERE id = ? AND is_available = 0`,
		models.StatusAvailable, time.Now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("release slot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return existing, nil
}

// GetAppointment returns a row by id.
func (db *DB) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	a, err := scanAppointment(db.QueryRowContext(ctx,
		"SELECT "+appointmentColumns+" FROM appointments WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

// FindSlot returns the row at (date, time, provider), if any.
func (db *DB) FindSlot(ctx context.Context, date, slotTime string, providerID int64) (*models.Appointment, error) {
	a, err := scanAppointment(db.QueryRowContext(ctx,
		"SELECT "+appointmentColumns+` FROM appointments
		WHERE date = ? AND time = ? AND provider_id = ?`,
		date, slotTime, providerID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find slot: %w", err)
	}
	return a, nil
}

// AppointmentsForDate returns all rows for a date and provider, time-ordered.
func (db *DB) AppointmentsForDate(ctx context.Context, date string, providerID int64) ([]models.Appointment, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+appointmentColumns+` FROM appointments
		WHERE date = ? AND provider_id = ? ORDER BY time`,
		date, providerID)
	if err != nil {
		return nil, fmt.Errorf("appointments for date: %w", err)
	}
	defer rows.Close()

	var out []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// BusyIntervals returns the occupied minute ranges of booked rows for a
// date and provider, sorted ascending by start.
func (db *DB) BusyIntervals(ctx context.Context, date string, providerID int64) ([]interval.Interval, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT time, duration_minutes FROM appointments
		WHERE date = ? AND provider_id = ? AND is_available = 0 AND status = ?
		ORDER BY time`,
		date, providerID, models.StatusBooked,
	)
	if err != nil {
		return nil, fmt.Errorf("busy intervals: %w", err)
	}
	defer rows.Close()

	var busy []interval.Interval
	for rows.Next() {
		var slotTime string
		var duration int
		if err := rows.Scan(&slotTime, &duration); err != nil {
			return nil, err
		}
		start, err := interval.ParseClock(slotTime)
		if err != nil {
			// Malformed rows degrade availability rather than break reads.
			if db.logger != nil {
				db.logger.Warn().Err(err).Str("date", date).Msg("skipping malformed appointment time")
			}
			continue
		}
		busy = append(busy, interval.Interval{Start: start, End: start + duration})
	}
	return interval.Normalize(busy), rows.Err()
}

// ClientAppointmentOnDate returns a client's booked appointment on a date,
// or ErrNotFound. Used for the same-day duplicate policy.
func (db *DB) ClientAppointmentOnDate(ctx context.Context, date, clientPhone string) (*models.Appointment, error) {
	a, err := scanAppointment(db.QueryRowContext(ctx,
		"SELECT "+appointmentColumns+` FROM appointments
		WHERE date = ? AND client_phone = ? AND is_available = 0 AND status = ?
		ORDER BY time LIMIT 1`,
		date, clientPhone, models.StatusBooked))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("client appointment on date: %w", err)
	}
	return a, nil
}

// SeedAvailable upserts available placeholder rows for the given start
// times, never touching rows that already exist at the key. Returns the
// number of rows actually inserted.
func (db *DB) SeedAvailable(ctx context.Context, date string, providerID int64, durationMin int, times []string) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	var inserted int64
	for _, t := range times {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO appointments (
				uid, provider_id, date, time, duration_minutes,
				is_available, status, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?)
			ON CONFLICT(date, time, provider_id) DO NOTHING`,
			uuid.NewString(), providerID, date, t, durationMin,
			models.StatusAvailable, now, now,
		)
		if err != nil {
			return 0, fmt.Errorf("seed slot %s: %w", t, err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// CountSlots returns available/booked row counts for a date and provider.
func (db *DB) CountSlots(ctx context.Context, date string, providerID int64) (available, booked int64, err error) {
	err = db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN is_available = 1 THEN 1 END),
			COUNT(CASE WHEN is_available = 0 AND status = ? THEN 1 END)
		FROM appointments WHERE date = ? AND provider_id = ?`,
		models.StatusBooked, date, providerID,
	).Scan(&available, &booked)
	if err != nil {
		return 0, 0, fmt.Errorf("count slots: %w", err)
	}
	return available, booked, nil
}
