package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"salonbook/internal/models"
)

const waitlistColumns = `id, requested_date, time_period, service_name,
	status, provider_id, client_name, client_phone, created_at, updated_at`

func scanWaitlist(row appointmentScanner) (*models.WaitlistEntry, error) {
	var w models.WaitlistEntry
	err := row.Scan(
		&w.ID, &w.RequestedDate, &w.TimePeriod, &w.ServiceName,
		&w.Status, &w.ProviderID, &w.ClientName, &w.ClientPhone,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateWaitlistEntry registers a client waiting for an opening.
func (db *DB) CreateWaitlistEntry(ctx context.Context, w *models.WaitlistEntry) error {
	if w.TimePeriod == "" {
		w.TimePeriod = models.PeriodAny
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO waitlist (
			requested_date, time_period, service_name, status,
			provider_id, client_name, client_phone
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.RequestedDate, w.TimePeriod, w.ServiceName, models.WaitlistWaiting,
		w.ProviderID, w.ClientName, w.ClientPhone,
	)
	if err != nil {
		return fmt.Errorf("create waitlist entry: %w", err)
	}
	w.ID, _ = res.LastInsertId()
	w.Status = models.WaitlistWaiting
	return nil
}

// WaitingEntriesForDate returns entries still waiting for a specific date.
func (db *DB) WaitingEntriesForDate(ctx context.Context, date string) ([]models.WaitlistEntry, error) {
	return db.queryWaitlist(ctx,
		"SELECT "+waitlistColumns+` FROM waitlist
		WHERE requested_date = ? AND status = ? ORDER BY created_at`,
		date, models.WaitlistWaiting)
}

// WaitingEntriesFromDate returns entries still waiting for any date on or
// after the given one; the hours-change trigger filters by weekday.
func (db *DB) WaitingEntriesFromDate(ctx context.Context, fromDate string) ([]models.WaitlistEntry, error) {
	return db.queryWaitlist(ctx,
		"SELECT "+waitlistColumns+` FROM waitlist
		WHERE requested_date >= ? AND status = ? ORDER BY requested_date, created_at`,
		fromDate, models.WaitlistWaiting)
}

func (db *DB) queryWaitlist(ctx context.Context, query string, args ...interface{}) ([]models.WaitlistEntry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query waitlist: %w", err)
	}
	defer rows.Close()

	var entries []models.WaitlistEntry
	for rows.Next() {
		w, err := scanWaitlist(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *w)
	}
	return entries, rows.Err()
}

// MarkContacted atomically transitions an entry waiting -> contacted.
// Returns false when the entry was already past waiting, which is the
// guard that keeps a client from being notified twice.
func (db *DB) MarkContacted(ctx context.Context, id int64) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE waitlist SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.WaitlistContacted, time.Now(), id, models.WaitlistWaiting,
	)
	if err != nil {
		return false, fmt.Errorf("mark contacted: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateWaitlistStatus sets a terminal status (booked/cancelled) on an entry.
func (db *DB) UpdateWaitlistStatus(ctx context.Context, id int64, status string) error {
	res, err := db.ExecContext(ctx,
		"UPDATE waitlist SET status = ?, updated_at = ? WHERE id = ?",
		status, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("update waitlist status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetWaitlistEntry returns an entry by id.
func (db *DB) GetWaitlistEntry(ctx context.Context, id int64) (*models.WaitlistEntry, error) {
	w, err := scanWaitlist(db.QueryRowContext(ctx,
		"SELECT "+waitlistColumns+" FROM waitlist WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get waitlist entry: %w", err)
	}
	return w, nil
}
