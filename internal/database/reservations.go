package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"studiobook/internal/domain"
	"studiobook/internal/models"
)

const reservationColumns = `r.id, r.client_id, r.slot_id, r.package_id, r.status, r.attended,
	r.created_at, r.updated_at, r.version`

const detailColumns = reservationColumns + `, s.date, s.start_time, s.end_time,
	c.display_name, c.phone, c.email`

const detailFrom = ` FROM reservations r
	JOIN class_slots s ON s.id = r.slot_id
	JOIN identities c ON c.id = r.client_id `

func scanReservation(row scanner, extra ...any) (*models.Reservation, error) {
	var r models.Reservation
	var attended sql.NullBool
	dest := []any{
		&r.ID, &r.ClientID, &r.SlotID, &r.PackageID, &r.Status, &attended,
		&r.CreatedAt, &r.UpdatedAt, &r.Version,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	r.Attended = nullBool(attended)
	return &r, nil
}

func scanReservationDetail(row scanner) (*models.ReservationDetail, error) {
	var d models.ReservationDetail
	r, err := scanReservation(row,
		&d.SlotDate, &d.StartTime, &d.EndTime, &d.ClientName, &d.ClientPhone, &d.ClientEmail)
	if err != nil {
		return nil, err
	}
	d.Reservation = *r
	return &d, nil
}

func (db *DB) queryReservationDetails(ctx context.Context, q queryer, where string, args ...any) ([]models.ReservationDetail, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+detailColumns+detailFrom+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservations: %w", err)
	}
	defer rows.Close()

	details := make([]models.ReservationDetail, 0)
	for rows.Next() {
		d, err := scanReservationDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		details = append(details, *d)
	}
	return details, rows.Err()
}

func getReservation(ctx context.Context, q queryer, id int64) (*models.Reservation, error) {
	r, err := scanReservation(q.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations r WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

// CreateReservation books slotID for clientID in one transaction. The seat
// and the package class are taken with conditional updates, so concurrent
// callers can never push a slot past its capacity or a package below zero.
// packageID 0 picks the earliest-expiring eligible package.
func (db *DB) CreateReservation(ctx context.Context, clientID, slotID, packageID int64, today string) (*models.ReservationResult, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE client_id = ? AND slot_id = ? AND status = 'confirmed'`,
		clientID, slotID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check duplicate reservation: %w", err)
	}
	if exists > 0 {
		return nil, domain.ErrDuplicateReservation
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE class_slots SET capacity_current = capacity_current + 1
		 WHERE id = ? AND capacity_current < capacity_max`, slotID)
	if err != nil {
		return nil, fmt.Errorf("failed to take seat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := getSlot(ctx, tx, slotID); err != nil {
			return nil, err
		}
		return nil, domain.ErrSlotFull
	}

	if packageID == 0 {
		pkg, err := eligiblePackage(ctx, tx, clientID, today)
		if err != nil {
			return nil, err
		}
		packageID = pkg.ID
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE packages SET classes_remaining = classes_remaining - 1
		 WHERE id = ? AND client_id = ? AND active = 1 AND classes_remaining > 0 AND expires_at >= ?`,
		packageID, clientID, today)
	if err != nil {
		return nil, fmt.Errorf("failed to consume package class: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.ErrNoEligiblePackage
	}

	now := time.Now()
	res, err = tx.ExecContext(ctx,
		`INSERT INTO reservations (client_id, slot_id, package_id, status, created_at, updated_at, version)
		 VALUES (?, ?, ?, ?, ?, ?, 1)`,
		clientID, slotID, packageID, models.ReservationConfirmed, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateReservation
		}
		return nil, fmt.Errorf("failed to create reservation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	result, err := reservationResult(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reservation: %w", err)
	}

	db.logger.Debug().
		Int64("reservation_id", id).
		Int64("slot_id", slotID).
		Int64("package_id", packageID).
		Msg("reservation created")
	return result, nil
}

// CancelReservation releases the seat and refunds the class to its package.
func (db *DB) CancelReservation(ctx context.Context, clientID, reservationID int64) (*models.ReservationResult, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := getReservation(ctx, tx, reservationID)
	if err != nil {
		return nil, err
	}
	if current.ClientID != clientID {
		return nil, domain.ErrReservationNotFound
	}
	if current.Status == models.ReservationCancelled {
		return nil, domain.ErrReservationCancelled
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = ?, version = version + 1
		 WHERE id = ? AND version = ? AND status = 'confirmed'`,
		models.ReservationCancelled, time.Now(), reservationID, current.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel reservation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, domain.ErrConcurrentModification
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE class_slots SET capacity_current = capacity_current - 1
		 WHERE id = ? AND capacity_current > 0`, current.SlotID); err != nil {
		return nil, fmt.Errorf("failed to release seat: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE packages SET classes_remaining = classes_remaining + 1
		 WHERE id = ? AND classes_remaining < classes_total`, current.PackageID); err != nil {
		return nil, fmt.Errorf("failed to refund package class: %w", err)
	}

	result, err := reservationResult(ctx, tx, reservationID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}
	return result, nil
}

func reservationResult(ctx context.Context, q queryer, id int64) (*models.ReservationResult, error) {
	r, err := getReservation(ctx, q, id)
	if err != nil {
		return nil, err
	}
	slot, err := getSlot(ctx, q, r.SlotID)
	if err != nil {
		return nil, err
	}

	var remaining int
	if err := q.QueryRowContext(ctx,
		`SELECT classes_remaining FROM packages WHERE id = ?`, r.PackageID).Scan(&remaining); err != nil {
		return nil, fmt.Errorf("failed to read package balance: %w", err)
	}

	return &models.ReservationResult{Reservation: *r, Slot: *slot, ClassesRemaining: remaining}, nil
}

func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	return getReservation(ctx, db, id)
}

func (db *DB) GetReservationDetail(ctx context.Context, id int64) (*models.ReservationDetail, error) {
	d, err := scanReservationDetail(db.QueryRowContext(ctx,
		`SELECT `+detailColumns+detailFrom+`WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation detail: %w", err)
	}
	return d, nil
}

func (db *DB) GetClientReservations(ctx context.Context, clientID int64) ([]*models.ReservationDetail, error) {
	details, err := db.queryReservationDetails(ctx, db,
		`WHERE r.client_id = ? ORDER BY s.date DESC, s.start_time DESC, r.id DESC`, clientID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.ReservationDetail, len(details))
	for i := range details {
		out[i] = &details[i]
	}
	return out, nil
}
