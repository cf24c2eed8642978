package database

import (
	"context"
	"fmt"
	"time"

	"studiobook/internal/domain"
	"studiobook/internal/models"
)

// GetRecentPastClasses returns the latest limit slots dated before `before`
// that have confirmed reservations, oldest first. instructorID 0 covers
// every instructor.
func (db *DB) GetRecentPastClasses(ctx context.Context, instructorID int64, before string, limit int) ([]models.PastClass, error) {
	if limit <= 0 {
		limit = models.DefaultAttendanceHistory
	}

	query := `SELECT ` + slotColumns + `,
	                 COUNT(r.id),
	                 COUNT(r.attended)` + slotFrom + `
	          JOIN reservations r ON r.slot_id = s.id AND r.status = 'confirmed'
	          WHERE s.date < ? AND (? = 0 OR s.instructor_id = ?)
	          GROUP BY s.id
	          ORDER BY s.date DESC, s.start_time DESC, s.id DESC
	          LIMIT ?`
	rows, err := db.QueryContext(ctx, query, before, instructorID, instructorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get past classes: %w", err)
	}
	defer rows.Close()

	classes := make([]models.PastClass, 0, limit)
	for rows.Next() {
		var pc models.PastClass
		slot, err := scanSlot(rows, &pc.Confirmed, &pc.Marked)
		if err != nil {
			return nil, fmt.Errorf("failed to scan past class: %w", err)
		}
		pc.Slot = *slot
		classes = append(classes, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(classes)-1; i < j; i, j = i+1, j-1 {
		classes[i], classes[j] = classes[j], classes[i]
	}
	return classes, nil
}

// RecordAttendance writes every mark of a slot at once. marks must cover
// exactly the confirmed reservations of the slot.
func (db *DB) RecordAttendance(ctx context.Context, slotID int64, marks map[int64]bool) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := getSlot(ctx, tx, slotID); err != nil {
		return err
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM reservations WHERE slot_id = ? AND status = 'confirmed'`, slotID)
	if err != nil {
		return fmt.Errorf("failed to list reservations: %w", err)
	}
	confirmed := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan reservation id: %w", err)
		}
		confirmed[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for id := range marks {
		if _, ok := confirmed[id]; !ok {
			return domain.ErrReservationNotFound
		}
	}
	if len(confirmed) == 0 || len(marks) != len(confirmed) {
		return domain.ErrAttendanceIncomplete
	}

	now := time.Now()
	for id, attended := range marks {
		res, err := tx.ExecContext(ctx,
			`UPDATE reservations SET attended = ?, updated_at = ?, version = version + 1
			 WHERE id = ? AND status = 'confirmed'`, attended, now, id)
		if err != nil {
			return fmt.Errorf("failed to record attendance: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrConcurrentModification
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit attendance: %w", err)
	}

	db.logger.Info().Int64("slot_id", slotID).Int("marks", len(marks)).Msg("attendance recorded")
	return nil
}
