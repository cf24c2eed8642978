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

const slotColumns = `s.id, s.date, s.start_time, s.end_time, s.capacity_max, s.capacity_current,
	s.instructor_id, COALESCE(i.display_name, '')`

const slotFrom = ` FROM class_slots s LEFT JOIN identities i ON i.id = s.instructor_id`

func scanSlot(row scanner, extra ...any) (*models.ClassSlot, error) {
	var slot models.ClassSlot
	var instructorID sql.NullInt64
	dest := []any{
		&slot.ID, &slot.Date, &slot.StartTime, &slot.EndTime,
		&slot.CapacityMax, &slot.CapacityCurrent, &instructorID, &slot.InstructorName,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	slot.InstructorID = nullInt(instructorID)
	slot.Refresh()
	return &slot, nil
}

func getSlot(ctx context.Context, q queryer, id int64) (*models.ClassSlot, error) {
	slot, err := scanSlot(q.QueryRowContext(ctx, `SELECT `+slotColumns+slotFrom+` WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return slot, nil
}

func (db *DB) GetSlot(ctx context.Context, id int64) (*models.ClassSlot, error) {
	return getSlot(ctx, db, id)
}

func (db *DB) CreateSlot(ctx context.Context, slot *models.ClassSlot) error {
	if _, err := time.Parse(models.DateLayout, slot.Date); err != nil {
		return domain.Validationf("invalid slot date %q", slot.Date)
	}
	query := `INSERT INTO class_slots (date, start_time, end_time, capacity_max, capacity_current, instructor_id, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		slot.Date,
		slot.StartTime,
		slot.EndTime,
		slot.CapacityMax,
		slot.CapacityCurrent,
		optionalID(slot.InstructorID),
		time.Now(),
	)
	if err != nil {
		if isCheckViolation(err) {
			return domain.Validationf("slot capacity is invalid")
		}
		return fmt.Errorf("failed to create slot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	slot.ID = id
	slot.Refresh()
	return nil
}

// FindSlot looks a slot up by its natural key; instructorID 0 matches unassigned slots.
func (db *DB) FindSlot(ctx context.Context, date, startTime string, instructorID int64) (*models.ClassSlot, error) {
	query := `SELECT ` + slotColumns + slotFrom + `
	          WHERE s.date = ? AND s.start_time = ? AND COALESCE(s.instructor_id, 0) = ?`
	slot, err := scanSlot(db.QueryRowContext(ctx, query, date, startTime, instructorID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find slot: %w", err)
	}
	return slot, nil
}

func (db *DB) GetSlotsByDate(ctx context.Context, date string) ([]*models.ClassSlot, error) {
	return db.GetSlotsInRange(ctx, date, date)
}

func (db *DB) GetSlotsInRange(ctx context.Context, from, to string) ([]*models.ClassSlot, error) {
	query := `SELECT ` + slotColumns + slotFrom + `
	          WHERE s.date >= ? AND s.date <= ?
	          ORDER BY s.date ASC, s.start_time ASC, s.id ASC`
	rows, err := db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get slots: %w", err)
	}
	defer rows.Close()

	slots := make([]*models.ClassSlot, 0)
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// GetInstructorCalendar lists slots with their confirmed count. instructorID 0 lists every slot.
func (db *DB) GetInstructorCalendar(ctx context.Context, instructorID int64, from, to string) ([]models.CalendarSlot, error) {
	query := `SELECT ` + slotColumns + `,
	                 (SELECT COUNT(*) FROM reservations r WHERE r.slot_id = s.id AND r.status = 'confirmed')` + slotFrom + `
	          WHERE s.date >= ? AND s.date <= ? AND (? = 0 OR s.instructor_id = ?)
	          ORDER BY s.date ASC, s.start_time ASC, s.id ASC`
	rows, err := db.QueryContext(ctx, query, from, to, instructorID, instructorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get instructor calendar: %w", err)
	}
	defer rows.Close()

	calendar := make([]models.CalendarSlot, 0)
	for rows.Next() {
		var confirmed int
		slot, err := scanSlot(rows, &confirmed)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calendar slot: %w", err)
		}
		calendar = append(calendar, models.NewCalendarSlot(*slot, confirmed))
	}
	return calendar, rows.Err()
}

func (db *DB) GetSlotRoster(ctx context.Context, slotID int64) (*models.SlotRoster, error) {
	slot, err := db.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}

	reservations, err := db.queryReservationDetails(ctx, db,
		`WHERE r.slot_id = ? AND r.status = 'confirmed' ORDER BY c.display_name ASC, r.id ASC`, slotID)
	if err != nil {
		return nil, err
	}

	return &models.SlotRoster{Slot: *slot, Reservations: reservations}, nil
}
