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

const packageColumns = `id, client_id, name, classes_total, classes_remaining, purchased_at, expires_at, active`

func scanPackage(row scanner) (*models.ClassPackage, error) {
	var p models.ClassPackage
	if err := row.Scan(&p.ID, &p.ClientID, &p.Name, &p.ClassesTotal, &p.ClassesRemaining,
		&p.PurchasedAt, &p.ExpiresAt, &p.Active); err != nil {
		return nil, err
	}
	return &p, nil
}

func (db *DB) CreatePackage(ctx context.Context, p *models.ClassPackage) error {
	if _, err := time.Parse(models.DateLayout, p.ExpiresAt); err != nil {
		return domain.Validationf("invalid package expiry %q", p.ExpiresAt)
	}
	if p.PurchasedAt.IsZero() {
		p.PurchasedAt = time.Now()
	}

	query := `INSERT INTO packages (client_id, name, classes_total, classes_remaining, purchased_at, expires_at, active)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		p.ClientID, p.Name, p.ClassesTotal, p.ClassesRemaining, p.PurchasedAt, p.ExpiresAt, p.Active)
	if err != nil {
		if isCheckViolation(err) {
			return domain.Validationf("package balance is invalid")
		}
		return fmt.Errorf("failed to create package: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	return nil
}

func (db *DB) GetPackage(ctx context.Context, id int64) (*models.ClassPackage, error) {
	p, err := scanPackage(db.QueryRowContext(ctx, `SELECT `+packageColumns+` FROM packages WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get package: %w", err)
	}
	return p, nil
}

func (db *DB) GetClientPackages(ctx context.Context, clientID int64) ([]*models.ClassPackage, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+packageColumns+` FROM packages WHERE client_id = ? ORDER BY expires_at ASC, id ASC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get client packages: %w", err)
	}
	defer rows.Close()

	packages := make([]*models.ClassPackage, 0)
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		packages = append(packages, p)
	}
	return packages, rows.Err()
}

func eligiblePackage(ctx context.Context, q queryer, clientID int64, today string) (*models.ClassPackage, error) {
	query := `SELECT ` + packageColumns + ` FROM packages
	          WHERE client_id = ? AND active = 1 AND classes_remaining > 0 AND expires_at >= ?
	          ORDER BY expires_at ASC, id ASC LIMIT 1`
	p, err := scanPackage(q.QueryRowContext(ctx, query, clientID, today))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoEligiblePackage
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get eligible package: %w", err)
	}
	return p, nil
}

// GetEligiblePackage returns the earliest-expiring package that can pay for a class.
func (db *DB) GetEligiblePackage(ctx context.Context, clientID int64, today string) (*models.ClassPackage, error) {
	return eligiblePackage(ctx, db, clientID, today)
}
