package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"studiobook/internal/domain"
	"studiobook/internal/models"
)

const identityColumns = `id, email, display_name, phone, role, password_hash, created_at`

func scanIdentity(row scanner) (*models.Identity, error) {
	var id models.Identity
	var role string
	if err := row.Scan(&id.ID, &id.Email, &id.DisplayName, &id.Phone, &role, &id.PasswordHash, &id.CreatedAt); err != nil {
		return nil, err
	}
	id.Role = models.Role(role)
	return &id, nil
}

func (db *DB) CreateIdentity(ctx context.Context, identity *models.Identity) error {
	if _, ok := models.ParseRole(string(identity.Role)); !ok {
		return domain.Validationf("unknown role %q", identity.Role)
	}
	identity.Email = strings.TrimSpace(identity.Email)
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now()
	}

	query := `INSERT INTO identities (email, display_name, phone, role, password_hash, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		identity.Email,
		identity.DisplayName,
		identity.Phone,
		string(identity.Role),
		identity.PasswordHash,
		identity.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email %s is already registered", domain.ErrConflict, identity.Email)
		}
		return fmt.Errorf("failed to create identity: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	identity.ID = id
	return nil
}

// UpsertIdentity creates the identity or refreshes its profile by email.
// An empty PasswordHash keeps the stored one.
func (db *DB) UpsertIdentity(ctx context.Context, identity *models.Identity) error {
	existing, err := db.GetIdentityByEmail(ctx, identity.Email)
	if errors.Is(err, domain.ErrIdentityNotFound) {
		return db.CreateIdentity(ctx, identity)
	}
	if err != nil {
		return err
	}

	hash := identity.PasswordHash
	if hash == "" {
		hash = existing.PasswordHash
	}
	_, err = db.ExecContext(ctx,
		`UPDATE identities SET display_name = ?, phone = ?, role = ?, password_hash = ? WHERE id = ?`,
		identity.DisplayName, identity.Phone, string(identity.Role), hash, existing.ID)
	if err != nil {
		return fmt.Errorf("failed to update identity: %w", err)
	}
	identity.ID = existing.ID
	identity.PasswordHash = hash
	identity.CreatedAt = existing.CreatedAt
	return nil
}

func (db *DB) GetIdentityByEmail(ctx context.Context, email string) (*models.Identity, error) {
	identity, err := scanIdentity(db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE email = ?`, strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return identity, nil
}

func (db *DB) GetIdentityByID(ctx context.Context, id int64) (*models.Identity, error) {
	identity, err := scanIdentity(db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return identity, nil
}
