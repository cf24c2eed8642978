package database

import (
	"context"
	"fmt"
	"strings"

	"studiobook/internal/models"
)

// ListClients aggregates package balances per client. search matches name,
// email or phone, case-insensitively.
func (db *DB) ListClients(ctx context.Context, search, today string) ([]*models.ClientSummary, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(search)) + "%"

	query := `SELECT c.id, c.display_name, c.email, c.phone,
	                 COUNT(p.id),
	                 COALESCE(SUM(p.classes_remaining), 0)
	          FROM identities c
	          LEFT JOIN packages p ON p.client_id = c.id
	                AND p.active = 1 AND p.classes_remaining > 0 AND p.expires_at >= ?
	          WHERE c.role = 'client'
	            AND (LOWER(c.display_name) LIKE ? OR LOWER(c.email) LIKE ? OR c.phone LIKE ?)
	          GROUP BY c.id
	          ORDER BY c.display_name ASC, c.id ASC`
	rows, err := db.QueryContext(ctx, query, today, pattern, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	clients := make([]*models.ClientSummary, 0)
	for rows.Next() {
		var c models.ClientSummary
		if err := rows.Scan(&c.ID, &c.DisplayName, &c.Email, &c.Phone, &c.ActivePackages, &c.ClassesAvailable); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, &c)
	}
	return clients, rows.Err()
}
