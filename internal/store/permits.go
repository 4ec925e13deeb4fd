// internal/store/permits.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pcots-notifications/internal/models"
)

// PermitStore reads permit rows for the expiry sweep.
type PermitStore struct {
	db *sql.DB
}

func NewPermitStore(db *sql.DB) *PermitStore {
	return &PermitStore{db: db}
}

// ExpiringWithin returns APPROVED permits whose expiry date falls between
// now and now plus the window, both inclusive.
func (s *PermitStore) ExpiringWithin(ctx context.Context, now time.Time, window time.Duration) ([]models.Permit, error) {
	query := `SELECT id, company_id, type, status, expiry_date
		FROM permits
		WHERE status = $1 AND expiry_date >= $2 AND expiry_date <= $3
		ORDER BY expiry_date ASC`

	rows, err := s.db.QueryContext(ctx, query, models.PermitStatusApproved, now, now.Add(window))
	if err != nil {
		return nil, fmt.Errorf("query expiring permits: %w", err)
	}
	defer rows.Close()

	var permits []models.Permit
	for rows.Next() {
		var p models.Permit
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Type, &p.Status, &p.ExpiryDate); err != nil {
			return nil, fmt.Errorf("scan permit: %w", err)
		}
		permits = append(permits, p)
	}
	return permits, rows.Err()
}
