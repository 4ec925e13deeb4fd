// internal/store/inspections.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pcots-notifications/internal/models"
)

// InspectionStore reads inspection rows for the reminder sweep.
type InspectionStore struct {
	db *sql.DB
}

func NewInspectionStore(db *sql.DB) *InspectionStore {
	return &InspectionStore{db: db}
}

// ScheduledWithin returns SCHEDULED inspections whose date falls between now
// and now plus the window, both inclusive.
func (s *InspectionStore) ScheduledWithin(ctx context.Context, now time.Time, window time.Duration) ([]models.Inspection, error) {
	query := `SELECT id, permit_id, company_id, COALESCE(inspector_id, ''), status, scheduled_date
		FROM inspections
		WHERE status = $1 AND scheduled_date >= $2 AND scheduled_date <= $3
		ORDER BY scheduled_date ASC`

	rows, err := s.db.QueryContext(ctx, query, models.InspectionStatusScheduled, now, now.Add(window))
	if err != nil {
		return nil, fmt.Errorf("query scheduled inspections: %w", err)
	}
	defer rows.Close()

	var inspections []models.Inspection
	for rows.Next() {
		var in models.Inspection
		if err := rows.Scan(&in.ID, &in.PermitID, &in.CompanyID, &in.InspectorID, &in.Status, &in.ScheduledDate); err != nil {
			return nil, fmt.Errorf("scan inspection: %w", err)
		}
		inspections = append(inspections, in)
	}
	return inspections, rows.Err()
}
