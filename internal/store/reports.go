// internal/store/reports.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pcots-notifications/internal/models"
)

// ReportStore reads local-content performance report rows for the due sweep.
type ReportStore struct {
	db *sql.DB
}

func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db}
}

// DueWithin returns unsubmitted reports whose due date falls between now and
// now plus the window, both inclusive.
func (s *ReportStore) DueWithin(ctx context.Context, now time.Time, window time.Duration) ([]models.LcPerformanceReport, error) {
	query := `SELECT id, company_id, period, due_date, submitted
		FROM lc_performance_reports
		WHERE submitted = false AND due_date >= $1 AND due_date <= $2
		ORDER BY due_date ASC`

	rows, err := s.db.QueryContext(ctx, query, now, now.Add(window))
	if err != nil {
		return nil, fmt.Errorf("query due reports: %w", err)
	}
	defer rows.Close()

	var reports []models.LcPerformanceReport
	for rows.Next() {
		var r models.LcPerformanceReport
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.Period, &r.DueDate, &r.Submitted); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}
