// internal/store/users.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pcots-notifications/internal/models"

	"github.com/redis/go-redis/v9"
)

// ErrUserNotFound is returned when a lookup matches no user row.
var ErrUserNotFound = errors.New("user not found")

// UserStore reads user and preference rows. Role lookups are served from a
// redis projection so sweep ticks do not rescan the users table.
type UserStore struct {
	db       *sql.DB
	redis    *redis.Client
	cacheTTL time.Duration
}

func NewUserStore(db *sql.DB, rdb *redis.Client, cacheTTL time.Duration) *UserStore {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &UserStore{db: db, redis: rdb, cacheTTL: cacheTTL}
}

const userColumns = `id, name, email, phone, role, COALESCE(company_id, '')`

// ByID returns a single user.
func (s *UserStore) ByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	var u models.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.CompanyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// ByRole returns every user holding the given role, served from the redis
// projection when fresh.
func (s *UserStore) ByRole(ctx context.Context, role string) ([]models.User, error) {
	cacheKey := "role:" + role
	if s.redis != nil {
		if val, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
			var users []models.User
			if err := json.Unmarshal([]byte(val), &users); err == nil {
				return users, nil
			}
		}
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE role = $1 ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("query users by role: %w", err)
	}
	defer rows.Close()

	users, err := scanUsers(rows)
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		if data, err := json.Marshal(users); err == nil {
			s.redis.Set(ctx, cacheKey, data, s.cacheTTL)
		}
	}

	return users, nil
}

// InvalidateRole drops the cached projection for a role. Route handlers call
// this after user mutations.
func (s *UserStore) InvalidateRole(ctx context.Context, role string) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, "role:"+role).Err()
}

// FirstAdmin resolves the system sender identity for sweep runs.
func (s *UserStore) FirstAdmin(ctx context.Context) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = $1 ORDER BY id LIMIT 1`
	var u models.User
	err := s.db.QueryRowContext(ctx, query, models.RoleAdmin).Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.CompanyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("query first admin: %w", err)
	}
	return &u, nil
}

// ByCompany returns the users attached to a company.
func (s *UserStore) ByCompany(ctx context.Context, companyID string) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE company_id = $1 ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("query users by company: %w", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

// PreferencesFor returns the per-user channel opt-ins. A missing row means
// every channel is enabled.
func (s *UserStore) PreferencesFor(ctx context.Context, userID string) (*models.NotificationPreferences, error) {
	query := `SELECT user_id, email_enabled, sms_enabled, in_app_enabled FROM notification_preferences WHERE user_id = $1`
	var p models.NotificationPreferences
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&p.UserID, &p.EmailEnabled, &p.SMSEnabled, &p.InAppEnabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.NotificationPreferences{
				UserID:       userID,
				EmailEnabled: true,
				SMSEnabled:   true,
				InAppEnabled: true,
			}, nil
		}
		return nil, fmt.Errorf("query notification preferences: %w", err)
	}
	return &p, nil
}

func scanUsers(rows *sql.Rows) ([]models.User, error) {
	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.CompanyID); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
