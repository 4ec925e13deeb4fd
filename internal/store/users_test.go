// internal/store/users_test.go
package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"pcots-notifications/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
)

func testUserRows(users ...models.User) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "name", "email", "phone", "role", "company_id"})
	for _, u := range users {
		rows.AddRow(u.ID, u.Name, u.Email, u.Phone, u.Role, u.CompanyID)
	}
	return rows
}

func TestUserStore_ByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewUserStore(db, nil, time.Minute)

	mock.ExpectQuery("FROM users WHERE id").
		WithArgs("user-001").
		WillReturnRows(testUserRows(models.User{
			ID: "user-001", Name: "Alice", Email: "alice@x.com", Phone: "+233201111111",
			Role: models.RoleCompany, CompanyID: "comp-001",
		}))

	u, err := s.ByID(context.Background(), "user-001")
	assert.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)
	assert.Equal(t, "comp-001", u.CompanyID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStore_ByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewUserStore(db, nil, time.Minute)

	mock.ExpectQuery("FROM users WHERE id").
		WithArgs("ghost").
		WillReturnRows(testUserRows())

	_, err = s.ByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserStore_ByRole_CacheMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	rdb, redisMock := redismock.NewClientMock()
	s := NewUserStore(db, rdb, time.Minute)

	admins := []models.User{
		{ID: "admin-001", Name: "Ama", Email: "ama@pc.gov.gh", Phone: "+233200000001", Role: models.RoleAdmin},
		{ID: "admin-002", Name: "Kofi", Email: "kofi@pc.gov.gh", Phone: "+233200000002", Role: models.RoleAdmin},
	}
	cached, err := json.Marshal(admins)
	assert.NoError(t, err)

	redisMock.ExpectGet("role:ADMIN").RedisNil()
	mock.ExpectQuery("FROM users WHERE role").
		WithArgs(models.RoleAdmin).
		WillReturnRows(testUserRows(admins...))
	redisMock.ExpectSet("role:ADMIN", cached, time.Minute).SetVal("OK")

	got, err := s.ByRole(context.Background(), models.RoleAdmin)
	assert.NoError(t, err)
	assert.Equal(t, admins, got)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestUserStore_ByRole_CacheHit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	rdb, redisMock := redismock.NewClientMock()
	s := NewUserStore(db, rdb, time.Minute)

	officers := []models.User{
		{ID: "officer-001", Name: "Carol", Email: "carol@x.com", Role: models.RoleCompliance},
	}
	cached, err := json.Marshal(officers)
	assert.NoError(t, err)

	redisMock.ExpectGet("role:COMPLIANCE").SetVal(string(cached))

	got, err := s.ByRole(context.Background(), models.RoleCompliance)
	assert.NoError(t, err)
	assert.Equal(t, officers, got)

	// No SQL query should have happened.
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestUserStore_InvalidateRole(t *testing.T) {
	rdb, redisMock := redismock.NewClientMock()
	s := NewUserStore(nil, rdb, time.Minute)

	redisMock.ExpectDel("role:ADMIN").SetVal(1)

	assert.NoError(t, s.InvalidateRole(context.Background(), models.RoleAdmin))
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestUserStore_FirstAdmin(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewUserStore(db, nil, time.Minute)

	mock.ExpectQuery("FROM users WHERE role").
		WithArgs(models.RoleAdmin).
		WillReturnRows(testUserRows(models.User{ID: "admin-001", Name: "Ama", Role: models.RoleAdmin}))

	admin, err := s.FirstAdmin(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "admin-001", admin.ID)
}

func TestUserStore_FirstAdmin_NoneExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewUserStore(db, nil, time.Minute)

	mock.ExpectQuery("FROM users WHERE role").
		WithArgs(models.RoleAdmin).
		WillReturnRows(testUserRows())

	_, err = s.FirstAdmin(context.Background())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserStore_PreferencesFor_MissingRowDefaultsAllEnabled(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewUserStore(db, nil, time.Minute)

	mock.ExpectQuery("FROM notification_preferences").
		WithArgs("user-001").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "email_enabled", "sms_enabled", "in_app_enabled"}))

	prefs, err := s.PreferencesFor(context.Background(), "user-001")
	assert.NoError(t, err)
	assert.True(t, prefs.EmailEnabled)
	assert.True(t, prefs.SMSEnabled)
	assert.True(t, prefs.InAppEnabled)
}

func TestUserStore_PreferencesFor_RespectsOptOuts(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewUserStore(db, nil, time.Minute)

	mock.ExpectQuery("FROM notification_preferences").
		WithArgs("user-002").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "email_enabled", "sms_enabled", "in_app_enabled"}).
			AddRow("user-002", true, false, true))

	prefs, err := s.PreferencesFor(context.Background(), "user-002")
	assert.NoError(t, err)
	assert.True(t, prefs.EmailEnabled)
	assert.False(t, prefs.SMSEnabled)
}
