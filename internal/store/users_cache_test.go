// internal/store/users_cache_test.go
package store

import (
	"context"
	"testing"
	"time"

	"pcots-notifications/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

// Round-trip through a real redis protocol server: the second ByRole call is
// served from the projection without touching postgres.
func TestUserStore_ByRole_CacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewUserStore(db, rdb, time.Minute)

	mock.ExpectQuery("FROM users WHERE role").
		WithArgs(models.RoleAdmin).
		WillReturnRows(testUserRows(
			models.User{ID: "admin-001", Name: "Ama", Email: "ama@pc.gov.gh", Role: models.RoleAdmin},
		))

	first, err := s.ByRole(context.Background(), models.RoleAdmin)
	assert.NoError(t, err)
	assert.Len(t, first, 1)

	// One SQL query total: the repeat call hits the cache.
	second, err := s.ByRole(context.Background(), models.RoleAdmin)
	assert.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NoError(t, mock.ExpectationsWereMet())

	ttl := mr.TTL("role:ADMIN")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestUserStore_InvalidateRole_DropsProjection(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	s := NewUserStore(db, rdb, time.Minute)

	mock.ExpectQuery("FROM users WHERE role").
		WithArgs(models.RoleAdmin).
		WillReturnRows(testUserRows(models.User{ID: "admin-001", Role: models.RoleAdmin}))

	_, err = s.ByRole(context.Background(), models.RoleAdmin)
	assert.NoError(t, err)
	assert.True(t, mr.Exists("role:ADMIN"))

	assert.NoError(t, s.InvalidateRole(context.Background(), models.RoleAdmin))
	assert.False(t, mr.Exists("role:ADMIN"))
}
