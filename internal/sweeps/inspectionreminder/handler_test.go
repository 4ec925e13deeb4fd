// internal/sweeps/inspectionreminder/handler_test.go
package inspectionreminder

import (
	"context"
	"testing"
	"time"

	"pcots-notifications/internal/common/logger"
	"pcots-notifications/internal/dispatch"
	"pcots-notifications/internal/models"
	"pcots-notifications/internal/store"

	"github.com/stretchr/testify/assert"
)

// ==========================
// Fake Implementations
// ==========================

type fakeInspections struct {
	inspections []models.Inspection
	err         error
}

func (f *fakeInspections) ScheduledWithin(ctx context.Context, now time.Time, window time.Duration) ([]models.Inspection, error) {
	return f.inspections, f.err
}

type fakeUsers struct {
	admin     *models.User
	byID      map[string]*models.User
	byCompany map[string][]models.User
}

func (f *fakeUsers) FirstAdmin(ctx context.Context) (*models.User, error) {
	if f.admin == nil {
		return nil, store.ErrUserNotFound
	}
	return f.admin, nil
}

func (f *fakeUsers) ByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, store.ErrUserNotFound
}

func (f *fakeUsers) ByCompany(ctx context.Context, companyID string) ([]models.User, error) {
	return f.byCompany[companyID], nil
}

func (f *fakeUsers) PreferencesFor(ctx context.Context, userID string) (*models.NotificationPreferences, error) {
	return &models.NotificationPreferences{UserID: userID, EmailEnabled: true, SMSEnabled: true, InAppEnabled: true}, nil
}

type fakeNotifications struct {
	recent map[string]bool
	claims map[string]bool
}

func (f *fakeNotifications) RecentForInspection(ctx context.Context, inspectionID, title string, since time.Time) (bool, error) {
	return f.recent[inspectionID], nil
}

func (f *fakeNotifications) ClaimSweepSlot(ctx context.Context, entityID, templateKey, windowBucket string) (bool, error) {
	if f.claims == nil {
		f.claims = map[string]bool{}
	}
	key := entityID + "|" + templateKey + "|" + windowBucket
	if f.claims[key] {
		return false, nil
	}
	f.claims[key] = true
	return true, nil
}

type fakeDispatcher struct {
	calls []dispatch.Request
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, req dispatch.Request) dispatch.Result {
	f.calls = append(f.calls, req)
	return dispatch.Result{}
}

// ==========================
// Test Helper Functions
// ==========================

var testNow = time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)

func createTestConfig() *Config {
	return &Config{
		Timeout:       30 * time.Second,
		Window:        3 * 24 * time.Hour,
		RenotifyAfter: 24 * time.Hour,
		ClaimDedup:    true,
	}
}

func createTestHandler(t *testing.T, cfg *Config, inspections *fakeInspections, users *fakeUsers, notifications *fakeNotifications, dispatcher *fakeDispatcher) *Handler {
	h := NewHandler(cfg, inspections, users, notifications, dispatcher, logger.NewTestLogger(t))
	h.now = func() time.Time { return testNow }
	return h
}

func scheduledInspection(id, inspectorID string, daysAhead int) models.Inspection {
	return models.Inspection{
		ID:            id,
		PermitID:      "permit-001",
		CompanyID:     "comp-001",
		InspectorID:   inspectorID,
		Status:        models.InspectionStatusScheduled,
		ScheduledDate: testNow.AddDate(0, 0, daysAhead),
	}
}

func testUsers() *fakeUsers {
	return &fakeUsers{
		admin: &models.User{ID: "admin-001", Role: models.RoleAdmin},
		byID: map[string]*models.User{
			"inspector-001": {ID: "inspector-001", Email: "inspector@pc.gov.gh", Role: models.RoleInspector},
		},
		byCompany: map[string][]models.User{
			"comp-001": {{ID: "user-001", Email: "alice@x.com"}},
		},
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_NotifiesCompanyUsersAndInspector(t *testing.T) {
	inspections := &fakeInspections{inspections: []models.Inspection{scheduledInspection("insp-001", "inspector-001", 2)}}
	dispatcher := &fakeDispatcher{}

	h := createTestHandler(t, createTestConfig(), inspections, testUsers(), &fakeNotifications{}, dispatcher)
	assert.NoError(t, h.execute(context.Background()))

	assert.Len(t, dispatcher.calls, 2)

	recipients := []string{dispatcher.calls[0].UserID, dispatcher.calls[1].UserID}
	assert.ElementsMatch(t, []string{"user-001", "inspector-001"}, recipients)
	for _, call := range dispatcher.calls {
		assert.Equal(t, NotificationTitle, call.Title)
		assert.Equal(t, "insp-001", call.InspectionID)
		assert.Equal(t, "permit-001", call.PermitID)
		assert.Contains(t, call.Message, "permit-001")
	}
}

func TestHandler_UnassignedInspection_CompanyUsersOnly(t *testing.T) {
	inspections := &fakeInspections{inspections: []models.Inspection{scheduledInspection("insp-001", "", 2)}}
	dispatcher := &fakeDispatcher{}

	h := createTestHandler(t, createTestConfig(), inspections, testUsers(), &fakeNotifications{}, dispatcher)
	assert.NoError(t, h.execute(context.Background()))

	assert.Len(t, dispatcher.calls, 1)
	assert.Equal(t, "user-001", dispatcher.calls[0].UserID)
}

func TestHandler_MissingInspectorDoesNotBlockCompanyUsers(t *testing.T) {
	inspections := &fakeInspections{inspections: []models.Inspection{scheduledInspection("insp-001", "inspector-gone", 2)}}
	dispatcher := &fakeDispatcher{}

	h := createTestHandler(t, createTestConfig(), inspections, testUsers(), &fakeNotifications{}, dispatcher)
	assert.NoError(t, h.execute(context.Background()))

	assert.Len(t, dispatcher.calls, 1)
	assert.Equal(t, "user-001", dispatcher.calls[0].UserID)
}

func TestHandler_WindowBoundaries(t *testing.T) {
	inspections := &fakeInspections{inspections: []models.Inspection{
		scheduledInspection("insp-3d", "", 3),
		scheduledInspection("insp-4d", "", 4),
		scheduledInspection("insp-past", "", -1),
	}}
	dispatcher := &fakeDispatcher{}

	h := createTestHandler(t, createTestConfig(), inspections, testUsers(), &fakeNotifications{}, dispatcher)
	assert.NoError(t, h.execute(context.Background()))

	assert.Len(t, dispatcher.calls, 1)
	assert.Equal(t, "insp-3d", dispatcher.calls[0].InspectionID)
}

func TestHandler_SuppressesRecentlyRemindedInspections(t *testing.T) {
	inspections := &fakeInspections{inspections: []models.Inspection{scheduledInspection("insp-001", "", 2)}}
	notifications := &fakeNotifications{recent: map[string]bool{"insp-001": true}}
	dispatcher := &fakeDispatcher{}

	h := createTestHandler(t, createTestConfig(), inspections, testUsers(), notifications, dispatcher)
	assert.NoError(t, h.execute(context.Background()))

	assert.Empty(t, dispatcher.calls)
}

func TestHandler_NoAdmin_FailsClosed(t *testing.T) {
	inspections := &fakeInspections{inspections: []models.Inspection{scheduledInspection("insp-001", "", 2)}}
	dispatcher := &fakeDispatcher{}

	h := createTestHandler(t, createTestConfig(), inspections, &fakeUsers{}, &fakeNotifications{}, dispatcher)
	assert.NoError(t, h.execute(context.Background()))

	assert.Empty(t, dispatcher.calls)
}
