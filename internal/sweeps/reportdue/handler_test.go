// internal/sweeps/reportdue/handler_test.go
package reportdue

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

type fakeReports struct {
	reports []models.LcPerformanceReport
	err     error
}

func (f *fakeReports) DueWithin(ctx context.Context, now time.Time, window time.Duration) ([]models.LcPerformanceReport, error) {
	return f.reports, f.err
}

type fakeUsers struct {
	admin     *models.User
	byCompany map[string][]models.User
	byRole    map[string][]models.User
}

func (f *fakeUsers) FirstAdmin(ctx context.Context) (*models.User, error) {
	if f.admin == nil {
		return nil, store.ErrUserNotFound
	}
	return f.admin, nil
}

func (f *fakeUsers) ByCompany(ctx context.Context, companyID string) ([]models.User, error) {
	return f.byCompany[companyID], nil
}

func (f *fakeUsers) ByRole(ctx context.Context, role string) ([]models.User, error) {
	return f.byRole[role], nil
}

func (f *fakeUsers) PreferencesFor(ctx context.Context, userID string) (*models.NotificationPreferences, error) {
	return &models.NotificationPreferences{UserID: userID, EmailEnabled: true, SMSEnabled: true, InAppEnabled: true}, nil
}

type fakeNotifications struct {
	recent map[string]bool
	claims map[string]bool
}

func (f *fakeNotifications) RecentForReport(ctx context.Context, reportID, title string, since time.Time) (bool, error) {
	return f.recent[reportID], nil
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
		Window:        30 * 24 * time.Hour,
		RenotifyAfter: 7 * 24 * time.Hour,
		ClaimDedup:    true,
	}
}

func createTestHandler(t *testing.T, cfg *Config, reports *fakeReports, users *fakeUsers, notifications *fakeNotifications, dispatcher *fakeDispatcher) *Handler {
	h := NewHandler(cfg, reports, users, notifications, dispatcher, logger.NewTestLogger(t))
	h.now = func() time.Time { return testNow }
	return h
}

func pendingReport(id string, daysUntilDue int) models.LcPerformanceReport {
	return models.LcPerformanceReport{
		ID:        id,
		CompanyID: "comp-001",
		Period:    "2026-Q1",
		DueDate:   testNow.AddDate(0, 0, daysUntilDue),
		Submitted: false,
	}
}

func testUsers() *fakeUsers {
	return &fakeUsers{
		admin: &models.User{ID: "admin-001", Role: models.RoleAdmin},
		byCompany: map[string][]models.User{
			"comp-001": {{ID: "user-001", Email: "alice@x.com"}},
		},
		byRole: map[string][]models.User{
			models.RoleLocalContent: {{ID: "officer-001", Email: "lc@pc.gov.gh"}},
		},
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_NotifiesCompanyUsersAndOfficers(t *testing.T) {
	reports := &fakeReports{reports: []models.LcPerformanceReport{pendingReport("report-001", 20)}}
	dispatcher := &fakeDispatcher{}

	h := createTestHandler(t, createTestConfig(), reports, testUsers(), &fakeNotifications{}, dispatcher)
	assert.NoError(t, h.execute(context.Background()))

	assert.Len(t, dispatcher.calls, 2)
	for _, call := range dispatcher.calls {
		assert.Equal(t, NotificationTitle, call.Title)
		assert.Equal(t, "report-001", call.ReportID)
		assert.Contains(t, call.Message, "2026-Q1")
		assert.Contains(t, call.Message, "due in 20 days")
	}
}

func TestHandler_WindowBoundaries(t *testing.T) {
	reports := &fakeReports{reports: []models.LcPerformanceReport{
		pendingReport("report-30d", 30),
		pendingReport("report-31d", 31),
		pendingReport("report-overdue", -2),
	}}
	dispatcher := &fakeDispatcher{}

	h := createTestHandler(t, createTestConfig(), reports, testUsers(), &fakeNotifications{}, dispatcher)
	assert.NoError(t, h.execute(context.Background()))

	for _, call := range dispatcher.calls {
		assert.Equal(t, "report-30d", call.ReportID)
	}
	assert.Len(t, dispatcher.calls, 2)
}

func TestHandler_SuppressesRecentlyNotifiedReports(t *testing.T) {
	reports := &fakeReports{reports: []models.LcPerformanceReport{pendingReport("report-001", 20)}}
	notifications := &fakeNotifications{recent: map[string]bool{"report-001": true}}
	dispatcher := &fakeDispatcher{}

	h := createTestHandler(t, createTestConfig(), reports, testUsers(), notifications, dispatcher)
	assert.NoError(t, h.execute(context.Background()))

	assert.Empty(t, dispatcher.calls)
}

func TestHandler_ClaimPreventsDuplicateRuns(t *testing.T) {
	reports := &fakeReports{reports: []models.LcPerformanceReport{pendingReport("report-001", 20)}}
	dispatcher := &fakeDispatcher{}

	h := createTestHandler(t, createTestConfig(), reports, testUsers(), &fakeNotifications{}, dispatcher)
	assert.NoError(t, h.execute(context.Background()))
	assert.NoError(t, h.execute(context.Background()))

	assert.Len(t, dispatcher.calls, 2) // one per recipient, single run's worth
}

func TestHandler_NoAdmin_FailsClosed(t *testing.T) {
	reports := &fakeReports{reports: []models.LcPerformanceReport{pendingReport("report-001", 20)}}
	dispatcher := &fakeDispatcher{}

	h := createTestHandler(t, createTestConfig(), reports, &fakeUsers{}, &fakeNotifications{}, dispatcher)
	assert.NoError(t, h.execute(context.Background()))

	assert.Empty(t, dispatcher.calls)
}
