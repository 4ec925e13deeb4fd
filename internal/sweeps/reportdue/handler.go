// internal/sweeps/reportdue/handler.go
package reportdue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pcots-notifications/internal/common/logger"
	"pcots-notifications/internal/common/metrics"
	"pcots-notifications/internal/dispatch"
	"pcots-notifications/internal/models"
	"pcots-notifications/internal/store"
)

const (
	JobName           = "lc-report-due"
	TemplateKey       = "lc-report-due"
	NotificationTitle = "Local Content Report Due Soon"
)

type ReportSource interface {
	DueWithin(ctx context.Context, now time.Time, window time.Duration) ([]models.LcPerformanceReport, error)
}

type UserSource interface {
	FirstAdmin(ctx context.Context) (*models.User, error)
	ByCompany(ctx context.Context, companyID string) ([]models.User, error)
	ByRole(ctx context.Context, role string) ([]models.User, error)
	PreferencesFor(ctx context.Context, userID string) (*models.NotificationPreferences, error)
}

type NotificationSource interface {
	RecentForReport(ctx context.Context, reportID, title string, since time.Time) (bool, error)
	ClaimSweepSlot(ctx context.Context, entityID, templateKey, windowBucket string) (bool, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) dispatch.Result
}

// Handler is the local-content report sweep: remind company users and
// local-content officers about unsubmitted performance reports coming due.
type Handler struct {
	config        *Config
	reports       ReportSource
	users         UserSource
	notifications NotificationSource
	dispatcher    Dispatcher
	logger        logger.Logger
	now           func() time.Time
}

func NewHandler(config *Config, reports ReportSource, users UserSource, notifications NotificationSource, dispatcher Dispatcher, log logger.Logger) *Handler {
	return &Handler{
		config:        config,
		reports:       reports,
		users:         users,
		notifications: notifications,
		dispatcher:    dispatcher,
		logger:        log.WithFields(map[string]interface{}{"job": JobName}),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) Run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	start := h.now()
	if err := h.execute(ctx); err != nil {
		metrics.SweepRuns.WithLabelValues(JobName, "error").Inc()
		h.logger.Error("sweep run failed", map[string]interface{}{"error": err.Error()})
	} else {
		metrics.SweepRuns.WithLabelValues(JobName, "success").Inc()
	}
	metrics.SweepDuration.WithLabelValues(JobName).Observe(h.now().Sub(start).Seconds())
}

func (h *Handler) execute(ctx context.Context) error {
	sender, err := h.users.FirstAdmin(ctx)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			h.logger.Error("no admin user available as system sender, skipping run", nil)
			return nil
		}
		return fmt.Errorf("resolve system sender: %w", err)
	}

	now := h.now()
	reports, err := h.reports.DueWithin(ctx, now, h.config.Window)
	if err != nil {
		return fmt.Errorf("query due reports: %w", err)
	}

	metrics.SweepCandidates.WithLabelValues(JobName).Add(float64(len(reports)))
	windowDays := int(h.config.Window.Hours() / 24)

	for _, report := range reports {
		daysLeft := int(report.DueDate.Sub(now).Hours() / 24)
		if daysLeft < 0 || daysLeft > windowDays {
			continue
		}

		recent, err := h.notifications.RecentForReport(ctx, report.ID, NotificationTitle, now.Add(-h.config.RenotifyAfter))
		if err != nil {
			h.logger.Error("recent-notification check failed", map[string]interface{}{
				"reportId": report.ID,
				"error":    err.Error(),
			})
			continue
		}
		if recent {
			continue
		}

		if h.config.ClaimDedup {
			bucket := store.WindowBucket(now, int(h.config.RenotifyAfter.Hours()/24))
			won, err := h.notifications.ClaimSweepSlot(ctx, report.ID, TemplateKey, bucket)
			if err != nil {
				h.logger.Error("sweep claim failed", map[string]interface{}{
					"reportId": report.ID,
					"error":    err.Error(),
				})
				continue
			}
			if !won {
				continue
			}
		}

		recipients, err := h.recipientsFor(ctx, report)
		if err != nil {
			h.logger.Error("resolve recipients failed", map[string]interface{}{
				"reportId": report.ID,
				"error":    err.Error(),
			})
			continue
		}

		message := fmt.Sprintf("Local content performance report for period %s is due in %d days and has not been submitted.", report.Period, daysLeft)

		for _, recipient := range recipients {
			h.notify(ctx, sender, recipient, report, message)
		}
	}

	return nil
}

func (h *Handler) recipientsFor(ctx context.Context, report models.LcPerformanceReport) ([]models.User, error) {
	companyUsers, err := h.users.ByCompany(ctx, report.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("company users: %w", err)
	}

	officers, err := h.users.ByRole(ctx, models.RoleLocalContent)
	if err != nil {
		return nil, fmt.Errorf("local content officers: %w", err)
	}

	return append(companyUsers, officers...), nil
}

func (h *Handler) notify(ctx context.Context, sender *models.User, recipient models.User, report models.LcPerformanceReport, message string) {
	prefs, err := h.users.PreferencesFor(ctx, recipient.ID)
	if err != nil {
		h.logger.Warn("preferences lookup failed, assuming all channels", map[string]interface{}{
			"userId": recipient.ID,
			"error":  err.Error(),
		})
		prefs = &models.NotificationPreferences{UserID: recipient.ID, EmailEnabled: true, SMSEnabled: true, InAppEnabled: true}
	}

	channels := channelsFor(prefs, recipient)
	if len(channels) == 0 {
		return
	}

	result := h.dispatcher.Dispatch(ctx, dispatch.Request{
		UserID:   recipient.ID,
		SentByID: sender.ID,
		Title:    NotificationTitle,
		Message:  message,
		Email:    recipient.Email,
		Phone:    recipient.Phone,
		Channels: channels,
		ReportID: report.ID,
	})

	if err := result.Err(); err != nil {
		h.logger.Error("dispatch incomplete", map[string]interface{}{
			"reportId": report.ID,
			"userId":   recipient.ID,
			"failed":   result.Failed(),
			"error":    err.Error(),
		})
	}
}

func channelsFor(prefs *models.NotificationPreferences, u models.User) []string {
	var channels []string
	if prefs.InAppEnabled {
		channels = append(channels, models.ChannelInApp)
	}
	if prefs.EmailEnabled && u.Email != "" {
		channels = append(channels, models.ChannelEmail)
	}
	if prefs.SMSEnabled && u.Phone != "" {
		channels = append(channels, models.ChannelSMS)
	}
	return channels
}
