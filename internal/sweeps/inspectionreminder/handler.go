// internal/sweeps/inspectionreminder/handler.go
package inspectionreminder

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
	JobName           = "inspection-reminder"
	TemplateKey       = "inspection-reminder"
	NotificationTitle = "Inspection Reminder"
)

type InspectionSource interface {
	ScheduledWithin(ctx context.Context, now time.Time, window time.Duration) ([]models.Inspection, error)
}

type UserSource interface {
	FirstAdmin(ctx context.Context) (*models.User, error)
	ByID(ctx context.Context, id string) (*models.User, error)
	ByCompany(ctx context.Context, companyID string) ([]models.User, error)
	PreferencesFor(ctx context.Context, userID string) (*models.NotificationPreferences, error)
}

type NotificationSource interface {
	RecentForInspection(ctx context.Context, inspectionID, title string, since time.Time) (bool, error)
	ClaimSweepSlot(ctx context.Context, entityID, templateKey, windowBucket string) (bool, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) dispatch.Result
}

// Handler is the inspection-reminder sweep: remind company users and the
// assigned inspector about SCHEDULED inspections in the next few days.
type Handler struct {
	config        *Config
	inspections   InspectionSource
	users         UserSource
	notifications NotificationSource
	dispatcher    Dispatcher
	logger        logger.Logger
	now           func() time.Time
}

func NewHandler(config *Config, inspections InspectionSource, users UserSource, notifications NotificationSource, dispatcher Dispatcher, log logger.Logger) *Handler {
	return &Handler{
		config:        config,
		inspections:   inspections,
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
	inspections, err := h.inspections.ScheduledWithin(ctx, now, h.config.Window)
	if err != nil {
		return fmt.Errorf("query scheduled inspections: %w", err)
	}

	metrics.SweepCandidates.WithLabelValues(JobName).Add(float64(len(inspections)))
	windowDays := int(h.config.Window.Hours() / 24)

	for _, inspection := range inspections {
		daysLeft := int(inspection.ScheduledDate.Sub(now).Hours() / 24)
		if daysLeft < 0 || daysLeft > windowDays {
			continue
		}

		recent, err := h.notifications.RecentForInspection(ctx, inspection.ID, NotificationTitle, now.Add(-h.config.RenotifyAfter))
		if err != nil {
			h.logger.Error("recent-notification check failed", map[string]interface{}{
				"inspectionId": inspection.ID,
				"error":        err.Error(),
			})
			continue
		}
		if recent {
			continue
		}

		if h.config.ClaimDedup {
			bucket := store.WindowBucket(now, int(h.config.RenotifyAfter.Hours()/24))
			won, err := h.notifications.ClaimSweepSlot(ctx, inspection.ID, TemplateKey, bucket)
			if err != nil {
				h.logger.Error("sweep claim failed", map[string]interface{}{
					"inspectionId": inspection.ID,
					"error":        err.Error(),
				})
				continue
			}
			if !won {
				continue
			}
		}

		recipients, err := h.recipientsFor(ctx, inspection)
		if err != nil {
			h.logger.Error("resolve recipients failed", map[string]interface{}{
				"inspectionId": inspection.ID,
				"error":        err.Error(),
			})
			continue
		}

		message := fmt.Sprintf("Inspection for permit %s is scheduled on %s (%d day(s) from now).",
			inspection.PermitID, inspection.ScheduledDate.Format("2006-01-02"), daysLeft)

		for _, recipient := range recipients {
			h.notify(ctx, sender, recipient, inspection, message)
		}
	}

	return nil
}

// recipientsFor returns the inspected company's users plus the assigned
// inspector, when one is set.
func (h *Handler) recipientsFor(ctx context.Context, inspection models.Inspection) ([]models.User, error) {
	recipients, err := h.users.ByCompany(ctx, inspection.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("company users: %w", err)
	}

	if inspection.InspectorID != "" {
		inspector, err := h.users.ByID(ctx, inspection.InspectorID)
		if err != nil {
			if !errors.Is(err, store.ErrUserNotFound) {
				return nil, fmt.Errorf("inspector lookup: %w", err)
			}
			h.logger.Warn("assigned inspector not found", map[string]interface{}{
				"inspectionId": inspection.ID,
				"inspectorId":  inspection.InspectorID,
			})
		} else {
			recipients = append(recipients, *inspector)
		}
	}

	return recipients, nil
}

func (h *Handler) notify(ctx context.Context, sender *models.User, recipient models.User, inspection models.Inspection, message string) {
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
		UserID:       recipient.ID,
		SentByID:     sender.ID,
		Title:        NotificationTitle,
		Message:      message,
		Email:        recipient.Email,
		Phone:        recipient.Phone,
		Channels:     channels,
		InspectionID: inspection.ID,
		PermitID:     inspection.PermitID,
	})

	if err := result.Err(); err != nil {
		h.logger.Error("dispatch incomplete", map[string]interface{}{
			"inspectionId": inspection.ID,
			"userId":       recipient.ID,
			"failed":       result.Failed(),
			"error":        err.Error(),
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
