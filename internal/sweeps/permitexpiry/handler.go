// internal/sweeps/permitexpiry/handler.go
package permitexpiry

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
	JobName           = "permit-expiry"
	TemplateKey       = "permit-expiry-warning"
	NotificationTitle = "Permit Expiration Warning"
)

type PermitSource interface {
	ExpiringWithin(ctx context.Context, now time.Time, window time.Duration) ([]models.Permit, error)
}

type UserSource interface {
	FirstAdmin(ctx context.Context) (*models.User, error)
	ByCompany(ctx context.Context, companyID string) ([]models.User, error)
	ByRole(ctx context.Context, role string) ([]models.User, error)
	PreferencesFor(ctx context.Context, userID string) (*models.NotificationPreferences, error)
}

type NotificationSource interface {
	RecentForPermit(ctx context.Context, permitID, title string, since time.Time) (bool, error)
	ClaimSweepSlot(ctx context.Context, entityID, templateKey, windowBucket string) (bool, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) dispatch.Result
}

// Handler is the permit-expiry sweep: warn company users and compliance
// officers about APPROVED permits expiring inside the lookahead window.
type Handler struct {
	config        *Config
	permits       PermitSource
	users         UserSource
	notifications NotificationSource
	dispatcher    Dispatcher
	logger        logger.Logger
	now           func() time.Time
}

func NewHandler(config *Config, permits PermitSource, users UserSource, notifications NotificationSource, dispatcher Dispatcher, log logger.Logger) *Handler {
	return &Handler{
		config:        config,
		permits:       permits,
		users:         users,
		notifications: notifications,
		dispatcher:    dispatcher,
		logger:        log.WithFields(map[string]interface{}{"job": JobName}),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one sweep. Errors never propagate past this boundary; the
// job logs them and returns to idle until the next firing.
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
	permits, err := h.permits.ExpiringWithin(ctx, now, h.config.Window)
	if err != nil {
		return fmt.Errorf("query expiring permits: %w", err)
	}

	metrics.SweepCandidates.WithLabelValues(JobName).Add(float64(len(permits)))
	windowDays := int(h.config.Window.Hours() / 24)

	for _, permit := range permits {
		daysLeft := int(permit.ExpiryDate.Sub(now).Hours() / 24)
		if daysLeft < 0 || daysLeft > windowDays {
			continue
		}

		recent, err := h.notifications.RecentForPermit(ctx, permit.ID, NotificationTitle, now.Add(-h.config.RenotifyAfter))
		if err != nil {
			h.logger.Error("recent-notification check failed", map[string]interface{}{
				"permitId": permit.ID,
				"error":    err.Error(),
			})
			continue
		}
		if recent {
			continue
		}

		if h.config.ClaimDedup {
			bucket := store.WindowBucket(now, int(h.config.RenotifyAfter.Hours()/24))
			won, err := h.notifications.ClaimSweepSlot(ctx, permit.ID, TemplateKey, bucket)
			if err != nil {
				h.logger.Error("sweep claim failed", map[string]interface{}{
					"permitId": permit.ID,
					"error":    err.Error(),
				})
				continue
			}
			if !won {
				// Another run already claimed this permit for the window.
				continue
			}
		}

		recipients, err := h.recipientsFor(ctx, permit)
		if err != nil {
			h.logger.Error("resolve recipients failed", map[string]interface{}{
				"permitId": permit.ID,
				"error":    err.Error(),
			})
			continue
		}

		message := fmt.Sprintf("Permit %s (%s) will expire in %d days. Please initiate renewal.", permit.ID, permit.Type, daysLeft)

		for _, recipient := range recipients {
			h.notify(ctx, sender, recipient, permit, message)
		}
	}

	return nil
}

// recipientsFor returns the permit's company users plus all compliance
// officers.
func (h *Handler) recipientsFor(ctx context.Context, permit models.Permit) ([]models.User, error) {
	companyUsers, err := h.users.ByCompany(ctx, permit.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("company users: %w", err)
	}

	officers, err := h.users.ByRole(ctx, models.RoleCompliance)
	if err != nil {
		return nil, fmt.Errorf("compliance officers: %w", err)
	}

	return append(companyUsers, officers...), nil
}

func (h *Handler) notify(ctx context.Context, sender *models.User, recipient models.User, permit models.Permit, message string) {
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
		PermitID: permit.ID,
	})

	if err := result.Err(); err != nil {
		h.logger.Error("dispatch incomplete", map[string]interface{}{
			"permitId": permit.ID,
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
