// internal/sweeps/escalation/handler.go
package escalation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"pcots-notifications/internal/common/logger"
	"pcots-notifications/internal/common/metrics"
	"pcots-notifications/internal/dispatch"
	"pcots-notifications/internal/models"
	"pcots-notifications/internal/store"
)

const (
	JobName           = "alert-escalation"
	NotificationTitle = "Action Required: Unacknowledged Alerts"
)

type UserSource interface {
	FirstAdmin(ctx context.Context) (*models.User, error)
	ByRole(ctx context.Context, role string) ([]models.User, error)
	PreferencesFor(ctx context.Context, userID string) (*models.NotificationPreferences, error)
}

type NotificationSource interface {
	Unread(ctx context.Context) ([]store.EscalationCandidate, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) dispatch.Result
}

// Handler is the alert-escalation sweep: group stale unread alerts by the
// recipient's role and surface each group to every admin. An unacted alert is
// re-escalated on every firing until someone marks it read; that repetition
// is the nudge, so there is no claim or suppression window here.
type Handler struct {
	config        *Config
	users         UserSource
	notifications NotificationSource
	dispatcher    Dispatcher
	logger        logger.Logger
	now           func() time.Time
}

func NewHandler(config *Config, users UserSource, notifications NotificationSource, dispatcher Dispatcher, log logger.Logger) *Handler {
	return &Handler{
		config:        config,
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

	candidates, err := h.notifications.Unread(ctx)
	if err != nil {
		return fmt.Errorf("query unread notifications: %w", err)
	}

	cutoff := h.now().Add(-h.config.UnreadAge)
	groups := map[string]int{}
	for _, c := range candidates {
		if !c.Notification.CreatedAt.Before(cutoff) {
			continue
		}
		if !h.matchesKeywords(c.Notification.Title) {
			continue
		}
		groups[c.RecipientRole]++
	}

	metrics.SweepCandidates.WithLabelValues(JobName).Add(float64(len(groups)))
	if len(groups) == 0 {
		return nil
	}

	admins, err := h.users.ByRole(ctx, models.RoleAdmin)
	if err != nil {
		return fmt.Errorf("query admins: %w", err)
	}

	// Stable iteration keeps log output and tests deterministic.
	roles := make([]string, 0, len(groups))
	for role := range groups {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	for _, role := range roles {
		count := groups[role]
		message := fmt.Sprintf("%d notification(s) sent to %s users have remained unread for over %d hours. Please review and follow up.",
			count, role, int(h.config.UnreadAge.Hours()))

		for _, admin := range admins {
			if admin.ID == sender.ID {
				continue
			}
			h.notify(ctx, sender, admin, role, message)
			metrics.EscalationsSent.Inc()
		}
	}

	return nil
}

func (h *Handler) matchesKeywords(title string) bool {
	for _, kw := range h.config.Keywords {
		if strings.Contains(title, kw) {
			return true
		}
	}
	return false
}

func (h *Handler) notify(ctx context.Context, sender *models.User, admin models.User, role, message string) {
	prefs, err := h.users.PreferencesFor(ctx, admin.ID)
	if err != nil {
		h.logger.Warn("preferences lookup failed, assuming all channels", map[string]interface{}{
			"userId": admin.ID,
			"error":  err.Error(),
		})
		prefs = &models.NotificationPreferences{UserID: admin.ID, EmailEnabled: true, SMSEnabled: true, InAppEnabled: true}
	}

	channels := channelsFor(prefs, admin)
	if len(channels) == 0 {
		return
	}

	result := h.dispatcher.Dispatch(ctx, dispatch.Request{
		UserID:   admin.ID,
		SentByID: sender.ID,
		Title:    NotificationTitle,
		Message:  message,
		Email:    admin.Email,
		Phone:    admin.Phone,
		Channels: channels,
	})

	if err := result.Err(); err != nil {
		h.logger.Error("dispatch incomplete", map[string]interface{}{
			"role":   role,
			"userId": admin.ID,
			"failed": result.Failed(),
			"error":  err.Error(),
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
