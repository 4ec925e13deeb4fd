// internal/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pcots-notifications/internal/common/errors"
	"pcots-notifications/internal/common/logger"
	"pcots-notifications/internal/common/metrics"
	"pcots-notifications/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/google/uuid"
)

// Interfaces over the AWS clients so tests can mock them.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// NotificationWriter is the slice of the notification store the dispatcher
// needs for the IN_APP channel.
type NotificationWriter interface {
	Create(ctx context.Context, n *models.Notification) error
}

// Request is one logical notification to fan out. Route handlers and sweep
// jobs construct a fresh Request per dispatch; recipients are resolved and
// authorized by the caller.
type Request struct {
	UserID   string `json:"userId"`
	SentByID string `json:"sentById"`
	Title    string `json:"title"`
	Message  string `json:"message"`

	// Per-channel overrides, all optional.
	Email        string `json:"email,omitempty"`
	EmailSubject string `json:"emailSubject,omitempty"`
	EmailHTML    string `json:"emailHtml,omitempty"`
	Phone        string `json:"phone,omitempty"`
	SMSMessage   string `json:"smsMessage,omitempty"`

	Channels []string `json:"channels"`

	// Traceability back to the triggering entity.
	PermitID     string `json:"permitId,omitempty"`
	InspectionID string `json:"inspectionId,omitempty"`
	ReportID     string `json:"reportId,omitempty"`
	PaymentID    string `json:"paymentId,omitempty"`
}

// ChannelResult records one delivery attempt. A channel that was not
// requested, or whose precondition was unmet, has no entry in the Result.
type ChannelResult struct {
	MessageID string `json:"messageId,omitempty"`
	Err       error  `json:"-"`
}

// Result maps channel name to the outcome of its attempt.
type Result map[string]ChannelResult

// Failed returns the channels whose attempt errored.
func (r Result) Failed() []string {
	var failed []string
	for ch, res := range r {
		if res.Err != nil {
			failed = append(failed, ch)
		}
	}
	return failed
}

// Err aggregates per-channel errors into one, or nil when every attempted
// channel succeeded.
func (r Result) Err() error {
	var parts []string
	for ch, res := range r {
		if res.Err != nil {
			parts = append(parts, fmt.Sprintf("%s: %v", ch, res.Err))
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return fmt.Errorf("dispatch incomplete: %s", strings.Join(parts, "; "))
}

type Config struct {
	EmailEnabled bool
	FromEmail    string
	SMSEnabled   bool
	SMSSenderID  string
}

// Dispatcher fans one Request out over the requested channels. Every channel
// attempt is independent: a failure in one never suppresses the others.
type Dispatcher struct {
	config        *Config
	notifications NotificationWriter
	sesClient     SESService
	snsClient     SNSService
	auditor       *Auditor
	logger        logger.Logger
	now           func() time.Time
}

func New(config *Config, notifications NotificationWriter, sesClient SESService, snsClient SNSService, auditor *Auditor, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		config:        config,
		notifications: notifications,
		sesClient:     sesClient,
		snsClient:     snsClient,
		auditor:       auditor,
		logger:        log.WithFields(map[string]interface{}{"component": "dispatcher"}),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch attempts every requested channel and returns the per-channel
// results. Channels not named in the request are never attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	result := Result{}

	for _, channel := range req.Channels {
		switch channel {
		case models.ChannelInApp:
			if d.sendInApp(ctx, req, result) {
				d.record(models.ChannelInApp, result[models.ChannelInApp].Err)
			}
		case models.ChannelEmail:
			if d.sendEmail(ctx, req, result) {
				d.record(models.ChannelEmail, result[models.ChannelEmail].Err)
			}
		case models.ChannelSMS:
			if d.sendSMS(ctx, req, result) {
				d.record(models.ChannelSMS, result[models.ChannelSMS].Err)
			}
		default:
			d.logger.Warn("unknown channel requested", map[string]interface{}{
				"channel": channel,
				"userId":  req.UserID,
			})
		}
	}

	if d.auditor != nil {
		d.auditor.Record(ctx, req, result)
	}

	return result
}

// sendInApp creates the persisted notification row. Missing recipient or
// sender ids are a silent skip, not an error.
func (d *Dispatcher) sendInApp(ctx context.Context, req Request, result Result) bool {
	if req.UserID == "" || req.SentByID == "" {
		d.logger.Debug("in-app delivery skipped, missing recipient or sender", map[string]interface{}{
			"userId":   req.UserID,
			"sentById": req.SentByID,
		})
		return false
	}

	n := &models.Notification{
		ID:           uuid.New().String(),
		Title:        req.Title,
		Message:      req.Message,
		RecipientID:  req.UserID,
		SenderID:     req.SentByID,
		CreatedAt:    d.now(),
		PermitID:     req.PermitID,
		InspectionID: req.InspectionID,
		ReportID:     req.ReportID,
		PaymentID:    req.PaymentID,
	}

	if err := d.notifications.Create(ctx, n); err != nil {
		result[models.ChannelInApp] = ChannelResult{Err: errors.NewDatabaseInsertFailedError(err)}
		return true
	}

	result[models.ChannelInApp] = ChannelResult{MessageID: n.ID}
	return true
}

// sendEmail sends via SES. A missing destination address is a silent skip.
func (d *Dispatcher) sendEmail(ctx context.Context, req Request, result Result) bool {
	if req.Email == "" {
		return false
	}
	if !d.config.EmailEnabled || d.sesClient == nil {
		d.logger.Debug("email delivery disabled", map[string]interface{}{"userId": req.UserID})
		return false
	}

	subject := req.EmailSubject
	if subject == "" {
		subject = req.Title
	}
	htmlBody := req.EmailHTML
	if htmlBody == "" {
		htmlBody = "<p>" + req.Message + "</p>"
	}

	out, err := d.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &sestypes.Destination{
			ToAddresses: []string{req.Email},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(req.Message)},
				Html: &sestypes.Content{Data: aws.String(htmlBody)},
			},
		},
		Source: aws.String(d.config.FromEmail),
	})
	if err != nil {
		result[models.ChannelEmail] = ChannelResult{Err: errors.NewEmailSendFailedError(err)}
		return true
	}

	messageID := ""
	if out != nil && out.MessageId != nil {
		messageID = *out.MessageId
	}
	result[models.ChannelEmail] = ChannelResult{MessageID: messageID}
	return true
}

// sendSMS publishes via SNS. A missing phone number is a silent skip; a
// missing SNS client is an explicit configuration error.
func (d *Dispatcher) sendSMS(ctx context.Context, req Request, result Result) bool {
	if req.Phone == "" {
		return false
	}
	if !d.config.SMSEnabled || d.snsClient == nil {
		result[models.ChannelSMS] = ChannelResult{Err: errors.NewSMSNotConfiguredError()}
		return true
	}

	text := req.SMSMessage
	if text == "" {
		text = req.Message
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(req.Phone),
		Message:     aws.String(text),
	}
	if d.config.SMSSenderID != "" {
		input.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(d.config.SMSSenderID),
			},
		}
	}

	out, err := d.snsClient.Publish(ctx, input)
	if err != nil {
		result[models.ChannelSMS] = ChannelResult{Err: errors.NewSMSSendFailedError(err)}
		return true
	}

	messageID := ""
	if out != nil && out.MessageId != nil {
		messageID = *out.MessageId
	}
	result[models.ChannelSMS] = ChannelResult{MessageID: messageID}
	return true
}

func (d *Dispatcher) record(channel string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	metrics.NotificationsDispatched.WithLabelValues(channel, status).Inc()
}
