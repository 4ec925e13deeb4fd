package models

import "time"

// Role values mirror the PC-OTS user roles.
const (
	RoleAdmin        = "ADMIN"
	RoleReviewer     = "REVIEWER"
	RoleCompliance   = "COMPLIANCE"
	RoleLocalContent = "LOCAL_CONTENT"
	RoleInspector    = "INSPECTOR"
	RoleCompany      = "COMPANY"
)

// Delivery channels.
const (
	ChannelInApp = "IN_APP"
	ChannelEmail = "EMAIL"
	ChannelSMS   = "SMS"
)

// Permit and inspection statuses referenced by the sweeps.
const (
	PermitStatusApproved    = "APPROVED"
	InspectionStatusScheduled = "SCHEDULED"
)

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
	CompanyID string `json:"companyId,omitempty"`
}

type Company struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Notification is one in-app delivery record. Rows are append-only; the only
// mutation is the recipient marking them read.
type Notification struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	RecipientID string     `json:"recipientId"`
	SenderID    string     `json:"senderId"`
	Read        bool       `json:"read"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`

	// Optional traceability back to the triggering entity.
	PermitID     string `json:"permitId,omitempty"`
	InspectionID string `json:"inspectionId,omitempty"`
	ReportID     string `json:"reportId,omitempty"`
	PaymentID    string `json:"paymentId,omitempty"`
}

// NotificationPreferences is a one-to-one opt-in record per user. A missing
// row means every channel is enabled.
type NotificationPreferences struct {
	UserID       string `json:"userId"`
	EmailEnabled bool   `json:"emailEnabled"`
	SMSEnabled   bool   `json:"smsEnabled"`
	InAppEnabled bool   `json:"inAppEnabled"`
}

type Permit struct {
	ID         string    `json:"id"`
	CompanyID  string    `json:"companyId"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	ExpiryDate time.Time `json:"expiryDate"`
}

type Inspection struct {
	ID            string    `json:"id"`
	PermitID      string    `json:"permitId"`
	CompanyID     string    `json:"companyId"`
	InspectorID   string    `json:"inspectorId"`
	Status        string    `json:"status"`
	ScheduledDate time.Time `json:"scheduledDate"`
}

type LcPerformanceReport struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"companyId"`
	Period    string    `json:"period"`
	DueDate   time.Time `json:"dueDate"`
	Submitted bool      `json:"submitted"`
}
