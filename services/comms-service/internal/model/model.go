package model

import "time"

// DueAppointment is the scheduler's read model: one appointment inside the
// look-ahead window, joined with the customer contact details and reminder
// settings the pass needs.
type DueAppointment struct {
	ID               string
	CustomerID       string
	CustomerName     string
	CustomerEmail    string
	CustomerPhone    string
	PreferredContact string
	ServiceTypeName  string
	Vehicle          string
	ScheduledAt      time.Time
	Status           string

	Send24h     bool
	Send2h      bool
	SendSameDay bool
}

// Notification types emitted by the generator jobs.
const (
	TypeServiceReminder     = "service_reminder"
	TypeAppointmentReminder = "appointment_reminder"
	TypePaymentReminder     = "payment_reminder"
	TypeMaintenanceAlert    = "maintenance_alert"
	TypeFollowUp            = "follow_up"
)

// Notification statuses.
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
	NotificationRead    = "read"
)

// Notification is one generated communication unit, persisted pending and
// picked up by downstream delivery. DedupKey makes repeated generator runs
// within the same period insert-idempotent.
type Notification struct {
	ID           string
	CustomerID   string
	Type         string
	Title        string
	Message      string
	Priority     string
	Channel      string
	Status       string
	ScheduledFor time.Time

	VehicleID     string
	AppointmentID string
	ServiceID     string
	InvoiceID     string

	Metadata map[string]any

	DedupKey string
}

// VehicleCondition is the generator's read model for the service-reminder
// job: one active vehicle with its service history summary.
type VehicleCondition struct {
	VehicleID          string
	CustomerID         string
	Description        string
	CurrentMileage     int
	LastServiceMileage int
	LastServiceDate    *time.Time
}

// TomorrowAppointment is one scheduled appointment for the next calendar day.
type TomorrowAppointment struct {
	ID              string
	CustomerID      string
	ServiceTypeName string
	ScheduledAt     time.Time
}

// OverdueInvoice is one pending invoice past its due date.
type OverdueInvoice struct {
	ID         string
	Number     string
	CustomerID string
	Amount     float64
	DueDate    time.Time
}

// CompletedService is one service record finished on a given day.
type CompletedService struct {
	ID          string
	CustomerID  string
	VehicleID   string
	Description string
	CompletedAt time.Time
}
