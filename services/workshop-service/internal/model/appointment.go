package model

import "time"

// Appointment statuses.
const (
	AppointmentScheduled       = "scheduled"
	AppointmentPendingApproval = "pending_approval"
	AppointmentConfirmed       = "confirmed"
	AppointmentInProgress      = "in_progress"
	AppointmentCompleted       = "completed"
	AppointmentCancelled       = "cancelled"
	AppointmentNoShow          = "no_show"
)

// Approval statuses.
const (
	ApprovalPending          = "pending"
	ApprovalApproved         = "approved"
	ApprovalDeclined         = "declined"
	ApprovalRequiresFollowup = "requires_followup"
)

type RequiredPart struct {
	Name       string  `json:"name"`
	PartNumber string  `json:"part_number"`
	Quantity   int     `json:"quantity"`
	UnitCost   float64 `json:"unit_cost"`
	InStock    bool    `json:"in_stock"`
}

// ReminderSettings are the per-appointment enable flags plus the channel the
// customer asked for.
type ReminderSettings struct {
	Send24h     bool
	Send2h      bool
	SendSameDay bool
	Channel     string
}

type Appointment struct {
	ID              string
	CustomerID      string
	VehicleID       string
	ServiceTypeID   string
	ServiceTypeName string
	ScheduledAt     time.Time
	DurationMinutes int
	Status          string
	ApprovalStatus  string
	ApprovedBy      string
	ApprovedAt      *time.Time
	Priority        string
	PreferredContact string
	RequiredParts   []RequiredPart
	Reminders       ReminderSettings

	// Labor estimate carried from the service type at booking time.
	EstimatedLaborHours float64
	LaborRate           float64

	CreatedAt time.Time
}
