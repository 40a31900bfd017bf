package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Victorya2/auto-repair-system-sub004/services/comms-service/internal/model"
)

// Mileage and calendar thresholds for the service-reminder job. Oil-change
// and major-service conditions are evaluated independently and may both fire
// for the same vehicle in the same pass; the calendar pair works the same
// way.
const (
	oilChangeMileage    = 3000
	majorServiceMileage = 30000
	seasonalAge         = 6  // months
	annualAge           = 12 // months
)

// Store is the read/write slice the batch jobs need. InsertNotifications is
// a single batch insert per job; rows whose dedup key already exists are
// skipped, so re-running a job within the same period is safe.
type Store interface {
	ActiveVehicleConditions(ctx context.Context) ([]model.VehicleCondition, error)
	AppointmentsScheduledBetween(ctx context.Context, from, to time.Time) ([]model.TomorrowAppointment, error)
	OverdueInvoices(ctx context.Context, asOf time.Time) ([]model.OverdueInvoice, error)
	ServicesCompletedBetween(ctx context.Context, from, to time.Time) ([]model.CompletedService, error)
	InsertNotifications(ctx context.Context, notifications []model.Notification) (int, error)
}

// Generator builds pending notification records from periodic condition
// sweeps. It never sends anything itself.
type Generator struct {
	store  Store
	logger *slog.Logger
	clock  func() time.Time
}

func New(store Store, logger *slog.Logger) *Generator {
	return &Generator{store: store, logger: logger, clock: time.Now}
}

// WithClock replaces the time source, for tests.
func (g *Generator) WithClock(clock func() time.Time) *Generator {
	g.clock = clock
	return g
}

// RunAll executes the four jobs in sequence. Job failures are logged and do
// not stop the remaining jobs.
func (g *Generator) RunAll(ctx context.Context) int {
	total := 0
	jobs := []struct {
		name string
		run  func(context.Context) (int, error)
	}{
		{"service_reminders", g.ServiceReminders},
		{"appointment_reminders", g.AppointmentReminders},
		{"payment_reminders", g.PaymentReminders},
		{"follow_ups", g.FollowUps},
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return total
		}
		n, err := job.run(ctx)
		if err != nil {
			g.logger.Error("notification job failed", "job", job.name, "err", err)
			continue
		}
		total += n
	}
	return total
}

// ServiceReminders sweeps active vehicles against the mileage and calendar
// thresholds. Dedup keys carry the month, so each condition fires at most
// once per vehicle per calendar month.
func (g *Generator) ServiceReminders(ctx context.Context) (int, error) {
	vehicles, err := g.store.ActiveVehicleConditions(ctx)
	if err != nil {
		return 0, err
	}

	now := g.clock()
	period := now.UTC().Format("2006-01")
	var batch []model.Notification
	for _, v := range vehicles {
		sinceService := v.CurrentMileage - v.LastServiceMileage
		if sinceService >= oilChangeMileage {
			batch = append(batch, g.mileageNotification(v, now, period, "oil_change", "medium",
				"Oil change due",
				fmt.Sprintf("%s has gone %d miles since its last service. Time for an oil change.", v.Description, sinceService)))
		}
		if sinceService >= majorServiceMileage {
			batch = append(batch, g.mileageNotification(v, now, period, "major_service", "high",
				"Major service due",
				fmt.Sprintf("%s has gone %d miles since its last service and is due for a major service.", v.Description, sinceService)))
		}
		if v.LastServiceDate != nil {
			age := monthsBetween(*v.LastServiceDate, now)
			if age >= annualAge {
				batch = append(batch, g.calendarNotification(v, now, period, "annual_service", "medium", model.TypeServiceReminder,
					"Annual service due",
					fmt.Sprintf("%s was last serviced %d months ago. An annual service is due.", v.Description, age)))
			}
			if age >= seasonalAge {
				batch = append(batch, g.calendarNotification(v, now, period, "seasonal_maintenance", "medium", model.TypeMaintenanceAlert,
					"Seasonal maintenance check",
					fmt.Sprintf("%s was last serviced %d months ago. A seasonal check is recommended.", v.Description, age)))
			}
		}
	}
	return g.insert(ctx, "service_reminders", batch)
}

// AppointmentReminders emits one notification per appointment scheduled for
// tomorrow (the next calendar day).
func (g *Generator) AppointmentReminders(ctx context.Context) (int, error) {
	now := g.clock()
	dayStart := now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	appts, err := g.store.AppointmentsScheduledBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return 0, err
	}

	var batch []model.Notification
	for _, appt := range appts {
		service := appt.ServiceTypeName
		if service == "" {
			service = "your appointment"
		}
		batch = append(batch, model.Notification{
			ID:            uuid.NewString(),
			CustomerID:    appt.CustomerID,
			Type:          model.TypeAppointmentReminder,
			Title:         "Appointment tomorrow",
			Message:       fmt.Sprintf("Reminder: %s is scheduled for %s.", service, appt.ScheduledAt.Format("Monday, Jan 2 at 3:04 PM")),
			Priority:      "medium",
			Status:        model.NotificationPending,
			ScheduledFor:  now,
			AppointmentID: appt.ID,
			DedupKey:      fmt.Sprintf("appointment_reminder:%s:%s", appt.ID, dayStart.Format("2006-01-02")),
		})
	}
	return g.insert(ctx, "appointment_reminders", batch)
}

// PaymentReminders emits one urgent notification per pending invoice past
// its due date, once per invoice per day.
func (g *Generator) PaymentReminders(ctx context.Context) (int, error) {
	now := g.clock()
	invoices, err := g.store.OverdueInvoices(ctx, now)
	if err != nil {
		return 0, err
	}

	day := now.UTC().Format("2006-01-02")
	var batch []model.Notification
	for _, inv := range invoices {
		batch = append(batch, model.Notification{
			ID:           uuid.NewString(),
			CustomerID:   inv.CustomerID,
			Type:         model.TypePaymentReminder,
			Title:        "Invoice overdue",
			Message:      fmt.Sprintf("Invoice %s for $%.2f was due on %s. Please arrange payment.", inv.Number, inv.Amount, inv.DueDate.Format("Jan 2, 2006")),
			Priority:     "urgent",
			Status:       model.NotificationPending,
			ScheduledFor: now,
			InvoiceID:    inv.ID,
			Metadata: map[string]any{
				"invoice_number": inv.Number,
				"amount":         inv.Amount,
				"due_date":       inv.DueDate.Format("2006-01-02"),
			},
			DedupKey: fmt.Sprintf("payment_reminder:%s:%s", inv.ID, day),
		})
	}
	return g.insert(ctx, "payment_reminders", batch)
}

// FollowUps emits one low-priority notification per service completed
// yesterday.
func (g *Generator) FollowUps(ctx context.Context) (int, error) {
	now := g.clock()
	dayStart := now.UTC().Truncate(24 * time.Hour).Add(-24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	services, err := g.store.ServicesCompletedBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return 0, err
	}

	var batch []model.Notification
	for _, svc := range services {
		desc := svc.Description
		if desc == "" {
			desc = "your recent service"
		}
		batch = append(batch, model.Notification{
			ID:           uuid.NewString(),
			CustomerID:   svc.CustomerID,
			Type:         model.TypeFollowUp,
			Title:        "How did we do?",
			Message:      fmt.Sprintf("Thanks for choosing us for %s. We'd love to hear how everything is running.", desc),
			Priority:     "low",
			Status:       model.NotificationPending,
			ScheduledFor: now,
			VehicleID:    svc.VehicleID,
			ServiceID:    svc.ID,
			DedupKey:     fmt.Sprintf("follow_up:%s", svc.ID),
		})
	}
	return g.insert(ctx, "follow_ups", batch)
}

func (g *Generator) mileageNotification(v model.VehicleCondition, now time.Time, period, condition, priority, title, message string) model.Notification {
	return model.Notification{
		ID:           uuid.NewString(),
		CustomerID:   v.CustomerID,
		Type:         model.TypeServiceReminder,
		Title:        title,
		Message:      message,
		Priority:     priority,
		Status:       model.NotificationPending,
		ScheduledFor: now,
		VehicleID:    v.VehicleID,
		Metadata: map[string]any{
			"current_mileage":      v.CurrentMileage,
			"last_service_mileage": v.LastServiceMileage,
		},
		DedupKey: fmt.Sprintf("%s:%s:%s", condition, v.VehicleID, period),
	}
}

func (g *Generator) calendarNotification(v model.VehicleCondition, now time.Time, period, condition, priority, notifType, title, message string) model.Notification {
	n := model.Notification{
		ID:           uuid.NewString(),
		CustomerID:   v.CustomerID,
		Type:         notifType,
		Title:        title,
		Message:      message,
		Priority:     priority,
		Status:       model.NotificationPending,
		ScheduledFor: now,
		VehicleID:    v.VehicleID,
		DedupKey:     fmt.Sprintf("%s:%s:%s", condition, v.VehicleID, period),
	}
	if v.LastServiceDate != nil {
		n.Metadata = map[string]any{
			"last_service_date": v.LastServiceDate.Format("2006-01-02"),
		}
	}
	return n
}

func (g *Generator) insert(ctx context.Context, job string, batch []model.Notification) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	inserted, err := g.store.InsertNotifications(ctx, batch)
	if err != nil {
		return 0, err
	}
	g.logger.Info("notification job finished", "job", job, "generated", len(batch), "inserted", inserted)
	return inserted, nil
}

func monthsBetween(from, to time.Time) int {
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
	if to.Day() < from.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
