package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Victorya2/auto-repair-system-sub004/libs/db"
	"github.com/Victorya2/auto-repair-system-sub004/services/comms-service/internal/dispatch"
	"github.com/Victorya2/auto-repair-system-sub004/services/comms-service/internal/model"
	"github.com/Victorya2/auto-repair-system-sub004/services/comms-service/internal/outbox"
)

const (
	topicNotificationSent   = "comms.notification.sent.v1"
	topicNotificationFailed = "comms.notification.failed.v1"
)

// Repository is the comms side of the shared database: appointment reads for
// the scheduler, condition sweeps for the generator, and the append-only
// communication log.
type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, ob *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: ob}
}

// DueAppointments returns scheduled/confirmed appointments inside the
// look-ahead window, joined with customer contacts, reminder settings, and a
// vehicle description for the templates.
func (r *Repository) DueAppointments(ctx context.Context, from, until time.Time) ([]model.DueAppointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.customer_id,
			COALESCE(c.name, ''), COALESCE(c.email, ''), COALESCE(c.phone, ''),
			a.preferred_contact, COALESCE(st.name, ''),
			COALESCE(TRIM(CONCAT(v.year, ' ', v.make, ' ', v.model)), ''),
			a.scheduled_at, a.status,
			a.send_reminder_24h, a.send_reminder_2h, a.send_same_day
		FROM appointments a
		JOIN customers c ON c.id = a.customer_id
		LEFT JOIN vehicles v ON v.id = a.vehicle_id
		LEFT JOIN service_types st ON st.id = a.service_type_id
		WHERE a.status IN ('scheduled', 'confirmed')
		  AND a.scheduled_at > $1
		  AND a.scheduled_at <= $2
		ORDER BY a.scheduled_at
	`, from, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []model.DueAppointment
	for rows.Next() {
		var appt model.DueAppointment
		if err := rows.Scan(
			&appt.ID,
			&appt.CustomerID,
			&appt.CustomerName,
			&appt.CustomerEmail,
			&appt.CustomerPhone,
			&appt.PreferredContact,
			&appt.ServiceTypeName,
			&appt.Vehicle,
			&appt.ScheduledAt,
			&appt.Status,
			&appt.Send24h,
			&appt.Send2h,
			&appt.SendSameDay,
		); err != nil {
			return nil, err
		}
		due = append(due, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return due, nil
}

// LastSentByKind returns the most recent attempt per kind for one
// appointment, failed attempts included: a kind that failed delivery minutes
// ago must still suppress within the dedup window, otherwise an outage turns
// every pass into a retry storm. One aggregate query instead of a linear
// scan over the log.
func (r *Repository) LastSentByKind(ctx context.Context, appointmentID string) (map[string]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT kind, MAX(sent_at)
		FROM communications
		WHERE appointment_id = $1
		GROUP BY kind
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lastSent := make(map[string]time.Time)
	for rows.Next() {
		var kind string
		var sentAt time.Time
		if err := rows.Scan(&kind, &sentAt); err != nil {
			return nil, err
		}
		lastSent[kind] = sentAt
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return lastSent, nil
}

// AppendCommunications writes one pass's outcomes for an appointment in a
// single transaction, together with the matching outbox events.
func (r *Repository) AppendCommunications(ctx context.Context, appointmentID string, outcomes []dispatch.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, out := range outcomes {
		_, err := tx.Exec(ctx, `
			INSERT INTO communications (appointment_id, kind, channel, status, message_id, error_message, sent_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
		`, appointmentID, out.Kind, out.Channel, out.Status, out.MessageID, out.ErrorMessage, out.SentAt)
		if err != nil {
			return err
		}

		topic := topicNotificationSent
		if out.Status != dispatch.StatusSent {
			topic = topicNotificationFailed
		}
		payload, err := json.Marshal(map[string]any{
			"appointment_id": appointmentID,
			"kind":           out.Kind,
			"channel":        out.Channel,
			"status":         out.Status,
			"message_id":     out.MessageID,
			"error":          out.ErrorMessage,
			"sent_at":        out.SentAt.Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		if err := r.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: "communication",
			AggregateID:   appointmentID,
			EventType:     topic,
			Payload:       payload,
		}); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ActiveVehicleConditions returns each active customer's active vehicles
// with the service-history summary the threshold sweep needs.
func (r *Repository) ActiveVehicleConditions(ctx context.Context) ([]model.VehicleCondition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT v.id, v.customer_id,
			TRIM(CONCAT(v.year, ' ', v.make, ' ', v.model)),
			COALESCE(v.current_mileage, 0),
			COALESCE(v.last_service_mileage, 0),
			v.last_service_date
		FROM vehicles v
		JOIN customers c ON c.id = v.customer_id
		WHERE v.active AND c.active
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conditions []model.VehicleCondition
	for rows.Next() {
		var vc model.VehicleCondition
		if err := rows.Scan(
			&vc.VehicleID,
			&vc.CustomerID,
			&vc.Description,
			&vc.CurrentMileage,
			&vc.LastServiceMileage,
			&vc.LastServiceDate,
		); err != nil {
			return nil, err
		}
		conditions = append(conditions, vc)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return conditions, nil
}

func (r *Repository) AppointmentsScheduledBetween(ctx context.Context, from, to time.Time) ([]model.TomorrowAppointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.customer_id, COALESCE(st.name, ''), a.scheduled_at
		FROM appointments a
		LEFT JOIN service_types st ON st.id = a.service_type_id
		WHERE a.status = 'scheduled'
		  AND a.scheduled_at >= $1
		  AND a.scheduled_at < $2
		ORDER BY a.scheduled_at
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.TomorrowAppointment
	for rows.Next() {
		var appt model.TomorrowAppointment
		if err := rows.Scan(&appt.ID, &appt.CustomerID, &appt.ServiceTypeName, &appt.ScheduledAt); err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func (r *Repository) OverdueInvoices(ctx context.Context, asOf time.Time) ([]model.OverdueInvoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, number, customer_id, total_amount, due_date
		FROM invoices
		WHERE status = 'pending' AND due_date < $1
		ORDER BY due_date
	`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []model.OverdueInvoice
	for rows.Next() {
		var inv model.OverdueInvoice
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.Amount, &inv.DueDate); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return invoices, nil
}

func (r *Repository) ServicesCompletedBetween(ctx context.Context, from, to time.Time) ([]model.CompletedService, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, customer_id, COALESCE(vehicle_id::text, ''), COALESCE(description, ''), completed_at
		FROM services
		WHERE status = 'completed'
		  AND completed_at >= $1
		  AND completed_at < $2
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []model.CompletedService
	for rows.Next() {
		var svc model.CompletedService
		if err := rows.Scan(&svc.ID, &svc.CustomerID, &svc.VehicleID, &svc.Description, &svc.CompletedAt); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return services, nil
}

// InsertNotifications batch-inserts generated notifications. Rows whose
// dedup key already exists are skipped; the returned count is what actually
// landed.
func (r *Repository) InsertNotifications(ctx context.Context, notifications []model.Notification) (int, error) {
	if len(notifications) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted := 0
	for _, n := range notifications {
		var metadata []byte
		if n.Metadata != nil {
			metadata, err = json.Marshal(n.Metadata)
			if err != nil {
				return 0, fmt.Errorf("encode metadata for %s: %w", n.DedupKey, err)
			}
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO notifications
				(id, customer_id, type, title, message, priority, channel, status, scheduled_for,
				 vehicle_id, appointment_id, service_id, invoice_id, metadata, dedup_key)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9,
				NULLIF($10, '')::uuid, NULLIF($11, '')::uuid, NULLIF($12, '')::uuid, NULLIF($13, '')::uuid, $14, $15)
			ON CONFLICT (dedup_key) DO NOTHING
		`, n.ID, n.CustomerID, n.Type, n.Title, n.Message, n.Priority, n.Channel, n.Status, n.ScheduledFor,
			n.VehicleID, n.AppointmentID, n.ServiceID, n.InvoiceID, metadata, n.DedupKey)
		if err != nil {
			return 0, err
		}
		inserted += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return inserted, nil
}

// CustomerContact loads one customer's contact details for event-driven
// sends outside a scheduler pass.
func (r *Repository) CustomerContact(ctx context.Context, customerID string) (dispatch.Recipient, error) {
	var rcpt dispatch.Recipient
	err := r.pool.QueryRow(ctx, `
		SELECT id, COALESCE(name, ''), COALESCE(email, ''), COALESCE(phone, ''), COALESCE(preferred_contact, '')
		FROM customers
		WHERE id = $1
	`, customerID).Scan(&rcpt.CustomerID, &rcpt.Name, &rcpt.Email, &rcpt.Phone, &rcpt.PreferredContact)
	if err != nil {
		return dispatch.Recipient{}, err
	}
	if strings.TrimSpace(rcpt.PreferredContact) == "" {
		rcpt.PreferredContact = dispatch.ChannelEmail
	}
	return rcpt, nil
}
