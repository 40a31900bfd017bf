package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Victorya2/auto-repair-system-sub004/libs/db"
	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/model"
	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/workorder"
)

type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

// GetAppointment loads the appointment with the service-type name and labor
// estimate joined in, so materialization needs no second query.
func (r *AppointmentRepository) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	var appt model.Appointment
	var requiredParts []byte
	err := r.pool.QueryRow(ctx, `
		SELECT a.id, a.customer_id, COALESCE(a.vehicle_id::text, ''),
			COALESCE(a.service_type_id::text, ''), COALESCE(st.name, ''),
			a.scheduled_at, a.duration_minutes, a.status, a.approval_status,
			COALESCE(a.approved_by, ''), a.approved_at,
			a.priority, a.preferred_contact, COALESCE(a.required_parts, '[]'),
			a.send_reminder_24h, a.send_reminder_2h, a.send_same_day, a.reminder_channel,
			COALESCE(st.estimated_labor_hours, 0), COALESCE(st.labor_rate, 0),
			a.created_at
		FROM appointments a
		LEFT JOIN service_types st ON st.id = a.service_type_id
		WHERE a.id = $1
	`, id).Scan(
		&appt.ID,
		&appt.CustomerID,
		&appt.VehicleID,
		&appt.ServiceTypeID,
		&appt.ServiceTypeName,
		&appt.ScheduledAt,
		&appt.DurationMinutes,
		&appt.Status,
		&appt.ApprovalStatus,
		&appt.ApprovedBy,
		&appt.ApprovedAt,
		&appt.Priority,
		&appt.PreferredContact,
		&requiredParts,
		&appt.Reminders.Send24h,
		&appt.Reminders.Send2h,
		&appt.Reminders.SendSameDay,
		&appt.Reminders.Channel,
		&appt.EstimatedLaborHours,
		&appt.LaborRate,
		&appt.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, workorder.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(requiredParts, &appt.RequiredParts); err != nil {
		return nil, fmt.Errorf("decode required parts for %s: %w", appt.ID, err)
	}
	return &appt, nil
}

// MarkApproved confirms the appointment and stamps the approval. Idempotent:
// an earlier approval stamp wins, so replays keep the original approver.
func (r *AppointmentRepository) MarkApproved(ctx context.Context, id, approverID string, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			approval_status = $3,
			approved_by = COALESCE(approved_by, NULLIF($4, '')),
			approved_at = COALESCE(approved_at, $5),
			updated_at = now()
		WHERE id = $1
	`, id, model.AppointmentConfirmed, model.ApprovalApproved, approverID, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workorder.ErrNotFound
	}
	return nil
}
