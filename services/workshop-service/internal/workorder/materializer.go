package workorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/model"
	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/parts"
	"github.com/google/uuid"
)

var (
	ErrNotApproved         = errors.New("appointment is not approved")
	ErrAlreadyMaterialized = errors.New("appointment already has a work order")
	ErrNoServiceType       = errors.New("appointment has no service type")
)

// Sentinel values for vehicle attributes missing at snapshot time.
const (
	unknownValue = "Unknown"
	naValue      = "N/A"
)

const createAttempts = 5

// AppointmentStore is the slice of appointment persistence the materializer
// needs. MarkApproved is idempotent: an existing approval stamp is never
// overwritten.
type AppointmentStore interface {
	GetAppointment(ctx context.Context, id string) (*model.Appointment, error)
	MarkApproved(ctx context.Context, id, approverID string, now time.Time) error
}

type VehicleStore interface {
	GetVehicle(ctx context.Context, id string) (*model.Vehicle, error)
}

// Materializer converts an approved appointment into a single-line work
// order, gated on parts availability for the initial status.
type Materializer struct {
	appts    AppointmentStore
	vehicles VehicleStore
	store    Store
	resolver *parts.Resolver
	logger   *slog.Logger
	clock    func() time.Time
}

func NewMaterializer(appts AppointmentStore, vehicles VehicleStore, store Store, resolver *parts.Resolver, logger *slog.Logger) *Materializer {
	return &Materializer{
		appts:    appts,
		vehicles: vehicles,
		store:    store,
		resolver: resolver,
		logger:   logger,
		clock:    time.Now,
	}
}

func (m *Materializer) WithClock(clock func() time.Time) *Materializer {
	m.clock = clock
	return m
}

type MaterializeResult struct {
	WorkOrder    *WorkOrder
	Appointment  *model.Appointment
	Availability parts.Availability
}

// Materialize turns an approved appointment into a work order. The
// availability result is returned so callers can surface missing-parts
// warnings without a second resolver call. Short parts do not fail the
// operation; they route the new work order to on_hold.
func (m *Materializer) Materialize(ctx context.Context, appointmentID, approverID string) (*MaterializeResult, error) {
	appt, err := m.appts.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.ApprovalStatus != model.ApprovalApproved {
		return nil, fmt.Errorf("%w (approval status %s)", ErrNotApproved, appt.ApprovalStatus)
	}
	exists, err := m.store.WorkOrderExistsForAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyMaterialized
	}
	if appt.ServiceTypeID == "" {
		return nil, ErrNoServiceType
	}

	now := m.clock()
	av := m.resolver.Resolve(ctx, requiredParts(appt))

	status := StatusPending
	if !av.AllAvailable {
		status = StatusOnHold
	}

	estimatedStart := appt.ScheduledAt
	estimatedCompletion := appt.ScheduledAt.Add(time.Duration(appt.DurationMinutes) * time.Minute)

	wo := &WorkOrder{
		ID:                  uuid.NewString(),
		CustomerID:          appt.CustomerID,
		SourceAppointmentID: appt.ID,
		Vehicle:             m.snapshotVehicle(ctx, appt.VehicleID, now),
		Lines:               []ServiceLine{serviceLine(appt)},
		Status:              status,
		Priority:            appt.Priority,
		EstimatedStart:      &estimatedStart,
		EstimatedCompletion: &estimatedCompletion,
		CreatedAt:           now,
	}
	wo.AppendNote(fmt.Sprintf("Created from appointment %s", appt.ID), now)
	if status == StatusOnHold {
		wo.AppendNote(fmt.Sprintf("on hold: %d part(s) unavailable", len(av.Missing)), now)
	}
	wo.CalculateTotals()

	if err := m.create(ctx, wo); err != nil {
		return nil, err
	}

	if err := m.appts.MarkApproved(ctx, appt.ID, approverID, now); err != nil {
		// The work order exists; surface the partial failure rather than
		// pretending the appointment was confirmed.
		return nil, fmt.Errorf("work order %s created but appointment update failed: %w", wo.Number, err)
	}
	appt.Status = model.AppointmentConfirmed
	appt.ApprovalStatus = model.ApprovalApproved

	m.logger.Info("appointment materialized",
		"appointment_id", appt.ID,
		"work_order_id", wo.ID,
		"number", wo.Number,
		"status", string(wo.Status),
		"parts_missing", len(av.Missing),
	)
	return &MaterializeResult{WorkOrder: wo, Appointment: appt, Availability: av}, nil
}

// create retries number collisions; a source-appointment uniqueness violation
// means another materialization won the race.
func (m *Materializer) create(ctx context.Context, wo *WorkOrder) error {
	var err error
	for i := 0; i < createAttempts; i++ {
		wo.Number = NewNumber(m.clock())
		err = m.store.CreateWorkOrder(ctx, wo, m.createdEvent(wo))
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNumberTaken) {
			return err
		}
	}
	return fmt.Errorf("could not allocate work order number after %d attempts: %w", createAttempts, err)
}

func (m *Materializer) snapshotVehicle(ctx context.Context, vehicleID string, now time.Time) VehicleSnapshot {
	snap := VehicleSnapshot{
		Make:         unknownValue,
		Model:        unknownValue,
		Year:         now.Year(),
		LicensePlate: naValue,
		VIN:          naValue,
	}
	if vehicleID == "" {
		return snap
	}
	v, err := m.vehicles.GetVehicle(ctx, vehicleID)
	if err != nil {
		m.logger.Warn("vehicle snapshot fell back to sentinels", "vehicle_id", vehicleID, "err", err)
		return snap
	}
	if v.Make != "" {
		snap.Make = v.Make
	}
	if v.Model != "" {
		snap.Model = v.Model
	}
	if v.Year > 0 {
		snap.Year = v.Year
	}
	if v.LicensePlate != "" {
		snap.LicensePlate = v.LicensePlate
	}
	if v.VIN != "" {
		snap.VIN = v.VIN
	}
	return snap
}

func (m *Materializer) createdEvent(wo *WorkOrder) Event {
	payload, _ := json.Marshal(map[string]any{
		"work_order_id":  wo.ID,
		"number":         wo.Number,
		"customer_id":    wo.CustomerID,
		"appointment_id": wo.SourceAppointmentID,
		"status":         string(wo.Status),
	})
	return Event{Type: EventCreated, Key: wo.ID, Payload: payload}
}

func serviceLine(appt *model.Appointment) ServiceLine {
	line := ServiceLine{
		Description: appt.ServiceTypeName,
		LaborHours:  appt.EstimatedLaborHours,
		LaborRate:   appt.LaborRate,
	}
	if line.Description == "" {
		line.Description = "Service"
	}
	for _, p := range appt.RequiredParts {
		line.Parts = append(line.Parts, LinePart{
			Name:       p.Name,
			PartNumber: p.PartNumber,
			Quantity:   p.Quantity,
			UnitPrice:  p.UnitCost,
		})
	}
	return line
}

func requiredParts(appt *model.Appointment) []parts.RequiredPart {
	var required []parts.RequiredPart
	for _, p := range appt.RequiredParts {
		required = append(required, parts.RequiredPart{
			Name:       p.Name,
			PartNumber: p.PartNumber,
			Quantity:   p.Quantity,
		})
	}
	return required
}
