package workorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/parts"
)

var (
	// ErrNotFound is returned by stores when a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPartsUnavailable blocks start() from on_hold while the parts gate fails.
	ErrPartsUnavailable = errors.New("parts still not available")
	// ErrStale is returned when the optimistic-lock version check fails.
	ErrStale = errors.New("work order was modified concurrently")
	// ErrNumberTaken signals a work-order number collision; creation retries.
	ErrNumberTaken = errors.New("work order number already taken")
)

// Domain event types published through the outbox.
const (
	EventCreated   = "workshop.workorder.created.v1"
	EventStatus    = "workshop.workorder.status.v1"
	EventCompleted = "workshop.workorder.completed.v1"
)

// Event is a domain event recorded in the same transaction as the work-order
// write that caused it.
type Event struct {
	Type    string
	Key     string
	Payload []byte
}

// Store persists work orders. Update performs a compare-and-swap on Version
// and returns ErrStale when the row moved underneath the caller; both Create
// and Update write the given events atomically with the record.
type Store interface {
	GetWorkOrder(ctx context.Context, id string) (*WorkOrder, error)
	CreateWorkOrder(ctx context.Context, wo *WorkOrder, events ...Event) error
	UpdateWorkOrder(ctx context.Context, wo *WorkOrder, events ...Event) error
	WorkOrderExistsForAppointment(ctx context.Context, appointmentID string) (bool, error)
}

// QCReport is the quality-control payload supplied at completion.
type QCReport struct {
	TestDriveOK        bool
	VisualInspectionOK bool
	Notes              string
	CompletedBy        string
	// Optional actual-cost overrides; nil leaves computed totals in place.
	ActualLaborCost *float64
	ActualPartsCost *float64
}

// Service owns the work-order lifecycle. All mutations pass through the
// transition table and land as a single CAS update per operation.
type Service struct {
	store    Store
	resolver *parts.Resolver
	logger   *slog.Logger
	clock    func() time.Time
}

func NewService(store Store, resolver *parts.Resolver, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		resolver: resolver,
		logger:   logger,
		clock:    time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Start moves a work order to in_progress. Legal from pending or on_hold;
// resuming from on_hold re-runs the parts gate first and fails without any
// state change while parts are short.
func (s *Service) Start(ctx context.Context, id, technicianID string) (*WorkOrder, error) {
	wo, err := s.store.GetWorkOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if wo.Status != StatusPending && wo.Status != StatusOnHold {
		return nil, &TransitionError{From: wo.Status, To: StatusInProgress, Op: "start"}
	}

	if wo.Status == StatusOnHold {
		av := s.resolver.Resolve(ctx, wo.RequiredParts())
		if !av.AllAvailable {
			return nil, fmt.Errorf("%w: %d part(s) short", ErrPartsUnavailable, len(av.Missing))
		}
	}

	now := s.clock()
	from := wo.Status
	if err := Transition(wo, StatusInProgress, now); err != nil {
		return nil, err
	}
	if technicianID != "" && technicianID != wo.TechnicianID {
		wo.TechnicianID = technicianID
		wo.AppendNote("technician assigned: "+technicianID, now)
	}
	wo.AppendNote("work started", now)
	wo.CalculateTotals()

	if err := s.store.UpdateWorkOrder(ctx, wo, s.statusEvent(wo, from)); err != nil {
		return nil, err
	}
	s.logger.Info("work order started", "work_order_id", wo.ID, "number", wo.Number, "technician_id", wo.TechnicianID)
	return wo, nil
}

// UpdateProgress records progress on an in_progress work order. Reaching 100
// routes through the explicit complete transition with a system-generated QC
// note, so completion and 100% land in the same update.
func (s *Service) UpdateProgress(ctx context.Context, id string, percent int, note string) (*WorkOrder, error) {
	wo, err := s.store.GetWorkOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if wo.Status != StatusInProgress {
		return nil, &TransitionError{From: wo.Status, To: StatusInProgress, Op: "update progress"}
	}

	now := s.clock()
	if percent > 100 {
		percent = 100
	}
	if note == "" {
		note = fmt.Sprintf("progress updated to %d%%", percent)
	}
	wo.Progress = percent
	wo.AppendNote(note, now)

	if percent >= 100 {
		return s.complete(ctx, wo, QCReport{
			Notes:       "auto-completed at 100% progress",
			CompletedBy: "system",
		}, now)
	}

	wo.CalculateTotals()
	if err := s.store.UpdateWorkOrder(ctx, wo, s.statusEvent(wo, wo.Status)); err != nil {
		return nil, err
	}
	return wo, nil
}

// Complete finishes an in_progress work order with a QC report.
func (s *Service) Complete(ctx context.Context, id string, qc QCReport) (*WorkOrder, error) {
	wo, err := s.store.GetWorkOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if wo.Status != StatusInProgress {
		return nil, &TransitionError{From: wo.Status, To: StatusCompleted, Op: "complete"}
	}
	return s.complete(ctx, wo, qc, s.clock())
}

func (s *Service) complete(ctx context.Context, wo *WorkOrder, qc QCReport, now time.Time) (*WorkOrder, error) {
	from := wo.Status
	if err := Transition(wo, StatusCompleted, now); err != nil {
		return nil, err
	}

	wo.AppendNote(qcNote(qc), now)
	wo.CalculateTotals()
	if qc.ActualLaborCost != nil {
		wo.TotalLaborCost = *qc.ActualLaborCost
		wo.TotalCost = round2(wo.TotalLaborCost + wo.TotalPartsCost)
	}
	if qc.ActualPartsCost != nil {
		wo.TotalPartsCost = *qc.ActualPartsCost
		wo.TotalCost = round2(wo.TotalLaborCost + wo.TotalPartsCost)
	}

	events := []Event{s.statusEvent(wo, from), s.completedEvent(wo)}
	if err := s.store.UpdateWorkOrder(ctx, wo, events...); err != nil {
		return nil, err
	}
	s.logger.Info("work order completed", "work_order_id", wo.ID, "number", wo.Number, "total_cost", wo.TotalCost)
	return wo, nil
}

func qcNote(qc QCReport) string {
	note := fmt.Sprintf("qc: test drive=%s, visual inspection=%s", passFail(qc.TestDriveOK), passFail(qc.VisualInspectionOK))
	if qc.CompletedBy != "" {
		note += ", approved by " + qc.CompletedBy
	}
	if qc.Notes != "" {
		note += "; " + qc.Notes
	}
	return note
}

func passFail(ok bool) string {
	if ok {
		return "pass"
	}
	return "fail"
}

// UpdateStatus is the generic staff-driven transition (cancel, hold, and the
// rest of the table). Timestamps are stamped opportunistically even on this
// path.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status, note string) (*WorkOrder, error) {
	if !ValidStatus(to) {
		return nil, fmt.Errorf("unknown work order status %q", to)
	}
	wo, err := s.store.GetWorkOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	from := wo.Status
	if err := Transition(wo, to, now); err != nil {
		return nil, err
	}
	if note == "" {
		note = fmt.Sprintf("status changed to %s", to)
	}
	wo.AppendNote(note, now)
	wo.CalculateTotals()

	events := []Event{s.statusEvent(wo, from)}
	if to == StatusCompleted {
		events = append(events, s.completedEvent(wo))
	}
	if err := s.store.UpdateWorkOrder(ctx, wo, events...); err != nil {
		return nil, err
	}
	return wo, nil
}

// RecheckParts re-runs the availability gate over all service lines. An
// on_hold work order whose parts are back in stock returns to the pending
// queue; in every other state this is diagnostic only.
func (s *Service) RecheckParts(ctx context.Context, id string) (*WorkOrder, parts.Availability, error) {
	wo, err := s.store.GetWorkOrder(ctx, id)
	if err != nil {
		return nil, parts.Availability{}, err
	}

	av := s.resolver.Resolve(ctx, wo.RequiredParts())
	if wo.Status != StatusOnHold || !av.AllAvailable {
		return wo, av, nil
	}

	now := s.clock()
	from := wo.Status
	if err := Transition(wo, StatusPending, now); err != nil {
		return nil, parts.Availability{}, err
	}
	wo.AppendNote("parts available again; returned to pending queue", now)
	wo.CalculateTotals()
	if err := s.store.UpdateWorkOrder(ctx, wo, s.statusEvent(wo, from)); err != nil {
		return nil, parts.Availability{}, err
	}
	s.logger.Info("work order resumed from hold", "work_order_id", wo.ID, "number", wo.Number)
	return wo, av, nil
}

func (s *Service) Get(ctx context.Context, id string) (*WorkOrder, error) {
	return s.store.GetWorkOrder(ctx, id)
}

func (s *Service) statusEvent(wo *WorkOrder, from Status) Event {
	payload, _ := json.Marshal(map[string]any{
		"work_order_id": wo.ID,
		"number":        wo.Number,
		"customer_id":   wo.CustomerID,
		"from":          string(from),
		"status":        string(wo.Status),
		"progress":      wo.Progress,
		"technician_id": wo.TechnicianID,
	})
	return Event{Type: EventStatus, Key: wo.ID, Payload: payload}
}

func (s *Service) completedEvent(wo *WorkOrder) Event {
	var completedAt string
	if wo.ActualCompletion != nil {
		completedAt = wo.ActualCompletion.UTC().Format(time.RFC3339)
	}
	payload, _ := json.Marshal(map[string]any{
		"work_order_id": wo.ID,
		"number":        wo.Number,
		"customer_id":   wo.CustomerID,
		"appointment_id": wo.SourceAppointmentID,
		"vehicle":       fmt.Sprintf("%d %s %s", wo.Vehicle.Year, wo.Vehicle.Make, wo.Vehicle.Model),
		"total_cost":    wo.TotalCost,
		"completed_at":  completedAt,
	})
	return Event{Type: EventCompleted, Key: wo.ID, Payload: payload}
}
