package workorder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/model"
	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/parts"
)

type fakeAppointments struct {
	appts    map[string]*model.Appointment
	approved map[string]string
}

func (f *fakeAppointments) GetAppointment(_ context.Context, id string) (*model.Appointment, error) {
	appt, ok := f.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *appt
	return &cp, nil
}

func (f *fakeAppointments) MarkApproved(_ context.Context, id, approverID string, _ time.Time) error {
	if f.approved == nil {
		f.approved = map[string]string{}
	}
	if _, done := f.approved[id]; !done {
		f.approved[id] = approverID
	}
	return nil
}

type fakeVehicles struct {
	vehicles map[string]*model.Vehicle
	err      error
}

func (f *fakeVehicles) GetVehicle(_ context.Context, id string) (*model.Vehicle, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.vehicles[id]
	if !ok {
		return nil, errors.New("vehicle not found")
	}
	cp := *v
	return &cp, nil
}

func approvedAppointment() *model.Appointment {
	return &model.Appointment{
		ID:                  "appt-1",
		CustomerID:          "cust-1",
		VehicleID:           "veh-1",
		ServiceTypeID:       "svc-brakes",
		ServiceTypeName:     "Brake Service",
		ScheduledAt:         time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC),
		DurationMinutes:     90,
		Status:              model.AppointmentScheduled,
		ApprovalStatus:      model.ApprovalApproved,
		Priority:            "medium",
		EstimatedLaborHours: 1.5,
		LaborRate:           100,
		RequiredParts: []model.RequiredPart{
			{Name: "Brake Pad", PartNumber: "BP-100", Quantity: 2, UnitCost: 45},
		},
	}
}

func testMaterializer(appts *fakeAppointments, vehicles *fakeVehicles, store *fakeStore, stock map[string]int) *Materializer {
	resolver := parts.NewResolver(&stockLookup{stock: stock})
	m := NewMaterializer(appts, vehicles, store, resolver, testLogger())
	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	return m.WithClock(func() time.Time { return base })
}

func TestMaterialize_ShortPartsRouteToOnHold(t *testing.T) {
	appts := &fakeAppointments{appts: map[string]*model.Appointment{"appt-1": approvedAppointment()}}
	vehicles := &fakeVehicles{vehicles: map[string]*model.Vehicle{
		"veh-1": {ID: "veh-1", Make: "Toyota", Model: "Corolla", Year: 2021, LicensePlate: "ABC-123", VIN: "1NXBR32E85Z123456"},
	}}
	store := newFakeStore()
	m := testMaterializer(appts, vehicles, store, map[string]int{"BP-100": 1})

	res, err := m.Materialize(context.Background(), "appt-1", "advisor-2")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}

	if res.Availability.AllAvailable {
		t.Fatalf("expected shortage for qty 2 vs stock 1")
	}
	if len(res.Availability.Missing) != 1 || res.Availability.Missing[0].ShortBy != 1 {
		t.Fatalf("expected Brake Pad short by 1, got %+v", res.Availability.Missing)
	}
	wo := res.WorkOrder
	if wo.Status != StatusOnHold {
		t.Fatalf("expected on_hold, got %s", wo.Status)
	}
	if wo.SourceAppointmentID != "appt-1" {
		t.Fatalf("source appointment not recorded")
	}
	if indexOf(wo.Notes, "Created from appointment appt-1") < 0 {
		t.Fatalf("origin note missing, got %q", wo.Notes)
	}
	if indexOf(wo.Notes, "on hold: 1 part(s) unavailable") < 0 {
		t.Fatalf("hold note missing, got %q", wo.Notes)
	}
	if wo.Vehicle.Make != "Toyota" || wo.Vehicle.VIN != "1NXBR32E85Z123456" {
		t.Fatalf("vehicle snapshot wrong: %+v", wo.Vehicle)
	}
	// Single line from the appointment: 1.5h * 100 labor + 2 * 45 parts.
	if wo.TotalLaborCost != 150 || wo.TotalPartsCost != 90 || wo.TotalCost != 240 {
		t.Fatalf("totals wrong: labor=%v parts=%v total=%v", wo.TotalLaborCost, wo.TotalPartsCost, wo.TotalCost)
	}
	if res.Appointment.Status != model.AppointmentConfirmed {
		t.Fatalf("appointment should be confirmed, got %s", res.Appointment.Status)
	}
	if appts.approved["appt-1"] != "advisor-2" {
		t.Fatalf("approval not recorded")
	}

	var sawCreated bool
	for _, ev := range store.events {
		if ev.Type == EventCreated {
			sawCreated = true
		}
	}
	if !sawCreated {
		t.Fatalf("expected a created event")
	}
}

func TestMaterialize_AllPartsAvailableGoesPending(t *testing.T) {
	appts := &fakeAppointments{appts: map[string]*model.Appointment{"appt-1": approvedAppointment()}}
	store := newFakeStore()
	m := testMaterializer(appts, &fakeVehicles{}, store, map[string]int{"BP-100": 4})

	res, err := m.Materialize(context.Background(), "appt-1", "advisor-2")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if res.WorkOrder.Status != StatusPending {
		t.Fatalf("expected pending, got %s", res.WorkOrder.Status)
	}
	if res.WorkOrder.EstimatedStart == nil || res.WorkOrder.EstimatedCompletion == nil {
		t.Fatalf("estimated window not set")
	}
	want := time.Date(2026, 9, 2, 11, 30, 0, 0, time.UTC)
	if !res.WorkOrder.EstimatedCompletion.Equal(want) {
		t.Fatalf("estimated completion %v, want %v", res.WorkOrder.EstimatedCompletion, want)
	}
}

func TestMaterialize_RefusesUnapproved(t *testing.T) {
	appt := approvedAppointment()
	appt.ApprovalStatus = model.ApprovalPending
	appts := &fakeAppointments{appts: map[string]*model.Appointment{"appt-1": appt}}
	m := testMaterializer(appts, &fakeVehicles{}, newFakeStore(), nil)

	_, err := m.Materialize(context.Background(), "appt-1", "advisor-2")
	if !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
}

func TestMaterialize_RefusesSecondWorkOrder(t *testing.T) {
	appts := &fakeAppointments{appts: map[string]*model.Appointment{"appt-1": approvedAppointment()}}
	store := newFakeStore()
	m := testMaterializer(appts, &fakeVehicles{}, store, map[string]int{"BP-100": 4})

	if _, err := m.Materialize(context.Background(), "appt-1", "advisor-2"); err != nil {
		t.Fatalf("first materialize: %v", err)
	}
	_, err := m.Materialize(context.Background(), "appt-1", "advisor-2")
	if !errors.Is(err, ErrAlreadyMaterialized) {
		t.Fatalf("expected ErrAlreadyMaterialized, got %v", err)
	}
}

func TestMaterialize_RefusesMissingServiceType(t *testing.T) {
	appt := approvedAppointment()
	appt.ServiceTypeID = ""
	appts := &fakeAppointments{appts: map[string]*model.Appointment{"appt-1": appt}}
	m := testMaterializer(appts, &fakeVehicles{}, newFakeStore(), nil)

	_, err := m.Materialize(context.Background(), "appt-1", "advisor-2")
	if !errors.Is(err, ErrNoServiceType) {
		t.Fatalf("expected ErrNoServiceType, got %v", err)
	}
}

func TestMaterialize_VehicleLookupFailureFallsBackToSentinels(t *testing.T) {
	appts := &fakeAppointments{appts: map[string]*model.Appointment{"appt-1": approvedAppointment()}}
	vehicles := &fakeVehicles{err: errors.New("db down")}
	m := testMaterializer(appts, vehicles, newFakeStore(), map[string]int{"BP-100": 4})

	res, err := m.Materialize(context.Background(), "appt-1", "advisor-2")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	snap := res.WorkOrder.Vehicle
	if snap.Make != "Unknown" || snap.Model != "Unknown" {
		t.Fatalf("expected Unknown make/model, got %+v", snap)
	}
	if snap.LicensePlate != "N/A" || snap.VIN != "N/A" {
		t.Fatalf("expected N/A plate/vin, got %+v", snap)
	}
	if snap.Year != 2026 {
		t.Fatalf("expected current-year fallback, got %d", snap.Year)
	}
}

func TestMaterialize_RetriesNumberCollision(t *testing.T) {
	appts := &fakeAppointments{appts: map[string]*model.Appointment{"appt-1": approvedAppointment()}}
	store := newFakeStore()
	// Pre-claim one number; even if the generator lands on it, the retry
	// loop must still allocate a free one.
	store.numbersTaken["WO-20260901-0000"] = true
	m := testMaterializer(appts, &fakeVehicles{}, store, map[string]int{"BP-100": 4})

	res, err := m.Materialize(context.Background(), "appt-1", "advisor-2")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if res.WorkOrder.Number == "" {
		t.Fatalf("no number assigned")
	}
}
