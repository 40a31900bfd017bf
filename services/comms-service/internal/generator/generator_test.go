package generator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Victorya2/auto-repair-system-sub004/services/comms-service/internal/model"
)

var genBase = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

type fakeStore struct {
	vehicles []model.VehicleCondition
	appts    []model.TomorrowAppointment
	invoices []model.OverdueInvoice
	services []model.CompletedService

	apptFrom, apptTo time.Time
	svcFrom, svcTo   time.Time

	inserted []model.Notification
	seenKeys map[string]bool
}

func (s *fakeStore) ActiveVehicleConditions(_ context.Context) ([]model.VehicleCondition, error) {
	return s.vehicles, nil
}

func (s *fakeStore) AppointmentsScheduledBetween(_ context.Context, from, to time.Time) ([]model.TomorrowAppointment, error) {
	s.apptFrom, s.apptTo = from, to
	return s.appts, nil
}

func (s *fakeStore) OverdueInvoices(_ context.Context, _ time.Time) ([]model.OverdueInvoice, error) {
	return s.invoices, nil
}

func (s *fakeStore) ServicesCompletedBetween(_ context.Context, from, to time.Time) ([]model.CompletedService, error) {
	s.svcFrom, s.svcTo = from, to
	return s.services, nil
}

func (s *fakeStore) InsertNotifications(_ context.Context, notifications []model.Notification) (int, error) {
	if s.seenKeys == nil {
		s.seenKeys = map[string]bool{}
	}
	inserted := 0
	for _, n := range notifications {
		if s.seenKeys[n.DedupKey] {
			continue
		}
		s.seenKeys[n.DedupKey] = true
		s.inserted = append(s.inserted, n)
		inserted++
	}
	return inserted, nil
}

func testGenerator(store *fakeStore) *Generator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, logger).WithClock(func() time.Time { return genBase })
}

func findByType(batch []model.Notification, dedupPrefix string) *model.Notification {
	for i := range batch {
		if len(batch[i].DedupKey) >= len(dedupPrefix) && batch[i].DedupKey[:len(dedupPrefix)] == dedupPrefix {
			return &batch[i]
		}
	}
	return nil
}

func TestServiceReminders_MileageConditionsCoFire(t *testing.T) {
	store := &fakeStore{vehicles: []model.VehicleCondition{{
		VehicleID:          "veh-1",
		CustomerID:         "cust-1",
		Description:        "2019 Honda Civic",
		CurrentMileage:     33000,
		LastServiceMileage: 0,
	}}}

	inserted, err := testGenerator(store).ServiceReminders(context.Background())
	if err != nil {
		t.Fatalf("service reminders: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("expected oil_change and major_service to co-fire, inserted %d", inserted)
	}

	oil := findByType(store.inserted, "oil_change:veh-1:")
	if oil == nil || oil.Priority != "medium" || oil.Type != model.TypeServiceReminder {
		t.Fatalf("oil change notification wrong: %+v", oil)
	}
	major := findByType(store.inserted, "major_service:veh-1:")
	if major == nil || major.Priority != "high" {
		t.Fatalf("major service notification wrong: %+v", major)
	}
	if oil.DedupKey != "oil_change:veh-1:2026-09" {
		t.Fatalf("dedup key must carry the month, got %q", oil.DedupKey)
	}
}

func TestServiceReminders_CalendarConditionsCoFire(t *testing.T) {
	last := genBase.AddDate(0, -13, 0)
	store := &fakeStore{vehicles: []model.VehicleCondition{{
		VehicleID:       "veh-1",
		CustomerID:      "cust-1",
		CurrentMileage:  1000,
		LastServiceDate: &last,
	}}}

	inserted, err := testGenerator(store).ServiceReminders(context.Background())
	if err != nil {
		t.Fatalf("service reminders: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("13-month-old service must fire annual and seasonal, inserted %d", inserted)
	}
	seasonal := findByType(store.inserted, "seasonal_maintenance:")
	if seasonal == nil || seasonal.Type != model.TypeMaintenanceAlert {
		t.Fatalf("seasonal alert wrong: %+v", seasonal)
	}
}

func TestServiceReminders_BelowThresholdsSilent(t *testing.T) {
	recent := genBase.AddDate(0, -2, 0)
	store := &fakeStore{vehicles: []model.VehicleCondition{{
		VehicleID:          "veh-1",
		CurrentMileage:     2999,
		LastServiceMileage: 0,
		LastServiceDate:    &recent,
	}}}

	inserted, err := testGenerator(store).ServiceReminders(context.Background())
	if err != nil {
		t.Fatalf("service reminders: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("no thresholds crossed, inserted %d: %+v", inserted, store.inserted)
	}
}

func TestServiceReminders_RerunSameMonthIsIdempotent(t *testing.T) {
	store := &fakeStore{vehicles: []model.VehicleCondition{{
		VehicleID:          "veh-1",
		CurrentMileage:     5000,
		LastServiceMileage: 0,
	}}}
	gen := testGenerator(store)

	first, err := gen.ServiceReminders(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := gen.ServiceReminders(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first != 1 || second != 0 {
		t.Fatalf("rerun within the month must be skipped: first=%d second=%d", first, second)
	}
}

func TestAppointmentReminders_TomorrowWindow(t *testing.T) {
	store := &fakeStore{appts: []model.TomorrowAppointment{{
		ID:              "appt-1",
		CustomerID:      "cust-1",
		ServiceTypeName: "Oil Change",
		ScheduledAt:     time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC),
	}}}

	inserted, err := testGenerator(store).AppointmentReminders(context.Background())
	if err != nil {
		t.Fatalf("appointment reminders: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("expected one reminder, inserted %d", inserted)
	}

	wantFrom := time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)
	wantTo := time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC)
	if !store.apptFrom.Equal(wantFrom) || !store.apptTo.Equal(wantTo) {
		t.Fatalf("query window [%v, %v), want [%v, %v)", store.apptFrom, store.apptTo, wantFrom, wantTo)
	}
	n := store.inserted[0]
	if n.Type != model.TypeAppointmentReminder || n.AppointmentID != "appt-1" {
		t.Fatalf("notification wrong: %+v", n)
	}
	if n.DedupKey != "appointment_reminder:appt-1:2026-09-02" {
		t.Fatalf("dedup key: %q", n.DedupKey)
	}
}

func TestPaymentReminders_OverdueInvoiceIsUrgent(t *testing.T) {
	store := &fakeStore{invoices: []model.OverdueInvoice{{
		ID:         "inv-1",
		Number:     "INV-1042",
		CustomerID: "cust-1",
		Amount:     412.50,
		DueDate:    time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
	}}}

	inserted, err := testGenerator(store).PaymentReminders(context.Background())
	if err != nil {
		t.Fatalf("payment reminders: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("expected one reminder, inserted %d", inserted)
	}
	n := store.inserted[0]
	if n.Priority != "urgent" || n.Type != model.TypePaymentReminder {
		t.Fatalf("notification wrong: %+v", n)
	}
	if !contains(n.Message, "INV-1042") || !contains(n.Message, "412.50") {
		t.Fatalf("message must name invoice and amount: %q", n.Message)
	}
}

func TestFollowUps_YesterdayWindow(t *testing.T) {
	store := &fakeStore{services: []model.CompletedService{{
		ID:          "svc-1",
		CustomerID:  "cust-1",
		VehicleID:   "veh-1",
		Description: "Brake Service",
		CompletedAt: time.Date(2026, 8, 31, 15, 0, 0, 0, time.UTC),
	}}}

	inserted, err := testGenerator(store).FollowUps(context.Background())
	if err != nil {
		t.Fatalf("follow ups: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("expected one follow-up, inserted %d", inserted)
	}

	wantFrom := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	wantTo := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if !store.svcFrom.Equal(wantFrom) || !store.svcTo.Equal(wantTo) {
		t.Fatalf("query window [%v, %v), want [%v, %v)", store.svcFrom, store.svcTo, wantFrom, wantTo)
	}
	n := store.inserted[0]
	if n.Priority != "low" || n.Type != model.TypeFollowUp || n.ServiceID != "svc-1" {
		t.Fatalf("notification wrong: %+v", n)
	}
}

func TestMonthsBetween(t *testing.T) {
	from := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)
	if got := monthsBetween(from, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)); got != 11 {
		t.Fatalf("partial month must not count, got %d", got)
	}
	if got := monthsBetween(from, time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)); got != 12 {
		t.Fatalf("exact anniversary is 12 months, got %d", got)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
