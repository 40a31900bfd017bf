package workorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/inventory"
	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/parts"
)

type fakeStore struct {
	orders        map[string]*WorkOrder
	events        []Event
	byAppointment map[string]bool
	numbersTaken  map[string]bool
	updates       int
}

func newFakeStore(orders ...*WorkOrder) *fakeStore {
	s := &fakeStore{
		orders:        map[string]*WorkOrder{},
		byAppointment: map[string]bool{},
		numbersTaken:  map[string]bool{},
	}
	for _, wo := range orders {
		s.orders[wo.ID] = wo
	}
	return s
}

func (s *fakeStore) GetWorkOrder(_ context.Context, id string) (*WorkOrder, error) {
	wo, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *wo
	return &cp, nil
}

func (s *fakeStore) CreateWorkOrder(_ context.Context, wo *WorkOrder, events ...Event) error {
	if s.numbersTaken[wo.Number] {
		return ErrNumberTaken
	}
	if wo.SourceAppointmentID != "" && s.byAppointment[wo.SourceAppointmentID] {
		return ErrAlreadyMaterialized
	}
	s.numbersTaken[wo.Number] = true
	if wo.SourceAppointmentID != "" {
		s.byAppointment[wo.SourceAppointmentID] = true
	}
	cp := *wo
	s.orders[wo.ID] = &cp
	s.events = append(s.events, events...)
	return nil
}

func (s *fakeStore) UpdateWorkOrder(_ context.Context, wo *WorkOrder, events ...Event) error {
	current, ok := s.orders[wo.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != wo.Version {
		return ErrStale
	}
	wo.Version++
	cp := *wo
	s.orders[wo.ID] = &cp
	s.events = append(s.events, events...)
	s.updates++
	return nil
}

func (s *fakeStore) WorkOrderExistsForAppointment(_ context.Context, appointmentID string) (bool, error) {
	return s.byAppointment[appointmentID], nil
}

type stockLookup struct {
	stock map[string]int
}

func (l *stockLookup) FindByPartNumberOrName(_ context.Context, partNumber, _ string) (inventory.Item, error) {
	stock, ok := l.stock[partNumber]
	if !ok {
		return inventory.Item{}, inventory.ErrNotFound
	}
	return inventory.Item{ID: "inv-" + partNumber, PartNumber: partNumber, CurrentStock: stock}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testService(store *fakeStore, stock map[string]int) *Service {
	resolver := parts.NewResolver(&stockLookup{stock: stock})
	svc := NewService(store, resolver, testLogger())
	base := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	return svc.WithClock(func() time.Time { return base })
}

func heldWorkOrder() *WorkOrder {
	return &WorkOrder{
		ID:     "wo-1",
		Number: "WO-20260901-0001",
		Status: StatusOnHold,
		Lines: []ServiceLine{{
			Description: "Brake Service",
			LaborHours:  1,
			LaborRate:   100,
			Parts:       []LinePart{{Name: "Brake Pad", PartNumber: "BP-100", Quantity: 2, UnitPrice: 30}},
		}},
	}
}

func TestStart_FromOnHoldBlockedWhilePartsShort(t *testing.T) {
	store := newFakeStore(heldWorkOrder())
	svc := testService(store, map[string]int{"BP-100": 1})

	_, err := svc.Start(context.Background(), "wo-1", "tech-9")
	if !errors.Is(err, ErrPartsUnavailable) {
		t.Fatalf("expected ErrPartsUnavailable, got %v", err)
	}
	if store.orders["wo-1"].Status != StatusOnHold {
		t.Fatalf("failed start must leave state unchanged")
	}
	if store.updates != 0 {
		t.Fatalf("failed start must not write")
	}
}

func TestStart_FromOnHoldSucceedsOncePartsResolve(t *testing.T) {
	store := newFakeStore(heldWorkOrder())
	svc := testService(store, map[string]int{"BP-100": 2})

	wo, err := svc.Start(context.Background(), "wo-1", "tech-9")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if wo.Status != StatusInProgress {
		t.Fatalf("expected in_progress, got %s", wo.Status)
	}
	if wo.TechnicianID != "tech-9" {
		t.Fatalf("technician not assigned")
	}
	if wo.ActualStart == nil {
		t.Fatalf("actual start not stamped")
	}
}

func TestStart_IllegalFromCompleted(t *testing.T) {
	wo := heldWorkOrder()
	wo.Status = StatusCompleted
	store := newFakeStore(wo)
	svc := testService(store, nil)

	_, err := svc.Start(context.Background(), "wo-1", "tech-9")
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if te.From != StatusCompleted || te.Op != "start" {
		t.Fatalf("error must name state and operation, got %+v", te)
	}
}

func TestUpdateProgress_AutoCompletesAtHundred(t *testing.T) {
	wo := heldWorkOrder()
	wo.Status = StatusInProgress
	store := newFakeStore(wo)
	svc := testService(store, nil)

	if _, err := svc.UpdateProgress(context.Background(), "wo-1", 25, ""); err != nil {
		t.Fatalf("progress 25: %v", err)
	}
	got, err := svc.UpdateProgress(context.Background(), "wo-1", 100, "")
	if err != nil {
		t.Fatalf("progress 100: %v", err)
	}

	if got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", got.Progress)
	}
	if got.ActualCompletion == nil {
		t.Fatalf("actual completion not stamped")
	}

	notes := store.orders["wo-1"].Notes
	first := indexOf(notes, "progress updated to 25%")
	second := indexOf(notes, "progress updated to 100%")
	if first < 0 || second < 0 || second < first {
		t.Fatalf("expected both progress notes in order, got %q", notes)
	}
	if indexOf(notes, "auto-completed at 100% progress") < 0 {
		t.Fatalf("expected system completion note, got %q", notes)
	}

	var sawCompleted bool
	for _, ev := range store.events {
		if ev.Type == EventCompleted {
			sawCompleted = true
		}
	}
	if !sawCompleted {
		t.Fatalf("expected a completed event")
	}
}

func TestUpdateProgress_RejectedOutsideInProgress(t *testing.T) {
	store := newFakeStore(heldWorkOrder())
	svc := testService(store, nil)

	_, err := svc.UpdateProgress(context.Background(), "wo-1", 50, "")
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
}

func TestComplete_RecordsQCAndOverridesCosts(t *testing.T) {
	wo := heldWorkOrder()
	wo.Status = StatusInProgress
	store := newFakeStore(wo)
	svc := testService(store, nil)

	actualLabor := 150.0
	got, err := svc.Complete(context.Background(), "wo-1", QCReport{
		TestDriveOK:        true,
		VisualInspectionOK: false,
		Notes:              "minor scratch on bumper noted",
		CompletedBy:        "lead-4",
		ActualLaborCost:    &actualLabor,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.TotalLaborCost != 150.0 {
		t.Fatalf("actual labor cost not applied: %v", got.TotalLaborCost)
	}
	if got.TotalCost != 210.0 { // 150 labor + 60 parts
		t.Fatalf("total not recomputed after override: %v", got.TotalCost)
	}
	notes := got.Notes
	if indexOf(notes, "test drive=pass") < 0 || indexOf(notes, "visual inspection=fail") < 0 {
		t.Fatalf("QC note missing pass/fail detail: %q", notes)
	}
	if indexOf(notes, "lead-4") < 0 {
		t.Fatalf("QC note missing approver: %q", notes)
	}
}

func TestUpdateStatus_GenericPathStampsTimestamps(t *testing.T) {
	wo := heldWorkOrder()
	wo.Status = StatusPending
	store := newFakeStore(wo)
	svc := testService(store, nil)

	got, err := svc.UpdateStatus(context.Background(), "wo-1", StatusInProgress, "")
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if got.ActualStart == nil {
		t.Fatalf("generic path must stamp actual start")
	}

	if _, err := svc.UpdateStatus(context.Background(), "wo-1", StatusPending, ""); err == nil {
		t.Fatalf("in_progress -> pending must be rejected")
	}
}

func TestUpdateStatus_CancelFromNonTerminal(t *testing.T) {
	wo := heldWorkOrder()
	store := newFakeStore(wo)
	svc := testService(store, nil)

	got, err := svc.UpdateStatus(context.Background(), "wo-1", StatusCancelled, "customer withdrew")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
	if indexOf(got.Notes, "customer withdrew") < 0 {
		t.Fatalf("cancel note missing")
	}
}

func TestRecheckParts_ResumesHeldOrder(t *testing.T) {
	store := newFakeStore(heldWorkOrder())
	svc := testService(store, map[string]int{"BP-100": 5})

	wo, av, err := svc.RecheckParts(context.Background(), "wo-1")
	if err != nil {
		t.Fatalf("recheck: %v", err)
	}
	if !av.AllAvailable {
		t.Fatalf("expected availability, missing %+v", av.Missing)
	}
	if wo.Status != StatusPending {
		t.Fatalf("expected on_hold -> pending, got %s", wo.Status)
	}
}

func TestRecheckParts_DiagnosticOnlyWhenStillShort(t *testing.T) {
	store := newFakeStore(heldWorkOrder())
	svc := testService(store, map[string]int{"BP-100": 0})

	wo, av, err := svc.RecheckParts(context.Background(), "wo-1")
	if err != nil {
		t.Fatalf("recheck: %v", err)
	}
	if av.AllAvailable {
		t.Fatalf("expected shortage")
	}
	if wo.Status != StatusOnHold {
		t.Fatalf("state must not change, got %s", wo.Status)
	}
	if store.updates != 0 {
		t.Fatalf("diagnostic recheck must not write")
	}
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
