package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Victorya2/auto-repair-system-sub004/services/comms-service/internal/dispatch"
	"github.com/Victorya2/auto-repair-system-sub004/services/comms-service/internal/model"
)

// dedupWindow is the rolling look-back during which a previously sent
// reminder of the same kind suppresses a repeat send. At exactly the window
// boundary a new send is allowed again.
const dedupWindow = 60 * time.Minute

// lookAhead bounds the pass to appointments within the next 24 hours.
const lookAhead = 24 * time.Hour

const defaultParallelism = 8

// SelectReminder picks the reminder kind due for one appointment, or ""
// if nothing should be sent. Candidates are checked in priority order
// (2h, then 24h, then same-day); a candidate suppressed by the dedup
// window yields to the next one rather than ending the selection.
func SelectReminder(now, scheduledAt time.Time, send24h, send2h, sendSameDay bool, lastSent map[string]time.Time) string {
	until := scheduledAt.Sub(now)

	type candidate struct {
		kind    string
		enabled bool
		match   bool
	}
	candidates := []candidate{
		{dispatch.KindReminder2h, send2h, until > 0 && until <= 2*time.Hour},
		{dispatch.KindReminder24h, send24h, until > 22*time.Hour && until <= 24*time.Hour},
		{dispatch.KindReminderSameDay, sendSameDay, until > 0 && until <= 4*time.Hour},
	}

	for _, c := range candidates {
		if !c.enabled || !c.match {
			continue
		}
		if last, ok := lastSent[c.kind]; ok && now.Sub(last) < dedupWindow {
			continue
		}
		return c.kind
	}
	return ""
}

// Store is the persistence slice a reminder pass needs. LastSentByKind is
// the per-kind most recent attempt, failed deliveries included, derived from
// the communication log; the dedup check is one map lookup per candidate.
type Store interface {
	DueAppointments(ctx context.Context, from, until time.Time) ([]model.DueAppointment, error)
	LastSentByKind(ctx context.Context, appointmentID string) (map[string]time.Time, error)
	AppendCommunications(ctx context.Context, appointmentID string, outcomes []dispatch.Outcome) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, kind string, rcpt dispatch.Recipient, msg dispatch.Context) []dispatch.Outcome
}

// Result summarizes one pass.
type Result struct {
	Evaluated int
	Sent      int
	Failed    int
}

// Scheduler runs reminder passes over the look-ahead window. Records are
// independent, so they are evaluated with bounded parallelism; cancellation
// is cooperative between records, never mid-record.
type Scheduler struct {
	store       Store
	dispatcher  Dispatcher
	logger      *slog.Logger
	clock       func() time.Time
	parallelism int
}

func New(store Store, dispatcher Dispatcher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:       store,
		dispatcher:  dispatcher,
		logger:      logger,
		clock:       time.Now,
		parallelism: defaultParallelism,
	}
}

// WithClock replaces the time source, for tests.
func (s *Scheduler) WithClock(clock func() time.Time) *Scheduler {
	s.clock = clock
	return s
}

func (s *Scheduler) WithParallelism(n int) *Scheduler {
	if n > 0 {
		s.parallelism = n
	}
	return s
}

// RunPass evaluates every appointment in the look-ahead window once.
func (s *Scheduler) RunPass(ctx context.Context) (Result, error) {
	now := s.clock()
	due, err := s.store.DueAppointments(ctx, now, now.Add(lookAhead))
	if err != nil {
		return Result{}, err
	}

	var (
		mu     sync.Mutex
		result Result
		wg     sync.WaitGroup
		sem    = make(chan struct{}, s.parallelism)
	)
	result.Evaluated = len(due)

	for _, appt := range due {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(appt model.DueAppointment) {
			defer wg.Done()
			defer func() { <-sem }()

			sent, failed := s.evaluate(ctx, now, appt)
			mu.Lock()
			result.Sent += sent
			result.Failed += failed
			mu.Unlock()
		}(appt)
	}
	wg.Wait()

	s.logger.Info("reminder pass finished",
		"evaluated", result.Evaluated,
		"sent", result.Sent,
		"failed", result.Failed,
	)
	return result, ctx.Err()
}

// evaluate is one record's read-evaluate-write unit. Failures are logged and
// contained; one bad appointment never aborts the pass.
func (s *Scheduler) evaluate(ctx context.Context, now time.Time, appt model.DueAppointment) (sent, failed int) {
	lastSent, err := s.store.LastSentByKind(ctx, appt.ID)
	if err != nil {
		s.logger.Error("communication history load failed", "appointment_id", appt.ID, "err", err)
		return 0, 0
	}

	kind := SelectReminder(now, appt.ScheduledAt, appt.Send24h, appt.Send2h, appt.SendSameDay, lastSent)
	if kind == "" {
		return 0, 0
	}

	outcomes := s.dispatcher.Dispatch(ctx, kind, dispatch.Recipient{
		CustomerID:       appt.CustomerID,
		Name:             appt.CustomerName,
		Email:            appt.CustomerEmail,
		Phone:            appt.CustomerPhone,
		PreferredContact: appt.PreferredContact,
	}, dispatch.Context{
		ServiceName: appt.ServiceTypeName,
		Vehicle:     appt.Vehicle,
		ScheduledAt: appt.ScheduledAt,
	})

	if err := s.store.AppendCommunications(ctx, appt.ID, outcomes); err != nil {
		s.logger.Error("communication append failed", "appointment_id", appt.ID, "err", err)
		return 0, 0
	}
	for _, out := range outcomes {
		if out.Status == dispatch.StatusSent {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed
}
