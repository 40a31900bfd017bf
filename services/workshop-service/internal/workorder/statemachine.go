package workorder

import (
	"fmt"
	"time"
)

// Status is the work-order lifecycle state, persisted as a string.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusOnHold     Status = "on_hold"
)

// allowedTransitions is the directed graph of legal moves. Completed and
// cancelled are terminal.
var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusOnHold, StatusCancelled},
	StatusOnHold:     {StatusPending, StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

func ValidStatus(s Status) bool {
	_, ok := allowedTransitions[s]
	return ok
}

func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	allowed, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError reports an operation attempted from an incompatible state.
type TransitionError struct {
	From Status
	To   Status
	Op   string
}

func (e *TransitionError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("work order is %s: cannot %s", e.From, e.Op)
	}
	return fmt.Sprintf("invalid work order transition: %s -> %s", e.From, e.To)
}

// Transition applies a status change and maintains the timestamp fields that
// ride along with it. Entering in_progress stamps the actual start, entering
// completed stamps the actual completion and forces progress to 100 — this is
// the single place the "completed implies 100%" rule lives.
func Transition(wo *WorkOrder, to Status, now time.Time) error {
	if wo == nil {
		return fmt.Errorf("work order is nil")
	}
	from := wo.Status
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}

	wo.Status = to

	switch to {
	case StatusInProgress:
		if wo.ActualStart == nil {
			t := now
			wo.ActualStart = &t
		}
	case StatusCompleted:
		if wo.ActualCompletion == nil {
			t := now
			wo.ActualCompletion = &t
		}
		wo.Progress = 100
	}
	return nil
}
