package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Victorya2/auto-repair-system-sub004/services/comms-service/internal/generator"
	"github.com/Victorya2/auto-repair-system-sub004/services/comms-service/internal/scheduler"
)

// AdminHandler exposes manual triggers for the periodic passes. Cron drives
// them in production; these endpoints exist for operators and smoke tests.
type AdminHandler struct {
	scheduler *scheduler.Scheduler
	generator *generator.Generator
	logger    *slog.Logger
}

func NewAdminHandler(sched *scheduler.Scheduler, gen *generator.Generator, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{scheduler: sched, generator: gen, logger: logger}
}

// RunReminders handles POST /api/v1/admin/reminders/run.
func (h *AdminHandler) RunReminders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.scheduler.RunPass(r.Context())
	if err != nil {
		h.logger.Error("manual reminder pass failed", "err", err)
		http.Error(w, "reminder pass failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"evaluated": result.Evaluated,
		"sent":      result.Sent,
		"failed":    result.Failed,
	})
}

// GenerateNotifications handles POST /api/v1/admin/notifications/generate.
// With ?job= it runs a single job; without, all four.
func (h *AdminHandler) GenerateNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	job := strings.TrimSpace(r.URL.Query().Get("job"))

	var (
		inserted int
		err      error
	)
	switch job {
	case "":
		inserted = h.generator.RunAll(ctx)
	case "service_reminders":
		inserted, err = h.generator.ServiceReminders(ctx)
	case "appointment_reminders":
		inserted, err = h.generator.AppointmentReminders(ctx)
	case "payment_reminders":
		inserted, err = h.generator.PaymentReminders(ctx)
	case "follow_ups":
		inserted, err = h.generator.FollowUps(ctx)
	default:
		http.Error(w, "unknown job", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error("manual notification job failed", "job", job, "err", err)
		http.Error(w, "notification job failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inserted": inserted})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
