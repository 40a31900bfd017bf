package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/parts"
	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/storage"
	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/workorder"
)

type WorkOrderHandler struct {
	service      *workorder.Service
	materializer *workorder.Materializer
	resolver     *parts.Resolver
	repo         *storage.WorkOrderRepository
	logger       *slog.Logger
}

func NewWorkOrderHandler(service *workorder.Service, materializer *workorder.Materializer, resolver *parts.Resolver, repo *storage.WorkOrderRepository, logger *slog.Logger) *WorkOrderHandler {
	return &WorkOrderHandler{
		service:      service,
		materializer: materializer,
		resolver:     resolver,
		repo:         repo,
		logger:       logger,
	}
}

type workOrderResponse struct {
	ID                  string                    `json:"id"`
	Number              string                    `json:"number"`
	CustomerID          string                    `json:"customer_id"`
	AppointmentID       string                    `json:"appointment_id,omitempty"`
	Vehicle             workorder.VehicleSnapshot `json:"vehicle"`
	Lines               []workorder.ServiceLine   `json:"lines"`
	TechnicianID        string                    `json:"technician_id,omitempty"`
	Status              string                    `json:"status"`
	Priority            string                    `json:"priority"`
	Progress            int                       `json:"progress"`
	EstimatedStart      *time.Time                `json:"estimated_start,omitempty"`
	EstimatedCompletion *time.Time                `json:"estimated_completion,omitempty"`
	ActualStart         *time.Time                `json:"actual_start,omitempty"`
	ActualCompletion    *time.Time                `json:"actual_completion,omitempty"`
	Notes               string                    `json:"notes"`
	TotalLaborCost      float64                   `json:"total_labor_cost"`
	TotalPartsCost      float64                   `json:"total_parts_cost"`
	TotalCost           float64                   `json:"total_cost"`
	Version             int                       `json:"version"`
	CreatedAt           time.Time                 `json:"created_at"`
}

func toWorkOrderResponse(wo *workorder.WorkOrder) workOrderResponse {
	return workOrderResponse{
		ID:                  wo.ID,
		Number:              wo.Number,
		CustomerID:          wo.CustomerID,
		AppointmentID:       wo.SourceAppointmentID,
		Vehicle:             wo.Vehicle,
		Lines:               wo.Lines,
		TechnicianID:        wo.TechnicianID,
		Status:              string(wo.Status),
		Priority:            wo.Priority,
		Progress:            wo.Progress,
		EstimatedStart:      wo.EstimatedStart,
		EstimatedCompletion: wo.EstimatedCompletion,
		ActualStart:         wo.ActualStart,
		ActualCompletion:    wo.ActualCompletion,
		Notes:               wo.Notes,
		TotalLaborCost:      wo.TotalLaborCost,
		TotalPartsCost:      wo.TotalPartsCost,
		TotalCost:           wo.TotalCost,
		Version:             wo.Version,
		CreatedAt:           wo.CreatedAt,
	}
}

type availabilityResponse struct {
	AllAvailable bool                 `json:"all_available"`
	Missing      []parts.MissingPart  `json:"missing,omitempty"`
	Available    []parts.AvailablePart `json:"available,omitempty"`
}

func toAvailabilityResponse(av parts.Availability) availabilityResponse {
	return availabilityResponse{
		AllAvailable: av.AllAvailable,
		Missing:      av.Missing,
		Available:    av.Available,
	}
}

// List handles GET /api/v1/work-orders. With ?id= it returns that single
// work order; otherwise it lists with optional status/technician filters.
func (h *WorkOrderHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
		wo, err := h.repo.GetWorkOrder(r.Context(), id)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toWorkOrderResponse(wo))
		return
	}

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status != "" && !workorder.ValidStatus(workorder.Status(status)) {
		http.Error(w, "unknown status filter", http.StatusBadRequest)
		return
	}
	technicianID := strings.TrimSpace(r.URL.Query().Get("technician_id"))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	orders, err := h.repo.ListWorkOrders(r.Context(), status, technicianID, limit)
	if err != nil {
		http.Error(w, "failed to list work orders", http.StatusInternalServerError)
		return
	}
	items := make([]workOrderResponse, 0, len(orders))
	for _, wo := range orders {
		items = append(items, toWorkOrderResponse(wo))
	}
	writeJSON(w, http.StatusOK, map[string]any{"work_orders": items})
}

type materializeRequest struct {
	AppointmentID string `json:"appointment_id"`
	ApproverID    string `json:"approver_id"`
}

// Materialize handles POST /api/v1/appointments/materialize.
func (h *WorkOrderHandler) Materialize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req materializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	res, err := h.materializer.Materialize(r.Context(), req.AppointmentID, strings.TrimSpace(req.ApproverID))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"work_order":   toWorkOrderResponse(res.WorkOrder),
		"availability": toAvailabilityResponse(res.Availability),
	})
}

type startRequest struct {
	WorkOrderID  string `json:"work_order_id"`
	TechnicianID string `json:"technician_id"`
}

// Start handles POST /api/v1/work-orders/start.
func (h *WorkOrderHandler) Start(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.WorkOrderID = strings.TrimSpace(req.WorkOrderID)
	req.TechnicianID = strings.TrimSpace(req.TechnicianID)
	if req.WorkOrderID == "" || req.TechnicianID == "" {
		http.Error(w, "work_order_id and technician_id are required", http.StatusBadRequest)
		return
	}

	wo, err := h.service.Start(r.Context(), req.WorkOrderID, req.TechnicianID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkOrderResponse(wo))
}

type progressRequest struct {
	WorkOrderID string `json:"work_order_id"`
	Percent     int    `json:"percent"`
	Note        string `json:"note"`
}

// Progress handles POST /api/v1/work-orders/progress.
func (h *WorkOrderHandler) Progress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req progressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.WorkOrderID) == "" {
		http.Error(w, "work_order_id is required", http.StatusBadRequest)
		return
	}
	if req.Percent < 0 {
		http.Error(w, "percent must not be negative", http.StatusBadRequest)
		return
	}

	wo, err := h.service.UpdateProgress(r.Context(), strings.TrimSpace(req.WorkOrderID), req.Percent, strings.TrimSpace(req.Note))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkOrderResponse(wo))
}

type completeRequest struct {
	WorkOrderID        string   `json:"work_order_id"`
	TestDriveOK        bool     `json:"test_drive_ok"`
	VisualInspectionOK bool     `json:"visual_inspection_ok"`
	Notes              string   `json:"notes"`
	CompletedBy        string   `json:"completed_by"`
	ActualLaborCost    *float64 `json:"actual_labor_cost"`
	ActualPartsCost    *float64 `json:"actual_parts_cost"`
}

// Complete handles POST /api/v1/work-orders/complete.
func (h *WorkOrderHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.WorkOrderID) == "" {
		http.Error(w, "work_order_id is required", http.StatusBadRequest)
		return
	}

	wo, err := h.service.Complete(r.Context(), strings.TrimSpace(req.WorkOrderID), workorder.QCReport{
		TestDriveOK:        req.TestDriveOK,
		VisualInspectionOK: req.VisualInspectionOK,
		Notes:              strings.TrimSpace(req.Notes),
		CompletedBy:        strings.TrimSpace(req.CompletedBy),
		ActualLaborCost:    req.ActualLaborCost,
		ActualPartsCost:    req.ActualPartsCost,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkOrderResponse(wo))
}

type statusRequest struct {
	WorkOrderID string `json:"work_order_id"`
	Status      string `json:"status"`
	Note        string `json:"note"`
}

// Status handles POST /api/v1/work-orders/status for transitions without a
// dedicated endpoint (hold, cancel, resume).
func (h *WorkOrderHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.WorkOrderID = strings.TrimSpace(req.WorkOrderID)
	req.Status = strings.TrimSpace(req.Status)
	if req.WorkOrderID == "" || req.Status == "" {
		http.Error(w, "work_order_id and status are required", http.StatusBadRequest)
		return
	}

	wo, err := h.service.UpdateStatus(r.Context(), req.WorkOrderID, workorder.Status(req.Status), strings.TrimSpace(req.Note))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkOrderResponse(wo))
}

type recheckRequest struct {
	WorkOrderID string `json:"work_order_id"`
}

// RecheckParts handles POST /api/v1/work-orders/recheck-parts.
func (h *WorkOrderHandler) RecheckParts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req recheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.WorkOrderID) == "" {
		http.Error(w, "work_order_id is required", http.StatusBadRequest)
		return
	}

	wo, av, err := h.service.RecheckParts(r.Context(), strings.TrimSpace(req.WorkOrderID))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"work_order":   toWorkOrderResponse(wo),
		"availability": toAvailabilityResponse(av),
	})
}

type checkPartsRequest struct {
	Parts []parts.RequiredPart `json:"parts"`
}

// CheckParts handles POST /api/v1/parts/check: a standalone availability
// probe for advisors quoting a job before any work order exists.
func (h *WorkOrderHandler) CheckParts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req checkPartsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	av := h.resolver.Resolve(r.Context(), req.Parts)
	writeJSON(w, http.StatusOK, toAvailabilityResponse(av))
}

func (h *WorkOrderHandler) writeDomainError(w http.ResponseWriter, err error) {
	var te *workorder.TransitionError
	switch {
	case errors.Is(err, workorder.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.As(err, &te):
		http.Error(w, te.Error(), http.StatusConflict)
	case errors.Is(err, workorder.ErrPartsUnavailable),
		errors.Is(err, workorder.ErrAlreadyMaterialized),
		errors.Is(err, workorder.ErrStale):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, workorder.ErrNotApproved),
		errors.Is(err, workorder.ErrNoServiceType):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		h.logger.Error("work order request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
