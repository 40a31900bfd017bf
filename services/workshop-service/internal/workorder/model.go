package workorder

import (
	"fmt"
	"math"
	"time"

	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/parts"
)

// VehicleSnapshot is a point-in-time copy of the vehicle, not a live
// reference. Missing attributes fall back to sentinel values at creation.
type VehicleSnapshot struct {
	Make         string `json:"make"`
	Model        string `json:"model"`
	Year         int    `json:"year"`
	LicensePlate string `json:"license_plate"`
	VIN          string `json:"vin"`
}

type LinePart struct {
	Name       string  `json:"name"`
	PartNumber string  `json:"part_number"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
}

type ServiceLine struct {
	Description string     `json:"description"`
	LaborHours  float64    `json:"labor_hours"`
	LaborRate   float64    `json:"labor_rate"`
	Parts       []LinePart `json:"parts"`
	Total       float64    `json:"total"`
}

type WorkOrder struct {
	ID       string
	Number   string
	CustomerID string

	// SourceAppointmentID links back to the appointment this work order was
	// materialized from; empty for work orders created directly by staff.
	// Enforced unique in storage: one work order per appointment.
	SourceAppointmentID string

	Vehicle VehicleSnapshot
	Lines   []ServiceLine

	TechnicianID string
	Status       Status
	Priority     string
	Progress     int

	EstimatedStart      *time.Time
	EstimatedCompletion *time.Time
	ActualStart         *time.Time
	ActualCompletion    *time.Time

	// Notes is the append-only audit trail; every mutation goes through
	// AppendNote so entries stay timestamped and ordered.
	Notes string

	TotalLaborHours float64
	TotalLaborCost  float64
	TotalPartsCost  float64
	TotalCost       float64

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (w *WorkOrder) AppendNote(note string, now time.Time) {
	if note == "" {
		return
	}
	w.Notes += fmt.Sprintf("[%s] %s\n", now.UTC().Format(time.RFC3339), note)
}

// RequiredParts returns the union of parts across all service lines, as the
// resolver expects them.
func (w *WorkOrder) RequiredParts() []parts.RequiredPart {
	var required []parts.RequiredPart
	for _, line := range w.Lines {
		for _, p := range line.Parts {
			required = append(required, parts.RequiredPart{
				Name:       p.Name,
				PartNumber: p.PartNumber,
				Quantity:   p.Quantity,
			})
		}
	}
	return required
}

// CalculateTotals recomputes line totals and the work-order aggregates.
// Called before every save that may have touched service lines.
func (w *WorkOrder) CalculateTotals() {
	var laborHours, laborCost, partsCost float64
	for i := range w.Lines {
		line := &w.Lines[i]
		lineLabor := round2(line.LaborHours * line.LaborRate)
		var lineParts float64
		for _, p := range line.Parts {
			lineParts += float64(p.Quantity) * p.UnitPrice
		}
		lineParts = round2(lineParts)
		line.Total = round2(lineLabor + lineParts)

		laborHours += line.LaborHours
		laborCost += lineLabor
		partsCost += lineParts
	}
	w.TotalLaborHours = laborHours
	w.TotalLaborCost = round2(laborCost)
	w.TotalPartsCost = round2(partsCost)
	w.TotalCost = round2(w.TotalLaborCost + w.TotalPartsCost)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
