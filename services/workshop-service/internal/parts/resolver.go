package parts

import (
	"context"
	"errors"

	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/inventory"
)

// Shortfall reasons recorded on missing parts.
const (
	ReasonNotFound          = "not_found"
	ReasonInsufficientStock = "insufficient_stock"
	ReasonLookupError       = "lookup_error"
)

type RequiredPart struct {
	Name       string `json:"name"`
	PartNumber string `json:"part_number"`
	Quantity   int    `json:"quantity"`
}

type MissingPart struct {
	Name       string `json:"name"`
	PartNumber string `json:"part_number"`
	Requested  int    `json:"requested"`
	ShortBy    int    `json:"short_by"`
	Reason     string `json:"reason"`
}

type AvailablePart struct {
	Name        string `json:"name"`
	PartNumber  string `json:"part_number"`
	Quantity    int    `json:"quantity"`
	InventoryID string `json:"inventory_id"`
}

// Availability is the aggregate gate decision for one resolution.
// Computed fresh on every call, never cached, never reserves stock.
type Availability struct {
	AllAvailable bool
	Missing      []MissingPart
	Available    []AvailablePart
}

type Resolver struct {
	lookup inventory.Lookup
}

func NewResolver(lookup inventory.Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve classifies every requested part as available or missing. A failed
// lookup only marks that one part missing; the rest of the batch proceeds.
func (r *Resolver) Resolve(ctx context.Context, required []RequiredPart) Availability {
	av := Availability{}
	for _, req := range required {
		qty := req.Quantity
		if qty <= 0 {
			qty = 1
		}

		item, err := r.lookup.FindByPartNumberOrName(ctx, req.PartNumber, req.Name)
		switch {
		case errors.Is(err, inventory.ErrNotFound):
			av.Missing = append(av.Missing, MissingPart{
				Name:       req.Name,
				PartNumber: req.PartNumber,
				Requested:  qty,
				ShortBy:    qty,
				Reason:     ReasonNotFound,
			})
		case err != nil:
			av.Missing = append(av.Missing, MissingPart{
				Name:       req.Name,
				PartNumber: req.PartNumber,
				Requested:  qty,
				ShortBy:    qty,
				Reason:     ReasonLookupError,
			})
		case item.CurrentStock < qty:
			av.Missing = append(av.Missing, MissingPart{
				Name:       req.Name,
				PartNumber: req.PartNumber,
				Requested:  qty,
				ShortBy:    qty - item.CurrentStock,
				Reason:     ReasonInsufficientStock,
			})
		default:
			av.Available = append(av.Available, AvailablePart{
				Name:        req.Name,
				PartNumber:  req.PartNumber,
				Quantity:    qty,
				InventoryID: item.ID,
			})
		}
	}
	av.AllAvailable = len(av.Missing) == 0
	return av
}
