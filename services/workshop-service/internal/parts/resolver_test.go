package parts

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/inventory"
)

type fakeLookup struct {
	items  map[string]inventory.Item // keyed by part number
	byName map[string]inventory.Item
	errOn  string
}

func (f *fakeLookup) FindByPartNumberOrName(_ context.Context, partNumber, name string) (inventory.Item, error) {
	if f.errOn != "" && (partNumber == f.errOn || name == f.errOn) {
		return inventory.Item{}, errors.New("inventory backend unreachable")
	}
	if item, ok := f.items[partNumber]; ok {
		return item, nil
	}
	if item, ok := f.byName[strings.ToLower(name)]; ok {
		return item, nil
	}
	return inventory.Item{}, inventory.ErrNotFound
}

func TestResolve_AllAvailable(t *testing.T) {
	r := NewResolver(&fakeLookup{items: map[string]inventory.Item{
		"BP-100": {ID: "inv-1", PartNumber: "BP-100", Name: "Brake Pad", CurrentStock: 4},
	}})

	av := r.Resolve(context.Background(), []RequiredPart{
		{Name: "Brake Pad", PartNumber: "BP-100", Quantity: 2},
	})
	if !av.AllAvailable {
		t.Fatalf("expected all available, missing: %+v", av.Missing)
	}
	if len(av.Available) != 1 || av.Available[0].InventoryID != "inv-1" {
		t.Fatalf("expected resolved inventory ref, got %+v", av.Available)
	}
}

func TestResolve_InsufficientStock(t *testing.T) {
	r := NewResolver(&fakeLookup{items: map[string]inventory.Item{
		"BP-100": {ID: "inv-1", PartNumber: "BP-100", Name: "Brake Pad", CurrentStock: 1},
	}})

	av := r.Resolve(context.Background(), []RequiredPart{
		{Name: "Brake Pad", PartNumber: "BP-100", Quantity: 2},
	})
	if av.AllAvailable {
		t.Fatalf("expected gate to block")
	}
	m := av.Missing[0]
	if m.Reason != ReasonInsufficientStock {
		t.Fatalf("expected insufficient_stock, got %s", m.Reason)
	}
	if m.ShortBy != 1 {
		t.Fatalf("expected short by 1, got %d", m.ShortBy)
	}
}

func TestResolve_NotFoundTreatsFullQuantityAsShort(t *testing.T) {
	r := NewResolver(&fakeLookup{})

	av := r.Resolve(context.Background(), []RequiredPart{
		{Name: "Timing Belt", PartNumber: "TB-9", Quantity: 3},
	})
	m := av.Missing[0]
	if m.Reason != ReasonNotFound {
		t.Fatalf("expected not_found, got %s", m.Reason)
	}
	if m.ShortBy != 3 {
		t.Fatalf("expected entire requested quantity short, got %d", m.ShortBy)
	}
}

func TestResolve_NameFallback(t *testing.T) {
	r := NewResolver(&fakeLookup{byName: map[string]inventory.Item{
		"oil filter": {ID: "inv-7", Name: "Oil Filter", CurrentStock: 10},
	}})

	av := r.Resolve(context.Background(), []RequiredPart{
		{Name: "Oil Filter", PartNumber: "UNKNOWN-PN", Quantity: 1},
	})
	if !av.AllAvailable {
		t.Fatalf("expected name fallback to resolve, missing: %+v", av.Missing)
	}
}

func TestResolve_LookupErrorIsolatedToOnePart(t *testing.T) {
	r := NewResolver(&fakeLookup{
		items: map[string]inventory.Item{
			"BP-100": {ID: "inv-1", PartNumber: "BP-100", CurrentStock: 5},
		},
		errOn: "TB-9",
	})

	av := r.Resolve(context.Background(), []RequiredPart{
		{Name: "Timing Belt", PartNumber: "TB-9", Quantity: 1},
		{Name: "Brake Pad", PartNumber: "BP-100", Quantity: 2},
	})
	if av.AllAvailable {
		t.Fatalf("expected lookup error to count as missing")
	}
	if len(av.Missing) != 1 || av.Missing[0].Reason != ReasonLookupError {
		t.Fatalf("expected one lookup_error entry, got %+v", av.Missing)
	}
	if len(av.Available) != 1 {
		t.Fatalf("expected the healthy lookup to still resolve, got %+v", av.Available)
	}
}

func TestResolve_EmptyRequestIsAvailable(t *testing.T) {
	r := NewResolver(&fakeLookup{})
	if av := r.Resolve(context.Background(), nil); !av.AllAvailable {
		t.Fatalf("no required parts should gate nothing")
	}
}
