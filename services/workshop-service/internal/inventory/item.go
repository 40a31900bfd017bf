package inventory

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("inventory item not found")

type Item struct {
	ID          string
	PartNumber  string
	Name        string
	CurrentStock int
	UnitPrice   float64
}

// Lookup is the inventory collaborator consumed by the parts resolver.
// Lookup order is part number first, then case-insensitive name.
type Lookup interface {
	FindByPartNumberOrName(ctx context.Context, partNumber, name string) (Item, error)
}
