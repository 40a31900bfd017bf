//go:build protogen

package inventory

import (
	"context"
	"time"

	"github.com/Victorya2/auto-repair-system-sub004/libs/grpcx"
	inventoryv1 "github.com/Victorya2/auto-repair-system-sub004/protos/gen/inventory/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type remoteLookup struct {
	client inventoryv1.InventoryServiceClient
}

// NewRemoteLookup dials the standalone inventory service. Returns (nil, nil)
// when no address is configured so callers can fall back to local lookup.
func NewRemoteLookup(addr string) (Lookup, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 3 * time.Second})
	if err != nil {
		return nil, err
	}
	return &remoteLookup{client: inventoryv1.NewInventoryServiceClient(conn)}, nil
}

func (l *remoteLookup) FindByPartNumberOrName(ctx context.Context, partNumber, name string) (Item, error) {
	resp, err := l.client.FindItem(ctx, &inventoryv1.FindItemRequest{
		PartNumber: partNumber,
		Name:       name,
	})
	if status.Code(err) == codes.NotFound {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, err
	}
	return Item{
		ID:           resp.GetId(),
		PartNumber:   resp.GetPartNumber(),
		Name:         resp.GetName(),
		CurrentStock: int(resp.GetCurrentStock()),
		UnitPrice:    resp.GetUnitPrice(),
	}, nil
}
