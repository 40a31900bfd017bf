package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/Victorya2/auto-repair-system-sub004/libs/db"
	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/model"
	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/workorder"
)

type VehicleRepository struct {
	pool *db.Pool
}

func NewVehicleRepository(pool *db.Pool) *VehicleRepository {
	return &VehicleRepository{pool: pool}
}

func (r *VehicleRepository) GetVehicle(ctx context.Context, id string) (*model.Vehicle, error) {
	var v model.Vehicle
	err := r.pool.QueryRow(ctx, `
		SELECT id, customer_id, COALESCE(make, ''), COALESCE(model, ''), COALESCE(year, 0),
			COALESCE(license_plate, ''), COALESCE(vin, ''), COALESCE(current_mileage, 0)
		FROM vehicles
		WHERE id = $1
	`, id).Scan(
		&v.ID,
		&v.CustomerID,
		&v.Make,
		&v.Model,
		&v.Year,
		&v.LicensePlate,
		&v.VIN,
		&v.CurrentMileage,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, workorder.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
