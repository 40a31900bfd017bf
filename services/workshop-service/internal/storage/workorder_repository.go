package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Victorya2/auto-repair-system-sub004/libs/db"
	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/outbox"
	"github.com/Victorya2/auto-repair-system-sub004/services/workshop-service/internal/workorder"
)

const workOrderAggregate = "work_order"

// WorkOrderRepository persists work orders and writes their domain events to
// the outbox in the same transaction. Updates use a version CAS so two
// concurrent writers cannot silently overwrite each other.
type WorkOrderRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewWorkOrderRepository(pool *db.Pool, ob *outbox.Repository) *WorkOrderRepository {
	return &WorkOrderRepository{pool: pool, outbox: ob}
}

const workOrderColumns = `
	id, number, customer_id, COALESCE(source_appointment_id::text, ''), vehicle, lines,
	COALESCE(technician_id, ''), status, priority, progress,
	estimated_start, estimated_completion, actual_start, actual_completion,
	notes, total_labor_hours, total_labor_cost, total_parts_cost, total_cost,
	version, created_at, updated_at`

func (r *WorkOrderRepository) GetWorkOrder(ctx context.Context, id string) (*workorder.WorkOrder, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+workOrderColumns+`
		FROM work_orders
		WHERE id = $1
	`, id)
	wo, err := scanWorkOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, workorder.ErrNotFound
	}
	return wo, err
}

func (r *WorkOrderRepository) CreateWorkOrder(ctx context.Context, wo *workorder.WorkOrder, events ...workorder.Event) error {
	vehicle, lines, err := marshalSnapshot(wo)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO work_orders
			(id, number, customer_id, source_appointment_id, vehicle, lines,
			 technician_id, status, priority, progress,
			 estimated_start, estimated_completion, actual_start, actual_completion,
			 notes, total_labor_hours, total_labor_cost, total_parts_cost, total_cost,
			 version, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6,
			NULLIF($7, ''), $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, $17, $18, $19,
			1, $20, $20)
	`, wo.ID, wo.Number, wo.CustomerID, wo.SourceAppointmentID, vehicle, lines,
		wo.TechnicianID, string(wo.Status), wo.Priority, wo.Progress,
		wo.EstimatedStart, wo.EstimatedCompletion, wo.ActualStart, wo.ActualCompletion,
		wo.Notes, wo.TotalLaborHours, wo.TotalLaborCost, wo.TotalPartsCost, wo.TotalCost,
		wo.CreatedAt)
	if err != nil {
		return mapCreateError(err)
	}
	wo.Version = 1

	if err := r.insertEvents(ctx, tx, wo, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *WorkOrderRepository) UpdateWorkOrder(ctx context.Context, wo *workorder.WorkOrder, events ...workorder.Event) error {
	vehicle, lines, err := marshalSnapshot(wo)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE work_orders
		SET vehicle = $3,
			lines = $4,
			technician_id = NULLIF($5, ''),
			status = $6,
			priority = $7,
			progress = $8,
			estimated_start = $9,
			estimated_completion = $10,
			actual_start = $11,
			actual_completion = $12,
			notes = $13,
			total_labor_hours = $14,
			total_labor_cost = $15,
			total_parts_cost = $16,
			total_cost = $17,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND version = $2
	`, wo.ID, wo.Version, vehicle, lines,
		wo.TechnicianID, string(wo.Status), wo.Priority, wo.Progress,
		wo.EstimatedStart, wo.EstimatedCompletion, wo.ActualStart, wo.ActualCompletion,
		wo.Notes, wo.TotalLaborHours, wo.TotalLaborCost, wo.TotalPartsCost, wo.TotalCost)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a vanished row from a lost CAS race.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM work_orders WHERE id = $1)`, wo.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return workorder.ErrNotFound
		}
		return workorder.ErrStale
	}
	wo.Version++

	if err := r.insertEvents(ctx, tx, wo, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *WorkOrderRepository) WorkOrderExistsForAppointment(ctx context.Context, appointmentID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM work_orders WHERE source_appointment_id = $1)
	`, appointmentID).Scan(&exists)
	return exists, err
}

// ListWorkOrders returns work orders newest first, optionally filtered by
// status and/or technician.
func (r *WorkOrderRepository) ListWorkOrders(ctx context.Context, status, technicianID string, limit int) ([]*workorder.WorkOrder, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT`+workOrderColumns+`
		FROM work_orders
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR technician_id = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, status, technicianID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*workorder.WorkOrder
	for rows.Next() {
		wo, err := scanWorkOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, wo)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return orders, nil
}

// ListOnHold returns held work orders oldest first for the parts recheck
// sweep.
func (r *WorkOrderRepository) ListOnHold(ctx context.Context, limit int) ([]*workorder.WorkOrder, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT`+workOrderColumns+`
		FROM work_orders
		WHERE status = 'on_hold'
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*workorder.WorkOrder
	for rows.Next() {
		wo, err := scanWorkOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, wo)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return orders, nil
}

func (r *WorkOrderRepository) insertEvents(ctx context.Context, tx pgx.Tx, wo *workorder.WorkOrder, events []workorder.Event) error {
	for _, evt := range events {
		err := r.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: workOrderAggregate,
			AggregateID:   evt.Key,
			EventType:     evt.Type,
			Payload:       evt.Payload,
		})
		if err != nil {
			return fmt.Errorf("outbox insert for %s: %w", evt.Type, err)
		}
	}
	return nil
}

func marshalSnapshot(wo *workorder.WorkOrder) (vehicle, lines []byte, err error) {
	vehicle, err = json.Marshal(wo.Vehicle)
	if err != nil {
		return nil, nil, err
	}
	lines, err = json.Marshal(wo.Lines)
	if err != nil {
		return nil, nil, err
	}
	return vehicle, lines, nil
}

func mapCreateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == "work_orders_number_key" {
			return workorder.ErrNumberTaken
		}
		if pgErr.ConstraintName == "work_orders_source_appointment_id_key" {
			return workorder.ErrAlreadyMaterialized
		}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkOrder(row rowScanner) (*workorder.WorkOrder, error) {
	var wo workorder.WorkOrder
	var status string
	var vehicle, lines []byte
	err := row.Scan(
		&wo.ID,
		&wo.Number,
		&wo.CustomerID,
		&wo.SourceAppointmentID,
		&vehicle,
		&lines,
		&wo.TechnicianID,
		&status,
		&wo.Priority,
		&wo.Progress,
		&wo.EstimatedStart,
		&wo.EstimatedCompletion,
		&wo.ActualStart,
		&wo.ActualCompletion,
		&wo.Notes,
		&wo.TotalLaborHours,
		&wo.TotalLaborCost,
		&wo.TotalPartsCost,
		&wo.TotalCost,
		&wo.Version,
		&wo.CreatedAt,
		&wo.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	wo.Status = workorder.Status(status)
	if err := json.Unmarshal(vehicle, &wo.Vehicle); err != nil {
		return nil, fmt.Errorf("decode vehicle snapshot for %s: %w", wo.ID, err)
	}
	if len(lines) > 0 {
		if err := json.Unmarshal(lines, &wo.Lines); err != nil {
			return nil, fmt.Errorf("decode service lines for %s: %w", wo.ID, err)
		}
	}
	return &wo, nil
}
