package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/erazemk/izposoja/internal/model"
)

const allocationColumns = `id, reservation_id, item_id, state, start_day, end_day`

func scanAllocation(s scanner) (model.ItemReservation, error) {
	var ir model.ItemReservation
	err := s.Scan(&ir.ID, &ir.ReservationID, &ir.ItemID, &ir.State, &ir.Start, &ir.End)
	return ir, err
}

// InsertItemReservations inserts allocations.
func InsertItemReservations(ctx context.Context, db Querier, irs []model.ItemReservation) error {
	for _, ir := range irs {
		_, err := db.ExecContext(ctx,
			`INSERT INTO item_reservations (id, reservation_id, item_id, state, start_day, end_day)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			ir.ID.String(), ir.ReservationID.String(), ir.ItemID.String(), string(ir.State),
			int64(ir.Start), int64(ir.End),
		)
		if err != nil {
			return fmt.Errorf("inserting item reservation: %w", err)
		}
	}
	return nil
}

// ListItemReservations returns the allocations of a reservation.
func ListItemReservations(ctx context.Context, db Querier, reservationID uuid.UUID) ([]model.ItemReservation, error) {
	return queryAllocations(ctx, db,
		`SELECT `+allocationColumns+` FROM item_reservations
		 WHERE reservation_id = ? ORDER BY start_day, item_id`,
		reservationID.String(),
	)
}

// FindAllocations returns the reserved or taken allocations of itemIDs whose
// range intersects [start, end], ignoring those of the excluded reservation.
func FindAllocations(ctx context.Context, db Querier, itemIDs []uuid.UUID, start, end model.Day, exclude *uuid.UUID) ([]model.ItemReservation, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	args := idArgs(itemIDs)
	args = append(args, int64(start), int64(end))
	query := `SELECT ` + allocationColumns + ` FROM item_reservations
		 WHERE item_id IN ` + inClause(len(itemIDs)) + `
		   AND state IN ('reserved', 'taken')
		   AND end_day >= ? AND start_day <= ?`
	if exclude != nil {
		query += ` AND reservation_id != ?`
		args = append(args, exclude.String())
	}
	query += ` ORDER BY item_id, start_day`
	return queryAllocations(ctx, db, query, args...)
}

// ItemsAllocatedDuring returns the distinct ids of items with an allocation
// in any state intersecting [start, end].
func ItemsAllocatedDuring(ctx context.Context, db Querier, start, end model.Day, exclude *uuid.UUID) ([]uuid.UUID, error) {
	args := []any{int64(start), int64(end)}
	query := `SELECT DISTINCT item_id FROM item_reservations
		 WHERE end_day >= ? AND start_day <= ?`
	if exclude != nil {
		query += ` AND reservation_id != ?`
		args = append(args, exclude.String())
	}
	query += ` ORDER BY item_id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing allocated items: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning allocated item: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// OpenAllocationsOf returns every taken allocation of an item, overdue ones
// included, and its reserved allocations that end on or after day.
func OpenAllocationsOf(ctx context.Context, db Querier, itemID uuid.UUID, day model.Day) ([]model.ItemReservation, error) {
	return queryAllocations(ctx, db,
		`SELECT `+allocationColumns+` FROM item_reservations
		 WHERE item_id = ? AND (state = 'taken' OR (state = 'reserved' AND end_day >= ?))
		 ORDER BY start_day`,
		itemID.String(), int64(day),
	)
}

// UpdateItemReservation writes an allocation's state and range.
func UpdateItemReservation(ctx context.Context, db Querier, ir model.ItemReservation) error {
	_, err := db.ExecContext(ctx,
		`UPDATE item_reservations SET state = ?, start_day = ?, end_day = ? WHERE id = ?`,
		string(ir.State), int64(ir.Start), int64(ir.End), ir.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("updating item reservation: %w", err)
	}
	return nil
}

// DeleteItemReservations removes allocations by id.
func DeleteItemReservations(ctx context.Context, db Querier, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := db.ExecContext(ctx,
		`DELETE FROM item_reservations WHERE id IN `+inClause(len(ids)),
		idArgs(ids)...,
	)
	if err != nil {
		return fmt.Errorf("deleting item reservations: %w", err)
	}
	return nil
}

// DeleteReservedItemReservations removes the allocations among ids that are
// still reserved and returns how many it removed.
func DeleteReservedItemReservations(ctx context.Context, db Querier, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := db.ExecContext(ctx,
		`DELETE FROM item_reservations WHERE state = 'reserved' AND id IN `+inClause(len(ids)),
		idArgs(ids)...,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting reserved item reservations: %w", err)
	}
	return res.RowsAffected()
}

// MoveReservedItemReservations sets the range of the allocations among ids
// that are still reserved and returns how many it moved.
func MoveReservedItemReservations(ctx context.Context, db Querier, ids []uuid.UUID, start, end model.Day) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := append([]any{int64(start), int64(end)}, idArgs(ids)...)
	res, err := db.ExecContext(ctx,
		`UPDATE item_reservations SET start_day = ?, end_day = ?
		 WHERE state = 'reserved' AND id IN `+inClause(len(ids)),
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("moving reserved item reservations: %w", err)
	}
	return res.RowsAffected()
}

func queryAllocations(ctx context.Context, db Querier, query string, args ...any) ([]model.ItemReservation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing item reservations: %w", err)
	}
	defer rows.Close()

	var irs []model.ItemReservation
	for rows.Next() {
		ir, err := scanAllocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item reservation: %w", err)
		}
		irs = append(irs, ir)
	}
	return irs, rows.Err()
}
