package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/erazemk/izposoja/internal/model"
)

const reservationColumns = `id, type, code, state, active, name, start_day, end_day,
	user_id, team_id, contact, created_at`

func scanReservation(s scanner) (*model.Reservation, error) {
	var r model.Reservation
	var teamID sql.NullString
	err := s.Scan(&r.ID, &r.Type, &r.Code, &r.State, &r.Active, &r.Name,
		&r.Start, &r.End, &r.UserID, &teamID, &r.Contact, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.TeamID = nullString(teamID)
	return &r, nil
}

// ReservationFilter narrows ListReservations. Zero fields do not filter.
type ReservationFilter struct {
	UserID     string
	ActiveOnly bool
	ItemID     *uuid.UUID

	// Start and End select reservations whose range intersects the window.
	Start *model.Day
	End   *model.Day

	// VisibleTo restricts the result to reservations owned by the user or
	// booked for one of the teams. Empty means no restriction.
	VisibleTo      string
	VisibleToTeams []string

	Offset int
	Limit  int
}

// InsertReservation inserts a reservation row without its allocations.
func InsertReservation(ctx context.Context, db Querier, r *model.Reservation) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO reservations (id, type, code, state, active, name, start_day, end_day,
		     user_id, team_id, contact)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), string(r.Type), r.Code, string(r.State), r.Active, r.Name,
		int64(r.Start), int64(r.End), r.UserID, r.TeamID, r.Contact,
	)
	if err != nil {
		return fmt.Errorf("inserting reservation: %w", err)
	}
	return nil
}

// GetReservation returns a reservation by ID without its allocations.
func GetReservation(ctx context.Context, db Querier, id uuid.UUID) (*model.Reservation, error) {
	r, err := scanReservation(db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id.String(),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting reservation: %w", err)
	}
	return r, nil
}

// GetActiveReservationByCode returns the most recent active reservation with
// the given access code.
func GetActiveReservationByCode(ctx context.Context, db Querier, code string) (*model.Reservation, error) {
	r, err := scanReservation(db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE code = ? AND active = 1
		 ORDER BY start_day DESC LIMIT 1`, code,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting reservation by code: %w", err)
	}
	return r, nil
}

// UpdateReservation overwrites a reservation's mutable columns.
func UpdateReservation(ctx context.Context, db Querier, r *model.Reservation) error {
	_, err := db.ExecContext(ctx,
		`UPDATE reservations SET type = ?, state = ?, active = ?, name = ?, start_day = ?,
		     end_day = ?, user_id = ?, team_id = ?, contact = ?
		 WHERE id = ?`,
		string(r.Type), string(r.State), r.Active, r.Name, int64(r.Start),
		int64(r.End), r.UserID, r.TeamID, r.Contact, r.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("updating reservation: %w", err)
	}
	return nil
}

// DeleteReservation removes a reservation and, by cascade, its allocations.
func DeleteReservation(ctx context.Context, db Querier, id uuid.UUID) error {
	_, err := db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("deleting reservation: %w", err)
	}
	return nil
}

// ListReservations returns reservations matching f, newest start first.
func ListReservations(ctx context.Context, db Querier, f ReservationFilter) ([]model.Reservation, error) {
	var where []string
	var args []any

	if f.UserID != "" {
		where = append(where, "r.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.ActiveOnly {
		where = append(where, "r.active = 1")
	}
	if f.ItemID != nil {
		where = append(where,
			"EXISTS (SELECT 1 FROM item_reservations ir WHERE ir.reservation_id = r.id AND ir.item_id = ?)")
		args = append(args, f.ItemID.String())
	}
	if f.Start != nil {
		where = append(where, "r.end_day >= ?")
		args = append(args, int64(*f.Start))
	}
	if f.End != nil {
		where = append(where, "r.start_day <= ?")
		args = append(args, int64(*f.End))
	}
	if f.VisibleTo != "" {
		clause := "r.user_id = ?"
		args = append(args, f.VisibleTo)
		if len(f.VisibleToTeams) > 0 {
			clause = "(" + clause + " OR r.team_id IN " + inClause(len(f.VisibleToTeams)) + ")"
			for _, team := range f.VisibleToTeams {
				args = append(args, team)
			}
		}
		where = append(where, clause)
	}

	query := `SELECT ` + prefixColumns("r", reservationColumns) + ` FROM reservations r`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY r.start_day DESC, r.created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	} else if f.Offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, f.Offset)
	}

	return queryReservations(ctx, db, query, args...)
}

// ListReservationsEndedBefore returns reservations in the given aggregate
// state whose end day lies before day.
func ListReservationsEndedBefore(ctx context.Context, db Querier, state model.ReservationState, day model.Day) ([]model.Reservation, error) {
	return queryReservations(ctx, db,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE state = ? AND end_day < ? ORDER BY end_day, id`,
		string(state), int64(day),
	)
}

// ListReservationsEndingOn returns reservations in the given aggregate state
// whose end day is one of days.
func ListReservationsEndingOn(ctx context.Context, db Querier, state model.ReservationState, days []model.Day) ([]model.Reservation, error) {
	if len(days) == 0 {
		return nil, nil
	}
	args := []any{string(state)}
	for _, d := range days {
		args = append(args, int64(d))
	}
	return queryReservations(ctx, db,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE state = ? AND end_day IN `+inClause(len(days))+` ORDER BY end_day, id`,
		args...,
	)
}

func queryReservations(ctx context.Context, db Querier, query string, args ...any) ([]model.Reservation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reservations: %w", err)
	}
	defer rows.Close()

	var reservations []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reservation: %w", err)
		}
		reservations = append(reservations, *r)
	}
	return reservations, rows.Err()
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
