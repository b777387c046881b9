package reservation

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

// Store is the persistence the engine needs. Atomic runs fn against a store
// bound to one transaction; fn must use only that store.
type Store interface {
	GetItem(ctx context.Context, id uuid.UUID) (*model.Item, error)
	ItemConditions(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Condition, error)
	SetItemsReservation(ctx context.Context, ids []uuid.UUID, reservationID uuid.UUID) error
	ClearItemsReservation(ctx context.Context, ids []uuid.UUID, reservationID uuid.UUID) error

	GetReservation(ctx context.Context, id uuid.UUID) (*model.Reservation, error)
	ListReservations(ctx context.Context, f store.ReservationFilter) ([]model.Reservation, error)
	ListReservationsEndedBefore(ctx context.Context, state model.ReservationState, day model.Day) ([]model.Reservation, error)
	ListReservationsEndingOn(ctx context.Context, state model.ReservationState, days []model.Day) ([]model.Reservation, error)
	InsertReservation(ctx context.Context, r *model.Reservation) error
	UpdateReservation(ctx context.Context, r *model.Reservation) error
	DeleteReservation(ctx context.Context, id uuid.UUID) error

	ListItemReservations(ctx context.Context, reservationID uuid.UUID) ([]model.ItemReservation, error)
	FindAllocations(ctx context.Context, itemIDs []uuid.UUID, start, end model.Day, exclude *uuid.UUID) ([]model.ItemReservation, error)
	ItemsAllocatedDuring(ctx context.Context, start, end model.Day, exclude *uuid.UUID) ([]uuid.UUID, error)
	OpenAllocationsOf(ctx context.Context, itemID uuid.UUID, day model.Day) ([]model.ItemReservation, error)
	InsertItemReservations(ctx context.Context, irs []model.ItemReservation) error
	UpdateItemReservations(ctx context.Context, irs []model.ItemReservation) error
	DeleteItemReservations(ctx context.Context, ids []uuid.UUID) error
	DeleteReservedItemReservations(ctx context.Context, ids []uuid.UUID) (int64, error)
	MoveReservedItemReservations(ctx context.Context, ids []uuid.UUID, start, end model.Day) (int64, error)

	Atomic(ctx context.Context, fn func(tx Store) error) error
}

// SQLStore implements Store on the SQLite store package.
type SQLStore struct {
	db *sql.DB
	q  store.Querier
}

// NewSQLStore returns a store opening its own transactions on db.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, q: db}
}

// TxStore returns a store bound to an open transaction. Its Atomic runs fn
// within that same transaction.
func TxStore(tx *sql.Tx) *SQLStore {
	return &SQLStore{q: tx}
}

func (s *SQLStore) Atomic(ctx context.Context, fn func(tx Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	return store.InTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(TxStore(tx))
	})
}

func (s *SQLStore) GetItem(ctx context.Context, id uuid.UUID) (*model.Item, error) {
	return store.GetItem(ctx, s.q, id)
}

func (s *SQLStore) ItemConditions(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Condition, error) {
	return store.ItemConditions(ctx, s.q, ids)
}

func (s *SQLStore) SetItemsReservation(ctx context.Context, ids []uuid.UUID, reservationID uuid.UUID) error {
	return store.SetItemsReservation(ctx, s.q, ids, reservationID)
}

func (s *SQLStore) ClearItemsReservation(ctx context.Context, ids []uuid.UUID, reservationID uuid.UUID) error {
	return store.ClearItemsReservation(ctx, s.q, ids, reservationID)
}

func (s *SQLStore) GetReservation(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	return store.GetReservation(ctx, s.q, id)
}

func (s *SQLStore) ListReservations(ctx context.Context, f store.ReservationFilter) ([]model.Reservation, error) {
	return store.ListReservations(ctx, s.q, f)
}

func (s *SQLStore) ListReservationsEndedBefore(ctx context.Context, state model.ReservationState, day model.Day) ([]model.Reservation, error) {
	return store.ListReservationsEndedBefore(ctx, s.q, state, day)
}

func (s *SQLStore) ListReservationsEndingOn(ctx context.Context, state model.ReservationState, days []model.Day) ([]model.Reservation, error) {
	return store.ListReservationsEndingOn(ctx, s.q, state, days)
}

func (s *SQLStore) InsertReservation(ctx context.Context, r *model.Reservation) error {
	return store.InsertReservation(ctx, s.q, r)
}

func (s *SQLStore) UpdateReservation(ctx context.Context, r *model.Reservation) error {
	return store.UpdateReservation(ctx, s.q, r)
}

func (s *SQLStore) DeleteReservation(ctx context.Context, id uuid.UUID) error {
	return store.DeleteReservation(ctx, s.q, id)
}

func (s *SQLStore) ListItemReservations(ctx context.Context, reservationID uuid.UUID) ([]model.ItemReservation, error) {
	return store.ListItemReservations(ctx, s.q, reservationID)
}

func (s *SQLStore) FindAllocations(ctx context.Context, itemIDs []uuid.UUID, start, end model.Day, exclude *uuid.UUID) ([]model.ItemReservation, error) {
	return store.FindAllocations(ctx, s.q, itemIDs, start, end, exclude)
}

func (s *SQLStore) ItemsAllocatedDuring(ctx context.Context, start, end model.Day, exclude *uuid.UUID) ([]uuid.UUID, error) {
	return store.ItemsAllocatedDuring(ctx, s.q, start, end, exclude)
}

func (s *SQLStore) OpenAllocationsOf(ctx context.Context, itemID uuid.UUID, day model.Day) ([]model.ItemReservation, error) {
	return store.OpenAllocationsOf(ctx, s.q, itemID, day)
}

func (s *SQLStore) InsertItemReservations(ctx context.Context, irs []model.ItemReservation) error {
	return store.InsertItemReservations(ctx, s.q, irs)
}

func (s *SQLStore) UpdateItemReservations(ctx context.Context, irs []model.ItemReservation) error {
	for _, ir := range irs {
		if err := store.UpdateItemReservation(ctx, s.q, ir); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) DeleteItemReservations(ctx context.Context, ids []uuid.UUID) error {
	return store.DeleteItemReservations(ctx, s.q, ids)
}

func (s *SQLStore) DeleteReservedItemReservations(ctx context.Context, ids []uuid.UUID) (int64, error) {
	return store.DeleteReservedItemReservations(ctx, s.q, ids)
}

func (s *SQLStore) MoveReservedItemReservations(ctx context.Context, ids []uuid.UUID, start, end model.Day) (int64, error) {
	return store.MoveReservedItemReservations(ctx, s.q, ids, start, end)
}
