// Package reservation books depot items for date ranges and moves each
// booked item through its pickup and return lifecycle.
package reservation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/erazemk/izposoja/internal/apperr"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/notify"
	"github.com/erazemk/izposoja/internal/store"
	"github.com/erazemk/izposoja/internal/telemetry"
)

// Publisher accepts notifications without blocking.
type Publisher interface {
	Publish(e notify.Event) bool
}

// Config tunes the engine.
type Config struct {
	CodeLength int
	CodeChars  string

	// Now defaults to time.Now. Days are taken in its location.
	Now func() time.Time
}

// Engine owns the reservation lifecycle.
type Engine struct {
	store  Store
	events Publisher
	cfg    Config
	tracer trace.Tracer
}

// New returns an engine persisting to s and publishing to events.
func New(s Store, events Publisher, cfg Config) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	if cfg.CodeChars == "" {
		cfg.CodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	}
	return &Engine{
		store:  s,
		events: events,
		cfg:    cfg,
		tracer: telemetry.Tracer(),
	}
}

// Input describes the desired contents of a reservation.
type Input struct {
	Type    model.ReservationType
	Name    string
	Contact string
	Start   model.Day
	End     model.Day

	// UserID is the owner. Empty means the caller on create and the current
	// owner on update.
	UserID string
	TeamID *string

	ItemIDs []uuid.UUID
}

// ListQuery filters List.
type ListQuery struct {
	UserID     string
	ActiveOnly bool
	ItemID     *uuid.UUID
	Start      *model.Day
	End        *model.Day
	Offset     int
	Limit      int
}

func (e *Engine) today() model.Day {
	return model.DayOf(e.cfg.Now())
}

func (e *Engine) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "reservation."+name, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (e *Engine) publish(ev notify.Event) {
	if e.events == nil {
		return
	}
	e.events.Publish(ev)
}

func eventFor(kind notify.Kind, r *model.Reservation) notify.Event {
	return notify.Event{
		Kind:            kind,
		ReservationID:   r.ID,
		ReservationName: r.Name,
		UserID:          r.UserID,
		TeamID:          r.TeamID,
		Contact:         r.Contact,
	}
}

// validateInput checks the fields shared by create and update.
func validateInput(in Input) error {
	if len(in.ItemIDs) == 0 {
		return apperr.InvalidArgument("reservation needs at least one item")
	}
	if dup := duplicates(in.ItemIDs); len(dup) > 0 {
		return apperr.InvalidArgument("duplicate items in reservation").WithItems(dup)
	}
	if in.End < in.Start {
		return apperr.InvalidArgument("range ends on %s before it starts on %s", in.End, in.Start)
	}
	if !in.Type.Valid() {
		return apperr.InvalidArgument("invalid reservation type %q", in.Type)
	}
	if in.Type == model.ReservationTypeTeam && in.TeamID == nil {
		return apperr.InvalidArgument("team reservation needs a team")
	}
	if in.Name == "" {
		return apperr.InvalidArgument("name is required")
	}
	return nil
}

// checkBookable fails unless every item exists, is not gone and is free in
// [start, end].
func checkBookable(ctx context.Context, s Store, itemIDs []uuid.UUID, start, end model.Day, exclude *uuid.UUID) error {
	if err := NewChecker(s).CheckAvailable(ctx, itemIDs, start, end, exclude); err != nil {
		return err
	}
	conditions, err := s.ItemConditions(ctx, itemIDs)
	if err != nil {
		return err
	}
	var gone []uuid.UUID
	for _, id := range itemIDs {
		if conditions[id] == model.ConditionGone {
			gone = append(gone, id)
		}
	}
	if len(gone) > 0 {
		return apperr.InvalidArgument("items are no longer available").WithItems(gone)
	}
	return nil
}

// Create books the items for the given range. The availability check and
// the inserts run in one transaction.
func (e *Engine) Create(ctx context.Context, p model.Principal, in Input) (_ *model.Reservation, err error) {
	ctx, span := e.start(ctx, "Create", attribute.Int("items", len(in.ItemIDs)))
	defer func() { finish(span, err) }()

	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.TeamID != nil && !p.IsAdmin && !p.InTeam(*in.TeamID) {
		return nil, apperr.Forbidden("not a member of team %s", *in.TeamID)
	}
	if in.UserID == "" {
		in.UserID = p.UserID
	} else if in.UserID != p.UserID && !p.IsAdmin {
		return nil, apperr.Forbidden("cannot book for user %s", in.UserID)
	}

	code, err := newCode(e.cfg.CodeChars, e.cfg.CodeLength)
	if err != nil {
		return nil, err
	}

	r := &model.Reservation{
		ID:      uuid.New(),
		Type:    in.Type,
		Code:    code,
		State:   model.ReservationReserved,
		Active:  true,
		Name:    in.Name,
		Start:   in.Start,
		End:     in.End,
		UserID:  in.UserID,
		TeamID:  in.TeamID,
		Contact: in.Contact,
	}
	irs := make([]model.ItemReservation, len(in.ItemIDs))
	for i, id := range in.ItemIDs {
		irs[i] = model.ItemReservation{
			ID:            uuid.New(),
			ReservationID: r.ID,
			ItemID:        id,
			State:         model.ItemReserved,
			Start:         in.Start,
			End:           in.End,
		}
	}

	err = e.store.Atomic(ctx, func(tx Store) error {
		if err := checkBookable(ctx, tx, in.ItemIDs, in.Start, in.End, nil); err != nil {
			return err
		}
		if err := tx.InsertReservation(ctx, r); err != nil {
			return err
		}
		return tx.InsertItemReservations(ctx, irs)
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("reservation", r.ID.String()))
	slog.Info("reservation created", "reservation", r.ID, "user", r.UserID, "items", len(irs), "start", r.Start, "end", r.End)
	r.Items = irs
	return r, nil
}

// Update replaces the contents of a reservation. Items may be added, and
// removed while still reserved; range changes apply to allocations that are
// still reserved. The reservation is read, checked and written in one
// transaction. The allocations are written in a second one; if that fails,
// or an allocation left the reserved state in between, the error is Fatal.
func (e *Engine) Update(ctx context.Context, p model.Principal, id uuid.UUID, in Input) (_ *model.Reservation, err error) {
	ctx, span := e.start(ctx, "Update", attribute.String("reservation", id.String()))
	defer func() { finish(span, err) }()

	if err := validateInput(in); err != nil {
		return nil, err
	}

	var plan *updatePlan
	err = e.store.Atomic(ctx, func(tx Store) error {
		cur, err := tx.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return apperr.NotFound("reservation %s not found", id)
		}
		irs, err := tx.ListItemReservations(ctx, id)
		if err != nil {
			return err
		}
		if plan, err = e.planUpdate(p, cur, irs, in); err != nil {
			return err
		}
		if err := checkBookable(ctx, tx, plan.probe, in.Start, in.End, &id); err != nil {
			return err
		}
		return tx.UpdateReservation(ctx, &plan.next)
	})
	if err != nil {
		return nil, err
	}

	err = e.store.Atomic(ctx, func(tx Store) error {
		n, err := tx.DeleteReservedItemReservations(ctx, plan.dropped)
		if err != nil {
			return err
		}
		if n != int64(len(plan.dropped)) {
			return fmt.Errorf("dropped %d of %d allocations, the rest are no longer reserved", n, len(plan.dropped))
		}
		if err := tx.InsertItemReservations(ctx, plan.inserted); err != nil {
			return err
		}
		n, err = tx.MoveReservedItemReservations(ctx, plan.moved, in.Start, in.End)
		if err != nil {
			return err
		}
		if n != int64(len(plan.moved)) {
			return fmt.Errorf("moved %d of %d allocations, the rest are no longer reserved", n, len(plan.moved))
		}
		return nil
	})
	if err != nil {
		slog.Error("reservation allocations out of sync", "reservation", id, "error", err)
		return nil, apperr.Fatal(err, "reservation %s was saved but its item allocations were not", id)
	}

	slog.Info("reservation updated", "reservation", id, "added", len(plan.inserted), "dropped", len(plan.dropped), "state", plan.next.State)
	return e.Get(ctx, id)
}

// updatePlan holds the writes of an Update.
type updatePlan struct {
	next model.Reservation
	// probe lists the items that must be free for the new range.
	probe    []uuid.UUID
	dropped  []uuid.UUID
	inserted []model.ItemReservation
	moved    []uuid.UUID
}

// planUpdate checks that p may turn cur, with allocations irs, into in and
// returns the writes that do it.
func (e *Engine) planUpdate(p model.Principal, cur *model.Reservation, irs []model.ItemReservation, in Input) (*updatePlan, error) {
	id := cur.ID
	if !p.CanAccess(cur) {
		return nil, apperr.Forbidden("cannot modify reservation %s", id)
	}
	if in.TeamID != nil && !p.IsAdmin && !p.InTeam(*in.TeamID) &&
		(cur.TeamID == nil || *cur.TeamID != *in.TeamID) {
		return nil, apperr.Forbidden("not a member of team %s", *in.TeamID)
	}
	if in.UserID == "" {
		in.UserID = cur.UserID
	} else if in.UserID != cur.UserID && in.UserID != p.UserID && !p.IsAdmin {
		return nil, apperr.Forbidden("cannot assign reservation to user %s", in.UserID)
	}

	current := make(map[uuid.UUID]model.ItemReservation, len(irs))
	for _, ir := range irs {
		current[ir.ItemID] = ir
	}
	var added []uuid.UUID
	for _, itemID := range in.ItemIDs {
		if _, ok := current[itemID]; !ok {
			added = append(added, itemID)
		}
	}
	var dropped, kept []model.ItemReservation
	for _, ir := range irs {
		if containsID(in.ItemIDs, ir.ItemID) {
			kept = append(kept, ir)
		} else {
			dropped = append(dropped, ir)
		}
	}

	today := e.today()
	rangeChanged := in.Start != cur.Start || in.End != cur.End
	if (rangeChanged || len(added) > 0 || len(dropped) > 0) && !p.IsAdmin {
		if cur.State == model.ReservationReturned || cur.End < today {
			return nil, apperr.Forbidden("reservation %s has ended", id)
		}
		if in.Start != cur.Start && in.Start <= today {
			return nil, apperr.Forbidden("cannot move the start of reservation %s to a started day", id)
		}
		if in.End != cur.End && in.End < today {
			return nil, apperr.Forbidden("cannot move the end of reservation %s into the past", id)
		}
	}
	for _, ir := range dropped {
		if ir.State != model.ItemReserved {
			return nil, apperr.InvalidTransition(ir.ItemID, string(model.ActionRemove), string(ir.State))
		}
	}

	plan := &updatePlan{
		probe:   append([]uuid.UUID(nil), added...),
		dropped: idsOf(dropped),
	}
	for _, ir := range kept {
		if ir.State == model.ItemReserved {
			if rangeChanged {
				plan.moved = append(plan.moved, ir.ID)
			}
			plan.probe = append(plan.probe, ir.ItemID)
		}
	}

	plan.inserted = make([]model.ItemReservation, len(added))
	for i, itemID := range added {
		plan.inserted[i] = model.ItemReservation{
			ID:            uuid.New(),
			ReservationID: id,
			ItemID:        itemID,
			State:         model.ItemReserved,
			Start:         in.Start,
			End:           in.End,
		}
	}

	states := statesOf(kept)
	for range plan.inserted {
		states = append(states, model.ItemReserved)
	}

	plan.next = *cur
	plan.next.Type = in.Type
	plan.next.Name = in.Name
	plan.next.Contact = in.Contact
	plan.next.Start = in.Start
	plan.next.End = in.End
	plan.next.UserID = in.UserID
	plan.next.TeamID = in.TeamID
	settle(&plan.next, DeriveState(states), today)
	return plan, nil
}

// Cancel deletes a reservation whose allocations are all still reserved.
// Only admins may cancel a reservation that has started.
func (e *Engine) Cancel(ctx context.Context, p model.Principal, id uuid.UUID) (err error) {
	ctx, span := e.start(ctx, "Cancel", attribute.String("reservation", id.String()))
	defer func() { finish(span, err) }()

	today := e.today()
	err = e.store.Atomic(ctx, func(tx Store) error {
		r, err := tx.GetReservation(ctx, id)
		if err != nil {
			return err
		}
		if r == nil {
			return apperr.NotFound("reservation %s not found", id)
		}
		if !p.CanAccess(r) {
			return apperr.Forbidden("cannot cancel reservation %s", id)
		}
		if r.Start <= today && !p.IsAdmin {
			return apperr.Forbidden("reservation %s has started", id)
		}
		irs, err := tx.ListItemReservations(ctx, id)
		if err != nil {
			return err
		}
		for _, ir := range irs {
			if ir.State != model.ItemReserved {
				return apperr.InvalidTransition(ir.ItemID, "cancel", string(ir.State))
			}
		}
		return tx.DeleteReservation(ctx, id)
	})
	if err != nil {
		return err
	}
	slog.Info("reservation cancelled", "reservation", id, "user", p.UserID)
	return nil
}

// Get returns a reservation with its allocations.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	r, err := e.store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apperr.NotFound("reservation %s not found", id)
	}
	if r.Items, err = e.store.ListItemReservations(ctx, id); err != nil {
		return nil, err
	}
	return r, nil
}

// List returns the reservations matching q visible to p, newest start
// first, with their allocations.
func (e *Engine) List(ctx context.Context, p model.Principal, q ListQuery) ([]model.Reservation, error) {
	if q.Offset < 0 || q.Limit < 0 {
		return nil, apperr.InvalidArgument("offset and limit must not be negative")
	}
	if q.Start != nil && q.End != nil && *q.End < *q.Start {
		return nil, apperr.InvalidArgument("range ends on %s before it starts on %s", *q.End, *q.Start)
	}

	f := store.ReservationFilter{
		UserID:     q.UserID,
		ActiveOnly: q.ActiveOnly,
		ItemID:     q.ItemID,
		Start:      q.Start,
		End:        q.End,
		Offset:     q.Offset,
		Limit:      q.Limit,
	}
	if !p.IsAdmin && !p.IsManager {
		f.VisibleTo = p.UserID
		f.VisibleToTeams = p.TeamIDs
	}

	rs, err := e.store.ListReservations(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range rs {
		if rs[i].Items, err = e.store.ListItemReservations(ctx, rs[i].ID); err != nil {
			return nil, err
		}
	}
	if rs == nil {
		rs = []model.Reservation{}
	}
	return rs, nil
}

// CheckAvailable reports whether the items are free in [start, end].
func (e *Engine) CheckAvailable(ctx context.Context, itemIDs []uuid.UUID, start, end model.Day, exclude *uuid.UUID) error {
	return NewChecker(e.store).CheckAvailable(ctx, itemIDs, start, end, exclude)
}

// ItemsReservedDuring lists the items allocated in [start, end].
func (e *Engine) ItemsReservedDuring(ctx context.Context, start, end model.Day, exclude *uuid.UUID) ([]uuid.UUID, error) {
	return NewChecker(e.store).ItemsReservedDuring(ctx, start, end, exclude)
}

func idsOf(irs []model.ItemReservation) []uuid.UUID {
	ids := make([]uuid.UUID, len(irs))
	for i, ir := range irs {
		ids[i] = ir.ID
	}
	return ids
}
