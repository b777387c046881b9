package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/izposoja/internal/apperr"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

// Recorder appends item state records and reads them back.
type Recorder struct {
	db  store.Querier
	now func() time.Time
}

// NewRecorder returns a recorder writing through db, which may be a
// transaction shared with the item write being recorded.
func NewRecorder(db store.Querier) *Recorder {
	return &Recorder{db: db, now: time.Now}
}

// HistoryQuery selects a page of an item's history. Zero fields do not filter.
type HistoryQuery struct {
	From      *time.Time
	To        *time.Time
	Offset    int
	Limit     int
	Ascending bool
}

// RecordChange stores exactly one record describing the transition from prev
// to next, even when nothing tracked changed. Creation is recorded against a
// zero-valued prev.
func (r *Recorder) RecordChange(ctx context.Context, prev, next model.Item, comment *string, userID string) (*model.ItemState, error) {
	itemID := next.ID
	if itemID == uuid.Nil {
		itemID = prev.ID
	}
	if itemID == uuid.Nil {
		return nil, apperr.InvalidArgument("item id is required")
	}
	if userID == "" {
		return nil, apperr.InvalidArgument("acting user is required")
	}

	s := &model.ItemState{
		ID:        uuid.New(),
		ItemID:    itemID,
		Timestamp: r.now().UTC().Truncate(time.Millisecond),
		Changes:   Diff(prev, next),
		UserID:    userID,
		Comment:   comment,
	}
	if err := store.InsertItemState(ctx, r.db, s); err != nil {
		return nil, err
	}
	return s, nil
}

// HistoryFor returns the records of one item, newest first unless
// q.Ascending is set.
func (r *Recorder) HistoryFor(ctx context.Context, itemID uuid.UUID, q HistoryQuery) ([]model.ItemState, error) {
	if q.Offset < 0 || q.Limit < 0 {
		return nil, apperr.InvalidArgument("offset and limit must not be negative")
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return nil, apperr.InvalidArgument("history window ends before it starts")
	}

	item, err := store.GetItem(ctx, r.db, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperr.ItemsNotFound([]uuid.UUID{itemID})
	}

	states, err := store.ListItemStates(ctx, r.db, itemID, store.ItemStateFilter{
		From: q.From, To: q.To, Offset: q.Offset, Limit: q.Limit, Ascending: q.Ascending,
	})
	if err != nil {
		return nil, err
	}
	if states == nil {
		states = []model.ItemState{}
	}
	return states, nil
}
