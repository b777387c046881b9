package reservation

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/erazemk/izposoja/internal/apperr"
	"github.com/erazemk/izposoja/internal/model"
)

// Checker validates proposed allocations against existing ones. It only
// reads; callers that write afterwards run it inside the same transaction.
type Checker struct {
	store Store
}

// NewChecker returns a checker reading from s.
func NewChecker(s Store) *Checker {
	return &Checker{store: s}
}

// CheckAvailable fails with NotFound if any of itemIDs does not exist, and
// with Conflict naming every item that already has a reserved or taken
// allocation intersecting [start, end] in a reservation other than exclude.
func (c *Checker) CheckAvailable(ctx context.Context, itemIDs []uuid.UUID, start, end model.Day, exclude *uuid.UUID) error {
	if end < start {
		return apperr.InvalidArgument("range ends on %s before it starts on %s", end, start)
	}
	ids := unique(itemIDs)
	if len(ids) == 0 {
		return nil
	}

	conditions, err := c.store.ItemConditions(ctx, ids)
	if err != nil {
		return err
	}
	var missing []uuid.UUID
	for _, id := range ids {
		if _, ok := conditions[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return apperr.ItemsNotFound(missing)
	}

	allocations, err := c.store.FindAllocations(ctx, ids, start, end, exclude)
	if err != nil {
		return err
	}
	if len(allocations) == 0 {
		return nil
	}
	conflicting := make([]uuid.UUID, 0, len(allocations))
	for _, a := range allocations {
		conflicting = append(conflicting, a.ItemID)
	}
	return apperr.Conflict(conflicting)
}

// ItemsReservedDuring returns the distinct items with an allocation in any
// state intersecting [start, end], ignoring the excluded reservation.
func (c *Checker) ItemsReservedDuring(ctx context.Context, start, end model.Day, exclude *uuid.UUID) ([]uuid.UUID, error) {
	if end < start {
		return nil, apperr.InvalidArgument("range ends on %s before it starts on %s", end, start)
	}
	ids, err := c.store.ItemsAllocatedDuring(ctx, start, end, exclude)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return ids, nil
}

// unique returns ids without duplicates, keeping the first occurrence order.
func unique(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// duplicates returns the ids that occur more than once.
func duplicates(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]int, len(ids))
	var dup []uuid.UUID
	for _, id := range ids {
		seen[id]++
		if seen[id] == 2 {
			dup = append(dup, id)
		}
	}
	return dup
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	return slices.Contains(ids, id)
}
