package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"

	"github.com/erazemk/izposoja/internal/db"
	"github.com/erazemk/izposoja/internal/model"
)

func seedReservation(t *testing.T, database *sql.DB, userID string, start, end model.Day, items ...uuid.UUID) *model.Reservation {
	t.Helper()
	ctx := context.Background()

	r := &model.Reservation{
		ID:      uuid.New(),
		Type:    model.ReservationTypePrivate,
		Code:    "ABC123",
		State:   model.ReservationReserved,
		Active:  true,
		Name:    "Trip",
		Start:   start,
		End:     end,
		UserID:  userID,
		Contact: "041 000 000",
	}
	if err := InsertReservation(ctx, database, r); err != nil {
		t.Fatalf("InsertReservation: %v", err)
	}

	var irs []model.ItemReservation
	for _, id := range items {
		irs = append(irs, model.ItemReservation{
			ID: uuid.New(), ReservationID: r.ID, ItemID: id,
			State: model.ItemReserved, Start: start, End: end,
		})
	}
	if err := InsertItemReservations(ctx, database, irs); err != nil {
		t.Fatalf("InsertItemReservations: %v", err)
	}
	r.Items = irs
	return r
}

func TestReservationRoundTrip(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	item, _ := CreateItem(ctx, database, newItem("Axe"))
	r := seedReservation(t, database, "7", model.NewDay(2024, 5, 1), model.NewDay(2024, 5, 3), item.ID)

	got, err := GetReservation(ctx, database, r.ID)
	if err != nil {
		t.Fatalf("GetReservation: %v", err)
	}
	if got.Start != r.Start || got.End != r.End || !got.Active || got.UserID != "7" {
		t.Errorf("unexpected reservation: %+v", got)
	}

	got.State = model.ReservationTaken
	team := "alpine"
	got.TeamID = &team
	if err := UpdateReservation(ctx, database, got); err != nil {
		t.Fatalf("UpdateReservation: %v", err)
	}
	got, _ = GetReservation(ctx, database, r.ID)
	if got.State != model.ReservationTaken || got.TeamID == nil || *got.TeamID != "alpine" {
		t.Errorf("expected updated reservation, got %+v", got)
	}

	byCode, _ := GetActiveReservationByCode(ctx, database, "ABC123")
	if byCode == nil || byCode.ID != r.ID {
		t.Errorf("expected lookup by code to find %s", r.ID)
	}

	irs, _ := ListItemReservations(ctx, database, r.ID)
	if len(irs) != 1 || irs[0].ItemID != item.ID || irs[0].State != model.ItemReserved {
		t.Errorf("unexpected allocations: %+v", irs)
	}

	if err := DeleteReservation(ctx, database, r.ID); err != nil {
		t.Fatalf("DeleteReservation: %v", err)
	}
	irs, _ = ListItemReservations(ctx, database, r.ID)
	if len(irs) != 0 {
		t.Errorf("expected allocations to cascade, got %d", len(irs))
	}
}

func TestFindAllocations(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	a, _ := CreateItem(ctx, database, newItem("A"))
	b, _ := CreateItem(ctx, database, newItem("B"))
	r := seedReservation(t, database, "1", model.NewDay(2024, 5, 10), model.NewDay(2024, 5, 12), a.ID)

	tests := []struct {
		name       string
		items      []uuid.UUID
		start, end model.Day
		exclude    *uuid.UUID
		want       int
	}{
		{"inside", []uuid.UUID{a.ID}, model.NewDay(2024, 5, 11), model.NewDay(2024, 5, 11), nil, 1},
		{"touching end", []uuid.UUID{a.ID}, model.NewDay(2024, 5, 12), model.NewDay(2024, 5, 14), nil, 1},
		{"touching start", []uuid.UUID{a.ID}, model.NewDay(2024, 5, 8), model.NewDay(2024, 5, 10), nil, 1},
		{"before", []uuid.UUID{a.ID}, model.NewDay(2024, 5, 1), model.NewDay(2024, 5, 9), nil, 0},
		{"after", []uuid.UUID{a.ID}, model.NewDay(2024, 5, 13), model.NewDay(2024, 5, 20), nil, 0},
		{"other item", []uuid.UUID{b.ID}, model.NewDay(2024, 5, 10), model.NewDay(2024, 5, 12), nil, 0},
		{"excluded", []uuid.UUID{a.ID, b.ID}, model.NewDay(2024, 5, 10), model.NewDay(2024, 5, 12), &r.ID, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindAllocations(ctx, database, tt.items, tt.start, tt.end, tt.exclude)
			if err != nil {
				t.Fatalf("FindAllocations: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d allocations, got %d", tt.want, len(got))
			}
		})
	}
}

func TestFindAllocationsIgnoresTerminal(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	a, _ := CreateItem(ctx, database, newItem("A"))
	r := seedReservation(t, database, "1", model.NewDay(2024, 5, 10), model.NewDay(2024, 5, 12), a.ID)

	ir := r.Items[0]
	ir.State = model.ItemReturned
	if err := UpdateItemReservation(ctx, database, ir); err != nil {
		t.Fatalf("UpdateItemReservation: %v", err)
	}

	got, _ := FindAllocations(ctx, database, []uuid.UUID{a.ID}, r.Start, r.End, nil)
	if len(got) != 0 {
		t.Errorf("expected returned allocation to be ignored, got %d", len(got))
	}

	// Any state counts for the reserved-during listing.
	ids, _ := ItemsAllocatedDuring(ctx, database, r.Start, r.End, nil)
	if len(ids) != 1 || ids[0] != a.ID {
		t.Errorf("expected [%s], got %v", a.ID, ids)
	}
}

func TestListReservationsFilters(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	a, _ := CreateItem(ctx, database, newItem("A"))
	mine := seedReservation(t, database, "1", model.NewDay(2024, 6, 1), model.NewDay(2024, 6, 3), a.ID)
	other := seedReservation(t, database, "2", model.NewDay(2024, 7, 1), model.NewDay(2024, 7, 3))
	team := "alpine"
	other.TeamID = &team
	other.Type = model.ReservationTypeTeam
	UpdateReservation(ctx, database, other)

	all, _ := ListReservations(ctx, database, ReservationFilter{})
	if len(all) != 2 || all[0].ID != other.ID {
		t.Fatalf("expected 2 reservations newest first, got %+v", all)
	}

	byUser, _ := ListReservations(ctx, database, ReservationFilter{UserID: "1"})
	if len(byUser) != 1 || byUser[0].ID != mine.ID {
		t.Errorf("expected only own reservation, got %+v", byUser)
	}

	byItem, _ := ListReservations(ctx, database, ReservationFilter{ItemID: &a.ID})
	if len(byItem) != 1 || byItem[0].ID != mine.ID {
		t.Errorf("expected reservation holding item, got %+v", byItem)
	}

	start, end := model.NewDay(2024, 7, 2), model.NewDay(2024, 7, 10)
	byWindow, _ := ListReservations(ctx, database, ReservationFilter{Start: &start, End: &end})
	if len(byWindow) != 1 || byWindow[0].ID != other.ID {
		t.Errorf("expected reservation in window, got %+v", byWindow)
	}

	visible, _ := ListReservations(ctx, database, ReservationFilter{VisibleTo: "3", VisibleToTeams: []string{"alpine"}})
	if len(visible) != 1 || visible[0].ID != other.ID {
		t.Errorf("expected team reservation to be visible, got %+v", visible)
	}

	paged, _ := ListReservations(ctx, database, ReservationFilter{Offset: 1, Limit: 1})
	if len(paged) != 1 || paged[0].ID != mine.ID {
		t.Errorf("expected second page to hold the older reservation, got %+v", paged)
	}
}

func TestListReservationsByEnd(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	past := seedReservation(t, database, "1", model.NewDay(2024, 1, 1), model.NewDay(2024, 1, 2))
	seedReservation(t, database, "1", model.NewDay(2024, 1, 5), model.NewDay(2024, 1, 9))

	ended, _ := ListReservationsEndedBefore(ctx, database, model.ReservationReserved, model.NewDay(2024, 1, 3))
	if len(ended) != 1 || ended[0].ID != past.ID {
		t.Errorf("expected only the past reservation, got %+v", ended)
	}

	onDay, _ := ListReservationsEndingOn(ctx, database, model.ReservationReserved,
		[]model.Day{model.NewDay(2024, 1, 9), model.NewDay(2024, 2, 1)})
	if len(onDay) != 1 || onDay[0].End != model.NewDay(2024, 1, 9) {
		t.Errorf("expected reservation ending on 2024-01-09, got %+v", onDay)
	}
}

func TestOpenAllocationsOf(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	today := model.NewDay(2024, 5, 10)

	item, _ := CreateItem(ctx, database, newItem("Rope"))
	overdue := seedReservation(t, database, "1", today.AddDays(-6), today.AddDays(-3), item.ID)
	seedReservation(t, database, "1", today.AddDays(-9), today.AddDays(-7), item.ID)
	future := seedReservation(t, database, "1", today.AddDays(2), today.AddDays(4), item.ID)

	taken := overdue.Items[0]
	taken.State = model.ItemTaken
	if err := UpdateItemReservation(ctx, database, taken); err != nil {
		t.Fatalf("UpdateItemReservation: %v", err)
	}

	open, err := OpenAllocationsOf(ctx, database, item.ID, today)
	if err != nil {
		t.Fatalf("OpenAllocationsOf: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected overdue taken and future reserved allocations, got %+v", open)
	}
	if open[0].ID != taken.ID || open[1].ID != future.Items[0].ID {
		t.Errorf("unexpected allocations: %+v", open)
	}
}

func TestReservedOnlyAllocationWrites(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	start := model.NewDay(2024, 5, 1)

	a, _ := CreateItem(ctx, database, newItem("Tent"))
	b, _ := CreateItem(ctx, database, newItem("Stove"))
	r := seedReservation(t, database, "1", start, start.AddDays(2), a.ID, b.ID)

	taken := r.Items[1]
	taken.State = model.ItemTaken
	if err := UpdateItemReservation(ctx, database, taken); err != nil {
		t.Fatalf("UpdateItemReservation: %v", err)
	}
	ids := []uuid.UUID{r.Items[0].ID, taken.ID}

	n, err := MoveReservedItemReservations(ctx, database, ids, start, start.AddDays(5))
	if err != nil {
		t.Fatalf("MoveReservedItemReservations: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 moved allocation, got %d", n)
	}

	n, err = DeleteReservedItemReservations(ctx, database, ids)
	if err != nil {
		t.Fatalf("DeleteReservedItemReservations: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted allocation, got %d", n)
	}

	irs, _ := ListItemReservations(ctx, database, r.ID)
	if len(irs) != 1 || irs[0].ID != taken.ID || irs[0].End != start.AddDays(2) {
		t.Errorf("expected only the taken allocation with its range, got %+v", irs)
	}
}
