package api

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/erazemk/izposoja/internal/apperr"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/reservation"
)

// ReservationsHandler exposes the reservation engine.
type ReservationsHandler struct {
	Engine *reservation.Engine
}

type reservationRequest struct {
	Type    model.ReservationType `json:"type" validate:"required,oneof=private team"`
	Name    string                `json:"name" validate:"required"`
	Contact string                `json:"contact"`
	Start   model.Day             `json:"start" validate:"required"`
	End     model.Day             `json:"end" validate:"required"`
	UserID  string                `json:"user_id"`
	TeamID  *string               `json:"team_id" validate:"required_if=Type team"`
	ItemIDs []uuid.UUID           `json:"item_ids" validate:"required,min=1"`
}

func (req *reservationRequest) input() reservation.Input {
	return reservation.Input{
		Type:    req.Type,
		Name:    req.Name,
		Contact: req.Contact,
		Start:   req.Start,
		End:     req.End,
		UserID:  req.UserID,
		TeamID:  req.TeamID,
		ItemIDs: req.ItemIDs,
	}
}

type actionRequest struct {
	Actions []model.ItemAction `json:"actions" validate:"required,min=1"`
}

type checkRequest struct {
	ItemIDs []uuid.UUID `json:"item_ids" validate:"required,min=1"`
	Start   model.Day   `json:"start" validate:"required"`
	End     model.Day   `json:"end" validate:"required"`
	Exclude *uuid.UUID  `json:"exclude"`
}

func queryDay(r *http.Request, name string) (*model.Day, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	d, err := model.ParseDay(v)
	if err != nil {
		return nil, apperr.InvalidArgument("%s must be a YYYY-MM-DD date", name)
	}
	return &d, nil
}

func queryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, apperr.InvalidArgument("invalid %s", name)
	}
	return &id, nil
}

// List handles GET /api/reservations. Filters: user, active, item, start,
// end, offset and limit.
func (h *ReservationsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := reservation.ListQuery{
		UserID:     r.URL.Query().Get("user"),
		ActiveOnly: r.URL.Query().Get("active") == "true",
	}
	var err error
	if q.ItemID, err = queryUUID(r, "item"); err != nil {
		writeError(w, r, err)
		return
	}
	if q.Start, err = queryDay(r, "start"); err != nil {
		writeError(w, r, err)
		return
	}
	if q.End, err = queryDay(r, "end"); err != nil {
		writeError(w, r, err)
		return
	}
	if q.Offset, err = queryInt(r, "offset"); err != nil {
		writeError(w, r, err)
		return
	}
	if q.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, r, err)
		return
	}

	list, err := h.Engine.List(r.Context(), principal(r), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, list)
}

// Create handles POST /api/reservations.
func (h *ReservationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req reservationRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Engine.Create(r.Context(), principal(r), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, res)
}

// Get handles GET /api/reservations/{id}.
func (h *ReservationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Engine.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// Update handles PUT /api/reservations/{id}.
func (h *ReservationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req reservationRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Engine.Update(r.Context(), principal(r), id, req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// Cancel handles DELETE /api/reservations/{id}.
func (h *ReservationsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Engine.Cancel(r.Context(), principal(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "reservation cancelled"})
}

// Action handles POST /api/reservations/{id}/action and returns the
// reservation as it is after the batch.
func (h *ReservationsHandler) Action(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req actionRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Engine.ApplyAction(r.Context(), principal(r), id, req.Actions); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.Engine.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// ReservedItems handles GET /api/reservations/items?start=&end=[&exclude=].
func (h *ReservationsHandler) ReservedItems(w http.ResponseWriter, r *http.Request) {
	start, err := queryDay(r, "start")
	if err != nil {
		writeError(w, r, err)
		return
	}
	end, err := queryDay(r, "end")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if start == nil || end == nil {
		writeError(w, r, apperr.InvalidArgument("start and end required"))
		return
	}
	exclude, err := queryUUID(r, "exclude")
	if err != nil {
		writeError(w, r, err)
		return
	}

	ids, err := h.Engine.ItemsReservedDuring(r.Context(), *start, *end, exclude)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	jsonResponse(w, http.StatusOK, map[string]any{"item_ids": ids})
}

// Check handles POST /api/reservations/check. It answers 200 when every
// item is free for the range and with the checker's error otherwise.
func (h *ReservationsHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Engine.CheckAvailable(r.Context(), req.ItemIDs, req.Start, req.End, req.Exclude); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]bool{"available": true})
}

// AutoReturn handles POST /api/reservations/auto-return, running the daily
// sweep on demand.
func (h *ReservationsHandler) AutoReturn(w http.ResponseWriter, r *http.Request) {
	n, err := h.Engine.AutoReturnExpired(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("automatic return triggered", "user", GetClaims(r.Context()).Username, "reservations", n)
	jsonResponse(w, http.StatusOK, map[string]int{"returned": n})
}
