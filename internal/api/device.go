package api

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/erazemk/izposoja/internal/apperr"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/reservation"
	"github.com/erazemk/izposoja/internal/store"
)

// DeviceHandler serves pickup terminals. A device holds the shared key and
// is handed a reservation code by the person at the counter.
type DeviceHandler struct {
	DB     *sql.DB
	Engine *reservation.Engine
	Key    string
}

const deviceReservationKey contextKey = "device_reservation"

type deviceItem struct {
	Item  *model.Item                `json:"item"`
	State model.ItemReservationState `json:"state"`
	Bay   *model.Bay                 `json:"bay,omitempty"`
}

type deviceReservation struct {
	Reservation *model.Reservation `json:"reservation"`
	Items       []deviceItem       `json:"items"`
}

// Middleware checks X-Device-Key and resolves X-Reservation-Code to an
// active reservation.
func (h *DeviceHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Key == "" {
			jsonError(w, http.StatusNotFound, "device access disabled")
			return
		}
		key := r.Header.Get("X-Device-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.Key)) != 1 {
			slog.Warn("device rejected", "remote", r.RemoteAddr)
			jsonError(w, http.StatusUnauthorized, "invalid device key")
			return
		}

		code := r.Header.Get("X-Reservation-Code")
		if code == "" {
			writeError(w, r, apperr.InvalidArgument("reservation code required"))
			return
		}
		res, err := store.GetActiveReservationByCode(r.Context(), h.DB, code)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if res == nil {
			writeError(w, r, apperr.NotFound("no active reservation with this code"))
			return
		}

		ctx := context.WithValue(r.Context(), deviceReservationKey, res)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func deviceReservationFrom(ctx context.Context) *model.Reservation {
	res, _ := ctx.Value(deviceReservationKey).(*model.Reservation)
	return res
}

// Get handles GET /api/device/reservation.
func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	out, err := h.describe(r.Context(), deviceReservationFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, out)
}

// Action handles POST /api/device/reservation/action. Actions are applied
// on behalf of the reservation owner.
func (h *DeviceHandler) Action(w http.ResponseWriter, r *http.Request) {
	res := deviceReservationFrom(r.Context())

	var req actionRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	owner := model.Principal{UserID: res.UserID}
	if err := h.Engine.ApplyAction(r.Context(), owner, res.ID, req.Actions); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("device applied actions", "reservation", res.ID, "actions", len(req.Actions))

	out, err := h.describe(r.Context(), res.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, out)
}

// describe loads a reservation with the details a terminal shows: every
// allocated item and the bay it is kept in.
func (h *DeviceHandler) describe(ctx context.Context, id uuid.UUID) (*deviceReservation, error) {
	res, err := h.Engine.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	out := &deviceReservation{Reservation: res, Items: make([]deviceItem, 0, len(res.Items))}
	bays := map[uuid.UUID]*model.Bay{}
	for _, ir := range res.Items {
		item, err := store.GetItem(ctx, h.DB, ir.ItemID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			continue
		}
		di := deviceItem{Item: item, State: ir.State}
		if item.BayID != nil {
			bay, ok := bays[*item.BayID]
			if !ok {
				if bay, err = store.GetBay(ctx, h.DB, *item.BayID); err != nil {
					return nil, err
				}
				bays[*item.BayID] = bay
			}
			di.Bay = bay
		}
		out.Items = append(out.Items, di)
	}
	return out, nil
}
