package api

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/izposoja/internal/apperr"
	"github.com/erazemk/izposoja/internal/audit"
	"github.com/erazemk/izposoja/internal/imaging"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/reservation"
	"github.com/erazemk/izposoja/internal/store"
)

// ItemsHandler handles item CRUD, pictures and the audit history.
type ItemsHandler struct {
	DB     *sql.DB
	Engine *reservation.Engine
}

type itemRequest struct {
	ExternalID       *string            `json:"external_id"`
	Manufacturer     *string            `json:"manufacturer"`
	Model            *string            `json:"model"`
	SerialNumber     *string            `json:"serial_number"`
	ManufactureDate  *model.Day         `json:"manufacture_date"`
	PurchaseDate     *model.Day         `json:"purchase_date"`
	FirstUseDate     *model.Day         `json:"first_use_date"`
	Name             string             `json:"name" validate:"required"`
	Description      *string            `json:"description"`
	ReportProfileID  *uuid.UUID         `json:"report_profile_id"`
	TotalReportState *model.ReportState `json:"total_report_state" validate:"omitnil,oneof=fit limited unfit"`
	Condition        model.Condition    `json:"condition" validate:"omitempty,oneof=new good ok bad gone"`
	ConditionComment *string            `json:"condition_comment"`
	LastService      *model.Day         `json:"last_service"`
	GroupID          *string            `json:"group_id"`
	Tags             []string           `json:"tags" validate:"dive,required"`
	BayID            *uuid.UUID         `json:"bay_id"`
	ChangeComment    *string            `json:"change_comment"`
}

// applyTo overwrites the editable attributes of item. The picture and the
// reservation back-reference are not editable here.
func (req *itemRequest) applyTo(item *model.Item) {
	item.ExternalID = req.ExternalID
	item.Manufacturer = req.Manufacturer
	item.Model = req.Model
	item.SerialNumber = req.SerialNumber
	item.ManufactureDate = req.ManufactureDate
	item.PurchaseDate = req.PurchaseDate
	item.FirstUseDate = req.FirstUseDate
	item.Name = req.Name
	item.Description = req.Description
	item.ReportProfileID = req.ReportProfileID
	item.TotalReportState = req.TotalReportState
	if req.Condition != "" {
		item.Condition = req.Condition
	}
	item.ConditionComment = req.ConditionComment
	item.LastService = req.LastService
	item.GroupID = req.GroupID
	item.Tags = req.Tags
	item.BayID = req.BayID
}

func checkBay(ctx context.Context, db store.Querier, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	bay, err := store.GetBay(ctx, db, *id)
	if err != nil {
		return err
	}
	if bay == nil {
		return apperr.InvalidArgument("bay %s does not exist", *id)
	}
	return nil
}

func itemNotFound(id uuid.UUID) error {
	return apperr.ItemsNotFound([]uuid.UUID{id})
}

// List handles GET /api/items. Gone items are included with ?all=true.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := store.ListItems(r.Context(), h.DB, r.URL.Query().Get("all") == "true")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req itemRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Condition == model.ConditionGone {
		writeError(w, r, apperr.InvalidArgument("new items cannot be gone"))
		return
	}

	ctx := r.Context()
	item := &model.Item{ID: uuid.New()}
	req.applyTo(item)

	var created *model.Item
	err := store.InTx(ctx, h.DB, func(tx *sql.Tx) error {
		if err := checkBay(ctx, tx, item.BayID); err != nil {
			return err
		}
		var err error
		if created, err = store.CreateItem(ctx, tx, item); err != nil {
			return err
		}
		_, err = audit.NewRecorder(tx).RecordChange(ctx, model.Item{}, *created, req.ChangeComment, principal(r).UserID)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("item created", "user", GetClaims(ctx).Username, "item", created.ID, "name", created.Name)
	jsonResponse(w, http.StatusCreated, created)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if item == nil {
		writeError(w, r, itemNotFound(id))
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Update handles PUT /api/items/{id}. Marking an item gone withdraws it from
// the reservations that still expect it, in the same transaction.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req itemRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	var updated *model.Item
	var affected []model.Reservation
	err = store.InTx(ctx, h.DB, func(tx *sql.Tx) error {
		cur, err := store.GetItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return itemNotFound(id)
		}
		next := *cur
		req.applyTo(&next)

		if err := checkBay(ctx, tx, next.BayID); err != nil {
			return err
		}
		if next.Condition == model.ConditionGone && cur.Condition != model.ConditionGone {
			if affected, err = h.Engine.Withdraw(ctx, reservation.TxStore(tx), id); err != nil {
				return err
			}
		}
		if err := store.UpdateItem(ctx, tx, &next); err != nil {
			return err
		}
		if _, err := audit.NewRecorder(tx).RecordChange(ctx, *cur, next, req.ChangeComment, principal(r).UserID); err != nil {
			return err
		}
		updated, err = store.GetItem(ctx, tx, id)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Engine.AnnounceWithdrawal(id, affected)

	slog.Info("item updated", "user", GetClaims(ctx).Username, "item", id, "condition", updated.Condition)
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/items/{id}. The item is withdrawn from pending
// reservations first; an item that is out on a reservation cannot be deleted.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	var affected []model.Reservation
	err = store.InTx(ctx, h.DB, func(tx *sql.Tx) error {
		var err error
		if affected, err = h.Engine.Withdraw(ctx, reservation.TxStore(tx), id); err != nil {
			return err
		}
		deleted, err := store.DeleteItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return itemNotFound(id)
		}
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Engine.AnnounceWithdrawal(id, affected)

	slog.Info("item deleted", "user", GetClaims(ctx).Username, "item", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "item deleted"})
}

// UploadImage handles PUT /api/items/{id}/image. The upload is the raw
// request body or a multipart "image" field.
func (h *ItemsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<10)
	body := r.Body
	if r.ParseMultipartForm(imaging.MaxUploadBytes) == nil {
		file, _, err := r.FormFile("image")
		if err != nil {
			writeError(w, r, apperr.InvalidArgument("image file required"))
			return
		}
		defer file.Close()
		body = file
	}

	pic, err := imaging.Process(body)
	if err != nil {
		if errors.Is(err, imaging.ErrUnsupported) {
			writeError(w, r, apperr.InvalidArgument("image must be JPEG or PNG"))
			return
		}
		writeError(w, r, apperr.InvalidArgument("invalid image: %v", err))
		return
	}

	ctx := r.Context()
	err = store.InTx(ctx, h.DB, func(tx *sql.Tx) error {
		cur, err := store.GetItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur == nil {
			return itemNotFound(id)
		}
		next := *cur
		next.PictureID = &pic.ID

		if err := store.SetItemImage(ctx, tx, id, pic.Data, pic.MIME); err != nil {
			return err
		}
		if err := store.UpdateItem(ctx, tx, &next); err != nil {
			return err
		}
		_, err = audit.NewRecorder(tx).RecordChange(ctx, *cur, next, nil, principal(r).UserID)
		return err
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("item picture uploaded", "item", id, "picture", pic.ID, "width", pic.Width, "height", pic.Height)
	jsonResponse(w, http.StatusOK, map[string]string{"picture_id": pic.ID})
}

// GetImage handles GET /api/items/{id}/image.
func (h *ItemsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	data, mime, err := store.GetItemImage(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// GetHistory handles GET /api/items/{id}/history. It accepts from and to as
// RFC 3339 timestamps plus offset and limit; order=asc lists oldest first.
func (h *ItemsHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var q audit.HistoryQuery
	if q.From, err = queryTime(r, "from"); err != nil {
		writeError(w, r, err)
		return
	}
	if q.To, err = queryTime(r, "to"); err != nil {
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
	switch order := r.URL.Query().Get("order"); order {
	case "", "desc":
	case "asc":
		q.Ascending = true
	default:
		writeError(w, r, apperr.InvalidArgument("order must be asc or desc, got %q", order))
		return
	}

	history, err := audit.NewRecorder(h.DB).HistoryFor(r.Context(), id, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, history)
}

func queryTime(r *http.Request, name string) (*time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, apperr.InvalidArgument("%s must be an RFC 3339 timestamp", name)
	}
	return &t, nil
}
