package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/erazemk/izposoja/internal/apperr"
	"github.com/erazemk/izposoja/internal/model"
	"github.com/erazemk/izposoja/internal/store"
)

// BaysHandler handles storage bay endpoints.
type BaysHandler struct {
	DB *sql.DB
}

type bayRequest struct {
	ExternalID  *string `json:"external_id"`
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description"`
}

// List handles GET /api/bays.
func (h *BaysHandler) List(w http.ResponseWriter, r *http.Request) {
	bays, err := store.ListBays(r.Context(), h.DB)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if bays == nil {
		bays = []model.Bay{}
	}
	jsonResponse(w, http.StatusOK, bays)
}

// Create handles POST /api/bays.
func (h *BaysHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req bayRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	bay, err := store.CreateBay(r.Context(), h.DB, &model.Bay{
		ID:          uuid.New(),
		ExternalID:  req.ExternalID,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("bay created", "user", GetClaims(r.Context()).Username, "bay", bay.ID, "name", bay.Name)
	jsonResponse(w, http.StatusCreated, bay)
}

// Get handles GET /api/bays/{id}.
func (h *BaysHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	bay, err := store.GetBay(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if bay == nil {
		writeError(w, r, apperr.NotFound("bay %s not found", id))
		return
	}
	jsonResponse(w, http.StatusOK, bay)
}

// Update handles PUT /api/bays/{id}.
func (h *BaysHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req bayRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	bay, err := store.GetBay(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if bay == nil {
		writeError(w, r, apperr.NotFound("bay %s not found", id))
		return
	}

	bay.ExternalID = req.ExternalID
	bay.Name = req.Name
	bay.Description = req.Description
	if err := store.UpdateBay(r.Context(), h.DB, bay); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, bay)
}

// Delete handles DELETE /api/bays/{id}. Items in the bay lose their bay.
func (h *BaysHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	deleted, err := store.DeleteBay(r.Context(), h.DB, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, r, apperr.NotFound("bay %s not found", id))
		return
	}

	slog.Info("bay deleted", "user", GetClaims(r.Context()).Username, "bay", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "bay deleted"})
}
