package model

import (
	"time"

	"github.com/google/uuid"
)

// Item is a single physical asset held in the depot.
type Item struct {
	ID         uuid.UUID `json:"id"`
	ExternalID *string   `json:"external_id,omitempty"`

	Manufacturer    *string `json:"manufacturer,omitempty"`
	Model           *string `json:"model,omitempty"`
	SerialNumber    *string `json:"serial_number,omitempty"`
	ManufactureDate *Day    `json:"manufacture_date,omitempty"`
	PurchaseDate    *Day    `json:"purchase_date,omitempty"`
	FirstUseDate    *Day    `json:"first_use_date,omitempty"`

	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`

	ReportProfileID  *uuid.UUID   `json:"report_profile_id,omitempty"`
	TotalReportState *ReportState `json:"total_report_state,omitempty"`

	Condition        Condition `json:"condition"`
	ConditionComment *string   `json:"condition_comment,omitempty"`

	LastService *Day `json:"last_service,omitempty"`

	PictureID *string `json:"picture_id,omitempty"`
	GroupID   *string `json:"group_id,omitempty"`

	Tags []string `json:"tags"`

	BayID *uuid.UUID `json:"bay_id,omitempty"`

	// ReservationID is the reservation currently holding the item taken.
	ReservationID *uuid.UUID `json:"reservation_id,omitempty"`

	ImageMime string    `json:"image_mime,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Condition is the physical condition of an item.
type Condition string

// Item conditions.
const (
	ConditionNew  Condition = "new"
	ConditionGood Condition = "good"
	ConditionOk   Condition = "ok"
	ConditionBad  Condition = "bad"
	ConditionGone Condition = "gone"
)

// Valid reports whether c is a known condition.
func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionGood, ConditionOk, ConditionBad, ConditionGone:
		return true
	}
	return false
}

// ReportState is the overall result of the last inspection report.
type ReportState string

// Report states.
const (
	ReportStateFit     ReportState = "fit"
	ReportStateLimited ReportState = "limited"
	ReportStateUnfit   ReportState = "unfit"
)

// Valid reports whether s is a known report state.
func (s ReportState) Valid() bool {
	switch s {
	case ReportStateFit, ReportStateLimited, ReportStateUnfit:
		return true
	}
	return false
}

// Bay is a storage location items are kept in.
type Bay struct {
	ID          uuid.UUID `json:"id"`
	ExternalID  *string   `json:"external_id,omitempty"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
