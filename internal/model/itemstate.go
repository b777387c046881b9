package model

import (
	"time"

	"github.com/google/uuid"
)

// TrackedFieldsVersion identifies the set of item attributes compared by the
// audit trail. Bump it when ItemChanges gains or loses a slot.
const TrackedFieldsVersion = 1

// ItemState is an immutable audit record of one change to an item.
type ItemState struct {
	ID        uuid.UUID   `json:"id"`
	ItemID    uuid.UUID   `json:"item_id"`
	Timestamp time.Time   `json:"timestamp"`
	Changes   ItemChanges `json:"changes"`
	UserID    string      `json:"user_id"`
	Comment   *string     `json:"comment,omitempty"`
}

// Change is a previous/next pair of one attribute.
type Change[T any] struct {
	Previous T `json:"previous"`
	Next     T `json:"next"`
}

// Change pair types per attribute domain.
type (
	StrChange         = Change[*string]
	DayChange         = Change[*Day]
	IDChange          = Change[*uuid.UUID]
	TagsChange        = Change[[]string]
	ConditionChange   = Change[Condition]
	ReportStateChange = Change[*ReportState]
)

// ItemChanges holds one optional slot per tracked attribute. A nil slot means
// the attribute did not change.
type ItemChanges struct {
	Version int `json:"version"`

	ExternalID *StrChange `json:"external_id,omitempty"`

	Manufacturer    *StrChange `json:"manufacturer,omitempty"`
	Model           *StrChange `json:"model,omitempty"`
	SerialNumber    *StrChange `json:"serial_number,omitempty"`
	ManufactureDate *DayChange `json:"manufacture_date,omitempty"`
	PurchaseDate    *DayChange `json:"purchase_date,omitempty"`
	FirstUseDate    *DayChange `json:"first_use_date,omitempty"`

	Name        *StrChange `json:"name,omitempty"`
	Description *StrChange `json:"description,omitempty"`

	ReportProfileID  *IDChange          `json:"report_profile_id,omitempty"`
	TotalReportState *ReportStateChange `json:"total_report_state,omitempty"`

	Condition        *ConditionChange `json:"condition,omitempty"`
	ConditionComment *StrChange       `json:"condition_comment,omitempty"`

	LastService *DayChange `json:"last_service,omitempty"`

	PictureID *StrChange `json:"picture_id,omitempty"`
	GroupID   *StrChange `json:"group_id,omitempty"`

	Tags *TagsChange `json:"tags,omitempty"`

	BayID *IDChange `json:"bay_id,omitempty"`
}
