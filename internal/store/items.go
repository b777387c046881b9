package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/erazemk/izposoja/internal/model"
)

const itemColumns = `id, external_id, manufacturer, model, serial_number,
	manufacture_date, purchase_date, first_use_date, name, description,
	report_profile_id, total_report_state, condition, condition_comment,
	last_service, picture_id, group_id, tags, bay_id, reservation_id,
	image_mime, created_at, updated_at`

func scanItem(s scanner) (*model.Item, error) {
	var item model.Item
	var externalID, manufacturer, modelName, serial sql.NullString
	var description, reportState, conditionComment sql.NullString
	var pictureID, groupID, imageMime sql.NullString
	var manufactured, purchased, firstUse, serviced sql.NullInt64
	var reportProfileID, bayID, reservationID uuid.NullUUID
	var tags string
	err := s.Scan(&item.ID, &externalID, &manufacturer, &modelName, &serial,
		&manufactured, &purchased, &firstUse, &item.Name, &description,
		&reportProfileID, &reportState, &item.Condition, &conditionComment,
		&serviced, &pictureID, &groupID, &tags, &bayID, &reservationID,
		&imageMime, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	item.ExternalID = nullString(externalID)
	item.Manufacturer = nullString(manufacturer)
	item.Model = nullString(modelName)
	item.SerialNumber = nullString(serial)
	item.ManufactureDate = nullDay(manufactured)
	item.PurchaseDate = nullDay(purchased)
	item.FirstUseDate = nullDay(firstUse)
	item.Description = nullString(description)
	item.ReportProfileID = nullUUID(reportProfileID)
	if reportState.Valid {
		rs := model.ReportState(reportState.String)
		item.TotalReportState = &rs
	}
	item.ConditionComment = nullString(conditionComment)
	item.LastService = nullDay(serviced)
	item.PictureID = nullString(pictureID)
	item.GroupID = nullString(groupID)
	item.BayID = nullUUID(bayID)
	item.ReservationID = nullUUID(reservationID)
	item.ImageMime = imageMime.String

	if item.Tags, err = decodeTags(tags); err != nil {
		return nil, err
	}
	return &item, nil
}

func reportStateArg(rs *model.ReportState) any {
	if rs == nil {
		return nil
	}
	return string(*rs)
}

// CreateItem inserts a new item. The caller assigns item.ID.
func CreateItem(ctx context.Context, db Querier, item *model.Item) (*model.Item, error) {
	tags, err := encodeTags(item.Tags)
	if err != nil {
		return nil, err
	}
	if item.Condition == "" {
		item.Condition = model.ConditionNew
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO items (id, external_id, manufacturer, model, serial_number,
		     manufacture_date, purchase_date, first_use_date, name, description,
		     report_profile_id, total_report_state, condition, condition_comment,
		     last_service, picture_id, group_id, tags, bay_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID.String(), item.ExternalID, item.Manufacturer, item.Model, item.SerialNumber,
		dayArg(item.ManufactureDate), dayArg(item.PurchaseDate), dayArg(item.FirstUseDate),
		item.Name, item.Description,
		uuidArg(item.ReportProfileID), reportStateArg(item.TotalReportState),
		string(item.Condition), item.ConditionComment,
		dayArg(item.LastService), item.PictureID, item.GroupID, tags, uuidArg(item.BayID),
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	return GetItem(ctx, db, item.ID)
}

// GetItem returns an item by ID.
func GetItem(ctx context.Context, db Querier, id uuid.UUID) (*model.Item, error) {
	item, err := scanItem(db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id.String(),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListItems returns all items ordered by name. Gone items are left out
// unless includeGone is set.
func ListItems(ctx context.Context, db Querier, includeGone bool) ([]model.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	if !includeGone {
		query += ` WHERE condition != 'gone'`
	}
	query += ` ORDER BY name, id`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// UpdateItem overwrites an item's attributes. The reservation back-reference
// and the image are left untouched.
func UpdateItem(ctx context.Context, db Querier, item *model.Item) error {
	tags, err := encodeTags(item.Tags)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx,
		`UPDATE items SET external_id = ?, manufacturer = ?, model = ?, serial_number = ?,
		     manufacture_date = ?, purchase_date = ?, first_use_date = ?, name = ?,
		     description = ?, report_profile_id = ?, total_report_state = ?,
		     condition = ?, condition_comment = ?, last_service = ?, picture_id = ?,
		     group_id = ?, tags = ?, bay_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		item.ExternalID, item.Manufacturer, item.Model, item.SerialNumber,
		dayArg(item.ManufactureDate), dayArg(item.PurchaseDate), dayArg(item.FirstUseDate),
		item.Name, item.Description,
		uuidArg(item.ReportProfileID), reportStateArg(item.TotalReportState),
		string(item.Condition), item.ConditionComment, dayArg(item.LastService),
		item.PictureID, item.GroupID, tags, uuidArg(item.BayID),
		item.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	return nil
}

// DeleteItem removes an item together with its audit records and
// allocations. It reports whether a row was deleted.
func DeleteItem(ctx context.Context, db Querier, id uuid.UUID) (bool, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id.String())
	if err != nil {
		return false, fmt.Errorf("deleting item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting item: %w", err)
	}
	return n > 0, nil
}

// SetItemImage sets an item's image data.
func SetItemImage(ctx context.Context, db Querier, id uuid.UUID, image []byte, mime string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE items SET image = ?, image_mime = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		image, mime, id.String(),
	)
	if err != nil {
		return fmt.Errorf("setting item image: %w", err)
	}
	return nil
}

// GetItemImage returns an item's image data and MIME type.
func GetItemImage(ctx context.Context, db Querier, id uuid.UUID) ([]byte, string, error) {
	var image []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT image, image_mime FROM items WHERE id = ?`, id.String(),
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting item image: %w", err)
	}
	return image, mime.String, nil
}

// ItemConditions returns the condition of every existing item in ids.
// Unknown ids are absent from the result.
func ItemConditions(ctx context.Context, db Querier, ids []uuid.UUID) (map[uuid.UUID]model.Condition, error) {
	conditions := make(map[uuid.UUID]model.Condition, len(ids))
	if len(ids) == 0 {
		return conditions, nil
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, condition FROM items WHERE id IN `+inClause(len(ids)),
		idArgs(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("getting item conditions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var c model.Condition
		if err := rows.Scan(&id, &c); err != nil {
			return nil, fmt.Errorf("scanning item condition: %w", err)
		}
		conditions[id] = c
	}
	return conditions, rows.Err()
}

// SetItemsReservation points the items' back-reference at reservationID.
func SetItemsReservation(ctx context.Context, db Querier, ids []uuid.UUID, reservationID uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	args := append([]any{reservationID.String()}, idArgs(ids)...)
	_, err := db.ExecContext(ctx,
		`UPDATE items SET reservation_id = ? WHERE id IN `+inClause(len(ids)),
		args...,
	)
	if err != nil {
		return fmt.Errorf("setting item reservation: %w", err)
	}
	return nil
}

// ClearItemsReservation clears the back-reference of the items still
// pointing at reservationID.
func ClearItemsReservation(ctx context.Context, db Querier, ids []uuid.UUID, reservationID uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	args := append([]any{reservationID.String()}, idArgs(ids)...)
	_, err := db.ExecContext(ctx,
		`UPDATE items SET reservation_id = NULL
		 WHERE reservation_id = ? AND id IN `+inClause(len(ids)),
		args...,
	)
	if err != nil {
		return fmt.Errorf("clearing item reservation: %w", err)
	}
	return nil
}
