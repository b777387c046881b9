package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/izposoja/internal/model"
)

// ItemStateFilter narrows ListItemStates. Zero fields do not filter.
type ItemStateFilter struct {
	From   *time.Time
	To     *time.Time
	Offset int
	Limit  int
	// Ascending lists the oldest record first.
	Ascending bool
}

// InsertItemState appends an audit record.
func InsertItemState(ctx context.Context, db Querier, s *model.ItemState) error {
	changes, err := json.Marshal(s.Changes)
	if err != nil {
		return fmt.Errorf("encoding item changes: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO item_states (id, item_id, timestamp, changes, user_id, comment)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID.String(), s.ItemID.String(), s.Timestamp.UnixMilli(), string(changes),
		s.UserID, s.Comment,
	)
	if err != nil {
		return fmt.Errorf("inserting item state: %w", err)
	}
	return nil
}

// ListItemStates returns an item's audit records, newest first unless
// f.Ascending is set.
func ListItemStates(ctx context.Context, db Querier, itemID uuid.UUID, f ItemStateFilter) ([]model.ItemState, error) {
	where := []string{"item_id = ?"}
	args := []any{itemID.String()}
	if f.From != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, f.From.UnixMilli())
	}
	if f.To != nil {
		where = append(where, "timestamp <= ?")
		args = append(args, f.To.UnixMilli())
	}

	order := "DESC"
	if f.Ascending {
		order = "ASC"
	}
	query := `SELECT id, item_id, timestamp, changes, user_id, comment FROM item_states
		 WHERE ` + strings.Join(where, " AND ") + `
		 ORDER BY timestamp ` + order + `, rowid ` + order
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	} else if f.Offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, f.Offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing item states: %w", err)
	}
	defer rows.Close()

	var states []model.ItemState
	for rows.Next() {
		var s model.ItemState
		var millis int64
		var changes string
		var comment sql.NullString
		if err := rows.Scan(&s.ID, &s.ItemID, &millis, &changes, &s.UserID, &comment); err != nil {
			return nil, fmt.Errorf("scanning item state: %w", err)
		}
		if err := json.Unmarshal([]byte(changes), &s.Changes); err != nil {
			return nil, fmt.Errorf("decoding item changes: %w", err)
		}
		s.Timestamp = time.UnixMilli(millis).UTC()
		s.Comment = nullString(comment)
		states = append(states, s)
	}
	return states, rows.Err()
}
