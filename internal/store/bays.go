package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/erazemk/izposoja/internal/model"
)

func scanBay(s scanner) (*model.Bay, error) {
	var b model.Bay
	var externalID, description sql.NullString
	if err := s.Scan(&b.ID, &externalID, &b.Name, &description, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.ExternalID = nullString(externalID)
	b.Description = nullString(description)
	return &b, nil
}

// CreateBay inserts a new bay. The caller assigns bay.ID.
func CreateBay(ctx context.Context, db Querier, bay *model.Bay) (*model.Bay, error) {
	_, err := db.ExecContext(ctx,
		`INSERT INTO bays (id, external_id, name, description) VALUES (?, ?, ?, ?)`,
		bay.ID.String(), bay.ExternalID, bay.Name, bay.Description,
	)
	if err != nil {
		return nil, fmt.Errorf("creating bay: %w", err)
	}
	return GetBay(ctx, db, bay.ID)
}

// GetBay returns a bay by ID.
func GetBay(ctx context.Context, db Querier, id uuid.UUID) (*model.Bay, error) {
	b, err := scanBay(db.QueryRowContext(ctx,
		`SELECT id, external_id, name, description, created_at FROM bays WHERE id = ?`,
		id.String(),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting bay: %w", err)
	}
	return b, nil
}

// ListBays returns all bays ordered by name.
func ListBays(ctx context.Context, db Querier) ([]model.Bay, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, external_id, name, description, created_at FROM bays ORDER BY name, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing bays: %w", err)
	}
	defer rows.Close()

	var bays []model.Bay
	for rows.Next() {
		b, err := scanBay(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning bay: %w", err)
		}
		bays = append(bays, *b)
	}
	return bays, rows.Err()
}

// UpdateBay updates a bay's attributes.
func UpdateBay(ctx context.Context, db Querier, bay *model.Bay) error {
	_, err := db.ExecContext(ctx,
		`UPDATE bays SET external_id = ?, name = ?, description = ? WHERE id = ?`,
		bay.ExternalID, bay.Name, bay.Description, bay.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("updating bay: %w", err)
	}
	return nil
}

// DeleteBay removes a bay. Items stored in it lose their bay reference.
func DeleteBay(ctx context.Context, db Querier, id uuid.UUID) (bool, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM bays WHERE id = ?`, id.String())
	if err != nil {
		return false, fmt.Errorf("deleting bay: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting bay: %w", err)
	}
	return n > 0, nil
}
