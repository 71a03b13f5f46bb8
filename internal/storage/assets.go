package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rewired-gh/buybackd/internal/models"
)

// ReplaceAssets atomically replaces the stored inventory with assets.
// On any error the previous inventory is kept.
func (s *Storage) ReplaceAssets(ctx context.Context, assets []models.Asset) error {
	for i := range assets {
		if err := assets[i].Validate(); err != nil {
			return fmt.Errorf("invalid asset %d: %w", assets[i].ItemID, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM assets`); err != nil {
		return fmt.Errorf("failed to clear assets: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO assets
			(item_id, type_id, quantity, location_id, location_flag, location_name,
			 type_name, volume, price, snapshot_id, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare asset insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range assets {
		_, err := stmt.ExecContext(ctx,
			a.ItemID, a.TypeID, a.Quantity, a.LocationID, a.LocationFlag, a.LocationName,
			a.TypeName, a.Volume, a.Price, a.SnapshotID, a.UpdatedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert asset %d: %w", a.ItemID, err)
		}
	}

	return tx.Commit()
}

// ListAssets returns the stored inventory ordered by location and type name.
func (s *Storage) ListAssets(ctx context.Context) ([]models.Asset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, type_id, quantity, location_id, location_flag, location_name,
		       type_name, volume, price, snapshot_id, updated_at
		FROM assets ORDER BY location_name, type_name, item_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	assets := []models.Asset{}
	for rows.Next() {
		var a models.Asset
		var updatedAtNano int64
		err := rows.Scan(
			&a.ItemID, &a.TypeID, &a.Quantity, &a.LocationID, &a.LocationFlag, &a.LocationName,
			&a.TypeName, &a.Volume, &a.Price, &a.SnapshotID, &updatedAtNano,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		a.UpdatedAt = time.Unix(0, updatedAtNano)
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// CountAssets returns the number of stored assets.
func (s *Storage) CountAssets(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count assets: %w", err)
	}
	return n, nil
}
