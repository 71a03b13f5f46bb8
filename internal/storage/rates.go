package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rewired-gh/buybackd/internal/models"
)

// UpsertRate inserts or updates the buyback rate of a type.
func (s *Storage) UpsertRate(ctx context.Context, rate *models.TypeBuybackRate) error {
	if err := rate.Validate(); err != nil {
		return fmt.Errorf("invalid rate: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO buyback_rates (type_id, type_name, category, rate, updated_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(type_id) DO UPDATE SET
			type_name=excluded.type_name, category=excluded.category,
			rate=excluded.rate, updated_at=excluded.updated_at`,
		rate.TypeID, rate.TypeName, rate.Category, rate.Rate, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert rate %d: %w", rate.TypeID, err)
	}
	return nil
}

// InsertRateIfMissing stores rate only when the type has no rate yet.
// It reports whether a row was inserted.
func (s *Storage) InsertRateIfMissing(ctx context.Context, rate *models.TypeBuybackRate) (bool, error) {
	if err := rate.Validate(); err != nil {
		return false, fmt.Errorf("invalid rate: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO buyback_rates (type_id, type_name, category, rate, updated_at)
		VALUES (?,?,?,?,?)`,
		rate.TypeID, rate.TypeName, rate.Category, rate.Rate, time.Now().UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert rate %d: %w", rate.TypeID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RatesByCategory returns all rates of a category ordered by type id.
func (s *Storage) RatesByCategory(ctx context.Context, category string) ([]models.TypeBuybackRate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type_id, type_name, category, rate
		FROM buyback_rates WHERE category = ? ORDER BY type_id`, category)
	if err != nil {
		return nil, fmt.Errorf("failed to query rates: %w", err)
	}
	defer rows.Close()

	rates := []models.TypeBuybackRate{}
	for rows.Next() {
		var r models.TypeBuybackRate
		if err := rows.Scan(&r.TypeID, &r.TypeName, &r.Category, &r.Rate); err != nil {
			return nil, fmt.Errorf("failed to scan rate: %w", err)
		}
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

// RatesByTypeIDs maps each given type id that has a stored rate to that rate.
func (s *Storage) RatesByTypeIDs(ctx context.Context, typeIDs []int64) (map[int64]float64, error) {
	out := make(map[int64]float64, len(typeIDs))
	if len(typeIDs) == 0 {
		return out, nil
	}
	query, args := inClause(`SELECT type_id, rate FROM buyback_rates WHERE type_id IN `, typeIDs)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var rate float64
		if err := rows.Scan(&id, &rate); err != nil {
			return nil, fmt.Errorf("failed to scan rate: %w", err)
		}
		out[id] = rate
	}
	return out, rows.Err()
}

// ReplaceIngredients stores recipes, replacing existing recipes of the same types.
func (s *Storage) ReplaceIngredients(ctx context.Context, recipes []models.TypeIngredients) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for i := range recipes {
		r := &recipes[i]
		if err := r.Validate(); err != nil {
			return fmt.Errorf("invalid recipe: %w", err)
		}
		ingredientsJSON, err := json.Marshal(r.Ingredients)
		if err != nil {
			return fmt.Errorf("failed to marshal ingredients: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO type_ingredients (type_id, quantity_to_reprocess, ingredients)
			VALUES (?,?,?)`,
			r.TypeID, r.QuantityToReprocess, string(ingredientsJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to save recipe %d: %w", r.TypeID, err)
		}
	}
	return tx.Commit()
}

// IngredientsByTypeIDs returns the recipes of the given types keyed by type id.
// Types without a recipe are absent from the result.
func (s *Storage) IngredientsByTypeIDs(ctx context.Context, typeIDs []int64) (map[int64]*models.TypeIngredients, error) {
	out := make(map[int64]*models.TypeIngredients, len(typeIDs))
	if len(typeIDs) == 0 {
		return out, nil
	}
	query, args := inClause(`SELECT type_id, quantity_to_reprocess, ingredients FROM type_ingredients WHERE type_id IN `, typeIDs)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.TypeIngredients
		var ingredientsJSON string
		if err := rows.Scan(&r.TypeID, &r.QuantityToReprocess, &ingredientsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan recipe: %w", err)
		}
		if err := json.Unmarshal([]byte(ingredientsJSON), &r.Ingredients); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ingredients of %d: %w", r.TypeID, err)
		}
		out[r.TypeID] = &r
	}
	return out, rows.Err()
}

// inClause appends a "(?,?,...)" list for ids to prefix.
func inClause(prefix string, ids []int64) (string, []any) {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('(')
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('?')
		args[i] = id
	}
	b.WriteByte(')')
	return b.String(), args
}
