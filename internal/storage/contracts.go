package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rewired-gh/buybackd/internal/models"
)

// ErrContractNotFound is returned by GetContract for an unknown id.
var ErrContractNotFound = errors.New("contract not found")

const contractCols = `id, status, appraisal_link, price, ore_value, other_value,
	price_correction_sent, issued_at`

func validateContract(c *models.Contract) error {
	if c.ID <= 0 {
		return errors.New("invalid contract: ID must be positive")
	}
	if c.Status == "" {
		return errors.New("invalid contract: status must not be empty")
	}
	return nil
}

func contractArgs(c *models.Contract) []any {
	var link sql.NullString
	if c.AppraisalLink != "" {
		link = sql.NullString{String: c.AppraisalLink, Valid: true}
	}
	return []any{c.ID, c.Status, link, c.Price, nullFloat(c.OreValue), nullFloat(c.OtherValue),
		boolToInt(c.PriceCorrectionSent), c.IssuedAt.UnixNano()}
}

// SaveContract inserts or updates a contract. An empty appraisal link is
// stored as NULL. Ore and other values are write-once: a stored valuation is
// never replaced or cleared. The price correction flag, once set, stays set.
func (s *Storage) SaveContract(ctx context.Context, c *models.Contract) error {
	if err := validateContract(c); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts (`+contractCols+`)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status, appraisal_link=excluded.appraisal_link,
			price=excluded.price,
			ore_value=COALESCE(contracts.ore_value, excluded.ore_value),
			other_value=COALESCE(contracts.other_value, excluded.other_value),
			price_correction_sent=MAX(contracts.price_correction_sent, excluded.price_correction_sent),
			issued_at=excluded.issued_at`,
		contractArgs(c)...,
	)
	if err != nil {
		return fmt.Errorf("failed to save contract %d: %w", c.ID, err)
	}
	return nil
}

// InsertContractIfMissing registers a contract unless one with the same id
// exists. It reports whether a row was inserted.
func (s *Storage) InsertContractIfMissing(ctx context.Context, c *models.Contract) (bool, error) {
	if err := validateContract(c); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts (`+contractCols+`)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO NOTHING`,
		contractArgs(c)...,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert contract %d: %w", c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert contract %d: %w", c.ID, err)
	}
	return n > 0, nil
}

// GetContract returns one contract by id.
func (s *Storage) GetContract(ctx context.Context, id int64) (*models.Contract, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contractCols+` FROM contracts WHERE id = ?`, id)
	c, err := scanContract(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrContractNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return c, nil
}

// PendingContracts returns up to limit contracts with the given status that
// carry an appraisal link and have not been valued yet, oldest first.
func (s *Storage) PendingContracts(ctx context.Context, status string, limit int) ([]*models.Contract, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contractCols+` FROM contracts
		WHERE ore_value IS NULL AND status = ?
		  AND appraisal_link IS NOT NULL AND appraisal_link != ''
		ORDER BY issued_at, id LIMIT ?`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	defer rows.Close()

	contracts := []*models.Contract{}
	for rows.Next() {
		c, err := scanContract(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

func scanContract(scan func(...any) error) (*models.Contract, error) {
	var c models.Contract
	var link sql.NullString
	var oreValue, otherValue sql.NullFloat64
	var correction int
	var issuedAtNano int64
	err := scan(&c.ID, &c.Status, &link, &c.Price, &oreValue, &otherValue, &correction, &issuedAtNano)
	if err != nil {
		return nil, err
	}
	c.AppraisalLink = link.String
	if oreValue.Valid {
		c.OreValue = &oreValue.Float64
	}
	if otherValue.Valid {
		c.OtherValue = &otherValue.Float64
	}
	c.PriceCorrectionSent = correction != 0
	c.IssuedAt = time.Unix(0, issuedAtNano)
	return &c, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
