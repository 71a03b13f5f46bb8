// Package models defines the core domain entities: assets, buyback rates, recipes,
// appraisals, and contracts.
package models

import (
	"errors"
	"time"
)

// Unresolved marks a location or type name that could not be determined.
const Unresolved = "N/A"

// SpaceLocation is the label for items located directly in a solar system.
const SpaceLocation = "Space"

// Asset is a single item of the corporation inventory, enriched with its
// location name, type name, volume and unit price during a refresh.
type Asset struct {
	ItemID       int64   `json:"item_id"`
	TypeID       int64   `json:"type_id"`
	Quantity     int64   `json:"quantity"`
	LocationID   int64   `json:"location_id"`
	LocationFlag string  `json:"location_flag"`
	LocationName string  `json:"location_name"`
	TypeName     string  `json:"type_name"`
	Volume       float64 `json:"volume"`
	Price        float64 `json:"price"`

	SnapshotID string    `json:"snapshot_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Resolved reports whether both the location and the type name are known.
func (a *Asset) Resolved() bool {
	return a.LocationName != "" && a.LocationName != Unresolved &&
		a.TypeName != "" && a.TypeName != Unresolved
}

// Value is quantity times unit price.
func (a *Asset) Value() float64 {
	return float64(a.Quantity) * a.Price
}

// TotalVolume is quantity times unit volume.
func (a *Asset) TotalVolume() float64 {
	return float64(a.Quantity) * a.Volume
}

// Validate checks asset field constraints before persistence.
func (a *Asset) Validate() error {
	if a.ItemID <= 0 {
		return errors.New("item ID must be positive")
	}
	if a.TypeID <= 0 {
		return errors.New("type ID must be positive")
	}
	if a.Quantity < 0 {
		return errors.New("quantity must not be negative")
	}
	if !a.Resolved() {
		return errors.New("asset location and type name must be resolved")
	}
	if a.Volume < 0 {
		return errors.New("volume must not be negative")
	}
	if a.Price < 0 {
		return errors.New("price must not be negative")
	}
	return nil
}

// TypeInfo is the reference data of an item type.
type TypeInfo struct {
	TypeID int64
	Name   string
	Volume float64
}
