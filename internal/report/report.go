// Package report summarizes the stored inventory and exports it as a spreadsheet.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rewired-gh/buybackd/internal/models"
	"github.com/xuri/excelize/v2"
)

// orePrefix marks compressed ore types.
const orePrefix = "Compressed"

// Overview splits inventory value and volume into ore and everything else.
type Overview struct {
	OreValue    float64 `json:"ore_value"`
	OreVolume   float64 `json:"ore_volume"`
	OtherValue  float64 `json:"other_value"`
	OtherVolume float64 `json:"other_volume"`
}

// SystemTotal is the inventory held in one solar system.
type SystemTotal struct {
	System string  `json:"system"`
	Items  int     `json:"items"`
	Value  float64 `json:"value"`
	Volume float64 `json:"volume"`
}

// IsOre reports whether a type name denotes compressed ore.
func IsOre(typeName string) bool {
	return strings.HasPrefix(typeName, orePrefix)
}

// ComputeOverview totals the assets.
func ComputeOverview(assets []models.Asset) Overview {
	var o Overview
	for i := range assets {
		a := &assets[i]
		if IsOre(a.TypeName) {
			o.OreValue += a.Value()
			o.OreVolume += a.TotalVolume()
		} else {
			o.OtherValue += a.Value()
			o.OtherVolume += a.TotalVolume()
		}
	}
	return o
}

// SystemOf returns the solar system part of a location name, which is its
// first word.
func SystemOf(locationName string) string {
	if i := strings.IndexByte(locationName, ' '); i >= 0 {
		return locationName[:i]
	}
	return locationName
}

// BySystem totals the assets per solar system, highest value first.
func BySystem(assets []models.Asset) []SystemTotal {
	totals := make(map[string]*SystemTotal)
	for i := range assets {
		a := &assets[i]
		sys := SystemOf(a.LocationName)
		t, ok := totals[sys]
		if !ok {
			t = &SystemTotal{System: sys}
			totals[sys] = t
		}
		t.Items++
		t.Value += a.Value()
		t.Volume += a.TotalVolume()
	}

	out := make([]SystemTotal, 0, len(totals))
	for _, t := range totals {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].System < out[j].System
	})
	return out
}

// ExportXLSX writes the assets, the overview and the per-system totals as a
// workbook with the sheets Assets, Overview and Systems.
func ExportXLSX(w io.Writer, assets []models.Asset) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "Assets"); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	rows := [][]any{{"Item ID", "Type ID", "Type", "Quantity", "Location", "Flag", "Unit Price", "Value", "Unit Volume", "Volume"}}
	for i := range assets {
		a := &assets[i]
		rows = append(rows, []any{
			a.ItemID, a.TypeID, a.TypeName, a.Quantity, a.LocationName, a.LocationFlag,
			a.Price, a.Value(), a.Volume, a.TotalVolume(),
		})
	}
	if err := writeRows(f, "Assets", rows); err != nil {
		return err
	}

	o := ComputeOverview(assets)
	if _, err := f.NewSheet("Overview"); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := writeRows(f, "Overview", [][]any{
		{"Category", "Value", "Volume"},
		{"Ore", o.OreValue, o.OreVolume},
		{"Other", o.OtherValue, o.OtherVolume},
		{"Total", o.OreValue + o.OtherValue, o.OreVolume + o.OtherVolume},
	}); err != nil {
		return err
	}

	if _, err := f.NewSheet("Systems"); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	rows = [][]any{{"System", "Items", "Value", "Volume"}}
	for _, t := range BySystem(assets) {
		rows = append(rows, []any{t.System, t.Items, t.Value, t.Volume})
	}
	if err := writeRows(f, "Systems", rows); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
