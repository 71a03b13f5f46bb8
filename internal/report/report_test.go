package report

import (
	"bytes"
	"math"
	"testing"

	"github.com/rewired-gh/buybackd/internal/models"
	"github.com/xuri/excelize/v2"
)

func sampleAssets() []models.Asset {
	return []models.Asset{
		{ItemID: 1, TypeID: 28367, TypeName: "Compressed Arkonor", Quantity: 10, Price: 1000, Volume: 0.16, LocationName: "68FT-6 - Mothership Bellicose"},
		{ItemID: 2, TypeID: 34, TypeName: "Tritanium", Quantity: 1000, Price: 4, Volume: 0.01, LocationName: "Jita IV - Moon 4 - Caldari Navy Assembly Plant"},
		{ItemID: 3, TypeID: 3297, TypeName: "Tristan", Quantity: 2, Price: 500, Volume: 2500, LocationName: "Jita IV - Moon 4 - Caldari Navy Assembly Plant"},
		{ItemID: 4, TypeID: 35, TypeName: "Pyerite", Quantity: 10, Price: 1, Volume: 0.01, LocationName: models.SpaceLocation},
	}
}

func TestComputeOverview(t *testing.T) {
	o := ComputeOverview(sampleAssets())
	if o.OreValue != 10000 || o.OtherValue != 4000+1000+10 {
		t.Errorf("values = %+v", o)
	}
	if math.Abs(o.OreVolume-1.6) > 1e-9 || math.Abs(o.OtherVolume-5010.1) > 1e-9 {
		t.Errorf("volumes = %+v", o)
	}
}

func TestSystemOf(t *testing.T) {
	tests := map[string]string{
		"Jita IV - Moon 4 - Caldari Navy Assembly Plant": "Jita",
		"68FT-6 - Mothership Bellicose":                  "68FT-6",
		"Space":                                          "Space",
		"":                                               "",
	}
	for in, want := range tests {
		if got := SystemOf(in); got != want {
			t.Errorf("SystemOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBySystem(t *testing.T) {
	got := BySystem(sampleAssets())
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3: %+v", len(got), got)
	}
	if got[0].System != "68FT-6" || got[0].Value != 10000 {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].System != "Jita" || got[1].Items != 2 || got[1].Value != 5000 {
		t.Errorf("second = %+v", got[1])
	}
	if got[2].System != "Space" {
		t.Errorf("third = %+v", got[2])
	}
}

func TestExportXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportXLSX(&buf, sampleAssets()); err != nil {
		t.Fatalf("ExportXLSX() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 3 || sheets[0] != "Assets" || sheets[1] != "Overview" || sheets[2] != "Systems" {
		t.Fatalf("sheets = %v", sheets)
	}

	rows, err := f.GetRows("Assets")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 5 || rows[0][0] != "Item ID" || rows[1][2] != "Compressed Arkonor" {
		t.Errorf("Assets rows = %v", rows)
	}

	systems, _ := f.GetRows("Systems")
	if len(systems) != 4 || systems[1][0] != "68FT-6" {
		t.Errorf("Systems rows = %v", systems)
	}

	overview, _ := f.GetRows("Overview")
	if len(overview) != 4 || overview[1][0] != "Ore" || overview[1][1] != "10000" {
		t.Errorf("Overview rows = %v", overview)
	}
}
