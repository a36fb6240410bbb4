package formats

import (
	"testing"
)

func TestCellFlags_String(t *testing.T) {
	tests := []struct {
		flags    CellFlags
		expected string
	}{
		{CellFlat, "Flat"},
		{CellCliff, "Cliff"},
		{CellWater, "Water"},
		{CellWater | CellSloped, "Water|Sloped"},
		{CellCliff | CellBuilding | CellLava, "Cliff|Building|Lava"},
		{CellFlags(0x40), "Unknown(0x40)"},
		{CellWater | CellFlags(0x80), "Water|Unknown(0x80)"},
	}

	for _, tc := range tests {
		if got := tc.flags.String(); got != tc.expected {
			t.Errorf("flags 0x%02X: expected %q, got %q", uint8(tc.flags), tc.expected, got)
		}
	}
}

func TestCellFlags_Predicates(t *testing.T) {
	f := CellWater | CellSloped

	if f.IsFlat() {
		t.Error("Water|Sloped must not be flat")
	}
	if !f.IsWater() || !f.IsSloped() {
		t.Error("Water|Sloped must report both bits")
	}
	if f.IsCliff() || f.IsBuilding() || f.IsLava() {
		t.Error("Water|Sloped must not report unset bits")
	}
	if !CellFlat.IsFlat() {
		t.Error("zero flags must be flat")
	}
}

func TestTERR_AccessorsOutOfBounds(t *testing.T) {
	w := newTERRWriter(5, 0, 0, 16, 16)
	writeModernCompressed(w, 5.0, RGB{1, 1, 1}, [3]uint8{9, 9, 9}, uint8(CellLava), 0xF)
	terr := decodeAll(t, w.data())

	if !terr.InBounds(0, 0) || !terr.InBounds(15, 15) {
		t.Error("corners must be in bounds")
	}
	if terr.InBounds(-1, 0) || terr.InBounds(0, 16) {
		t.Error("coordinates outside the grid must not be in bounds")
	}

	if terr.HeightAt(-1, 0) != 0 {
		t.Error("HeightAt out of bounds must return 0")
	}
	if terr.ColorAt(16, 0) != (RGB{}) {
		t.Error("ColorAt out of bounds must return the zero RGB")
	}
	if terr.CellAt(0, -1) != CellFlat {
		t.Error("CellAt out of bounds must return Flat")
	}
	if terr.AlphaAt(0, 0, 0) != 0 {
		t.Error("AlphaAt layer 0 must return 0: the layer is never stored")
	}
	if terr.AlphaAt(4, 0, 0) != 0 {
		t.Error("AlphaAt layer 4 must return 0")
	}
	if terr.InfoAt(1, 0) != 0 {
		t.Error("InfoAt out of bounds must return 0")
	}
	if terr.TextureIndexAt(4, 0, 0) != 0 {
		t.Error("TextureIndexAt layer 4 must return 0")
	}
	if terr.NormalAt(0, 0) != 0 {
		t.Error("NormalAt on a modern map must return 0")
	}
}

func TestTERR_HeightAtLegacyConversion(t *testing.T) {
	w := newTERRWriter(3, 0, 0, 4, 4)
	writeLegacyCluster(w, 3, -32768, 0, RGB{}, [3]uint8{}, [4]uint8{}, 0, 0)
	terr := decodeAll(t, w.data())

	if h := terr.HeightAt(0, 0); h != -32768 {
		t.Errorf("expected -32768, got %f", h)
	}
}

func TestTERR_HeightRange(t *testing.T) {
	w := newTERRWriter(5, 0, 0, 32, 16)
	writeModernCompressed(w, -4.5, RGB{}, [3]uint8{}, 0, 0)
	writeModernCompressed(w, 127.0, RGB{}, [3]uint8{}, 0, 0)
	terr := decodeAll(t, w.data())

	min, max := terr.HeightRange()
	if min != -4.5 {
		t.Errorf("expected min -4.5, got %f", min)
	}
	if max != 127.0 {
		t.Errorf("expected max 127.0, got %f", max)
	}
}

func TestTERR_HeightRange_Empty(t *testing.T) {
	terr := &TERR{}
	min, max := terr.HeightRange()
	if min != 0 || max != 0 {
		t.Errorf("expected (0, 0) for empty map, got (%f, %f)", min, max)
	}
}

func TestTERR_CountByCellFlags(t *testing.T) {
	terr := &TERR{
		Cells: []CellFlags{
			CellFlat, CellFlat,
			CellWater, CellWater, CellWater,
			CellCliff | CellSloped,
		},
	}

	counts := terr.CountByCellFlags()

	if counts[CellFlat] != 2 {
		t.Errorf("expected 2 flat cells, got %d", counts[CellFlat])
	}
	if counts[CellWater] != 3 {
		t.Errorf("expected 3 water cells, got %d", counts[CellWater])
	}
	if counts[CellCliff|CellSloped] != 1 {
		t.Errorf("expected 1 cliff+sloped cell, got %d", counts[CellCliff|CellSloped])
	}
}
