// Package formats provides parsers for the engine's binary map file formats.
package formats

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chewxy/math32"
)

// TERR format errors.
var (
	ErrInvalidTERRMagic       = errors.New("invalid TERR magic: expected 'TERR'")
	ErrUnsupportedTERRVersion = errors.New("unsupported TERR version")
	ErrTruncatedTERRData      = errors.New("truncated TERR data")
)

// terrMagic is the ASCII token "TERR" read as a little-endian uint32.
const terrMagic = 0x52524554

// MaxKnownTERRVersion is the highest on-disk revision this parser was
// written against. DecodeTERR still accepts later revisions (the engine
// always parsed unknown versions with the newest layout); only
// DecodeTERRStrict rejects them.
const MaxKnownTERRVersion = 5

// Format revision thresholds. Each one changed the per-cluster layout.
const (
	// cellTERRVersion is the first revision storing per-vertex cell flags
	// and packed info words instead of raw tile bytes and discarded
	// cluster values. It also dropped the duplicated cluster-boundary
	// rows and the reserved cluster trailer.
	cellTERRVersion = 3

	// modernTERRVersion is the first revision with 16x16 clusters,
	// float32 heights and no normal map.
	modernTERRVersion = 4

	// flaggedTERRVersion is the first revision with a per-cluster
	// compression flag byte.
	flaggedTERRVersion = 5
)

// Cluster sizes of the two on-disk layouts.
const (
	legacyClusterSize = 4
	modernClusterSize = 16
)

// CellFlags classifies a terrain vertex. Bits combine independently.
type CellFlags uint8

// Cell flag constants.
const (
	CellFlat     CellFlags = 0x00 // no flag set: plain walkable ground
	CellCliff    CellFlags = 0x01
	CellWater    CellFlags = 0x02
	CellBuilding CellFlags = 0x04
	CellLava     CellFlags = 0x08
	CellSloped   CellFlags = 0x10
)

// cellFlagNames maps each defined bit to its display name, low bit first.
var cellFlagNames = []struct {
	flag CellFlags
	name string
}{
	{CellCliff, "Cliff"},
	{CellWater, "Water"},
	{CellBuilding, "Building"},
	{CellLava, "Lava"},
	{CellSloped, "Sloped"},
}

// String returns the set flags joined with "|", or "Flat" for none.
func (f CellFlags) String() string {
	if f == CellFlat {
		return "Flat"
	}

	var parts []string
	rest := f
	for _, n := range cellFlagNames {
		if f&n.flag != 0 {
			parts = append(parts, n.name)
			rest &^= n.flag
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("Unknown(0x%02X)", uint8(rest)))
	}

	return strings.Join(parts, "|")
}

// IsFlat returns true if no flag is set.
func (f CellFlags) IsFlat() bool { return f == CellFlat }

// IsCliff returns true if the cliff bit is set.
func (f CellFlags) IsCliff() bool { return f&CellCliff != 0 }

// IsWater returns true if the water bit is set.
func (f CellFlags) IsWater() bool { return f&CellWater != 0 }

// IsBuilding returns true if the building bit is set.
func (f CellFlags) IsBuilding() bool { return f&CellBuilding != 0 }

// IsLava returns true if the lava bit is set.
func (f CellFlags) IsLava() bool { return f&CellLava != 0 }

// IsSloped returns true if the sloped bit is set.
func (f CellFlags) IsSloped() bool { return f&CellSloped != 0 }

// RGB is a 3-byte vertex color.
type RGB struct {
	R, G, B uint8
}

// TERR represents a decoded terrain map.
//
// Vertex-level grids are flat row-major slices indexed y*Width + x;
// cluster-level grids are indexed cy*(Width/ClusterSize) + cx. Every
// slice is allocated at its full size before decoding starts, and the
// struct is not mutated after DecodeTERR returns.
type TERR struct {
	Version uint32

	// World-space bounds from the header. Width and Height are derived
	// (MaxX-MinX and MaxZ-MinZ) and are always non-negative multiples of
	// ClusterSize.
	MinX, MinZ, MaxX, MaxZ int16
	Width, Height          int

	// ClusterSize is 4 for revisions below 4 and 16 from revision 4 on.
	ClusterSize int

	Colors []RGB       // per-vertex color
	Alpha  [3][]uint8  // blend weights for texture layers 1-3; layer 0 is never stored
	Cells  []CellFlags // per-vertex cell classification

	Info          []uint32   // one opaque word per cluster
	TextureLayers [4][]uint8 // per-cluster texture index for each layer, derived from Info

	// Heights: exactly one of the two slices is populated, depending on
	// the variant. HeightAt presents both as float32.
	HeightsI16 []int16   // revisions below 4
	HeightsF32 []float32 // revision 4 and later

	Normals []uint8 // per-vertex normal byte, revisions below 4 only
}

// IsLegacy returns true if the map uses the pre-revision-4 layout
// (4x4 clusters, 16-bit heights, normal map).
func (t *TERR) IsLegacy() bool {
	return t.Version < modernTERRVersion
}

// ClustersX returns the number of clusters along the X axis.
func (t *TERR) ClustersX() int {
	if t.ClusterSize == 0 {
		return 0
	}
	return t.Width / t.ClusterSize
}

// ClustersY returns the number of clusters along the Z axis.
func (t *TERR) ClustersY() int {
	if t.ClusterSize == 0 {
		return 0
	}
	return t.Height / t.ClusterSize
}

// InBounds reports whether (x, y) is a valid vertex coordinate.
func (t *TERR) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < t.Width && y < t.Height
}

// clusterInBounds reports whether (cx, cy) is a valid cluster coordinate.
func (t *TERR) clusterInBounds(cx, cy int) bool {
	return cx >= 0 && cy >= 0 && cx < t.ClustersX() && cy < t.ClustersY()
}

// HeightAt returns the height at (x, y) as a float32 for both variants.
// Legacy 16-bit heights are converted without scaling.
// Returns 0 for out-of-bounds coordinates.
func (t *TERR) HeightAt(x, y int) float32 {
	if !t.InBounds(x, y) {
		return 0
	}
	i := y*t.Width + x
	if t.HeightsF32 != nil {
		return t.HeightsF32[i]
	}
	return float32(t.HeightsI16[i])
}

// NormalAt returns the normal byte at (x, y).
// Returns 0 for out-of-bounds coordinates or for Modern maps, which
// carry no normal map.
func (t *TERR) NormalAt(x, y int) uint8 {
	if t.Normals == nil || !t.InBounds(x, y) {
		return 0
	}
	return t.Normals[y*t.Width+x]
}

// ColorAt returns the vertex color at (x, y).
// Returns the zero RGB for out-of-bounds coordinates.
func (t *TERR) ColorAt(x, y int) RGB {
	if !t.InBounds(x, y) {
		return RGB{}
	}
	return t.Colors[y*t.Width+x]
}

// AlphaAt returns the blend weight of texture layer 1-3 at (x, y).
// Layer 0 has no blend data on disk; it and any other invalid layer or
// coordinate return 0.
func (t *TERR) AlphaAt(layer, x, y int) uint8 {
	if layer < 1 || layer > 3 || !t.InBounds(x, y) {
		return 0
	}
	return t.Alpha[layer-1][y*t.Width+x]
}

// CellAt returns the cell flags at (x, y).
// Returns CellFlat for out-of-bounds coordinates.
func (t *TERR) CellAt(x, y int) CellFlags {
	if !t.InBounds(x, y) {
		return CellFlat
	}
	return t.Cells[y*t.Width+x]
}

// InfoAt returns the info word of cluster (cx, cy).
// Returns 0 for out-of-bounds coordinates.
func (t *TERR) InfoAt(cx, cy int) uint32 {
	if !t.clusterInBounds(cx, cy) {
		return 0
	}
	return t.Info[cy*t.ClustersX()+cx]
}

// TextureIndexAt returns the texture index of layer 0-3 for cluster
// (cx, cy). Returns 0 for invalid layers or coordinates.
func (t *TERR) TextureIndexAt(layer, cx, cy int) uint8 {
	if layer < 0 || layer > 3 || !t.clusterInBounds(cx, cy) {
		return 0
	}
	return t.TextureLayers[layer][cy*t.ClustersX()+cx]
}

// HeightRange returns the minimum and maximum height in the map.
func (t *TERR) HeightRange() (min, max float32) {
	if t.Width == 0 || t.Height == 0 {
		return 0, 0
	}

	min = t.HeightAt(0, 0)
	max = min

	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			h := t.HeightAt(x, y)
			min = math32.Min(min, h)
			max = math32.Max(max, h)
		}
	}

	return min, max
}

// CountByCellFlags returns the count of vertices for each distinct flag
// combination.
func (t *TERR) CountByCellFlags() map[CellFlags]int {
	counts := make(map[CellFlags]int)
	for _, c := range t.Cells {
		counts[c]++
	}
	return counts
}
