// Package formats provides parsers for the engine's binary map file formats.
package formats

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// maxTERRExtent caps the decoded grid dimensions. Real maps stay far
// below this; anything larger is a corrupt header.
const maxTERRExtent = 16384

// DecodeTERR decodes a terrain map from a seekable byte source and
// returns the fully populated grid. The source is consumed through the
// end of the last cluster record; reserved regions are skipped with
// relative seeks rather than read.
//
// Decoding is all-or-nothing: any failure returns a nil grid. Revisions
// above MaxKnownTERRVersion are parsed with the newest layout, exactly
// as the engine does; use DecodeTERRStrict to refuse them instead.
func DecodeTERR(r io.ReadSeeker) (*TERR, error) {
	return decodeTERR(r, false)
}

// DecodeTERRStrict is DecodeTERR but fails with ErrUnsupportedTERRVersion
// for revisions above MaxKnownTERRVersion.
func DecodeTERRStrict(r io.ReadSeeker) (*TERR, error) {
	return decodeTERR(r, true)
}

// ParseTERR decodes a terrain map from raw bytes.
func ParseTERR(data []byte) (*TERR, error) {
	return DecodeTERR(bytes.NewReader(data))
}

// ParseTERRFile decodes a terrain map from disk without loading the
// whole file into memory.
func ParseTERRFile(path string) (*TERR, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening TERR file: %w", err)
	}
	defer f.Close()

	return DecodeTERR(f)
}

// terrDecoder carries the stream and output grid for one decode pass.
type terrDecoder struct {
	r      io.ReadSeeker
	t      *TERR
	cs     int  // cluster size of the selected variant
	legacy bool // pre-revision-4 layout
}

func decodeTERR(r io.ReadSeeker, strict bool) (*TERR, error) {
	d := &terrDecoder{r: r}

	magic, err := d.u32("magic")
	if err != nil {
		return nil, err
	}
	if magic != terrMagic {
		return nil, ErrInvalidTERRMagic
	}

	version, err := d.u32("version")
	if err != nil {
		return nil, err
	}
	if strict && version > MaxKnownTERRVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedTERRVersion, version)
	}

	var bounds [4]int16 // minX, minZ, maxX, maxZ
	for i, name := range []string{"min X", "min Z", "max X", "max Z"} {
		if bounds[i], err = d.i16(name); err != nil {
			return nil, err
		}
	}

	d.cs, d.legacy = modernClusterSize, false
	if version < modernTERRVersion {
		d.cs, d.legacy = legacyClusterSize, true
	}

	width := int(bounds[2]) - int(bounds[0])
	height := int(bounds[3]) - int(bounds[1])
	if width < 0 || height < 0 || width%d.cs != 0 || height%d.cs != 0 {
		return nil, fmt.Errorf("invalid TERR bounds: %dx%d is not a non-negative multiple of cluster size %d", width, height, d.cs)
	}
	if width > maxTERRExtent || height > maxTERRExtent {
		return nil, fmt.Errorf("invalid TERR bounds: %dx%d exceeds maximum extent %d", width, height, maxTERRExtent)
	}

	d.t = newTERR(version, bounds, width, height, d.cs, d.legacy)

	for y := 0; y < height; y += d.cs {
		for x := 0; x < width; x += d.cs {
			if err := d.decodeCluster(x, y); err != nil {
				return nil, fmt.Errorf("decoding cluster (%d,%d): %w", x/d.cs, y/d.cs, err)
			}
		}
	}

	return d.t, nil
}

// newTERR allocates a grid with every backing slice at its final size.
func newTERR(version uint32, bounds [4]int16, width, height, cs int, legacy bool) *TERR {
	t := &TERR{
		Version:     version,
		MinX:        bounds[0],
		MinZ:        bounds[1],
		MaxX:        bounds[2],
		MaxZ:        bounds[3],
		Width:       width,
		Height:      height,
		ClusterSize: cs,
	}

	n := width * height
	cn := (width / cs) * (height / cs)

	t.Colors = make([]RGB, n)
	for i := range t.Alpha {
		t.Alpha[i] = make([]uint8, n)
	}
	t.Cells = make([]CellFlags, n)
	t.Info = make([]uint32, cn)
	for i := range t.TextureLayers {
		t.TextureLayers[i] = make([]uint8, cn)
	}

	if legacy {
		t.HeightsI16 = make([]int16, n)
		t.Normals = make([]uint8, n)
	} else {
		t.HeightsF32 = make([]float32, n)
	}

	return t
}

// clusterFlags reports, per field group, whether the cluster stores
// explicit per-vertex data (true) or a single uniform value (false).
type clusterFlags struct {
	height, color, alpha1, alpha2, alpha3, cell bool
}

// readClusterFlags reads the flag byte of one cluster. Revisions below
// 5 have no flag byte; every field group is always explicit.
func (d *terrDecoder) readClusterFlags() (clusterFlags, error) {
	if d.t.Version < flaggedTERRVersion {
		return clusterFlags{true, true, true, true, true, true}, nil
	}

	b, err := d.u8("cluster flags")
	if err != nil {
		return clusterFlags{}, err
	}

	// Bits 6-7 are reserved.
	return clusterFlags{
		height: b&0x01 != 0,
		color:  b&0x02 != 0,
		alpha1: b&0x04 != 0,
		alpha2: b&0x08 != 0,
		alpha3: b&0x10 != 0,
		cell:   b&0x20 != 0,
	}, nil
}

// decodeCluster decodes one cluster record. The field order is fixed
// across all revisions; each field decides internally how many bytes its
// revision stores.
func (d *terrDecoder) decodeCluster(x, y int) error {
	flags, err := d.readClusterFlags()
	if err != nil {
		return err
	}

	if err := d.decodeHeights(x, y, flags.height); err != nil {
		return err
	}
	if d.legacy {
		if err := d.decodeNormals(x, y); err != nil {
			return err
		}
	}
	if err := d.decodeColors(x, y, flags.color); err != nil {
		return err
	}

	// Alpha layers decode in on-disk order 0..3. Layer 0 takes the
	// alpha1 bit like the engine passes it, but never reads it: the
	// layer-0 block is either skipped wholesale (below revision 3) or
	// absent from the stream.
	layerFlags := [4]bool{flags.alpha1, flags.alpha1, flags.alpha2, flags.alpha3}
	for layer := 0; layer < 4; layer++ {
		if err := d.decodeAlpha(layer, x, y, layerFlags[layer]); err != nil {
			return err
		}
	}

	if err := d.decodeLegacyTiles(x, y); err != nil {
		return err
	}
	if err := d.decodeCells(x, y, flags.cell); err != nil {
		return err
	}
	if err := d.decodeInfo(x, y); err != nil {
		return err
	}

	// Revisions below 3 carry reserved trailer bytes after every
	// cluster, plus one more in revision 2 exactly. They are opaque;
	// skipping them keeps the stream position aligned for the next
	// cluster.
	if d.t.Version < cellTERRVersion {
		if err := d.skip(25, "reserved cluster trailer"); err != nil {
			return err
		}
		if d.t.Version == 2 {
			if err := d.skip(1, "reserved cluster trailer"); err != nil {
				return err
			}
		}
	}

	return nil
}

// decodeHeights fills the cluster's height values.
//
// The Legacy variant always stores a full per-vertex block; the explicit
// flag is accepted but never honored there, matching the engine.
// Revisions below 3 additionally store the shared 5th vertex of each row
// and the shared 5th row of each cluster, which are discarded rather
// than reconciled with the neighboring cluster.
func (d *terrDecoder) decodeHeights(x, y int, explicit bool) error {
	if d.legacy {
		for cy := 0; cy < d.cs; cy++ {
			for cx := 0; cx < d.cs; cx++ {
				v, err := d.i16("cluster height")
				if err != nil {
					return err
				}
				d.t.HeightsI16[(y+cy)*d.t.Width+x+cx] = v
			}
			if d.t.Version < cellTERRVersion {
				if err := d.skip(2, "duplicate height vertex"); err != nil {
					return err
				}
			}
		}
		if d.t.Version < cellTERRVersion {
			return d.skip(10, "duplicate height row")
		}
		return nil
	}

	if !explicit {
		v, err := d.f32("cluster height")
		if err != nil {
			return err
		}
		for cy := 0; cy < d.cs; cy++ {
			for cx := 0; cx < d.cs; cx++ {
				d.t.HeightsF32[(y+cy)*d.t.Width+x+cx] = v
			}
		}
		return nil
	}

	for cy := 0; cy < d.cs; cy++ {
		for cx := 0; cx < d.cs; cx++ {
			v, err := d.f32("cluster height")
			if err != nil {
				return err
			}
			d.t.HeightsF32[(y+cy)*d.t.Width+x+cx] = v
		}
	}
	return nil
}

// decodeNormals fills the cluster's normal bytes (Legacy only), with the
// same duplicated-boundary skips as heights below revision 3.
func (d *terrDecoder) decodeNormals(x, y int) error {
	for cy := 0; cy < d.cs; cy++ {
		for cx := 0; cx < d.cs; cx++ {
			v, err := d.u8("cluster normal")
			if err != nil {
				return err
			}
			d.t.Normals[(y+cy)*d.t.Width+x+cx] = v
		}
		if d.t.Version < cellTERRVersion {
			if err := d.skip(1, "duplicate normal vertex"); err != nil {
				return err
			}
		}
	}
	if d.t.Version < cellTERRVersion {
		return d.skip(5, "duplicate normal row")
	}
	return nil
}

// decodeColors fills the cluster's vertex colors: one broadcast triple
// when compressed, one triple per vertex otherwise.
func (d *terrDecoder) decodeColors(x, y int, explicit bool) error {
	if !explicit {
		c, err := d.rgb("cluster color")
		if err != nil {
			return err
		}
		for cy := 0; cy < d.cs; cy++ {
			for cx := 0; cx < d.cs; cx++ {
				d.t.Colors[(y+cy)*d.t.Width+x+cx] = c
			}
		}
		return nil
	}

	for cy := 0; cy < d.cs; cy++ {
		for cx := 0; cx < d.cs; cx++ {
			c, err := d.rgb("cluster color")
			if err != nil {
				return err
			}
			d.t.Colors[(y+cy)*d.t.Width+x+cx] = c
		}
		if d.t.Version < cellTERRVersion {
			if err := d.skip(3, "duplicate color vertex"); err != nil {
				return err
			}
		}
	}
	if d.t.Version < cellTERRVersion {
		return d.skip(15, "duplicate color row")
	}
	return nil
}

// decodeAlpha consumes the on-disk block of one alpha layer.
//
// Layer 0 is never materialized: revisions below 3 store a full
// (clusterSize+1)^2 block that is skipped wholesale, and revision 3
// onward dropped it from the stream entirely. Layers 1-3 store into
// Alpha[layer-1].
func (d *terrDecoder) decodeAlpha(layer, x, y int, explicit bool) error {
	if layer == 0 {
		if d.t.Version < cellTERRVersion {
			return d.skip((d.cs+1)*(d.cs+1), "discarded alpha layer 0")
		}
		return nil
	}

	dst := d.t.Alpha[layer-1]

	if !explicit {
		v, err := d.u8("cluster alpha")
		if err != nil {
			return err
		}
		for cy := 0; cy < d.cs; cy++ {
			for cx := 0; cx < d.cs; cx++ {
				dst[(y+cy)*d.t.Width+x+cx] = v
			}
		}
		return nil
	}

	for cy := 0; cy < d.cs; cy++ {
		for cx := 0; cx < d.cs; cx++ {
			v, err := d.u8("cluster alpha")
			if err != nil {
				return err
			}
			dst[(y+cy)*d.t.Width+x+cx] = v
		}
		if d.t.Version < cellTERRVersion {
			if err := d.skip(1, "duplicate alpha vertex"); err != nil {
				return err
			}
		}
	}
	if d.t.Version < cellTERRVersion {
		return d.skip(5, "duplicate alpha row")
	}
	return nil
}

// decodeLegacyTiles reads the four raw per-cluster tile bytes of
// revisions below 3. Each byte maps straight to one texture layer, and
// the info word mirrors them without nibble packing.
func (d *terrDecoder) decodeLegacyTiles(x, y int) error {
	if d.t.Version >= cellTERRVersion {
		return nil
	}

	var b [4]byte
	if err := d.readFull(b[:], "legacy tile bytes"); err != nil {
		return err
	}

	ci := d.clusterIndex(x, y)
	d.t.Info[ci] = uint32(b[3])<<24 | uint32(b[2])<<16 | uint32(b[1])<<8 | uint32(b[0])
	for i := range d.t.TextureLayers {
		d.t.TextureLayers[i][ci] = b[i]
	}

	return nil
}

// decodeCells fills the cluster's cell flags.
//
// Revisions below 3 store per-cluster cell and build values on a
// different path that this decoder does not interpret; those bytes are
// skipped and the cells stay Flat.
func (d *terrDecoder) decodeCells(x, y int, explicit bool) error {
	if d.t.Version < cellTERRVersion {
		if d.t.Version > 0 {
			if err := d.skip((d.cs+1)*(d.cs+1), "discarded cluster cell values"); err != nil {
				return err
			}
		}
		if d.t.Version > 1 {
			if err := d.skip(1, "discarded cluster build value"); err != nil {
				return err
			}
		}
		return nil
	}

	if !explicit {
		b, err := d.u8("cluster cell flags")
		if err != nil {
			return err
		}
		v := CellFlags(b)
		for cy := 0; cy < d.cs; cy++ {
			for cx := 0; cx < d.cs; cx++ {
				d.t.Cells[(y+cy)*d.t.Width+x+cx] = v
			}
		}
		return nil
	}

	for cy := 0; cy < d.cs; cy++ {
		for cx := 0; cx < d.cs; cx++ {
			b, err := d.u8("cluster cell flags")
			if err != nil {
				return err
			}
			d.t.Cells[(y+cy)*d.t.Width+x+cx] = CellFlags(b)
		}
		// Unreachable: revisions below 3 return before the explicit
		// path. The engine's decoder carries the same dead skip, so it
		// is kept rather than cleaned up.
		if d.t.Version < cellTERRVersion {
			if err := d.skip(1, "duplicate cell vertex"); err != nil {
				return err
			}
		}
	}
	return nil
}

// decodeInfo reads the packed per-cluster info word of revision 3 and
// later. The low 16 bits hold four 4-bit texture-layer indices.
func (d *terrDecoder) decodeInfo(x, y int) error {
	if d.t.Version < cellTERRVersion {
		return nil
	}

	w, err := d.u32("cluster info word")
	if err != nil {
		return err
	}

	ci := d.clusterIndex(x, y)
	d.t.Info[ci] = w
	for i := range d.t.TextureLayers {
		d.t.TextureLayers[i][ci] = uint8(w >> (4 * i) & 0xF)
	}

	return nil
}

// clusterIndex converts the vertex coordinates of a cluster origin into
// its cluster-grid index.
func (d *terrDecoder) clusterIndex(x, y int) int {
	return (y/d.cs)*(d.t.Width/d.cs) + x/d.cs
}

// Stream helpers. Every read failure, including a short read at end of
// stream, is wrapped in ErrTruncatedTERRData with the field being read.

func (d *terrDecoder) readFull(p []byte, what string) error {
	if _, err := io.ReadFull(d.r, p); err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrTruncatedTERRData, what, err)
	}
	return nil
}

func (d *terrDecoder) u8(what string) (uint8, error) {
	var b [1]byte
	if err := d.readFull(b[:], what); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *terrDecoder) i16(what string) (int16, error) {
	var b [2]byte
	if err := d.readFull(b[:], what); err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(b[:])), nil
}

func (d *terrDecoder) u32(what string) (uint32, error) {
	var b [4]byte
	if err := d.readFull(b[:], what); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (d *terrDecoder) f32(what string) (float32, error) {
	v, err := d.u32(what)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (d *terrDecoder) rgb(what string) (RGB, error) {
	var b [3]byte
	if err := d.readFull(b[:], what); err != nil {
		return RGB{}, err
	}
	return RGB{b[0], b[1], b[2]}, nil
}

// skip advances the stream over n reserved or duplicated bytes without
// reading them into memory.
func (d *terrDecoder) skip(n int, what string) error {
	if _, err := d.r.Seek(int64(n), io.SeekCurrent); err != nil {
		return fmt.Errorf("%w: skipping %s: %v", ErrTruncatedTERRData, what, err)
	}
	return nil
}
