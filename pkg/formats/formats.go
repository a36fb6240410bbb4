// Package formats provides parsers for the engine's binary map file formats.
package formats

// Note: TERR (terrain grid) is fully implemented in terr.go and terr_decode.go
