package main

import (
	"fmt"

	"github.com/grailbio/bcldemux/barcode"
)

// Config holds every driver-level knob, gathered from flags in main(). It is
// the direct generalization of markduplicates.Opts to this pipeline: one
// struct populated straight off flag.* variables, validated once by
// validate() before the run starts.
type Config struct {
	ReadStructure string
	InputDir      string

	// Exactly one of BarcodeSheet or InlineBarcodes configures the expected
	// barcode set.
	BarcodeSheet   string
	InlineBarcodes []string

	OutputDir    string
	GzipOutput   bool
	MetricsFile  string
	RunStatsFile string
	TmpDir       string

	MaxMismatches    int
	MinMismatchDelta int
	MaxNoCalls       int
	MinBaseQuality   int
	DistanceMode     string

	NumThreads      int
	MaxInRAMPerTile int
	FirstTile       string
	TileLimit       int
	ForceGC         bool
}

// defaultConfig returns the documented default thresholds and pool sizing;
// flags override individual fields.
func defaultConfig() Config {
	return Config{
		GzipOutput:       true,
		MaxMismatches:    1,
		MinMismatchDelta: 1,
		MaxNoCalls:       2,
		MinBaseQuality:   0,
		DistanceMode:     "hamming",
		NumThreads:       0, // resolved to min(cores, number of tiles) by run.
		MaxInRAMPerTile:  1200000,
		TileLimit:        0, // 0 = no limit.
	}
}

// validate checks c for internal consistency and fills in any
// defaulted-from-another-field values, mirroring markduplicates.validate's
// sequential fmt.Errorf style and its pattern of mutating defaults in place
// (e.g. IndexFile defaulting from BamFile there; TmpDir defaulting from
// OutputDir here).
func validate(c *Config) error {
	if c.ReadStructure == "" {
		return fmt.Errorf("you must specify a read structure with --read-structure")
	}
	if c.InputDir == "" {
		return fmt.Errorf("you must specify an input directory with --input-dir")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("you must specify an output directory with --output-dir")
	}
	if (c.BarcodeSheet == "") == (len(c.InlineBarcodes) == 0) {
		return fmt.Errorf("specify exactly one of --barcode-sheet or --barcodes")
	}
	if c.MaxMismatches < 0 {
		return fmt.Errorf("max-mismatches must be non-negative")
	}
	if c.MinMismatchDelta < 0 {
		return fmt.Errorf("min-mismatch-delta must be non-negative")
	}
	if c.MaxNoCalls < 0 {
		return fmt.Errorf("max-no-calls must be non-negative")
	}
	if c.MinBaseQuality < 0 {
		return fmt.Errorf("min-base-quality must be non-negative")
	}
	if _, err := barcode.ParseDistanceMode(c.DistanceMode); err != nil {
		return fmt.Errorf("invalid distance-mode: %w", err)
	}
	if c.MaxInRAMPerTile <= 0 {
		return fmt.Errorf("max-in-ram-per-tile must be positive")
	}
	if c.TileLimit < 0 {
		return fmt.Errorf("tile-limit must be non-negative (0 = no limit)")
	}
	if c.TmpDir == "" {
		c.TmpDir = c.OutputDir + "/tmp"
	}
	return nil
}
