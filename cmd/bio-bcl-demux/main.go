/*
bio-bcl-demux demultiplexes the clusters of one flowcell lane against a
configured set of expected sample barcodes, writing one sorted FASTQ output
per sample (plus one for unmatched clusters), in the tile/barcode order the
Scheduler enforces. For more information, see the package comment on
github.com/grailbio/bcldemux/demux.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/grailbio/bcldemux/barcode"
	"github.com/grailbio/bcldemux/demux"
	"github.com/grailbio/bcldemux/demux/pool"
	"github.com/grailbio/bcldemux/fastqio"
	"github.com/grailbio/bcldemux/readstructure"
	"github.com/grailbio/bcldemux/sample"
)

var (
	readStructureFlag = flag.String("read-structure", "", "Read structure string, e.g. 8B151T8B151T")
	inputDirFlag      = flag.String("input-dir", "", "Directory of per-tile cluster dump files (tile.clusters)")
	barcodeSheetFlag  = flag.String("barcode-sheet", "", "Path to the tabular expected-barcode sheet")
	barcodesFlag      = flag.String("barcodes", "", "Comma-separated inline barcode list (single-barcode read structures only)")
	outputDirFlag     = flag.String("output-dir", "", "Directory to write per-sample FASTQ output")
	gzipOutputFlag    = flag.Bool("gzip-output", true, "Gzip-compress FASTQ output")
	metricsFileFlag   = flag.String("metrics-file", "", "Path to write the per-barcode metrics TSV")
	runStatsFileFlag  = flag.String("run-metrics", "", "Path to write the end-of-run summary")
	tmpDirFlag        = flag.String("tmp-dir", "", "Scratch directory for per-tile sort spill files (default: <output-dir>/tmp)")

	maxMismatchesFlag    = flag.Int("max-mismatches", 1, "Upper bound on mismatches allowed in a match")
	minMismatchDeltaFlag = flag.Int("min-mismatch-delta", 1, "Required mismatch-count gap to the second-best candidate")
	maxNoCallsFlag       = flag.Int("max-no-calls", 2, "No-call budget per cluster's barcode reads")
	minBaseQualityFlag   = flag.Int("min-base-quality", 0, "Quality threshold below which a base counts as a mismatch (0 disables)")
	distanceModeFlag     = flag.String("distance-mode", "hamming", "Distance function: hamming, lenient_hamming, or free")

	numThreadsFlag      = flag.Int("num-threads", 0, "Pool width; 0 = min(cores, number of tiles), negative = cores + n")
	maxInRAMPerTileFlag = flag.Int("max-in-ram-per-tile", 1200000, "Per-tile total in-RAM record budget")
	firstTileFlag       = flag.String("first-tile", "", "Skip tiles ordered before this one")
	tileLimitFlag       = flag.Int("tile-limit", 0, "Process at most this many tiles (0 = no limit)")
	forceGCFlag         = flag.Bool("force-gc", false, "Advisory only; accepted but has no effect on the run")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		a := flag.Args()
		log.Fatalf("unparsed flags, please check flag syntax: '%s'", strings.Join(a[len(a)-flag.NArg():], " "))
	}

	cfg := defaultConfig()
	cfg.ReadStructure = *readStructureFlag
	cfg.InputDir = *inputDirFlag
	cfg.BarcodeSheet = *barcodeSheetFlag
	if *barcodesFlag != "" {
		cfg.InlineBarcodes = strings.Split(*barcodesFlag, ",")
	}
	cfg.OutputDir = *outputDirFlag
	cfg.GzipOutput = *gzipOutputFlag
	cfg.MetricsFile = *metricsFileFlag
	cfg.RunStatsFile = *runStatsFileFlag
	cfg.TmpDir = *tmpDirFlag
	cfg.MaxMismatches = *maxMismatchesFlag
	cfg.MinMismatchDelta = *minMismatchDeltaFlag
	cfg.MaxNoCalls = *maxNoCallsFlag
	cfg.MinBaseQuality = *minBaseQualityFlag
	cfg.DistanceMode = *distanceModeFlag
	cfg.NumThreads = *numThreadsFlag
	cfg.MaxInRAMPerTile = *maxInRAMPerTileFlag
	cfg.FirstTile = *firstTileFlag
	cfg.TileLimit = *tileLimitFlag
	cfg.ForceGC = *forceGCFlag

	os.Exit(run(vcontext.Background(), cfg))
}

// run performs the whole pipeline, returning the process's exit code: 0
// success, 1 preflight/validation error, 2 runtime/task failure. Splitting
// this out of main keeps main itself to flag plumbing, the way doppelmark
// keeps main thin and delegates the real work to markduplicates.SetupAndMark.
func run(ctx context.Context, cfg Config) int {
	if err := validate(&cfg); err != nil {
		log.Error.Printf("bio-bcl-demux: %v", err)
		return 1
	}

	rs, err := readstructure.Parse(cfg.ReadStructure)
	if err != nil {
		log.Error.Printf("bio-bcl-demux: %v", err)
		return 1
	}

	entries, err := loadEntries(cfg)
	if err != nil {
		log.Error.Printf("bio-bcl-demux: %v", err)
		return 1
	}

	distanceMode, err := barcode.ParseDistanceMode(cfg.DistanceMode)
	if err != nil {
		log.Error.Printf("bio-bcl-demux: %v", err)
		return 1
	}
	opts := barcode.DefaultOptions()
	opts.MaxMismatches = cfg.MaxMismatches
	opts.MinMismatchDelta = cfg.MinMismatchDelta
	opts.MaxNoCalls = cfg.MaxNoCalls
	opts.MinBaseQuality = cfg.MinBaseQuality
	opts.DistanceMode = distanceMode

	expectedByKey := make(map[string]barcode.ExpectedBarcode)
	var expected []barcode.ExpectedBarcode
	keys := make([]string, 0, len(entries)+1)
	haveNullKey := false
	for _, e := range entries {
		k := e.Key()
		keys = append(keys, k)
		if k == demux.NullKey {
			haveNullKey = true
		}
		if e.NoMatch {
			continue
		}
		expected = append(expected, e.Expected)
		expectedByKey[k] = e.Expected
	}
	if !haveNullKey {
		keys = append(keys, demux.NullKey)
	}

	matcher, err := barcode.NewMatcher(expected, opts)
	if err != nil {
		log.Error.Printf("bio-bcl-demux: %v", err)
		return 1
	}

	sinks, err := buildSinks(ctx, cfg, rs, entries)
	if err != nil {
		log.Error.Printf("bio-bcl-demux: %v", err)
		return 1
	}

	registry, err := demux.NewSinkRegistry(keys, sinks)
	if err != nil {
		log.Error.Printf("bio-bcl-demux: %v", err)
		return 1
	}

	sources, err := discoverTileSources(cfg, rs)
	if err != nil {
		log.Error.Printf("bio-bcl-demux: %v", err)
		return 1
	}
	if len(sources) == 0 {
		log.Error.Printf("bio-bcl-demux: no tile sources found in %s", cfg.InputDir)
		return 1
	}

	workers := pool.ResolveParallelism(cfg.NumThreads)
	if cfg.NumThreads == 0 && len(sources) < workers {
		workers = len(sources)
	}
	workerPool := pool.New(workers)
	metrics := barcode.NewMetricSet()

	scheduler, err := demux.NewScheduler(rs, matcher, expectedByKey, registry, workerPool, metrics, cfg.TmpDir, cfg.MaxInRAMPerTile, sources)
	if err != nil {
		workerPool.Shutdown()
		log.Error.Printf("bio-bcl-demux: %v", err)
		return 1
	}

	runErr := scheduler.Run(ctx)
	workerPool.Shutdown()

	closeErr := registry.CloseAll(ctx)
	if runErr == nil {
		runErr = closeErr
	}
	if runErr != nil {
		log.Error.Printf("bio-bcl-demux: %v", runErr)
		return 2
	}

	if cfg.MetricsFile != "" {
		if err := writeMetricsFile(ctx, cfg.MetricsFile, metrics); err != nil {
			log.Error.Printf("bio-bcl-demux: writing metrics file: %v", err)
			return 2
		}
	}
	if cfg.RunStatsFile != "" {
		if err := writeRunStatsFile(ctx, cfg.RunStatsFile, len(sources), workers, metrics); err != nil {
			log.Error.Printf("bio-bcl-demux: writing run-metrics file: %v", err)
			return 2
		}
	}

	log.Debug.Printf("bio-bcl-demux: exiting")
	return 0
}

func loadEntries(cfg Config) ([]sample.Entry, error) {
	if cfg.BarcodeSheet != "" {
		f, err := os.Open(cfg.BarcodeSheet)
		if err != nil {
			return nil, fmt.Errorf("opening barcode sheet: %w", err)
		}
		defer f.Close()
		return sample.LoadSheet(f)
	}
	return sample.LoadInline(cfg.InlineBarcodes)
}

// buildSinks creates one fastqio.FastqSink per configured output, named
// "<output-dir>/<Output>_R1.fastq[.gz]" (and "_R2" when the read structure
// has a second template segment). When no entry is the no-match row, it adds
// one more sink for the reserved no-match key, named "Undetermined".
func buildSinks(ctx context.Context, cfg Config, rs readstructure.ReadStructure, entries []sample.Entry) (map[string]demux.RecordSink, error) {
	paired := rs.NumRecordsPerCluster() == 2
	ext := ".fastq"
	if cfg.GzipOutput {
		ext += ".gz"
	}

	sinks := make(map[string]demux.RecordSink, len(entries)+1)
	haveNoMatch := false
	for _, e := range entries {
		name := e.Output
		if e.NoMatch {
			haveNoMatch = true
		}
		r1 := filepath.Join(cfg.OutputDir, name+"_R1"+ext)
		r2 := ""
		if paired {
			r2 = filepath.Join(cfg.OutputDir, name+"_R2"+ext)
		}
		sink, err := fastqio.NewFastqSink(ctx, r1, r2)
		if err != nil {
			return nil, err
		}
		sinks[e.Key()] = sink
	}
	if !haveNoMatch {
		r1 := filepath.Join(cfg.OutputDir, "Undetermined_R1"+ext)
		r2 := ""
		if paired {
			r2 = filepath.Join(cfg.OutputDir, "Undetermined_R2"+ext)
		}
		sink, err := fastqio.NewFastqSink(ctx, r1, r2)
		if err != nil {
			return nil, err
		}
		sinks[demux.NullKey] = sink
	}
	return sinks, nil
}

// discoverTileSources lists "*.clusters" files in cfg.InputDir, one per
// tile, applies --first-tile/--tile-limit in demux.TileLess order, and wraps
// each remaining file in a textClusterSource.
func discoverTileSources(cfg Config, rs readstructure.ReadStructure) (map[string]demux.ClusterSource, error) {
	infos, err := os.ReadDir(cfg.InputDir)
	if err != nil {
		return nil, fmt.Errorf("reading input directory: %w", err)
	}
	var tiles []string
	for _, info := range infos {
		name := info.Name()
		if tile := strings.TrimSuffix(name, ".clusters"); tile != name {
			tiles = append(tiles, tile)
		}
	}
	sort.Slice(tiles, func(i, j int) bool { return demux.TileLess(tiles[i], tiles[j]) })

	if cfg.FirstTile != "" {
		start := 0
		for start < len(tiles) && demux.TileLess(tiles[start], cfg.FirstTile) {
			start++
		}
		tiles = tiles[start:]
	}
	if cfg.TileLimit > 0 && len(tiles) > cfg.TileLimit {
		tiles = tiles[:cfg.TileLimit]
	}

	numSegs := len(rs.OutputProjection())
	sources := make(map[string]demux.ClusterSource, len(tiles))
	for _, tile := range tiles {
		f, err := file.Open(context.Background(), filepath.Join(cfg.InputDir, tile+".clusters"))
		if err != nil {
			return nil, fmt.Errorf("opening tile %s: %w", tile, err)
		}
		sources[tile] = newTextClusterSource(tile, numSegs, f.Reader(context.Background()))
	}
	return sources, nil
}

func writeMetricsFile(ctx context.Context, path string, metrics *barcode.MetricSet) error {
	f, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	if err := metrics.WriteMetricsTsv(f.Writer(ctx)); err != nil {
		_ = f.Close(ctx)
		return err
	}
	return f.Close(ctx)
}

func writeRunStatsFile(ctx context.Context, path string, numTiles, workers int, metrics *barcode.MetricSet) error {
	f, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	var totalReads int64
	for _, key := range metrics.Keys() {
		m, _ := metrics.Metric(key)
		totalReads += m.Reads
	}
	w := f.Writer(ctx)
	_, err = fmt.Fprintf(w, "TILES_PROCESSED\t%d\nTOTAL_CLUSTERS\t%d\nTHREADS\t%d\n", numTiles, totalReads, workers)
	if err != nil {
		_ = f.Close(ctx)
		return err
	}
	return f.Close(ctx)
}
