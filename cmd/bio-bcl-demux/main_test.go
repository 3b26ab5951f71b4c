package main

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeClusterFile writes a tile's cluster dump in the tab-separated
// x/y/pf/bases/quals format textClusterSource expects.
func writeClusterFile(t *testing.T, path string, lines []string) {
	t.Helper()
	require.NoError(t, ioutil.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
}

func TestRunSingleEndInlineBarcodes(t *testing.T) {
	inputDir, err := ioutil.TempDir("", "bcldemux-in")
	require.NoError(t, err)
	defer os.RemoveAll(inputDir)
	outputDir, err := ioutil.TempDir("", "bcldemux-out")
	require.NoError(t, err)
	defer os.RemoveAll(outputDir)

	writeClusterFile(t, filepath.Join(inputDir, "1101.clusters"), []string{
		"100\t200\t1\tAAAA\tIIII\tACGTACGT\tIIIIIIII",
		"101\t201\t1\tTTTT\tJJJJ\tTTTTTTTT\tJJJJJJJJ",
		"102\t202\t1\tCCCC\tIIII\tGGGGCCCC\tKKKKKKKK",
	})

	cfg := defaultConfig()
	cfg.ReadStructure = "4B8T"
	cfg.InputDir = inputDir
	cfg.OutputDir = outputDir
	cfg.InlineBarcodes = []string{"AAAA", "TTTT"}
	cfg.GzipOutput = false
	cfg.MetricsFile = filepath.Join(outputDir, "metrics.tsv")
	cfg.RunStatsFile = filepath.Join(outputDir, "run.tsv")

	code := run(context.Background(), cfg)
	require.Equal(t, 0, code)

	aaaa, err := ioutil.ReadFile(filepath.Join(outputDir, "AAAA_R1.fastq"))
	require.NoError(t, err)
	assert.Contains(t, string(aaaa), "ACGTACGT")

	tttt, err := ioutil.ReadFile(filepath.Join(outputDir, "TTTT_R1.fastq"))
	require.NoError(t, err)
	assert.Contains(t, string(tttt), "TTTTTTTT")

	undetermined, err := ioutil.ReadFile(filepath.Join(outputDir, "Undetermined_R1.fastq"))
	require.NoError(t, err)
	assert.Contains(t, string(undetermined), "GGGGCCCC")

	_, err = os.Stat(cfg.MetricsFile)
	require.NoError(t, err)
	_, err = os.Stat(cfg.RunStatsFile)
	require.NoError(t, err)
}

func TestRunPairedEndBarcodeSheet(t *testing.T) {
	inputDir, err := ioutil.TempDir("", "bcldemux-in")
	require.NoError(t, err)
	defer os.RemoveAll(inputDir)
	outputDir, err := ioutil.TempDir("", "bcldemux-out")
	require.NoError(t, err)
	defer os.RemoveAll(outputDir)

	writeClusterFile(t, filepath.Join(inputDir, "1101.clusters"), []string{
		"1\t1\t1\tAAAA\tIIII\tACGT\tIIII\tTGCA\tIIII",
	})

	sheetPath := filepath.Join(inputDir, "sheet.tsv")
	require.NoError(t, ioutil.WriteFile(sheetPath, []byte(
		"OUTPUT\tBARCODE\tSAMPLE_ALIAS\tLIBRARY_NAME\n"+
			"sample1\tAAAA\tsample1\tlib1\n"), 0644))

	cfg := defaultConfig()
	cfg.ReadStructure = "4B8T8T"
	cfg.InputDir = inputDir
	cfg.OutputDir = outputDir
	cfg.BarcodeSheet = sheetPath
	cfg.GzipOutput = false

	code := run(context.Background(), cfg)
	require.Equal(t, 0, code)

	r1, err := ioutil.ReadFile(filepath.Join(outputDir, "sample1_R1.fastq"))
	require.NoError(t, err)
	assert.Contains(t, string(r1), "ACGT")

	r2, err := ioutil.ReadFile(filepath.Join(outputDir, "sample1_R2.fastq"))
	require.NoError(t, err)
	assert.Contains(t, string(r2), "TGCA")
}

func TestRunRejectsMissingInputDir(t *testing.T) {
	cfg := defaultConfig()
	cfg.ReadStructure = "4B8T"
	cfg.InputDir = ""
	cfg.OutputDir = "/tmp/wont-be-used"
	cfg.InlineBarcodes = []string{"AAAA"}

	code := run(context.Background(), cfg)
	assert.Equal(t, 1, code)
}

func TestRunRejectsEmptyInputDir(t *testing.T) {
	inputDir, err := ioutil.TempDir("", "bcldemux-in-empty")
	require.NoError(t, err)
	defer os.RemoveAll(inputDir)
	outputDir, err := ioutil.TempDir("", "bcldemux-out")
	require.NoError(t, err)
	defer os.RemoveAll(outputDir)

	cfg := defaultConfig()
	cfg.ReadStructure = "4B8T"
	cfg.InputDir = inputDir
	cfg.OutputDir = outputDir
	cfg.InlineBarcodes = []string{"AAAA"}

	code := run(context.Background(), cfg)
	assert.Equal(t, 1, code)
}
