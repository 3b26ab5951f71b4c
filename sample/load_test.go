package sample

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadInline(t *testing.T) {
	entries, err := LoadInline([]string{"ACGTACGT", "TTTTAAAA"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "ACGTACGT", entries[0].Output)
	assert.Equal(t, "ACGTACGT", entries[0].Expected.Key())
	assert.False(t, entries[0].NoMatch)
}

func TestLoadInlineRejectsDuplicates(t *testing.T) {
	_, err := LoadInline([]string{"ACGTACGT", "ACGTACGT"})
	assert.Error(t, err)
}

func TestLoadInlineRejectsEmpty(t *testing.T) {
	_, err := LoadInline(nil)
	assert.Error(t, err)
}

func TestLoadSheetSingleBarcode(t *testing.T) {
	sheet := "OUTPUT\tSAMPLE_ALIAS\tLIBRARY_NAME\tBARCODE\n" +
		"s1\tSample1\tLib1\tACGTACGT\n" +
		"s2\tSample2\tLib2\tTTTTAAAA\n"
	entries, err := LoadSheet(strings.NewReader(sheet))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "s1", entries[0].Output)
	assert.Equal(t, "Sample1", entries[0].Expected.Name)
	assert.Equal(t, "Lib1", entries[0].Expected.Library)
	assert.Equal(t, "ACGTACGT", entries[0].Expected.Key())
}

func TestLoadSheetMultipleBarcodeColumns(t *testing.T) {
	sheet := "OUTPUT\tSAMPLE_ALIAS\tLIBRARY_NAME\tBARCODE_1\tBARCODE_2\n" +
		"s1\tSample1\tLib1\tACGT\tTTTT\n"
	entries, err := LoadSheet(strings.NewReader(sheet))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"ACGT", "TTTT"}, entries[0].Expected.Segments)
}

func TestLoadSheetForwardsTagColumns(t *testing.T) {
	sheet := "OUTPUT\tSAMPLE_ALIAS\tLIBRARY_NAME\tBARCODE\tSC\n" +
		"s1\tSample1\tLib1\tACGTACGT\tcenterA\n"
	entries, err := LoadSheet(strings.NewReader(sheet))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "centerA", entries[0].Tags["SC"])
}

func TestLoadSheetRejectsReservedTag(t *testing.T) {
	sheet := "OUTPUT\tSAMPLE_ALIAS\tLIBRARY_NAME\tBARCODE\tPU\n" +
		"s1\tSample1\tLib1\tACGTACGT\trunX\n"
	_, err := LoadSheet(strings.NewReader(sheet))
	assert.Error(t, err)
}

func TestLoadSheetRejectsMissingRequiredColumn(t *testing.T) {
	sheet := "OUTPUT\tSAMPLE_ALIAS\tBARCODE\n" + "s1\tSample1\tACGTACGT\n"
	_, err := LoadSheet(strings.NewReader(sheet))
	assert.Error(t, err)
}

func TestLoadSheetDetectsNoMatchRow(t *testing.T) {
	sheet := "OUTPUT\tSAMPLE_ALIAS\tLIBRARY_NAME\tBARCODE\n" +
		"s1\tSample1\tLib1\tACGTACGT\n" +
		"unmatched\tUnmatched\tNone\tNNNNNNNN\n"
	entries, err := LoadSheet(strings.NewReader(sheet))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].NoMatch)
	assert.True(t, entries[1].NoMatch)
	assert.Equal(t, "", entries[1].Key())
}

func TestLoadSheetRejectsInvalidBase(t *testing.T) {
	sheet := "OUTPUT\tSAMPLE_ALIAS\tLIBRARY_NAME\tBARCODE\n" +
		"s1\tSample1\tLib1\tACGTACXT\n"
	_, err := LoadSheet(strings.NewReader(sheet))
	assert.Error(t, err)
}

func TestLoadInlineRejectsInvalidBase(t *testing.T) {
	_, err := LoadInline([]string{"ACGTACXT"})
	assert.Error(t, err)
}

func TestLoadSheetRejectsDuplicateKeys(t *testing.T) {
	sheet := "OUTPUT\tSAMPLE_ALIAS\tLIBRARY_NAME\tBARCODE\n" +
		"s1\tSample1\tLib1\tACGTACGT\n" +
		"s2\tSample2\tLib2\tACGTACGT\n"
	_, err := LoadSheet(strings.NewReader(sheet))
	assert.Error(t, err)
}
