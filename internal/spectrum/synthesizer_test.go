package spectrum

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateMS1InvariantsHold(t *testing.T) {
	s := New(42)
	scan, err := s.GenerateMS1(200, 2000, 0)
	require.NoError(t, err)

	require.Equal(t, len(scan.MzValues), len(scan.IntensityValues))
	require.True(t, sort_IsAscending(scan.MzValues))

	var tic, maxIntensity float64
	maxIdx := 0
	for i, v := range scan.IntensityValues {
		tic += v
		if v > maxIntensity {
			maxIntensity = v
			maxIdx = i
		}
	}
	require.InDelta(t, tic, scan.TotalIonCurrent, 1e-6)
	require.InDelta(t, maxIntensity, scan.BasePeakIntensity, 1e-6)
	require.InDelta(t, scan.MzValues[maxIdx], scan.BasePeakMz, 1e-6)
	require.Nil(t, scan.PrecursorMass)
	require.Equal(t, int32(1), scan.ScanNumber)
}

func TestScanNumberIncreasesWithNoGaps(t *testing.T) {
	s := New(1)
	for i := int32(1); i <= 10; i++ {
		scan, err := s.GenerateMS1(200, 2000, 5)
		require.NoError(t, err)
		require.Equal(t, i, scan.ScanNumber)
	}
}

func TestGenerateMS2PrecursorFields(t *testing.T) {
	s := New(7)
	ms1, err := s.GenerateMS1(200, 2000, 50)
	require.NoError(t, err)

	precMz, precInt := s.SelectPrecursor(ms1)
	ms2 := s.GenerateMS2(precMz, precInt, 20)

	require.NotNil(t, ms2.PrecursorCharge)
	require.Contains(t, []int32{2, 3, 4}, *ms2.PrecursorCharge)
	require.InDelta(t, precMz, *ms2.PrecursorMass, 1e-9)

	maxAllowed := precMz*0.95 + 1e-6
	for _, mz := range ms2.MzValues {
		require.LessOrEqual(t, mz, maxAllowed)
	}
	require.Equal(t, ms1.RetentionTime, ms2.RetentionTime)
}

func TestSelectPrecursorEmptyScanFallsBack(t *testing.T) {
	s := New(3)
	mz, intensity := s.SelectPrecursor(Scan{})
	require.Equal(t, 500.0, mz)
	require.Equal(t, 1e6, intensity)
}

func TestDeterministicWithSameSeed(t *testing.T) {
	a := New(99)
	b := New(99)

	for i := 0; i < 5; i++ {
		scanA, err := a.GenerateMS1(200, 2000, 30)
		require.NoError(t, err)
		scanB, err := b.GenerateMS1(200, 2000, 30)
		require.NoError(t, err)

		require.Equal(t, scanA.MzValues, scanB.MzValues)
		require.Equal(t, scanA.IntensityValues, scanB.IntensityValues)
		require.Equal(t, scanA.BasePeakMz, scanB.BasePeakMz)
	}
}

func TestGenerateSpectrumRejectsInvalidRange(t *testing.T) {
	s := New(1)
	_, err := s.GenerateMS1(2000, 200, 10)
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestGenerateSpectrumSkipsIsotopesBelowFive(t *testing.T) {
	s := New(1)
	mz, intensity, err := s.generateSpectrum(3, 200, 2000, 1e6, 1e8)
	require.NoError(t, err)
	require.Len(t, mz, 3)
	require.Len(t, intensity, 3)
}

func sort_IsAscending(v []float64) bool {
	for i := 1; i < len(v); i++ {
		if v[i] < v[i-1] || math.IsNaN(v[i]) {
			return false
		}
	}
	return true
}
