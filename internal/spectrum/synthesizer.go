package spectrum

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Synthesizer owns the mutable scan counter, retention time, and RNG for a
// single acquisition run. It is meant to be owned exclusively by the
// producer goroutine (spec §4.3/§9 permit either a shared mutex or
// producer-owned state; we take the latter since there is never more than
// one writer).
type Synthesizer struct {
	rng           *rand.Rand
	scanNumber    int32
	retentionTime float64
}

// New creates a Synthesizer. A zero seed selects an entropy seed; any other
// value makes the sequence of generated scans reproducible (spec property 7).
func New(seed int64) *Synthesizer {
	var src rand.Source
	if seed == 0 {
		src = rand.NewSource(time.Now().UnixNano())
	} else {
		src = rand.NewSource(seed)
	}
	return &Synthesizer{rng: rand.New(src)}
}

// GenerateMS1 builds a survey scan and advances the retention time clock
// (in minutes) by a fixed 0.5 s per MS1, independent of the engine's
// configured scan rate.
func (s *Synthesizer) GenerateMS1(minMz, maxMz float64, peakCountOverride int32) (Scan, error) {
	s.scanNumber++

	n := int(peakCountOverride)
	if n <= 0 {
		n = 500 + s.rng.Intn(1500) // [500, 2000)
	}

	mz, intensity, err := s.generateSpectrum(n, minMz, maxMz, 1e6, 1e8)
	if err != nil {
		return Scan{}, err
	}
	basePeakMz, basePeakIntensity, tic := calculateAggregates(mz, intensity)

	scan := Scan{
		ScanNumber:        s.scanNumber,
		MSOrder:           MS1,
		RetentionTime:     s.retentionTime,
		MzValues:          mz,
		IntensityValues:   intensity,
		BasePeakMz:        basePeakMz,
		BasePeakIntensity: basePeakIntensity,
		TotalIonCurrent:   tic,
		FragmentationType: FragmentationUnknown,
		Analyzer:          "Orbitrap",
		ResolutionAtMz200: 120000.0,
		MassAccuracyPpm:   3.0,
		Polarity:          PolarityPositive,
		TimestampMs:       time.Now().UnixMilli(),
	}

	s.retentionTime += 0.5 / 60.0
	return scan, nil
}

// GenerateMS2 builds a fragmentation scan from a previously selected
// precursor. Retention time is not advanced: it belongs to the parent MS1.
func (s *Synthesizer) GenerateMS2(precursorMz, precursorIntensity float64, peakCountOverride int32) Scan {
	s.scanNumber++

	n := int(peakCountOverride)
	if n <= 0 {
		n = 50 + s.rng.Intn(250) // [50, 300)
	}

	minMz := ms2MinMzFloor
	maxMz := precursorMz * ms2MaxMzFactor

	minInt := precursorIntensity * 0.01
	maxInt := precursorIntensity * 0.5

	mz, intensity, _ := s.generateSpectrum(n, minMz, maxMz, minInt, maxInt)
	basePeakMz, basePeakIntensity, tic := calculateAggregates(mz, intensity)

	charge := int32(2 + s.rng.Intn(3)) // {2,3,4}
	precMz := precursorMz
	precInt := precursorIntensity
	isolationWidth := 1.6
	collisionEnergy := 30.0

	return Scan{
		ScanNumber:         s.scanNumber,
		MSOrder:            MS2,
		RetentionTime:      s.retentionTime,
		MzValues:           mz,
		IntensityValues:    intensity,
		BasePeakMz:         basePeakMz,
		BasePeakIntensity:  basePeakIntensity,
		TotalIonCurrent:    tic,
		PrecursorMass:      &precMz,
		PrecursorCharge:    &charge,
		PrecursorIntensity: &precInt,
		IsolationWidth:     &isolationWidth,
		CollisionEnergy:    &collisionEnergy,
		FragmentationType:  FragmentationHCD,
		Analyzer:           "Orbitrap",
		ResolutionAtMz200:  30000.0,
		MassAccuracyPpm:    5.0,
		Polarity:           PolarityPositive,
		TimestampMs:        time.Now().UnixMilli(),
	}
}

// generateSpectrum produces N (m/z, intensity) pairs with isotopic envelopes
// around a handful of "real" base peaks plus noise, sorted ascending by m/z.
func (s *Synthesizer) generateSpectrum(n int, minMz, maxMz, minIntensity, maxIntensity float64) ([]float64, []float64, error) {
	if minMz <= 0 || maxMz <= 0 || minMz >= maxMz {
		return nil, nil, &ConfigError{Reason: "min_mz must be positive and less than max_mz"}
	}

	mz := make([]float64, 0, n)
	intensity := make([]float64, 0, n)

	if n >= 5 {
		baseCount := n / 5
		for i := 0; i < baseCount; i++ {
			baseMz := minMz + s.rng.Float64()*(maxMz-minMz)
			baseIntensity := minIntensity + s.rng.Float64()*(maxIntensity-minIntensity)

			mz = append(mz, baseMz)
			intensity = append(intensity, baseIntensity)

			if s.rng.Float64() < 0.8 {
				mz = append(mz, baseMz+isotopeSpacing)
				intensity = append(intensity, baseIntensity*(0.4+s.rng.Float64()*0.4))
			}
			if s.rng.Float64() < 0.6 {
				mz = append(mz, baseMz+2*isotopeSpacing)
				intensity = append(intensity, baseIntensity*(0.1+s.rng.Float64()*0.3))
			}
		}
	}

	noiseCount := n - len(mz)
	noise := distuv.Normal{Mu: 0, Sigma: minIntensity * 0.1, Src: s.rng}
	for i := 0; i < noiseCount; i++ {
		mzv := minMz + s.rng.Float64()*(maxMz-minMz)
		intensityv := minIntensity*0.01 + math.Abs(noise.Rand())
		mz = append(mz, mzv)
		intensity = append(intensity, intensityv)
	}

	inds := make([]int, len(mz))
	floats.Argsort(mz, inds)
	sortedIntensity := make([]float64, len(intensity))
	for i, orig := range inds {
		sortedIntensity[i] = intensity[orig]
	}

	return mz, sortedIntensity, nil
}

// SelectPrecursor picks the (m/z, intensity) of an MS2 precursor candidate
// from an MS1 scan: uniformly among the top min(20, len) most intense peaks.
func (s *Synthesizer) SelectPrecursor(ms1 Scan) (mz, intensity float64) {
	if len(ms1.MzValues) == 0 {
		return 500.0, 1e6
	}

	type ranked struct {
		idx       int
		intensity float64
	}
	ranks := make([]ranked, len(ms1.IntensityValues))
	for i, v := range ms1.IntensityValues {
		ranks[i] = ranked{idx: i, intensity: v}
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i].intensity > ranks[j].intensity })

	topN := len(ranks)
	if topN > 20 {
		topN = 20
	}
	chosen := ranks[s.rng.Intn(topN)]
	return ms1.MzValues[chosen.idx], ms1.IntensityValues[chosen.idx]
}

// calculateAggregates returns (base_peak_mz, base_peak_intensity, tic). The
// base peak is the first occurrence of the maximum intensity.
func calculateAggregates(mz, intensity []float64) (basePeakMz, basePeakIntensity, tic float64) {
	if len(mz) == 0 || len(intensity) == 0 {
		return 0, 0, 0
	}

	maxIdx := 0
	maxIntensity := intensity[0]
	for i, v := range intensity {
		tic += v
		if v > maxIntensity {
			maxIntensity = v
			maxIdx = i
		}
	}
	return mz[maxIdx], maxIntensity, tic
}
