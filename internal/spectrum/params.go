package spectrum

// Params configures a single acquisition run. A zero-value Params merges
// with DefaultParams field-by-field: the original Rust source distinguishes
// "absent" from "explicit zero" with plain positivity checks rather than
// Option unwrapping, and we keep that rule here. random_seed is the
// exception — zero is itself the meaningful "seed from entropy" sentinel.
type Params struct {
	ScanRate     float64 `json:"scan_rate"`
	MS2PerMS1    int32   `json:"ms2_per_ms1"`
	MinMz        float64 `json:"min_mz"`
	MaxMz        float64 `json:"max_mz"`
	Resolution   float64 `json:"resolution"`
	NoiseLevel   float64 `json:"noise_level"`
	RandomSeed   int64   `json:"random_seed"`
	MS1PeakCount int32   `json:"ms1_peak_count,omitempty"` // >0 forces the MS1 peak count; <=0 uses the random band
	MS2PeakCount int32   `json:"ms2_peak_count,omitempty"` // >0 forces the MS2 peak count; <=0 uses the random band
}

// DefaultParams returns the documented defaults (spec §3).
func DefaultParams() Params {
	return Params{
		ScanRate:   2.0,
		MS2PerMS1:  4,
		MinMz:      200.0,
		MaxMz:      2000.0,
		Resolution: 120000.0,
		NoiseLevel: 0.01,
		RandomSeed: 0,
	}
}

// WithDefaults returns a copy of p with every non-positive recognized field
// replaced by its default. original_source's run_acquisition resolves
// ms2_per_ms1 with `if params.ms2_per_ms1 > 0 { .. } else { 4 }` — zero is
// indistinguishable from absent there, so there is no MS1-only mode; we
// keep that same merge rule here rather than treating 0 as a deliberate
// override.
func (p Params) WithDefaults() Params {
	d := DefaultParams()
	out := p
	if out.ScanRate <= 0 {
		out.ScanRate = d.ScanRate
	}
	if out.MS2PerMS1 <= 0 {
		out.MS2PerMS1 = d.MS2PerMS1
	}
	if out.MinMz <= 0 {
		out.MinMz = d.MinMz
	}
	if out.MaxMz <= 0 {
		out.MaxMz = d.MaxMz
	}
	if out.Resolution <= 0 {
		out.Resolution = d.Resolution
	}
	if out.NoiseLevel <= 0 {
		out.NoiseLevel = d.NoiseLevel
	}
	return out
}

// Validate reports InvalidConfig for parameter combinations the synthesizer
// cannot turn into a spectrum.
func (p Params) Validate() error {
	if p.MinMz <= 0 || p.MaxMz <= 0 {
		return &ConfigError{Reason: "min_mz and max_mz must be positive"}
	}
	if p.MinMz >= p.MaxMz {
		return &ConfigError{Reason: "min_mz must be less than max_mz"}
	}
	// The lowest precursor an MS1 run at MinMz can select is MinMz itself
	// (generate_spectrum never draws below the configured floor), so the
	// MS2 fragment window (§4.1, min_mz=100.0, max_mz=precursor_mz*0.95)
	// only stays non-empty for every possible precursor if MinMz clears
	// this floor.
	if p.MinMz*ms2MaxMzFactor <= ms2MinMzFloor {
		return &ConfigError{Reason: "min_mz is too small: the MS2 fragment window (max_mz = precursor_mz * 0.95) would collapse for the smallest possible precursor"}
	}
	return nil
}
