// Package spectrum synthesizes plausible MS1/MS2 mass spectra for the
// simulated Orbitrap acquisition engine.
package spectrum

import "fmt"

// MSOrder distinguishes survey scans from fragmentation scans.
type MSOrder int32

const (
	MS1 MSOrder = 1
	MS2 MSOrder = 2
)

// FragmentationType mirrors the proto enum the original gRPC service used;
// the zero value is reserved for scans that carry no fragmentation (MS1).
type FragmentationType int32

const (
	FragmentationUnknown FragmentationType = iota
	FragmentationHCD
	FragmentationCID
)

func (f FragmentationType) String() string {
	switch f {
	case FragmentationHCD:
		return "HCD"
	case FragmentationCID:
		return "CID"
	default:
		return "UNKNOWN"
	}
}

// Polarity mirrors the proto enum; only Positive is produced today.
type Polarity int32

const (
	PolarityUnknown Polarity = iota
	PolarityPositive
)

func (p Polarity) String() string {
	if p == PolarityPositive {
		return "Positive"
	}
	return "UNKNOWN"
}

// Scan is the unit of output published to the broadcast bus.
type Scan struct {
	ScanNumber      int32   `json:"scan_number"`
	MSOrder         MSOrder `json:"ms_order"`
	RetentionTime   float64 `json:"retention_time"`
	MzValues        []float64 `json:"mz_values"`
	IntensityValues []float64 `json:"intensity_values"`

	BasePeakMz        float64 `json:"base_peak_mz"`
	BasePeakIntensity float64 `json:"base_peak_intensity"`
	TotalIonCurrent   float64 `json:"total_ion_current"`

	PrecursorMass      *float64 `json:"precursor_mass,omitempty"`
	PrecursorCharge    *int32   `json:"precursor_charge,omitempty"`
	PrecursorIntensity *float64 `json:"precursor_intensity,omitempty"`
	IsolationWidth     *float64 `json:"isolation_width,omitempty"`
	CollisionEnergy    *float64 `json:"collision_energy,omitempty"`

	FragmentationType FragmentationType `json:"fragmentation_type"`
	Analyzer          string            `json:"analyzer"`
	ResolutionAtMz200 float64           `json:"resolution_at_mz200"`
	MassAccuracyPpm   float64           `json:"mass_accuracy_ppm"`
	Polarity          Polarity          `json:"polarity"`
	TimestampMs       int64             `json:"timestamp_ms"`
}

// ConfigError reports an invalid simulation parameter, surfaced as
// InvalidConfig per the error taxonomy.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s", e.Reason)
}

const isotopeSpacing = 1.003355

// ms2MinMzFloor and ms2MaxMzFactor define the MS2 fragment window
// (min_mz=100.0, max_mz=precursor_mz*0.95, spec §4.1). Validate rejects any
// min_mz that could let a selected precursor collapse this window to an
// empty or inverted range.
const (
	ms2MinMzFloor  = 100.0
	ms2MaxMzFactor = 0.95
)
