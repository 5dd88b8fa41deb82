package engine

import (
	"context"
	"math"
	"time"

	"github.com/orbitrap-sim/lcmssim/internal/spectrum"
)

// tick is the producer's wakeup period. Per-scan sleeps cannot deliver the
// target 10^4 scans/s given millisecond scheduler granularity; batching K
// cycles per tick amortizes wakeups while the fractional accumulator keeps
// the long-run average rate accurate for any scan_rate/tick combination
// (spec §4.3/§9).
const tick = 10 * time.Millisecond
const tickSeconds = float64(tick) / float64(time.Second)

// runProducer is the paced batching loop described in spec §4.3. It owns
// its own Synthesizer for the lifetime of the run (spec §9 permits moving
// the synthesizer out from under a shared mutex into producer-owned state
// since there is exactly one writer).
func (e *Engine) runProducer(ctx context.Context, params spectrum.Params, maxScans *int32, maxDurationSeconds *float64) {
	defer e.runWG.Done()
	defer func() {
		// Spectrum generation is total; this recover only guards against a
		// defect surfacing as a panic. Per spec §4.3 the state deliberately
		// stays wherever it was (typically Acquiring) rather than moving to
		// Faulted or Completed — recovery requires a process restart.
		if r := recover(); r != nil {
			e.log.Error("producer task panicked; acquisition state frozen, restart required", "panic", r)
		}
	}()

	synth := spectrum.New(params.RandomSeed)
	// A Stop issued while Starting has already set Stopping; only Starting
	// advances to Acquiring, so that Stop is observed at the first tick.
	if e.state.CompareAndSwap(int32(StateStarting), int32(StateAcquiring)) && e.hooks.OnStateChange != nil {
		e.hooks.OnStateChange(StateAcquiring)
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	start := time.Now()
	deadline := start.Add(tick)
	var scansGenerated int64
	var accumulator float64
	var countedTicks int64

	terminate := func() bool {
		if e.State() == StateStopping {
			return true
		}
		if maxScans != nil && scansGenerated >= int64(*maxScans) {
			return true
		}
		if maxDurationSeconds != nil && time.Since(start).Seconds() > *maxDurationSeconds {
			return true
		}
		return false
	}

	scansPerCycle := 1 + int(params.MS2PerMS1)
	cyclesPerSecond := params.ScanRate / float64(scansPerCycle)

outer:
	for {
		select {
		case <-ctx.Done():
			break outer
		case <-ticker.C:
		}

		if e.hooks.OnTickJitter != nil {
			e.hooks.OnTickJitter(time.Since(deadline))
		}
		deadline = deadline.Add(tick)

		if terminate() {
			break
		}

		// Credit every tick that fell due since the last wakeup, not just
		// one: the ticker drops ticks while the producer is busy, and this
		// lets the next wakeup catch up on them instead of skewing the rate.
		dueTicks := int64(time.Since(start) / tick)
		accumulator += cyclesPerSecond * tickSeconds * float64(dueTicks-countedTicks)
		countedTicks = dueTicks
		k := int(math.Floor(accumulator))
		accumulator -= float64(k)

		for i := 0; i < k; i++ {
			if terminate() {
				break outer
			}

			ms1, err := synth.GenerateMS1(params.MinMz, params.MaxMz, params.MS1PeakCount)
			if err != nil {
				// Params were validated synchronously in Start; this should
				// not happen. Stay total rather than crash the producer.
				e.log.Error("ms1 generation failed unexpectedly", "err", err)
				break outer
			}
			e.publish(ms1, &scansGenerated)

			precMz, precInt := synth.SelectPrecursor(ms1)
			for j := int32(0); j < params.MS2PerMS1; j++ {
				if terminate() {
					break outer
				}
				ms2 := synth.GenerateMS2(precMz, precInt, params.MS2PeakCount)
				e.publish(ms2, &scansGenerated)
			}
		}
	}

	e.setState(StateCompleted)
	e.log.Info("acquisition complete", "scans_generated", scansGenerated, "session_id", e.SessionID())
}

func (e *Engine) publish(scan spectrum.Scan, scansGenerated *int64) {
	e.bus.Publish(scan)
	*scansGenerated++
	e.scanCount.Add(1)
	if e.hooks.OnScanPublished != nil {
		e.hooks.OnScanPublished(scan)
	}
}
