package datarecording

import (
	"github.com/aquariumsim/aquarium/sim"
	"github.com/aquariumsim/aquarium/stats"
)

// The tables the simulator records into.
const (
	RunTable    = "runs"
	SampleTable = "cycle_samples"
)

// A RunRecord summarizes one simulation run.
type RunRecord struct {
	RunID        string
	Image        string
	Seed         uint32
	Cycles       uint64
	Retired      uint64
	CacheHitRate float64
	StopReason   string
}

// A CycleSample is one periodic reading of the statistics counters.
type CycleSample struct {
	RunID                 string
	Cycle                 uint64
	Retired               uint64
	DataHazardStalls      uint64
	ControlHazardSquashes uint64
	MemStageCycles        uint64
	CacheHitRate          float64
}

// RecordRun writes the run summary row.
func RecordRun(rec DataRecorder, run RunRecord) {
	rec.InsertData(RunTable, run)
	rec.Flush()
}

// A Sampler is a hook that records a CycleSample every interval cycles.
type Sampler struct {
	rec      DataRecorder
	runID    string
	stats    *stats.Stats
	interval uint64
}

// NewSampler creates a sampler and the tables it records into. The interval
// must be positive.
func NewSampler(
	rec DataRecorder,
	runID string,
	st *stats.Stats,
	interval uint64,
) *Sampler {
	if interval == 0 {
		panic("sampling interval must be positive")
	}

	rec.CreateTable(RunTable, RunRecord{})
	rec.CreateTable(SampleTable, CycleSample{})

	return &Sampler{
		rec:      rec,
		runID:    runID,
		stats:    st,
		interval: interval,
	}
}

// Func records one sample on every interval-th cycle.
func (s *Sampler) Func(ctx sim.HookCtx) {
	if ctx.Pos != sim.HookPosAfterCycle {
		return
	}

	cycle, ok := ctx.Item.(uint64)
	if !ok || cycle == 0 || cycle%s.interval != 0 {
		return
	}

	s.rec.InsertData(SampleTable, CycleSample{
		RunID:                 s.runID,
		Cycle:                 cycle,
		Retired:               s.stats.Retired,
		DataHazardStalls:      s.stats.DataHazardStalls,
		ControlHazardSquashes: s.stats.ControlHazardSquashes,
		MemStageCycles:        s.stats.MemStageCycles,
		CacheHitRate:          s.stats.HitRate(),
	})
}
