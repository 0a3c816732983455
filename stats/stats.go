// Package stats collects the run statistics of the simulator.
package stats

// Stats accumulates the counters of one simulation run. The pipeline engine
// writes the pipeline counters and the simulator copies the cache counters in
// after every tick; the presentation layer reads snapshots between ticks.
type Stats struct {
	Cycles                uint64
	Retired               uint64
	DataHazardStalls      uint64
	ControlHazardSquashes uint64
	MemStageCycles        uint64

	CacheReads     uint64
	CacheReadHits  uint64
	CacheWrites    uint64
	CacheWriteHits uint64

	ArithmeticInstrs uint64
	LoadInstrs       uint64
	StoreInstrs      uint64
	ControlInstrs    uint64
}

// HitRate returns the fraction of cache accesses that hit, in [0, 1].
func (s *Stats) HitRate() float64 {
	total := s.CacheReads + s.CacheWrites
	if total == 0 {
		return 0
	}

	return float64(s.CacheReadHits+s.CacheWriteHits) / float64(total)
}

// MemPercent returns the share of cycles spent in the memory stage.
func (s *Stats) MemPercent() float64 {
	if s.Cycles == 0 {
		return 0
	}

	return float64(s.MemStageCycles) / float64(s.Cycles) * 100
}

// CPUPercent returns the share of cycles not spent in the memory stage.
func (s *Stats) CPUPercent() float64 {
	if s.Cycles == 0 {
		return 0
	}

	return 100 - s.MemPercent()
}

// A Snapshot is a consistent copy of the statistics with the derived rates
// filled in.
type Snapshot struct {
	Cycles                uint64 `json:"cycles"`
	Retired               uint64 `json:"retired"`
	DataHazardStalls      uint64 `json:"data_hazard_stalls"`
	ControlHazardSquashes uint64 `json:"control_hazard_squashes"`
	MemStageCycles        uint64 `json:"mem_stage_cycles"`

	CacheReads     uint64  `json:"cache_reads"`
	CacheReadHits  uint64  `json:"cache_read_hits"`
	CacheWrites    uint64  `json:"cache_writes"`
	CacheWriteHits uint64  `json:"cache_write_hits"`
	CacheHitRate   float64 `json:"cache_hit_rate"`

	MemPercent float64 `json:"mem_percent"`
	CPUPercent float64 `json:"cpu_percent"`

	ArithmeticInstrs uint64 `json:"arithmetic_instrs"`
	LoadInstrs       uint64 `json:"load_instrs"`
	StoreInstrs      uint64 `json:"store_instrs"`
	ControlInstrs    uint64 `json:"control_instrs"`
}

// Snapshot copies the counters and computes the derived rates.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Cycles:                s.Cycles,
		Retired:               s.Retired,
		DataHazardStalls:      s.DataHazardStalls,
		ControlHazardSquashes: s.ControlHazardSquashes,
		MemStageCycles:        s.MemStageCycles,
		CacheReads:            s.CacheReads,
		CacheReadHits:         s.CacheReadHits,
		CacheWrites:           s.CacheWrites,
		CacheWriteHits:        s.CacheWriteHits,
		CacheHitRate:          s.HitRate(),
		MemPercent:            s.MemPercent(),
		CPUPercent:            s.CPUPercent(),
		ArithmeticInstrs:      s.ArithmeticInstrs,
		LoadInstrs:            s.LoadInstrs,
		StoreInstrs:           s.StoreInstrs,
		ControlInstrs:         s.ControlInstrs,
	}
}

// Reset zeroes every counter.
func (s *Stats) Reset() {
	*s = Stats{}
}
