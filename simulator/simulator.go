// Package simulator provides the facade that assembles the machine from its
// parts and drives it: image loading, stepping, breakpoints, and snapshots.
package simulator

import (
	"sync"
	"sync/atomic"

	"github.com/aquariumsim/aquarium/asm"
	"github.com/aquariumsim/aquarium/cache"
	"github.com/aquariumsim/aquarium/insts"
	"github.com/aquariumsim/aquarium/mem"
	"github.com/aquariumsim/aquarium/pipeline"
	"github.com/aquariumsim/aquarium/regs"
	"github.com/aquariumsim/aquarium/sim"
	"github.com/aquariumsim/aquarium/stats"
	"github.com/aquariumsim/aquarium/vm"
)

// Config selects the machine features of a run.
type Config struct {
	CacheEnabled    bool
	PipelineEnabled bool
	Seed            uint32
}

// DefaultConfig returns the configuration of a fully featured machine.
func DefaultConfig() Config {
	return Config{CacheEnabled: true, PipelineEnabled: true}
}

// A StopReason tells why RunUntilBreakpointOrExit returned.
type StopReason int

// The reasons a run stops.
const (
	StopNone StopReason = iota
	StopExit
	StopBreakpoint
	StopHalt
	StopRequested
	StopMaxCycles
)

func (r StopReason) String() string {
	switch r {
	case StopExit:
		return "exit"
	case StopBreakpoint:
		return "breakpoint"
	case StopHalt:
		return "halt"
	case StopRequested:
		return "requested"
	case StopMaxCycles:
		return "max-cycles"
	default:
		return "none"
	}
}

// A Simulator owns one complete machine. The mutex serializes ticks against
// snapshots; observers read between ticks, the run loop mutates during them.
type Simulator struct {
	sim.HookableBase

	mu sync.Mutex

	runID string

	regs   *regs.File
	mmu    *vm.MMU
	cache  *cache.Cache
	memory *mem.Memory
	stats  *stats.Stats
	engine *pipeline.Engine

	breakpoints map[uint32]bool
	maxCycles   uint64

	stopRequested atomic.Bool
	haltErr       error
}

// New creates a simulator with an empty memory and the default configuration.
func New() *Simulator {
	s := &Simulator{
		runID:       sim.GetIDGenerator().Generate(),
		regs:        regs.NewFile(),
		memory:      mem.NewMemory(),
		stats:       &stats.Stats{},
		breakpoints: make(map[uint32]bool),
	}
	s.HookableBase = *sim.NewHookableBase()
	s.cache = cache.New(s.memory)
	s.mmu = vm.NewMMU(s.memory)
	s.engine = pipeline.New(s.regs, s.mmu, s.cache, s.memory, s.stats)
	s.memory.SetCycleSource(func() uint64 { return s.stats.Cycles })

	return s
}

// RunID returns the identifier assigned to this simulator instance.
func (s *Simulator) RunID() string {
	return s.runID
}

// Configure applies the machine features of cfg.
func (s *Simulator) Configure(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.SetEnabled(cfg.CacheEnabled)
	s.engine.SetPipelined(cfg.PipelineEnabled)
	s.memory.Seed(cfg.Seed)
}

// SetMaxCycles bounds RunUntilBreakpointOrExit. Zero means unbounded.
func (s *Simulator) SetMaxCycles(n uint64) {
	s.maxCycles = n
}

// LoadImage assembles the source file at path and loads it.
func (s *Simulator) LoadImage(path string) error {
	prog, err := asm.AssembleFile(path)
	if err != nil {
		return err
	}

	s.LoadProgram(prog)

	return nil
}

// LoadProgram places the program chunks into physical memory and points the
// pipeline at the entry address.
func (s *Simulator) LoadProgram(prog asm.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chunk := range prog.Chunks {
		s.memory.WriteRaw(chunk.Base, chunk.Data)
	}

	s.engine.SetPC(prog.Entry)
}

// SetBreakpoint registers a breakpoint at the virtual pc. The run loop stops
// after Writeback of the instruction at that address.
func (s *Simulator) SetBreakpoint(pc uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.breakpoints[pc] = true
}

// ClearBreakpoint removes the breakpoint at pc.
func (s *Simulator) ClearBreakpoint(pc uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.breakpoints, pc)
}

// Breakpoints returns the registered breakpoint addresses.
func (s *Simulator) Breakpoints() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]uint32, 0, len(s.breakpoints))
	for pc := range s.breakpoints {
		out = append(out, pc)
	}

	return out
}

// Stop asks a running RunUntilBreakpointOrExit to return. Safe to call from
// another goroutine.
func (s *Simulator) Stop() {
	s.stopRequested.Store(true)
}

// Halted returns the terminal fault of the machine, if it took one.
func (s *Simulator) Halted() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.haltErr
}

// Step advances the machine by one cycle. A non-nil error reports that the
// machine halted on an unhandled fault; further steps return the same error.
func (s *Simulator) Step() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.step()
}

func (s *Simulator) step() error {
	if s.haltErr != nil {
		return s.haltErr
	}

	s.InvokeHook(sim.HookCtx{
		Domain: s,
		Pos:    sim.HookPosBeforeCycle,
		Item:   s.stats.Cycles,
	})

	err := s.engine.Tick()
	s.syncCacheCounters()

	if err != nil {
		s.haltErr = err
	} else if pc, ok := s.engine.Retired(); ok {
		s.InvokeHook(sim.HookCtx{
			Domain: s,
			Pos:    sim.HookPosInstRetired,
			Item:   pc,
		})
	}

	s.InvokeHook(sim.HookCtx{
		Domain: s,
		Pos:    sim.HookPosAfterCycle,
		Item:   s.stats.Cycles,
		Detail: err,
	})

	return err
}

func (s *Simulator) syncCacheCounters() {
	c := s.cache.Counters()
	s.stats.CacheReads = c.Reads
	s.stats.CacheReadHits = c.ReadHits
	s.stats.CacheWrites = c.Writes
	s.stats.CacheWriteHits = c.WriteHits
}

// RunUntilBreakpointOrExit steps the machine until the guest requests exit,
// a breakpoint instruction retires, the machine halts on a fault, an external
// Stop arrives, or the cycle bound is reached.
func (s *Simulator) RunUntilBreakpointOrExit() (StopReason, error) {
	for {
		if s.stopRequested.Swap(false) {
			return StopRequested, nil
		}

		s.mu.Lock()

		if s.maxCycles > 0 && s.stats.Cycles >= s.maxCycles {
			s.mu.Unlock()
			return StopMaxCycles, nil
		}

		err := s.step()
		if err != nil {
			s.mu.Unlock()
			return StopHalt, err
		}

		if s.memory.ExitRequested() {
			s.mu.Unlock()
			return StopExit, nil
		}

		pc, retired := s.engine.Retired()
		hit := retired && s.breakpoints[pc]
		s.mu.Unlock()

		if hit {
			return StopBreakpoint, nil
		}
	}
}

// FlushCache writes dirty blocks back and invalidates the cache.
func (s *Simulator) FlushCache() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Flush()
}

// Reset returns the machine to its power-on state. Breakpoints and the
// loaded memory image are discarded.
func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.regs.Reset()
	s.memory.Reset()

	// A fresh cache drops every block, dirty ones included, and its access
	// counters, which step would otherwise copy back into the statistics.
	enabled := s.cache.Enabled()
	*s.cache = *cache.New(s.memory)
	s.cache.SetEnabled(enabled)

	s.stats.Reset()
	s.engine.Reset()
	s.engine.SetPC(0)
	s.haltErr = nil
	s.breakpoints = make(map[uint32]bool)
}

// Counters exposes the live statistics counters. Hooks may read them while
// a tick is in progress; everyone else should prefer Stats.
func (s *Simulator) Counters() *stats.Stats {
	return s.stats
}

// Stats returns a consistent copy of the statistics.
func (s *Simulator) Stats() stats.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stats.Snapshot()
}

// MMU exposes the memory management unit for paging setup.
func (s *Simulator) MMU() *vm.MMU {
	return s.mmu
}

// Memory exposes physical memory. Mutate only between ticks.
func (s *Simulator) Memory() *mem.Memory {
	return s.memory
}

// Registers exposes the register file. Mutate only between ticks.
func (s *Simulator) Registers() *regs.File {
	return s.regs
}

// Engine exposes the pipeline engine. Mutate only between ticks.
func (s *Simulator) Engine() *pipeline.Engine {
	return s.engine
}

// MemoryRange returns n bytes of physical memory starting at addr, as the
// machine would observe them: valid dirty cache blocks overlay the backing
// store.
func (s *Simulator) MemoryRange(addr uint32, n int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.memoryRange(addr, n)
}

func (s *Simulator) memoryRange(addr uint32, n int) []byte {
	out := s.memory.ReadRaw(addr, n)
	if !s.cache.Enabled() {
		return out
	}

	end := addr + uint32(n)
	for _, b := range s.cache.State() {
		if !b.IsValid || !b.IsDirty {
			continue
		}

		base := b.Tag<<11 | uint32(b.SetID)<<6
		lo := max(base, addr)
		hi := min(base+cache.BlockSize, end)
		if lo >= hi {
			continue
		}

		block := s.cache.BlockData(b.SetID, b.WayID)
		copy(out[lo-addr:hi-addr], block[lo-base:hi-base])
	}

	return out
}

// Disassemble decodes n instruction words starting at addr. The words are
// re-read from memory on every call, so stores into code are reflected.
func (s *Simulator) Disassemble(addr uint32, n int) []insts.DisasmLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	return insts.Disassemble(addr, s.memoryRange(addr, n*4))
}

// A Snapshot is a consistent copy of the externally visible machine state.
type Snapshot struct {
	RunID    string `json:"run_id"`
	PC       uint32 `json:"pc"`
	UserMode bool   `json:"user_mode"`
	Halted   bool   `json:"halted"`
	HaltMsg  string `json:"halt_msg,omitempty"`

	Registers [regs.NumRegs]uint32 `json:"registers"`

	Pipeline []pipeline.SlotView `json:"pipeline"`

	Stats stats.Snapshot `json:"stats"`

	CacheEnabled bool               `json:"cache_enabled"`
	CacheValid   []uint8            `json:"cache_valid"`
	CacheBlocks  []cache.BlockState `json:"cache_blocks"`

	VGAText string `json:"vga_text"`

	Breakpoints []uint32 `json:"breakpoints"`
}

// Snapshot captures the machine state between ticks.
func (s *Simulator) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		RunID:        s.runID,
		PC:           s.engine.PC(),
		UserMode:     s.engine.UserMode(),
		Registers:    s.regs.Values(),
		Pipeline:     s.engine.Slots(),
		Stats:        s.stats.Snapshot(),
		CacheEnabled: s.cache.Enabled(),
		CacheValid:   s.cache.ValidBitmap(),
		CacheBlocks:  s.cache.State(),
		VGAText:      s.memory.VGA().String(),
	}

	if s.haltErr != nil {
		snap.Halted = true
		snap.HaltMsg = s.haltErr.Error()
	}

	for pc := range s.breakpoints {
		snap.Breakpoints = append(snap.Breakpoints, pc)
	}

	return snap
}
