// Package pipeline implements the five-stage in-order pipeline engine and
// the interrupt controller.
//
// Stages are evaluated in reverse order every tick so that a stage sees the
// state its downstream neighbor had at the start of the cycle. Data hazards
// stall the decode stage against the register scoreboard; there is no
// forwarding. Control instructions suspend fetch at decode and release it
// when the new pc is known in the memory stage, so a taken control transfer
// costs the squashed fetch plus the held-fetch cycles.
package pipeline

import (
	"github.com/aquariumsim/aquarium/bits"
	"github.com/aquariumsim/aquarium/cache"
	"github.com/aquariumsim/aquarium/insts"
	"github.com/aquariumsim/aquarium/mem"
	"github.com/aquariumsim/aquarium/regs"
	"github.com/aquariumsim/aquarium/stats"
	"github.com/aquariumsim/aquarium/vm"
)

// An Engine drives the pipeline one simulated cycle per Tick.
type Engine struct {
	regs   *regs.File
	mmu    *vm.MMU
	cache  *cache.Cache
	memory *mem.Memory
	stats  *stats.Stats
	ic     interruptController

	slots [NumStages]slot

	// pc is the architectural pc, updated in the memory stage. fetchPC
	// runs ahead of it and feeds the fetch stage.
	pc      uint32
	fetchPC uint32

	// fetchHold suspends fetch while a control instruction is resolving.
	fetchHold bool

	pipelined bool
	userMode  bool

	retiredPC    uint32
	retiredValid bool

	faultPC uint32
}

// New creates an engine over the given machine state. The pipeline starts
// enabled.
func New(
	rf *regs.File,
	mmu *vm.MMU,
	c *cache.Cache,
	memory *mem.Memory,
	st *stats.Stats,
) *Engine {
	e := &Engine{
		regs:      rf,
		mmu:       mmu,
		cache:     c,
		memory:    memory,
		stats:     st,
		pipelined: true,
	}
	e.ic.engine = e

	return e
}

// SetPC places the next fetch at pc.
func (e *Engine) SetPC(pc uint32) {
	e.pc = pc
	e.fetchPC = pc
}

// PC returns the architectural pc.
func (e *Engine) PC() uint32 {
	return e.pc
}

// SetPipelined switches between pipelined execution and one-instruction-
// at-a-time execution.
func (e *Engine) SetPipelined(enabled bool) {
	e.pipelined = enabled
}

// UserMode reports whether the machine runs at user privilege.
func (e *Engine) UserMode() bool {
	return e.userMode
}

// SetUserMode sets the privilege level of subsequent accesses.
func (e *Engine) SetUserMode(user bool) {
	e.userMode = user
}

// Retired returns the pc of the instruction that completed Writeback in
// the most recent tick, if any.
func (e *Engine) Retired() (uint32, bool) {
	return e.retiredPC, e.retiredValid
}

// FaultPC returns the pc of the most recent fault taken at Writeback.
func (e *Engine) FaultPC() uint32 {
	return e.faultPC
}

// Drained reports whether no instruction is in flight.
func (e *Engine) Drained() bool {
	for i := range e.slots {
		if e.slots[i].Valid {
			return false
		}
	}

	return true
}

// Slots returns the stage latches for snapshots, fetch first.
func (e *Engine) Slots() []SlotView {
	views := make([]SlotView, NumStages)
	for s := StageFetch; s <= StageWriteback; s++ {
		views[s] = e.slots[s].view(s)
	}

	return views
}

// Reset empties the pipeline and returns to kernel privilege. Registers,
// memory, and statistics are left alone.
func (e *Engine) Reset() {
	for i := range e.slots {
		e.slots[i].clear()
	}
	e.fetchHold = false
	e.userMode = false
	e.retiredValid = false
	e.ic.reset()
}

// Tick advances the pipeline by one cycle. A non-nil error reports that the
// machine halted on an unhandled fault.
func (e *Engine) Tick() error {
	e.stats.Cycles++
	e.retiredValid = false

	if err := e.writeback(); err != nil {
		return err
	}
	e.memoryStage()
	e.executeStage()
	e.decodeStage()
	e.fetchStage()

	return nil
}

func (e *Engine) writeback() error {
	wb := &e.slots[StageWriteback]
	if !wb.Valid {
		return nil
	}

	if wb.Fault != nil {
		fault := *wb
		wb.clear()

		return e.takeFault(&fault)
	}

	i := wb.Instr
	switch i.Op {
	case insts.OpRet:
		e.regs.Write(regs.LR, wb.RestoredLR)
		e.regs.Write(regs.SP, wb.SPVal+4)
		e.clearPending(i)
		e.ic.onReturn()
	case insts.OpCall:
		e.regs.Write(regs.SP, wb.SPVal-4)
		e.regs.Write(regs.LR, wb.PC+4)
		e.clearPending(i)
	case insts.OpInt0:
		e.squashYoung()
		e.ic.enter(VecInt0, wb.PC+4)
	default:
		if len(i.DstRegs()) > 0 {
			e.regs.Write(i.Rs3, wb.Result)
		}
		e.clearPending(i)
	}

	e.stats.Retired++
	switch i.Category() {
	case insts.CategoryArithmetic:
		e.stats.ArithmeticInstrs++
	case insts.CategoryLoad:
		e.stats.LoadInstrs++
	case insts.CategoryStore:
		e.stats.StoreInstrs++
	case insts.CategoryControl:
		e.stats.ControlInstrs++
	}

	e.retiredPC = wb.PC
	e.retiredValid = true
	wb.clear()

	return nil
}

// takeFault implements precise exceptions: everything older than the
// faulting instruction has committed, everything younger is squashed, and
// the faulting pc is preserved.
func (e *Engine) takeFault(f *slot) error {
	e.faultPC = f.PC
	e.squashYoung()

	vec, vectored := vectorOf(f.Fault)
	if !vectored || e.ic.handlerAddr(vec) == 0 {
		return &HaltError{PC: f.PC, Cause: f.Fault}
	}

	e.ic.enter(vec, f.PC)

	return nil
}

func vectorOf(fault error) (int, bool) {
	switch fault.(type) {
	case *vm.PageFault:
		return VecPageFault, true
	case *vm.PermissionFault:
		return VecPermissionFault, true
	case *mem.AlignmentFault:
		return VecAlignmentFault, true
	case *DivideByZeroFault:
		return VecDivideByZero, true
	case *IllegalInstructionFault:
		return VecIllegalInstruction, true
	default:
		return 0, false
	}
}

func (e *Engine) memoryStage() {
	m := &e.slots[StageMemory]
	if !m.Valid {
		return
	}

	if m.Fault == nil {
		if !m.Issued {
			e.issueMemory(m)
		} else if m.MemStall > 0 {
			m.MemStall--
			e.stats.MemStageCycles++
			return
		}
	}

	if m.MemStall > 0 {
		return
	}

	// Downstream is always free: writeback ran first this tick.
	e.slots[StageWriteback] = *m
	m.clear()
}

func (e *Engine) issueMemory(m *slot) {
	m.Issued = true
	i := m.Instr

	switch {
	case i.IsLoad():
		val, lat, err := e.dataRead(m.Addr, i.MemSize())
		if err != nil {
			m.Fault = err
			return
		}
		m.Result = val
		m.MemStall = lat - 1
		e.stats.MemStageCycles++
		e.pc = m.PC + 4

	case i.IsStore():
		lat, err := e.dataWrite(m.Addr, m.Rs3Val, i.MemSize())
		if err != nil {
			m.Fault = err
			return
		}
		m.MemStall = lat - 1
		e.stats.MemStageCycles++
		e.pc = m.PC + 4

	case i.IsBranch():
		if m.BranchTaken {
			e.redirect(m.Target)
		} else {
			e.redirect(m.PC + 4)
		}

	case i.Op == insts.OpJmpr:
		e.redirect(m.Target)

	case i.Op == insts.OpCall:
		lat, err := e.dataWrite(m.SPVal-4, m.LRVal, 4)
		if err != nil {
			m.Fault = err
			return
		}
		m.MemStall = lat - 1
		e.stats.MemStageCycles++
		e.redirect(m.Target)

	case i.Op == insts.OpRet:
		val, lat, err := e.dataRead(m.SPVal, 4)
		if err != nil {
			m.Fault = err
			return
		}
		m.RestoredLR = val
		m.MemStall = lat - 1
		e.stats.MemStageCycles++
		e.redirect(m.Target)

	case i.Op == insts.OpInt0:
		// The transfer happens at the Writeback boundary.

	default:
		e.pc = m.PC + 4
	}
}

func (e *Engine) executeStage() {
	x := &e.slots[StageExecute]
	if !x.Valid {
		return
	}

	if x.Fault == nil {
		e.compute(x)
	}

	if e.slots[StageMemory].Valid {
		return
	}

	e.slots[StageMemory] = *x
	x.clear()
}

func (e *Engine) compute(x *slot) {
	i := x.Instr

	switch i.Op {
	case insts.OpAdd:
		x.Result = x.Rs1Val + x.Rs2Val
	case insts.OpSub:
		x.Result = x.Rs1Val - x.Rs2Val
	case insts.OpXor:
		x.Result = x.Rs1Val ^ x.Rs2Val
	case insts.OpOr:
		x.Result = x.Rs1Val | x.Rs2Val
	case insts.OpAnd:
		x.Result = x.Rs1Val & x.Rs2Val
	case insts.OpShr:
		x.Result = x.Rs1Val >> x.Rs2Val
	case insts.OpShl:
		x.Result = x.Rs1Val << x.Rs2Val
	case insts.OpMul:
		x.Result = x.Rs1Val * x.Rs2Val
	case insts.OpDiv:
		if x.Rs2Val == 0 {
			x.Fault = &DivideByZeroFault{PC: x.PC}
			return
		}
		x.Result = x.Rs1Val / x.Rs2Val
	case insts.OpAddi:
		x.Result = uint32(int32(x.Rs1Val) + i.Imm)
	case insts.OpSubi:
		x.Result = uint32(int32(x.Rs1Val) - i.Imm)
	case insts.OpXori:
		x.Result = uint32(int32(x.Rs1Val) ^ i.Imm)
	case insts.OpOri:
		x.Result = uint32(int32(x.Rs1Val) | i.Imm)
	case insts.OpAndi:
		x.Result = uint32(int32(x.Rs1Val) & i.Imm)
	case insts.OpLui:
		x.Result = uint32(i.Imm) << 12
	case insts.OpLdb, insts.OpLdh, insts.OpLd,
		insts.OpStb, insts.OpSth, insts.OpSt:
		x.Addr = uint32(int32(x.Rs1Val) + i.Imm)
	case insts.OpBne:
		x.BranchTaken = x.Rs3Val != x.Rs1Val
		x.Target = uint32(int32(x.PC) + i.Imm)
	case insts.OpBeq:
		x.BranchTaken = x.Rs3Val == x.Rs1Val
		x.Target = uint32(int32(x.PC) + i.Imm)
	case insts.OpBlt:
		x.BranchTaken = x.Rs3Val < x.Rs1Val
		x.Target = uint32(int32(x.PC) + i.Imm)
	case insts.OpBgt:
		x.BranchTaken = x.Rs3Val > x.Rs1Val
		x.Target = uint32(int32(x.PC) + i.Imm)
	case insts.OpJmpr, insts.OpCall:
		x.Target = uint32(int32(x.PC) + i.Offset)
	case insts.OpRet:
		x.Target = x.LRVal
	}
}

func (e *Engine) decodeStage() {
	d := &e.slots[StageDecode]
	if !d.Valid {
		return
	}

	if d.Fault == nil && !d.Decoded {
		i, err := insts.Decode(d.Word)
		if err != nil {
			d.Fault = &IllegalInstructionFault{PC: d.PC, Word: d.Word}
		} else {
			d.Instr = i
			d.Decoded = true

			if i.IsControl() {
				// The fetch behind this instruction is down the
				// wrong path until the new pc is known.
				if e.slots[StageFetch].Valid {
					e.slots[StageFetch].clear()
					e.stats.ControlHazardSquashes++
				}
				e.fetchHold = true
			}
		}
	}

	if e.slots[StageExecute].Valid {
		return
	}

	if d.Fault == nil {
		if e.anyPending(d.Instr.SrcRegs()) {
			e.stats.DataHazardStalls++
			return
		}

		e.readOperands(d)
		for _, r := range d.Instr.DstRegs() {
			e.regs.MarkPending(r)
		}
	}

	e.slots[StageExecute] = *d
	d.clear()
}

func (e *Engine) anyPending(srcs []regs.Reg) bool {
	for _, r := range srcs {
		if e.regs.Pending(r) {
			return true
		}
	}

	return false
}

func (e *Engine) readOperands(d *slot) {
	i := d.Instr
	d.Rs1Val = e.regs.Read(i.Rs1)
	d.Rs2Val = e.regs.Read(i.Rs2)
	d.Rs3Val = e.regs.Read(i.Rs3)
	d.LRVal = e.regs.Read(regs.LR)
	d.SPVal = e.regs.Read(regs.SP)
}

func (e *Engine) clearPending(i insts.Instr) {
	for _, r := range i.DstRegs() {
		e.regs.ClearPending(r)
	}
}

func (e *Engine) fetchStage() {
	f := &e.slots[StageFetch]

	if f.Valid {
		if f.Fault == nil && f.MemStall > 0 {
			f.MemStall--
			return
		}

		if e.slots[StageDecode].Valid {
			return
		}

		e.slots[StageDecode] = *f
		f.clear()
	}

	if e.fetchHold {
		e.stats.ControlHazardSquashes++
		return
	}

	if !e.pipelined && !e.Drained() {
		return
	}

	f.Valid = true
	f.PC = e.fetchPC

	word, lat, err := e.fetchRead(e.fetchPC)
	if err != nil {
		f.Fault = err
		return
	}

	f.Word = word
	f.MemStall = lat - 1
	e.fetchPC += 4
}

// redirect points both pcs at target and releases fetch.
func (e *Engine) redirect(target uint32) {
	e.pc = target
	e.fetchPC = target
	e.fetchHold = false
}

// squashYoung bubbles every stage behind Writeback and drops all scoreboard
// bits, since nothing remains in flight.
func (e *Engine) squashYoung() {
	for s := StageFetch; s < StageWriteback; s++ {
		e.slots[s].clear()
	}
	e.regs.ClearAllPending()
}

// uncached reports whether a physical address falls in the reserved
// low-memory regions. The vector table, the VGA buffer, and the control
// region bypass the cache so their side effects and external readers always
// see current data.
func uncached(pa uint32) bool {
	return pa < mem.FreeBase
}

func leValue(b []byte) uint32 {
	switch len(b) {
	case 1:
		return uint32(b[0])
	case 2:
		return uint32(bits.U16(b))
	default:
		return bits.U32(b)
	}
}

func leBytes(val uint32, size int) []byte {
	b := bits.BytesU32(val)
	return b[:size]
}

func (e *Engine) dataRead(va uint32, size int) (uint32, int, error) {
	if !bits.IsAligned(va, size) {
		return 0, 0, &mem.AlignmentFault{Addr: va, Size: size}
	}

	pa, err := e.mmu.Translate(va, vm.AccessLoad, e.userMode)
	if err != nil {
		return 0, 0, err
	}

	if uncached(pa) {
		b, err := e.memory.Read(pa, size)
		if err != nil {
			return 0, 0, err
		}

		return leValue(b), cache.MissLatency, nil
	}

	b, lat := e.cache.Read(pa, size)

	return leValue(b), lat, nil
}

func (e *Engine) dataWrite(va, val uint32, size int) (int, error) {
	if !bits.IsAligned(va, size) {
		return 0, &mem.AlignmentFault{Addr: va, Size: size}
	}

	pa, err := e.mmu.Translate(va, vm.AccessStore, e.userMode)
	if err != nil {
		return 0, err
	}

	if uncached(pa) {
		if err := e.memory.Write(pa, leBytes(val, size)); err != nil {
			return 0, err
		}

		return cache.MissLatency, nil
	}

	return e.cache.Write(pa, leBytes(val, size)), nil
}

func (e *Engine) fetchRead(va uint32) (uint32, int, error) {
	if !bits.IsAligned(va, 4) {
		return 0, 0, &mem.AlignmentFault{Addr: va, Size: 4}
	}

	pa, err := e.mmu.Translate(va, vm.AccessFetch, e.userMode)
	if err != nil {
		return 0, 0, err
	}

	if uncached(pa) {
		return bits.U32(e.memory.ReadRaw(pa, 4)), cache.MissLatency, nil
	}

	b, lat := e.cache.Fetch(pa, 4)

	return bits.U32(b), lat, nil
}

// writeWord is the interrupt controller's store path. Entry-sequence stores
// are architectural side effects, not instructions, so their latency is not
// modeled.
func (e *Engine) writeWord(va, val uint32) {
	if _, err := e.dataWrite(va, val, 4); err != nil {
		e.memory.WriteRaw(va, bits.BytesU32(val))
	}
}
