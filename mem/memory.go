package mem

import (
	"fmt"

	"github.com/aquariumsim/aquarium/bits"
)

// The reserved physical regions.
const (
	VectorTableBase uint32 = 0x0000
	VGABase         uint32 = 0x1000
	ControlBase     uint32 = 0x2000
	FreeBase        uint32 = 0x3000

	// ControlPort is the byte address that accepts simulator commands.
	ControlPort = ControlBase
)

// The commands accepted at ControlPort.
const (
	CmdExit      byte = 0x41
	CmdTimestamp byte = 0x42
	CmdRandom    byte = 0x43
)

// An AlignmentFault reports a halfword or word access at an address that is
// not naturally aligned.
type AlignmentFault struct {
	Addr uint32
	Size int
}

func (f *AlignmentFault) Error() string {
	return fmt.Sprintf("unaligned %d-byte access at 0x%08x", f.Size, f.Addr)
}

// Memory is the physical memory of the machine. It wraps a sparse Storage
// with size and alignment checks and intercepts accesses to the MMIO
// regions.
type Memory struct {
	storage *Storage
	vga     *TextBuffer
	rng     *LCG

	// cycleSource reports the current cycle counter for CmdTimestamp.
	cycleSource func() uint64

	exitRequested bool
	armedValue    uint32
	armed         bool
}

// NewMemory creates a memory with an empty backing store.
func NewMemory() *Memory {
	return &Memory{
		storage: NewStorage(),
		vga:     NewTextBuffer(),
		rng:     NewLCG(0),
	}
}

// SetCycleSource installs the callback that supplies the cycle counter
// returned by the timestamp command.
func (m *Memory) SetCycleSource(f func() uint64) {
	m.cycleSource = f
}

// Seed reseeds the PRNG behind the random command.
func (m *Memory) Seed(seed uint32) {
	m.rng = NewLCG(seed)
}

// ExitRequested reports whether the guest has issued the exit command.
func (m *Memory) ExitRequested() bool {
	return m.exitRequested
}

// VGA returns the text buffer side channel that mirrors the VGA region.
func (m *Memory) VGA() *TextBuffer {
	return m.vga
}

func checkAccess(pa uint32, size int) error {
	switch size {
	case 1, 2, 4:
	default:
		panic(fmt.Sprintf("invalid access size %d", size))
	}

	if !bits.IsAligned(pa, size) {
		return &AlignmentFault{Addr: pa, Size: size}
	}

	return nil
}

// Read returns size bytes at pa. Size must be 1, 2, or 4 and the address
// naturally aligned. A 4-byte read of the control port returns the value
// armed by the most recent timestamp or random command.
func (m *Memory) Read(pa uint32, size int) ([]byte, error) {
	if err := checkAccess(pa, size); err != nil {
		return nil, err
	}

	if pa == ControlPort && size == 4 && m.armed {
		m.armed = false
		return bits.BytesU32(m.armedValue), nil
	}

	return m.storage.Read(pa, size), nil
}

// Write stores data at pa. Writes to the VGA region are mirrored into the
// text buffer; writes to the control port are interpreted as commands.
func (m *Memory) Write(pa uint32, data []byte) error {
	if err := checkAccess(pa, len(data)); err != nil {
		return err
	}

	m.storage.Write(pa, data)

	if pa >= VGABase && pa < ControlBase {
		m.vga.Write(pa-VGABase, data)
	}

	if pa == ControlPort {
		m.command(data[0])
	}

	return nil
}

func (m *Memory) command(cmd byte) {
	switch cmd {
	case CmdExit:
		m.exitRequested = true
	case CmdTimestamp:
		var cycle uint64
		if m.cycleSource != nil {
			cycle = m.cycleSource()
		}
		m.armedValue = uint32(cycle)
		m.armed = true
	case CmdRandom:
		m.armedValue = m.rng.Next()
		m.armed = true
	}
}

// ReadRaw copies length bytes at pa with no alignment or size restriction
// and no MMIO interpretation. It serves cache line fills, the image loader,
// and memory views.
func (m *Memory) ReadRaw(pa uint32, length int) []byte {
	return m.storage.Read(pa, length)
}

// WriteRaw stores data at pa with no alignment restriction and no MMIO
// interpretation. It serves cache writebacks and the image loader.
func (m *Memory) WriteRaw(pa uint32, data []byte) {
	m.storage.Write(pa, data)
}

// Reset clears the backing store, the text buffer, and the MMIO latches.
func (m *Memory) Reset() {
	m.storage.Reset()
	m.vga.Reset()
	m.exitRequested = false
	m.armed = false
}
