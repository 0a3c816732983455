// Package regs models the architectural register file, including the
// pending-write scoreboard used for hazard detection.
package regs

import "fmt"

// Reg identifies one of the 16 architectural registers.
type Reg uint8

// The architectural registers. R0 is hardwired to zero, R14 is the link
// register, and R15 is the stack pointer.
const (
	R0 Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15

	NumRegs = 16
)

// LR and SP alias the link register and the stack pointer.
const (
	LR = R14
	SP = R15
)

func (r Reg) String() string {
	return fmt.Sprintf("r%d", uint8(r))
}

// A File holds the 16 general-purpose registers and their pending-write
// scoreboard bits.
type File struct {
	values  [NumRegs]uint32
	pending [NumRegs]bool
}

// NewFile creates a register file with all registers zeroed.
func NewFile() *File {
	return &File{}
}

// Read returns the current value of reg.
func (f *File) Read(reg Reg) uint32 {
	return f.values[reg]
}

// Write sets reg to value. Writes to R0 are discarded.
func (f *File) Write(reg Reg, value uint32) {
	if reg == R0 {
		return
	}

	f.values[reg] = value
}

// MarkPending records that an in-flight instruction will write reg. R0 never
// becomes pending.
func (f *File) MarkPending(reg Reg) {
	if reg == R0 {
		return
	}

	f.pending[reg] = true
}

// ClearPending removes the pending-write mark from reg.
func (f *File) ClearPending(reg Reg) {
	f.pending[reg] = false
}

// Pending reports whether an in-flight instruction will still write reg.
func (f *File) Pending(reg Reg) bool {
	return f.pending[reg]
}

// ClearAllPending drops every scoreboard bit. Used when the pipeline squashes
// in-flight instructions.
func (f *File) ClearAllPending() {
	f.pending = [NumRegs]bool{}
}

// Values returns a copy of all register values, indexed by register number.
func (f *File) Values() [NumRegs]uint32 {
	return f.values
}

// Reset zeroes all registers and scoreboard bits.
func (f *File) Reset() {
	f.values = [NumRegs]uint32{}
	f.pending = [NumRegs]bool{}
}
