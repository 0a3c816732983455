// Package insts defines the instruction model of the Aquarium ISA, including
// the decoder, the encoder, and the disassembler.
package insts

import (
	"errors"
	"fmt"

	"github.com/aquariumsim/aquarium/bits"
	"github.com/aquariumsim/aquarium/regs"
)

// ErrIllegalInstruction is returned by Decode when the opcode bits do not
// name an instruction of the ISA.
var ErrIllegalInstruction = errors.New("illegal instruction")

// An Instr is the canonical decoded form of one 32-bit instruction word.
// Fields that the instruction's format does not carry are zero.
type Instr struct {
	Op  Opcode
	Rs3 regs.Reg
	Rs1 regs.Reg
	Rs2 regs.Reg

	// Imm is the sign-extended 16-bit immediate of G-format instructions.
	Imm int32

	// Offset is the sign-extended 21-bit offset of J-format instructions.
	Offset int32
}

// Decode interprets a 32-bit instruction word.
func Decode(word uint32) (Instr, error) {
	op := Opcode(bits.Field(word, 26, 6))
	if !op.Valid() {
		return Instr{}, ErrIllegalInstruction
	}

	i := Instr{Op: op}
	switch op.Format() {
	case FormatR:
		i.Rs3 = regs.Reg(bits.Field(word, 21, 5))
		i.Rs1 = regs.Reg(bits.Field(word, 16, 5))
		i.Rs2 = regs.Reg(bits.Field(word, 11, 5))
	case FormatG:
		i.Rs3 = regs.Reg(bits.Field(word, 21, 5))
		i.Rs1 = regs.Reg(bits.Field(word, 16, 5))
		i.Imm = bits.SignExtend(bits.Field(word, 0, 16), 16)
	case FormatJ:
		i.Rs3 = regs.Reg(bits.Field(word, 21, 5))
		i.Offset = bits.SignExtend(bits.Field(word, 0, 21), 21)
	case FormatB:
	}

	return i, nil
}

// Encode produces the 32-bit word of i. Encode and Decode round-trip for
// every well-formed instruction.
func Encode(i Instr) uint32 {
	word := uint32(i.Op) << 26

	switch i.Op.Format() {
	case FormatR:
		word |= uint32(i.Rs3) << 21
		word |= uint32(i.Rs1) << 16
		word |= uint32(i.Rs2) << 11
	case FormatG:
		word |= uint32(i.Rs3) << 21
		word |= uint32(i.Rs1) << 16
		word |= uint32(i.Imm) & 0xffff
	case FormatJ:
		word |= uint32(i.Rs3) << 21
		word |= uint32(i.Offset) & 0x1fffff
	case FormatB:
	}

	return word
}

// SrcRegs lists the registers the instruction reads. Stores read Rs3 as the
// value source. CALL and RET read the link register.
func (i Instr) SrcRegs() []regs.Reg {
	switch i.Op {
	case OpAdd, OpSub, OpXor, OpOr, OpAnd, OpShr, OpShl, OpMul, OpDiv:
		return []regs.Reg{i.Rs1, i.Rs2}
	case OpAddi, OpSubi, OpXori, OpOri, OpAndi, OpLdb, OpLdh, OpLd:
		return []regs.Reg{i.Rs1}
	case OpStb, OpSth, OpSt, OpBne, OpBeq, OpBlt, OpBgt:
		return []regs.Reg{i.Rs3, i.Rs1}
	case OpCall, OpRet:
		return []regs.Reg{regs.LR, regs.SP}
	default:
		return nil
	}
}

// DstRegs lists the registers the instruction writes at Writeback. CALL and
// RET update the link and stack registers.
func (i Instr) DstRegs() []regs.Reg {
	switch i.Op {
	case OpAdd, OpSub, OpXor, OpOr, OpAnd, OpShr, OpShl, OpMul, OpDiv,
		OpAddi, OpSubi, OpXori, OpOri, OpAndi, OpLui,
		OpLdb, OpLdh, OpLd:
		return []regs.Reg{i.Rs3}
	case OpCall, OpRet:
		return []regs.Reg{regs.LR, regs.SP}
	default:
		return nil
	}
}

// IsLoad reports whether the instruction reads data memory.
func (i Instr) IsLoad() bool {
	return i.Op == OpLdb || i.Op == OpLdh || i.Op == OpLd
}

// IsStore reports whether the instruction writes data memory.
func (i Instr) IsStore() bool {
	return i.Op == OpStb || i.Op == OpSth || i.Op == OpSt
}

// IsBranch reports whether the instruction is a conditional branch.
func (i Instr) IsBranch() bool {
	switch i.Op {
	case OpBne, OpBeq, OpBlt, OpBgt:
		return true
	}

	return false
}

// IsControl reports whether the instruction can redirect the pc.
func (i Instr) IsControl() bool {
	switch i.Op {
	case OpJmpr, OpCall, OpRet, OpInt0:
		return true
	}

	return i.IsBranch()
}

// MemSize returns the access width in bytes of a load or store, or 0.
func (i Instr) MemSize() int {
	switch i.Op {
	case OpLdb, OpStb:
		return 1
	case OpLdh, OpSth:
		return 2
	case OpLd, OpSt:
		return 4
	}

	return 0
}

// Category buckets instructions for the statistics counters.
type Category int

// The instruction categories.
const (
	CategoryArithmetic Category = iota
	CategoryLoad
	CategoryStore
	CategoryControl
	CategoryOther
)

// Category returns the statistics bucket of the instruction.
func (i Instr) Category() Category {
	switch {
	case i.IsLoad():
		return CategoryLoad
	case i.IsStore():
		return CategoryStore
	case i.IsControl():
		return CategoryControl
	case i.Op == OpNop:
		return CategoryOther
	default:
		return CategoryArithmetic
	}
}

func (i Instr) String() string {
	switch i.Op.Format() {
	case FormatR:
		return fmt.Sprintf("%s %s %s %s", i.Op, i.Rs3, i.Rs1, i.Rs2)
	case FormatG:
		if i.Op == OpLui {
			return fmt.Sprintf("%s %s %d", i.Op, i.Rs3, i.Imm)
		}
		return fmt.Sprintf("%s %s %s %d", i.Op, i.Rs3, i.Rs1, i.Imm)
	case FormatJ:
		return fmt.Sprintf("%s %d", i.Op, i.Offset)
	default:
		return i.Op.String()
	}
}
