// Package asm implements the two-pass Aquarium assembler. It turns textual
// programs into loadable image fragments that agree bit-for-bit with the
// instruction decoder.
package asm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/aquariumsim/aquarium/bits"
	"github.com/aquariumsim/aquarium/insts"
	"github.com/aquariumsim/aquarium/regs"
)

// EntryLabel marks the program entry point. When no section defines it, the
// first section's base address is the entry.
const EntryLabel = "._start"

// An Error reports an assembly problem with its source line number.
type Error struct {
	Line    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

func errorf(line int, format string, args ...any) *Error {
	return &Error{Line: line, Message: fmt.Sprintf(format, args...)}
}

// A Chunk is one contiguous run of assembled bytes.
type Chunk struct {
	Base uint32
	Data []byte
}

// A Program is the loadable output of the assembler.
type Program struct {
	Chunks []Chunk
	Entry  uint32
}

// sourceInstr is one instruction line with its assigned address, kept
// between the two passes.
type sourceInstr struct {
	line   int
	addr   uint32
	tokens []string
}

type section struct {
	base   uint32
	instrs []sourceInstr
}

// AssembleFile assembles the program in the named file.
func AssembleFile(path string) (Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return Program{}, err
	}
	defer f.Close()

	return Assemble(f)
}

// Assemble runs both assembler passes over src.
func Assemble(src io.Reader) (Program, error) {
	sections, labels, err := parse(src)
	if err != nil {
		return Program{}, err
	}

	if len(sections) == 0 {
		return Program{}, errorf(1, "no sections in input")
	}

	prog := Program{Entry: sections[0].base}
	if entry, ok := labels[EntryLabel]; ok {
		prog.Entry = entry
	}

	for _, sec := range sections {
		data := make([]byte, 0, len(sec.instrs)*4)
		for _, si := range sec.instrs {
			word, err := assembleInstr(si, labels)
			if err != nil {
				return Program{}, err
			}

			data = append(data, bits.BytesU32(word)...)
		}

		prog.Chunks = append(prog.Chunks, Chunk{Base: sec.base, Data: data})
	}

	return prog, nil
}

// parse is the first pass: it splits the input into sections, assigns each
// instruction its address, and collects the label map.
func parse(src io.Reader) ([]section, map[string]uint32, error) {
	var (
		sections []section
		cur      *section
		curLine  int
	)
	labels := make(map[string]uint32)

	scanner := bufio.NewScanner(src)
	lineNo := 0
	for scanner.Scan() {
		lineNo++

		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch {
		case fields[0] == ".load":
			if cur != nil {
				return nil, nil, errorf(lineNo,
					"section starting at line %d is missing .end_section", curLine)
			}
			if len(fields) != 2 {
				return nil, nil, errorf(lineNo, ".load requires one address")
			}

			base, err := parseNumber(fields[1])
			if err != nil {
				return nil, nil, errorf(lineNo, "bad .load address %q", fields[1])
			}

			sections = append(sections, section{base: uint32(base)})
			cur = &sections[len(sections)-1]
			curLine = lineNo

		case fields[0] == ".end_section":
			if cur == nil {
				return nil, nil, errorf(lineNo, ".end_section outside a section")
			}
			cur = nil

		case strings.HasPrefix(fields[0], "."):
			if cur == nil {
				return nil, nil, errorf(lineNo, "label %q outside a section", fields[0])
			}
			if len(fields) != 1 {
				return nil, nil, errorf(lineNo, "unexpected text after label %q", fields[0])
			}
			if _, dup := labels[fields[0]]; dup {
				return nil, nil, errorf(lineNo, "duplicate label %q", fields[0])
			}

			labels[fields[0]] = cur.base + uint32(len(cur.instrs))*4

		default:
			if cur == nil {
				return nil, nil, errorf(lineNo,
					"instruction outside a section; expected .load")
			}

			cur.instrs = append(cur.instrs, sourceInstr{
				line:   lineNo,
				addr:   cur.base + uint32(len(cur.instrs))*4,
				tokens: fields,
			})
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	if cur != nil {
		return nil, nil, errorf(lineNo,
			"section starting at line %d is missing .end_section", curLine)
	}

	return sections, labels, nil
}

// assembleInstr is the second pass for one instruction: resolve operands
// and emit the 32-bit word.
func assembleInstr(si sourceInstr, labels map[string]uint32) (uint32, error) {
	mnemonic := strings.ToLower(si.tokens[0])
	operands := si.tokens[1:]

	// Synthetic forms expand before the table lookup.
	switch mnemonic {
	case "mov":
		if len(operands) != 2 {
			return 0, errorf(si.line, "mov requires 2 operands")
		}
		mnemonic = "add"
		operands = []string{operands[0], operands[1], "r0"}
	case "movi":
		if len(operands) != 2 {
			return 0, errorf(si.line, "movi requires 2 operands")
		}
		mnemonic = "addi"
		operands = []string{operands[0], "r0", operands[1]}
	}

	op, ok := insts.OpcodeForMnemonic(mnemonic)
	if !ok {
		return 0, errorf(si.line, "unknown mnemonic %q", si.tokens[0])
	}

	i := insts.Instr{Op: op}

	switch op.Format() {
	case insts.FormatR:
		if len(operands) != 3 {
			return 0, errorf(si.line, "%s requires 3 register operands", mnemonic)
		}

		var err error
		if i.Rs3, err = parseReg(si.line, operands[0]); err != nil {
			return 0, err
		}
		if i.Rs1, err = parseReg(si.line, operands[1]); err != nil {
			return 0, err
		}
		if i.Rs2, err = parseReg(si.line, operands[2]); err != nil {
			return 0, err
		}

	case insts.FormatG:
		imm, err := parseGOperands(si, op, operands, labels, &i)
		if err != nil {
			return 0, err
		}
		if imm < -32768 || imm > 32767 {
			return 0, errorf(si.line, "immediate %d out of range for %s", imm, mnemonic)
		}
		i.Imm = int32(imm)

	case insts.FormatJ:
		if len(operands) != 1 {
			return 0, errorf(si.line, "%s requires 1 operand", mnemonic)
		}

		offset, err := resolveRelative(si, operands[0], labels)
		if err != nil {
			return 0, err
		}
		if offset < -(1<<20) || offset > (1<<20)-1 {
			return 0, errorf(si.line, "offset %d out of range for %s", offset, mnemonic)
		}
		i.Offset = int32(offset)

	case insts.FormatB:
		if len(operands) != 0 {
			return 0, errorf(si.line, "%s takes no operands", mnemonic)
		}
	}

	return insts.Encode(i), nil
}

func parseGOperands(
	si sourceInstr,
	op insts.Opcode,
	operands []string,
	labels map[string]uint32,
	i *insts.Instr,
) (int64, error) {
	if op == insts.OpLui {
		if len(operands) != 2 {
			return 0, errorf(si.line, "lui requires 2 operands")
		}

		var err error
		if i.Rs3, err = parseReg(si.line, operands[0]); err != nil {
			return 0, err
		}

		return parseImm(si.line, operands[1])
	}

	if len(operands) != 3 {
		return 0, errorf(si.line, "%s requires 3 operands", op)
	}

	var err error
	if i.Rs3, err = parseReg(si.line, operands[0]); err != nil {
		return 0, err
	}
	if i.Rs1, err = parseReg(si.line, operands[1]); err != nil {
		return 0, err
	}

	if i.IsBranch() {
		return resolveRelative(si, operands[2], labels)
	}

	return parseImm(si.line, operands[2])
}

// resolveRelative turns a label or numeric operand into a pc-relative
// displacement. The pc of the displacement is the instruction's own
// address.
func resolveRelative(
	si sourceInstr,
	operand string,
	labels map[string]uint32,
) (int64, error) {
	if strings.HasPrefix(operand, ".") {
		target, ok := labels[operand]
		if !ok {
			return 0, errorf(si.line, "label %q not found", operand)
		}

		return int64(target) - int64(si.addr), nil
	}

	return parseImm(si.line, operand)
}

func parseReg(line int, token string) (regs.Reg, error) {
	if !strings.HasPrefix(token, "r") {
		return 0, errorf(line, "expected register, got %q", token)
	}

	n, err := strconv.Atoi(token[1:])
	if err != nil || n < 0 || n >= regs.NumRegs {
		return 0, errorf(line, "bad register %q", token)
	}

	return regs.Reg(n), nil
}

func parseImm(line int, token string) (int64, error) {
	v, err := parseNumber(token)
	if err != nil {
		return 0, errorf(line, "bad immediate %q", token)
	}

	return v, nil
}

func parseNumber(token string) (int64, error) {
	neg := false
	if strings.HasPrefix(token, "-") {
		neg = true
		token = token[1:]
	}

	var (
		v   uint64
		err error
	)
	if strings.HasPrefix(token, "0x") || strings.HasPrefix(token, "0X") {
		v, err = strconv.ParseUint(token[2:], 16, 32)
	} else {
		v, err = strconv.ParseUint(token, 10, 32)
	}
	if err != nil {
		return 0, err
	}

	res := int64(v)
	if neg {
		res = -res
	}

	return res, nil
}
