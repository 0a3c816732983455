package asm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquariumsim/aquarium/bits"
	"github.com/aquariumsim/aquarium/insts"
	"github.com/aquariumsim/aquarium/regs"
)

func assemble(t *testing.T, src string) Program {
	t.Helper()

	prog, err := Assemble(strings.NewReader(src))
	require.NoError(t, err)

	return prog
}

func word(t *testing.T, prog Program, chunk, idx int) insts.Instr {
	t.Helper()

	data := prog.Chunks[chunk].Data
	i, err := insts.Decode(bits.U32(data[idx*4 : idx*4+4]))
	require.NoError(t, err)

	return i
}

func TestAssembleArithmetic(t *testing.T) {
	prog := assemble(t, `
.load 0x3000
	movi r1 5
	movi r2 7
	add r3 r1 r2
	st r3 r0 0x3000
	int0
.end_section
`)

	require.Len(t, prog.Chunks, 1)
	assert.Equal(t, uint32(0x3000), prog.Chunks[0].Base)
	assert.Equal(t, uint32(0x3000), prog.Entry)
	require.Len(t, prog.Chunks[0].Data, 20)

	assert.Equal(t,
		insts.Instr{Op: insts.OpAddi, Rs3: regs.R1, Imm: 5},
		word(t, prog, 0, 0))
	assert.Equal(t,
		insts.Instr{Op: insts.OpAdd, Rs3: regs.R3, Rs1: regs.R1, Rs2: regs.R2},
		word(t, prog, 0, 2))
	assert.Equal(t,
		insts.Instr{Op: insts.OpSt, Rs3: regs.R3, Imm: 0x3000},
		word(t, prog, 0, 3))
	assert.Equal(t, insts.Instr{Op: insts.OpInt0}, word(t, prog, 0, 4))
}

func TestAssembleMovAlias(t *testing.T) {
	prog := assemble(t, `
.load 0x3000
	mov r4 r7
.end_section
`)

	assert.Equal(t,
		insts.Instr{Op: insts.OpAdd, Rs3: regs.R4, Rs1: regs.R7, Rs2: regs.R0},
		word(t, prog, 0, 0))
}

func TestAssembleBranchLabelIsPCRelative(t *testing.T) {
	prog := assemble(t, `
.load 0x3000
.loop
	addi r1 r1 1
	blt r1 r2 .loop
.end_section
`)

	branch := word(t, prog, 0, 1)
	assert.Equal(t, insts.OpBlt, branch.Op)
	// The branch sits at 0x3004; the loop label is 0x3000.
	assert.Equal(t, int32(-4), branch.Imm)
}

func TestAssembleCallAndJmprLabels(t *testing.T) {
	prog := assemble(t, `
.load 0x3000
	call .func
	jmpr .func
.func
	ret
.end_section
`)

	call := word(t, prog, 0, 0)
	assert.Equal(t, insts.OpCall, call.Op)
	assert.Equal(t, int32(8), call.Offset)

	jmpr := word(t, prog, 0, 1)
	assert.Equal(t, insts.OpJmpr, jmpr.Op)
	assert.Equal(t, int32(4), jmpr.Offset)
}

func TestAssembleCrossSectionLabel(t *testing.T) {
	prog := assemble(t, `
.load 0x4000
.handler
	ret
.end_section

.load 0x3000
	call .handler
.end_section
`)

	require.Len(t, prog.Chunks, 2)

	call := word(t, prog, 1, 0)
	assert.Equal(t, int32(0x4000-0x3000), call.Offset)
}

func TestAssembleEntryLabel(t *testing.T) {
	prog := assemble(t, `
.load 0x4000
	nop
.end_section

.load 0x3000
._start
	nop
.end_section
`)

	assert.Equal(t, uint32(0x3000), prog.Entry)
}

func TestAssembleComments(t *testing.T) {
	prog := assemble(t, `
# whole-line comment
.load 0x3000
	nop # trailing comment
.end_section
`)

	require.Len(t, prog.Chunks[0].Data, 4)
}

func TestAssembleErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		line int
		want string
	}{
		{
			name: "unknown mnemonic",
			src:  ".load 0x3000\n\tfrobnicate r1 r2 r3\n.end_section\n",
			line: 2,
			want: "unknown mnemonic",
		},
		{
			name: "label not found",
			src:  ".load 0x3000\n\tcall .nowhere\n.end_section\n",
			line: 2,
			want: "not found",
		},
		{
			name: "immediate out of range",
			src:  ".load 0x3000\n\taddi r1 r0 40000\n.end_section\n",
			line: 2,
			want: "out of range",
		},
		{
			name: "missing end_section",
			src:  ".load 0x3000\n\tnop\n",
			line: 2,
			want: "missing .end_section",
		},
		{
			name: "instruction outside section",
			src:  "\tnop\n",
			line: 1,
			want: "outside a section",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Assemble(strings.NewReader(tc.src))

			var asmErr *Error
			require.ErrorAs(t, err, &asmErr)
			assert.Equal(t, tc.line, asmErr.Line)
			assert.Contains(t, asmErr.Message, tc.want)
		})
	}
}
