package insts

// Format distinguishes the four instruction encodings.
type Format int

// The instruction formats.
const (
	FormatR Format = iota
	FormatG
	FormatJ
	FormatB
)

// Opcode is the 6-bit operation selector held in the high bits of an
// instruction word.
type Opcode uint8

// The opcodes of the ISA.
const (
	OpAdd  Opcode = 2
	OpSub  Opcode = 3
	OpXor  Opcode = 4
	OpOr   Opcode = 5
	OpAnd  Opcode = 6
	OpShr  Opcode = 7
	OpShl  Opcode = 8
	OpAddi Opcode = 9
	OpSubi Opcode = 10
	OpXori Opcode = 11
	OpOri  Opcode = 12
	OpAndi Opcode = 13
	OpLdb  Opcode = 14
	OpLdh  Opcode = 15
	OpLd   Opcode = 16
	OpStb  Opcode = 17
	OpSth  Opcode = 18
	OpSt   Opcode = 19
	OpBne  Opcode = 20
	OpBeq  Opcode = 21
	OpBlt  Opcode = 22
	OpBgt  Opcode = 23
	OpJmpr Opcode = 25
	OpLui  Opcode = 26
	OpCall Opcode = 27
	OpRet  Opcode = 28
	OpNop  Opcode = 29
	OpMul  Opcode = 30
	OpDiv  Opcode = 31
	OpInt0 Opcode = 40
)

type opcodeInfo struct {
	mnemonic string
	format   Format
}

var opcodeTable = map[Opcode]opcodeInfo{
	OpAdd:  {"add", FormatR},
	OpSub:  {"sub", FormatR},
	OpXor:  {"xor", FormatR},
	OpOr:   {"or", FormatR},
	OpAnd:  {"and", FormatR},
	OpShr:  {"shr", FormatR},
	OpShl:  {"shl", FormatR},
	OpMul:  {"mul", FormatR},
	OpDiv:  {"div", FormatR},
	OpAddi: {"addi", FormatG},
	OpSubi: {"subi", FormatG},
	OpXori: {"xori", FormatG},
	OpOri:  {"ori", FormatG},
	OpAndi: {"andi", FormatG},
	OpLui:  {"lui", FormatG},
	OpLdb:  {"ldb", FormatG},
	OpLdh:  {"ldh", FormatG},
	OpLd:   {"ld", FormatG},
	OpStb:  {"stb", FormatG},
	OpSth:  {"sth", FormatG},
	OpSt:   {"st", FormatG},
	OpBne:  {"bne", FormatG},
	OpBeq:  {"beq", FormatG},
	OpBlt:  {"blt", FormatG},
	OpBgt:  {"bgt", FormatG},
	OpJmpr: {"jmpr", FormatJ},
	OpCall: {"call", FormatJ},
	OpRet:  {"ret", FormatB},
	OpNop:  {"nop", FormatB},
	OpInt0: {"int0", FormatB},
}

// mnemonicTable maps assembly mnemonics back to opcodes. It is derived from
// opcodeTable so the assembler and the decoder cannot drift apart.
var mnemonicTable = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeTable))
	for op, info := range opcodeTable {
		m[info.mnemonic] = op
	}

	return m
}()

// Format returns the encoding format of the opcode.
func (o Opcode) Format() Format {
	return opcodeTable[o].format
}

// Valid reports whether o is an opcode of the ISA.
func (o Opcode) Valid() bool {
	_, ok := opcodeTable[o]
	return ok
}

func (o Opcode) String() string {
	info, ok := opcodeTable[o]
	if !ok {
		return "<invld>"
	}

	return info.mnemonic
}

// OpcodeForMnemonic resolves an assembly mnemonic to its opcode.
func OpcodeForMnemonic(mnemonic string) (Opcode, bool) {
	op, ok := mnemonicTable[mnemonic]
	return op, ok
}
