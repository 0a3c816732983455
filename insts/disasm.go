package insts

import (
	"fmt"

	"github.com/aquariumsim/aquarium/bits"
)

// A DisasmLine is one decoded instruction word, paired with its address.
type DisasmLine struct {
	Addr uint32
	Word uint32
	Text string
}

// Disassemble decodes raw as a run of instruction words starting at base.
// The data is re-decoded on every call, so views stay correct in the
// presence of self-modifying code. Words that do not decode are rendered
// as raw data.
func Disassemble(base uint32, raw []byte) []DisasmLine {
	lines := make([]DisasmLine, 0, len(raw)/4)

	for off := 0; off+4 <= len(raw); off += 4 {
		word := bits.U32(raw[off : off+4])
		line := DisasmLine{Addr: base + uint32(off), Word: word}

		if i, err := Decode(word); err == nil {
			line.Text = i.String()
		} else {
			line.Text = fmt.Sprintf(".word 0x%08x", word)
		}

		lines = append(lines, line)
	}

	return lines
}
