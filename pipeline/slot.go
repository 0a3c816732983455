package pipeline

import "github.com/aquariumsim/aquarium/insts"

// Stage names the five pipeline stages.
type Stage int

// The stages, in program order.
const (
	StageFetch Stage = iota
	StageDecode
	StageExecute
	StageMemory
	StageWriteback

	NumStages = 5
)

func (s Stage) String() string {
	switch s {
	case StageFetch:
		return "fetch"
	case StageDecode:
		return "decode"
	case StageExecute:
		return "execute"
	case StageMemory:
		return "memory"
	case StageWriteback:
		return "writeback"
	default:
		return "unknown"
	}
}

// A slot is one inter-stage latch. An invalid slot is a bubble.
type slot struct {
	Valid bool
	PC    uint32
	Word  uint32
	Instr insts.Instr

	// Decoded marks that Instr is populated from Word.
	Decoded bool

	// Source operand values read at decode.
	Rs1Val uint32
	Rs2Val uint32
	Rs3Val uint32
	LRVal  uint32
	SPVal  uint32

	// Execute results.
	Result      uint32
	Addr        uint32
	Target      uint32
	BranchTaken bool

	// RET carries the link value it pops off the stack.
	RestoredLR uint32

	// Memory-stage latency bookkeeping.
	Issued   bool
	MemStall int

	// An in-flight exception. It takes effect at Writeback.
	Fault error
}

func (s *slot) clear() {
	*s = slot{}
}

// A SlotView is the externally visible state of one stage latch.
type SlotView struct {
	Stage  string `json:"stage"`
	Bubble bool   `json:"bubble"`
	PC     uint32 `json:"pc,omitempty"`
	Instr  string `json:"instr,omitempty"`
}

func (s *slot) view(stage Stage) SlotView {
	v := SlotView{Stage: stage.String(), Bubble: !s.Valid}
	if !s.Valid {
		return v
	}

	v.PC = s.PC
	if s.Decoded {
		v.Instr = s.Instr.String()
	} else {
		v.Instr = "<fetched>"
	}

	return v
}
