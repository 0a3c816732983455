package pipeline

import (
	"github.com/aquariumsim/aquarium/bits"
	"github.com/aquariumsim/aquarium/regs"
)

// The interruptController implements the control-transfer protocol shared
// by int0 and vectored faults. Entry follows the call convention: the old
// link register is pushed onto the stack, the link register receives the
// resume pc, and the handler address comes from the vector table, so a
// plain ret resumes the interrupted program. Privilege is raised on entry
// and restored when the matching ret retires.
type interruptController struct {
	engine *Engine

	// savedUser stacks the privilege level at each entry, deepest first.
	savedUser []bool
}

// handlerAddr reads the vector-table pointer for the given slot. The table
// lives at physical address 0 and is read uncached.
func (ic *interruptController) handlerAddr(vector int) uint32 {
	return bits.U32(ic.engine.memory.ReadRaw(uint32(vector)*4, 4))
}

// enter transfers control to the handler of the given vector. resumePC is
// the pc the matching ret returns to. The caller has already squashed the
// pipeline.
func (ic *interruptController) enter(vector int, resumePC uint32) {
	e := ic.engine

	sp := e.regs.Read(regs.SP) - 4
	e.writeWord(sp, e.regs.Read(regs.LR))
	e.regs.Write(regs.SP, sp)
	e.regs.Write(regs.LR, resumePC)

	ic.savedUser = append(ic.savedUser, e.userMode)
	e.userMode = false

	e.redirect(ic.handlerAddr(vector))
}

// onReturn restores the privilege level saved by the innermost entry. A
// ret with no outstanding entry is an ordinary function return.
func (ic *interruptController) onReturn() {
	if len(ic.savedUser) == 0 {
		return
	}

	e := ic.engine
	e.userMode = ic.savedUser[len(ic.savedUser)-1]
	ic.savedUser = ic.savedUser[:len(ic.savedUser)-1]
}

func (ic *interruptController) reset() {
	ic.savedUser = nil
}
