// Package sim provides the base primitives shared by the simulator core and
// its observers: hook points, simulated-time types, and run identifiers.
package sim

// A HookPos names a position in the simulation loop where hooks fire.
type HookPos struct {
	Name string
}

// The positions the simulator invokes.
var (
	// HookPosBeforeCycle triggers before the pipeline advances one cycle.
	HookPosBeforeCycle = &HookPos{Name: "BeforeCycle"}

	// HookPosAfterCycle triggers after the pipeline advanced one cycle.
	HookPosAfterCycle = &HookPos{Name: "AfterCycle"}

	// HookPosInstRetired triggers when an instruction completes Writeback.
	// The Item of the context carries the retired pc as a uint32.
	HookPosInstRetired = &HookPos{Name: "InstRetired"}
)

// HookCtx holds the information about the site that triggered a hook.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   interface{}
	Detail interface{}
}

// Hookable is an object that accepts hooks.
type Hookable interface {
	// AcceptHook registers a hook.
	AcceptHook(hook Hook)
}

// A Hook is a short piece of program invoked by a hookable object.
type Hook interface {
	// Func determines what to do when the hook is invoked.
	Func(ctx HookCtx)
}

// A HookableBase provides the hook bookkeeping for types that implement the
// Hookable interface.
type HookableBase struct {
	Hooks []Hook
}

// NewHookableBase creates a HookableBase object.
func NewHookableBase() *HookableBase {
	h := new(HookableBase)
	h.Hooks = make([]Hook, 0)
	return h
}

// AcceptHook registers a hook.
func (h *HookableBase) AcceptHook(hook Hook) {
	h.Hooks = append(h.Hooks, hook)
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.Hooks)
}

// InvokeHook triggers the registered hooks.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.Hooks {
		hook.Func(ctx)
	}
}
