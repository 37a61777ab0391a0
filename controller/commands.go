package controller

import (
	"math"

	"synacorvm/vm"
)

// Status is returned by every command that advances execution, describing
// why the machine stopped running.
type Status struct {
	PC        vm.Word
	Mode      vm.Mode
	Halted    bool
	Stopped   StopReason
	Err       error
	LastInstr string
}

// StopReason names why a run of instructions paused.
type StopReason uint8

const (
	// StopStep means exactly the requested number of instructions ran.
	StopStep StopReason = iota
	// StopBreakpoint means execution paused before dispatching an
	// instruction at a breakpoint address.
	StopBreakpoint
	// StopHalt means the program executed `halt` or `ret` against an empty
	// stack, or an earlier error halted the machine.
	StopHalt
	// StopWaitForInput means an `in` instruction found no buffered input.
	StopWaitForInput
	// StopError means a runtime or decode error aborted execution.
	StopError
	// StopReturn means the tracked call frame returned (used by Next/Up).
	StopReturn
	// StopInterrupted means a bare Break() command paused an in-flight
	// Continue/RunTo/Next/Up/Ret before it reached a natural stopping point.
	StopInterrupted
)

func (c *Controller) status(reason StopReason, err error, lastInstr string) Status {
	return Status{
		PC:        c.machine.PC,
		Mode:      c.machine.Mode,
		Halted:    c.machine.Halted,
		Stopped:   reason,
		Err:       err,
		LastInstr: lastInstr,
	}
}

// stepOnce decodes and evaluates exactly one instruction, flushing any
// output it produced. A decode or runtime error is recorded in LastErr and
// halts the machine. It never checks breakpoints — callers decide whether
// a breakpoint check happens before dispatch.
func (c *Controller) stepOnce() (vm.ScheduleHint, vm.Instruction, error) {
	instr, err := c.machine.Decode(c.machine.PC)
	if err != nil {
		c.machine.LastErr = err
		c.machine.Halted = true
		return vm.Idle, instr, err
	}
	hint, err := c.machine.Evaluate(instr)
	c.flushOutput()
	if err != nil {
		c.machine.LastErr = err
		c.machine.Halted = true
	}
	return hint, instr, err
}

// Step executes exactly one instruction, regardless of breakpoints.
func (c *Controller) Step() Status {
	return submit(c, func(c *Controller) Status {
		if c.machine.Halted {
			return c.status(StopHalt, nil, "")
		}
		hint, instr, err := c.stepOnce()
		c.machine.Mode = vm.ModeStep
		return c.finishSingle(hint, instr, err)
	})
}

func (c *Controller) finishSingle(hint vm.ScheduleHint, instr vm.Instruction, err error) Status {
	if err != nil {
		return c.status(StopError, err, instr.String())
	}
	if hint == vm.WaitForInput {
		return c.status(StopWaitForInput, nil, instr.String())
	}
	if c.machine.Halted {
		return c.status(StopHalt, nil, instr.String())
	}
	return c.status(StopStep, nil, instr.String())
}

// Next steps over a `call` at the current PC (running until the matching
// `ret` returns control to the following instruction) and behaves exactly
// like Step otherwise.
func (c *Controller) Next() Status {
	return submit(c, func(c *Controller) Status {
		if c.machine.Halted {
			return c.status(StopHalt, nil, "")
		}
		instr, err := c.machine.Decode(c.machine.PC)
		if err != nil {
			c.machine.LastErr = err
			return c.status(StopError, err, "")
		}
		if instr.Op != vm.Call {
			hint, instr, err := c.stepOnce()
			c.machine.Mode = vm.ModeStep
			return c.finishSingle(hint, instr, err)
		}
		targetDepth := len(c.machine.CallTrace)
		return c.runUntilReturn(targetDepth)
	})
}

// Up runs until the current call frame returns to its caller.
func (c *Controller) Up() Status {
	return submit(c, func(c *Controller) Status {
		if c.machine.Halted || len(c.machine.CallTrace) == 0 {
			return c.status(StopHalt, nil, "")
		}
		targetDepth := len(c.machine.CallTrace) - 1
		return c.runUntilReturn(targetDepth)
	})
}

// Ret runs until the very next `ret` instruction executes, at whatever
// call depth, then stops.
func (c *Controller) Ret() Status {
	return submit(c, func(c *Controller) Status {
		if c.machine.Halted {
			return c.status(StopHalt, nil, "")
		}
		c.machine.Mode = vm.ModeRet
		// Any call-trace depth satisfies the stop test, so the first ret
		// executed ends the run.
		return c.runUntilReturn(math.MaxInt)
	})
}

// runUntilReturn executes instructions until the call trace depth drops to
// or below targetDepth, or a breakpoint/halt/wait/error interrupts it.
func (c *Controller) runUntilReturn(targetDepth int) Status {
	c.interrupted = false
	for {
		if c.checkInterrupt() {
			return c.status(StopInterrupted, nil, "")
		}
		if c.breakpointHit() {
			return c.status(StopBreakpoint, nil, "")
		}
		hint, instr, err := c.stepOnce()
		if err != nil {
			return c.status(StopError, err, instr.String())
		}
		if hint == vm.WaitForInput {
			return c.status(StopWaitForInput, nil, instr.String())
		}
		if c.machine.Halted {
			return c.status(StopHalt, nil, instr.String())
		}
		if instr.Op == vm.Ret && len(c.machine.CallTrace) <= targetDepth {
			c.machine.Mode = vm.ModeStep
			return c.status(StopReturn, nil, instr.String())
		}
	}
}

// breakpointHit reports whether the current PC is a non-removing pause
// point. Checked before dispatch, never after — a breakpoint always stops
// the run before its instruction executes.
func (c *Controller) breakpointHit() bool {
	return c.machine.HasBreakpoint(c.machine.PC)
}

// Continue runs continuously until halt, a breakpoint, input starvation, or
// an error.
func (c *Controller) Continue() Status {
	return submit(c, func(c *Controller) Status {
		if c.machine.Halted {
			return c.status(StopHalt, nil, "")
		}
		c.machine.Mode = vm.ModeRun
		c.interrupted = false
		first := true
		for {
			if c.checkInterrupt() {
				return c.status(StopInterrupted, nil, "")
			}
			if !first && c.breakpointHit() {
				return c.status(StopBreakpoint, nil, "")
			}
			first = false
			hint, instr, err := c.stepOnce()
			if err != nil {
				return c.status(StopError, err, instr.String())
			}
			if hint == vm.WaitForInput {
				return c.status(StopWaitForInput, nil, instr.String())
			}
			if c.machine.Halted {
				return c.status(StopHalt, nil, instr.String())
			}
		}
	})
}

// RunTo runs until target is reached (checked before dispatching the
// instruction there), or a breakpoint/halt/wait/error interrupts it first.
func (c *Controller) RunTo(target vm.Word) Status {
	return submit(c, func(c *Controller) Status {
		if c.machine.Halted {
			return c.status(StopHalt, nil, "")
		}
		c.machine.Mode = vm.ModeRunTo
		c.machine.RunToTarget = target
		c.interrupted = false
		for {
			if c.machine.PC == target {
				c.machine.Mode = vm.ModeStep
				return c.status(StopStep, nil, "")
			}
			if c.checkInterrupt() {
				return c.status(StopInterrupted, nil, "")
			}
			if c.breakpointHit() {
				return c.status(StopBreakpoint, nil, "")
			}
			hint, instr, err := c.stepOnce()
			if err != nil {
				return c.status(StopError, err, instr.String())
			}
			if hint == vm.WaitForInput {
				return c.status(StopWaitForInput, nil, instr.String())
			}
			if c.machine.Halted {
				return c.status(StopHalt, nil, instr.String())
			}
		}
	})
}

// AddBreak, ClearBreak, Peek, Poke, SetRegister, Annotate, and Input are the
// direct state-inspection/mutation commands the console issues outside of
// any execution mode.

// Break pauses an in-flight Continue/RunTo/Next/Up/Ret at its next checked
// iteration. It is a no-op if nothing is currently running. Unlike the other
// commands it must not wait behind a tight run loop, so it shares the plain
// submit path: the loop's own checkInterrupt call is what drains it without
// blocking on c.cmds.
func (c *Controller) Break() {
	submit(c, func(c *Controller) struct{} {
		c.interrupted = true
		return struct{}{}
	})
}

func (c *Controller) AddBreak(addr vm.Word) {
	submit(c, func(c *Controller) struct{} {
		c.machine.AddBreakpoint(addr)
		return struct{}{}
	})
}

func (c *Controller) ClearBreak(addr vm.Word) {
	submit(c, func(c *Controller) struct{} {
		c.machine.ClearBreakpoint(addr)
		return struct{}{}
	})
}

// Evaluate runs instr's side effects against the machine without moving PC —
// useful for patching experiments (poking a register or memory cell through
// the same dispatch path the interpreter uses, without disturbing the
// program's control flow). vm.Machine.Evaluate always advances PC as part of
// dispatch, so PC is saved and restored around the call.
func (c *Controller) Evaluate(instr vm.Instruction) (vm.ScheduleHint, error) {
	return submit(c, func(c *Controller) evalResult {
		savedPC := c.machine.PC
		hint, err := c.machine.Evaluate(instr)
		c.machine.PC = savedPC
		c.flushOutput()
		if err != nil {
			c.machine.LastErr = err
		}
		return evalResult{hint, err}
	}).unpack()
}

type evalResult struct {
	hint vm.ScheduleHint
	err  error
}

func (r evalResult) unpack() (vm.ScheduleHint, error) { return r.hint, r.err }

// Peek returns the value stored at addr together with any annotation text
// attached to that address.
func (c *Controller) Peek(addr vm.Word) (vm.Word, string) {
	return submit(c, func(c *Controller) peekResult {
		return peekResult{c.machine.ReadWord(addr), c.machine.Annotations[addr]}
	}).unpack()
}

type peekResult struct {
	value      vm.Word
	annotation string
}

func (r peekResult) unpack() (vm.Word, string) { return r.value, r.annotation }

func (c *Controller) Poke(addr, value vm.Word) {
	submit(c, func(c *Controller) struct{} {
		c.machine.WriteWord(addr, value)
		return struct{}{}
	})
}

func (c *Controller) SetRegister(idx uint8, value vm.Word) {
	submit(c, func(c *Controller) struct{} {
		c.machine.Registers[idx] = value
		return struct{}{}
	})
}

func (c *Controller) Annotate(addr vm.Word, text string) {
	submit(c, func(c *Controller) struct{} {
		c.machine.Annotate(addr, text)
		return struct{}{}
	})
}

func (c *Controller) Input(text string) {
	submit(c, func(c *Controller) struct{} {
		c.machine.EnqueueInput(text)
		return struct{}{}
	})
}

// Disassemble renders a listing starting at addr.
func (c *Controller) Disassemble(addr vm.Word, count int) string {
	return submit(c, func(c *Controller) string {
		return c.machine.Disassemble(addr, count)
	})
}

// Backtrace returns a deep copy of the machine's call trace, most recent
// frame last.
func (c *Controller) Backtrace() []vm.CallFrame {
	return submit(c, func(c *Controller) []vm.CallFrame {
		return append([]vm.CallFrame(nil), c.machine.CallTrace...)
	})
}

// GetState returns a deep-copy snapshot of the whole machine.
func (c *Controller) GetState() vm.Snapshot {
	// The snapshot travels by pointer: its memory array is too large to be
	// a channel element.
	return *submit(c, func(c *Controller) *vm.Snapshot {
		s := c.machine.GetState()
		return &s
	})
}

// SetState replaces the whole machine state wholesale.
func (c *Controller) SetState(s vm.Snapshot) {
	submit(c, func(c *Controller) struct{} {
		c.machine.SetState(s)
		return struct{}{}
	})
}

// Save serializes the current machine state.
func (c *Controller) Save() ([]byte, error) {
	return submit(c, func(c *Controller) saveResult {
		data, err := vm.Save(c.machine)
		return saveResult{data, err}
	}).unpack()
}

type saveResult struct {
	data []byte
	err  error
}

func (r saveResult) unpack() ([]byte, error) { return r.data, r.err }

// Load replaces the machine's state with a previously saved image. Mode is
// forced to ModeStep by vm.Load itself.
func (c *Controller) Load(data []byte) error {
	return submit(c, func(c *Controller) error {
		m, err := vm.Load(data)
		if err != nil {
			return err
		}
		c.machine.SetState(m.GetState())
		return nil
	})
}
