package vm

// CallFrame is one entry in the diagnostic call trace: the address of the
// call instruction itself, plus whatever annotation was attached to that
// address at the time of the call.
type CallFrame struct {
	CallSite   Word
	Annotation string
}

// Machine holds the complete, authoritative state of one running program:
// registers and memory are load-bearing; the rest (call trace, annotations,
// breakpoints, mode) is either diagnostic or debugger bookkeeping, per
// spec §3's invariant that "memory and registers form the authoritative
// state; everything else is derivable or diagnostic."
//
// The fields are exported and the controller package writes some of them
// directly (registers, PC, mode); callers outside the controller only see
// deep copies through GetState/SetState.
type Machine struct {
	Registers [NumRegisters]Word
	Memory    [MemSize]Word
	Stack     []Word
	PC        Word
	Halted    bool

	// Input is the pending-bytes queue fed by the `input` command.
	Input []byte

	Annotations map[Word]string
	Breakpoints map[Word]struct{}
	CallTrace   []CallFrame

	Mode        Mode
	RunToTarget Word

	// LastErr is set by the controller when a decode or runtime error halts
	// the machine, and also records evaluate-command errors and terminal
	// write failures, which do not halt it.
	LastErr error

	// pendingOutput buffers bytes written by `out` until the controller
	// drains them via TakeOutput and forwards them to the boundary.Terminal.
	pendingOutput []byte
}

// NewMachine creates a freshly reset Machine, loading image as the initial
// contents of program memory. Addresses past the end of image read as zero,
// per spec §3/§6. Registers, stack, and PC are reset to their zero values —
// the point at which "registers, stack, and PC are reset" in the lifecycle
// described in spec §3.
func NewMachine(image []byte) *Machine {
	m := &Machine{
		Annotations: make(map[Word]string),
		Breakpoints: make(map[Word]struct{}),
		Mode:        ModeStep,
	}
	m.loadImage(image)
	return m
}

func (m *Machine) loadImage(image []byte) {
	n := len(image) / 2
	if n > MemSize {
		n = MemSize
	}
	for i := 0; i < n; i++ {
		m.Memory[i] = readWordFromBytes(image[i*2 : i*2+2])
	}
	// Any remaining words (including a dangling odd trailing byte) stay zero,
	// which is already the zero value of the array.
}

// ReadWord returns the word stored at addr.
func (m *Machine) ReadWord(addr Word) Word {
	return m.Memory[addr]
}

// WriteWord overwrites the word at addr in place; the backing array never
// reallocates, per the §9 design note preferring a flat fixed-size array
// over byte-slice index arithmetic.
func (m *Machine) WriteWord(addr, value Word) {
	m.Memory[addr] = value
}

// PushStack pushes v onto the data stack.
func (m *Machine) PushStack(v Word) {
	m.Stack = append(m.Stack, v)
}

// PopStack removes and returns the top of the data stack.
func (m *Machine) PopStack() (Word, error) {
	if len(m.Stack) == 0 {
		return 0, ErrStackUnderflow
	}
	top := len(m.Stack) - 1
	v := m.Stack[top]
	m.Stack = m.Stack[:top]
	return v, nil
}

// PushCallTrace records a call site for diagnostic backtraces.
func (m *Machine) PushCallTrace(callSite Word) {
	m.CallTrace = append(m.CallTrace, CallFrame{
		CallSite:   callSite,
		Annotation: m.Annotations[callSite],
	})
}

// PopCallTrace removes the most recent call-trace entry, if any. Programs
// may pop/push the data stack manually without going through call/ret, so
// the call trace is allowed to be empty here even when ret succeeds against
// the real data stack — this is diagnostic-only drift, not an error.
func (m *Machine) PopCallTrace() (CallFrame, bool) {
	if len(m.CallTrace) == 0 {
		return CallFrame{}, false
	}
	top := len(m.CallTrace) - 1
	f := m.CallTrace[top]
	m.CallTrace = m.CallTrace[:top]
	return f, true
}

// EnqueueInput appends text plus a trailing newline to the pending input
// queue, per spec §4.4's `input(str)` command.
func (m *Machine) EnqueueInput(text string) {
	m.Input = append(m.Input, []byte(text)...)
	m.Input = append(m.Input, '\n')
}

// DequeueInput removes and returns the next pending input byte.
func (m *Machine) DequeueInput() (byte, bool) {
	if len(m.Input) == 0 {
		return 0, false
	}
	b := m.Input[0]
	m.Input = m.Input[1:]
	return b, true
}

// Annotate attaches a free-form note to addr, overwriting any existing one.
func (m *Machine) Annotate(addr Word, text string) {
	m.Annotations[addr] = text
}

// AddBreakpoint marks addr as a pause point.
func (m *Machine) AddBreakpoint(addr Word) {
	m.Breakpoints[addr] = struct{}{}
}

// ClearBreakpoint removes a single breakpoint.
func (m *Machine) ClearBreakpoint(addr Word) {
	delete(m.Breakpoints, addr)
}

// ClearAllBreakpoints removes every breakpoint.
func (m *Machine) ClearAllBreakpoints() {
	m.Breakpoints = make(map[Word]struct{})
}

// HasBreakpoint reports whether addr is currently a breakpoint. A
// breakpoint is a one-shot *pause*, not a one-shot *remove* — callers must
// not clear it themselves after triggering, per spec §4.4.
func (m *Machine) HasBreakpoint(addr Word) bool {
	_, ok := m.Breakpoints[addr]
	return ok
}

// Snapshot is a deep copy of everything in Machine, used by GetState/SetState
// (and, transitively, save/load) so that callers never alias the live
// machine's backing arrays/maps/slices.
type Snapshot struct {
	Registers   [NumRegisters]Word
	Memory      [MemSize]Word
	Stack       []Word
	PC          Word
	Halted      bool
	Input       []byte
	Annotations map[Word]string
	Breakpoints map[Word]struct{}
	CallTrace   []CallFrame
	Mode        Mode
	RunToTarget Word
}

// GetState returns a deep copy of the machine's full state.
func (m *Machine) GetState() Snapshot {
	s := Snapshot{
		Registers:   m.Registers,
		Memory:      m.Memory,
		PC:          m.PC,
		Halted:      m.Halted,
		Mode:        m.Mode,
		RunToTarget: m.RunToTarget,
	}
	s.Stack = append([]Word(nil), m.Stack...)
	s.Input = append([]byte(nil), m.Input...)
	s.CallTrace = append([]CallFrame(nil), m.CallTrace...)
	s.Annotations = make(map[Word]string, len(m.Annotations))
	for k, v := range m.Annotations {
		s.Annotations[k] = v
	}
	s.Breakpoints = make(map[Word]struct{}, len(m.Breakpoints))
	for k := range m.Breakpoints {
		s.Breakpoints[k] = struct{}{}
	}
	return s
}

// SetState replaces the whole machine state wholesale — the single setter
// used by `load` and by tests, per spec §4.2. Callers that want load's
// "forces mode=Step" behavior must override s.Mode before or after calling
// this; SetState itself is a faithful, unconditional replacement.
func (m *Machine) SetState(s Snapshot) {
	m.Registers = s.Registers
	m.Memory = s.Memory
	m.PC = s.PC
	m.Halted = s.Halted
	m.Mode = s.Mode
	m.RunToTarget = s.RunToTarget
	m.Stack = append([]Word(nil), s.Stack...)
	m.Input = append([]byte(nil), s.Input...)
	m.CallTrace = append([]CallFrame(nil), s.CallTrace...)
	m.Annotations = make(map[Word]string, len(s.Annotations))
	for k, v := range s.Annotations {
		m.Annotations[k] = v
	}
	m.Breakpoints = make(map[Word]struct{}, len(s.Breakpoints))
	for k := range s.Breakpoints {
		m.Breakpoints[k] = struct{}{}
	}
	m.LastErr = nil
}
