package vm

// ScheduleHint tells the controller what to do after Evaluate returns.
type ScheduleHint uint8

const (
	// Continue means dispatch the next instruction immediately.
	Continue ScheduleHint = iota
	// WaitForInput means the current instruction (always `in`) could not
	// complete because the input buffer is empty; the PC was not advanced,
	// so re-dispatching the same instruction after an `input` command
	// arrives will retry it.
	WaitForInput
	// Idle means the machine has halted; nothing further will execute.
	Idle
)

// resolve reads an operand's value: the literal itself, or the named
// register's current contents.
func (m *Machine) resolve(o Operand) Word {
	if o.IsRegister() {
		return m.Registers[o.Register]
	}
	return o.Literal
}

// writeReg stores value into the register named by a destination operand.
// Callers only invoke this for operands that Decode has already verified
// are Register-valued (see requiresRegister), so the bounds are guaranteed.
func (m *Machine) writeReg(dst Operand, value Word) {
	m.Registers[dst.Register] = value
}

// Evaluate executes a single decoded instruction against m, advancing PC
// (or leaving it alone for a suspended `in`) and reporting a ScheduleHint.
// The interpreter never blocks and never re-aligns the PC on its own — it
// trusts the caller's decode and the current PC absolutely, per spec §3/§9
// (self-modifying code means nothing may be cached across instructions).
func (m *Machine) Evaluate(instr Instruction) (ScheduleHint, error) {
	next := m.PC + instr.Len()

	switch instr.Op {
	case Halt:
		m.Halted = true
		m.PC = next
		return Idle, nil

	case Set:
		m.writeReg(instr.Operands[0], m.resolve(instr.Operands[1]))

	case Push:
		m.PushStack(m.resolve(instr.Operands[0]))

	case Pop:
		v, err := m.PopStack()
		if err != nil {
			return Idle, err
		}
		m.writeReg(instr.Operands[0], v)

	case Eq:
		if m.resolve(instr.Operands[1]) == m.resolve(instr.Operands[2]) {
			m.writeReg(instr.Operands[0], 1)
		} else {
			m.writeReg(instr.Operands[0], 0)
		}

	case Gt:
		if m.resolve(instr.Operands[1]) > m.resolve(instr.Operands[2]) {
			m.writeReg(instr.Operands[0], 1)
		} else {
			m.writeReg(instr.Operands[0], 0)
		}

	case Jmp:
		next = m.resolve(instr.Operands[0])

	case Jt:
		if m.resolve(instr.Operands[0]) != 0 {
			next = m.resolve(instr.Operands[1])
		}

	case Jf:
		if m.resolve(instr.Operands[0]) == 0 {
			next = m.resolve(instr.Operands[1])
		}

	case Add:
		sum := uint32(m.resolve(instr.Operands[1])) + uint32(m.resolve(instr.Operands[2]))
		m.writeReg(instr.Operands[0], mask15(sum))

	case Mult:
		prod := uint32(m.resolve(instr.Operands[1])) * uint32(m.resolve(instr.Operands[2]))
		m.writeReg(instr.Operands[0], mask15(prod))

	case Mod:
		b := m.resolve(instr.Operands[1])
		c := m.resolve(instr.Operands[2])
		if c == 0 {
			return Idle, ErrDivisionByZero
		}
		m.writeReg(instr.Operands[0], b%c)

	case And:
		v := m.resolve(instr.Operands[1]) & m.resolve(instr.Operands[2])
		m.writeReg(instr.Operands[0], v&MaxLiteral)

	case Or:
		v := m.resolve(instr.Operands[1]) | m.resolve(instr.Operands[2])
		m.writeReg(instr.Operands[0], v&MaxLiteral)

	case Not:
		m.writeReg(instr.Operands[0], ^m.resolve(instr.Operands[1])&MaxLiteral)

	case Rmem:
		addr := m.resolve(instr.Operands[1])
		if int(addr) >= MemSize {
			return Idle, &AddressOutOfRangeError{Addr: addr}
		}
		m.writeReg(instr.Operands[0], m.ReadWord(addr))

	case Wmem:
		addr := m.resolve(instr.Operands[0])
		if int(addr) >= MemSize {
			return Idle, &AddressOutOfRangeError{Addr: addr}
		}
		m.WriteWord(addr, m.resolve(instr.Operands[1]))

	case Call:
		m.PushStack(next)
		m.PushCallTrace(m.PC)
		next = m.resolve(instr.Operands[0])

	case Ret:
		addr, err := m.PopStack()
		if err != nil {
			m.Halted = true
			m.PC = next
			return Idle, nil
		}
		m.PopCallTrace()
		next = addr

	case Out:
		m.pendingOutput = append(m.pendingOutput, byte(m.resolve(instr.Operands[0])%256))

	case In:
		b, ok := m.DequeueInput()
		if !ok {
			// Do not advance PC: re-executing the same `in` instruction is
			// how the suspend/resume contract in spec §4.3 is honored.
			return WaitForInput, nil
		}
		m.writeReg(instr.Operands[0], Word(b))

	case Noop:
		// -

	default:
		return Idle, &UnknownOpcodeError{Addr: m.PC, Word: Word(instr.Op)}
	}

	m.PC = next
	return Continue, nil
}

// TakeOutput drains and returns whatever bytes `out` has produced since the
// last call. The interpreter itself never writes to any particular sink —
// that is the boundary package's job (spec §4.5) — it only buffers bytes
// for the controller to forward.
func (m *Machine) TakeOutput() []byte {
	out := m.pendingOutput
	m.pendingOutput = nil
	return out
}
