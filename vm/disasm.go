package vm

import (
	"fmt"
	"strings"
)

// line is one rendered row of a disassembly listing, addressed at Addr,
// with an optional annotation to print after it.
type line struct {
	Addr       Word
	Text       string
	Annotation string
}

func (l line) render() string {
	s := fmt.Sprintf("[%05d]  %s", l.Addr, l.Text)
	if l.Annotation != "" {
		s += "\t\t\t\t# " + l.Annotation
	}
	return s
}

// isPrintableOutByte reports whether an `out` instruction with a literal
// operand collapses into a literal-byte run: any printable byte except
// newline, which gets its own synthetic entry per spec §4.1.
func isPrintableOutByte(b byte) bool {
	return b != '\n' && b >= 0x20 && b < 0x7F
}

// Disassemble walks memory from start for count instructions (or to the end
// of memory if count <= 0) and renders one line per instruction, collapsing
// consecutive literal-byte `out` instructions into a single
// "out_literal_run(...)" entry and a literal newline `out` into
// "out_newline", per spec §4.1/§6.
func (m *Machine) Disassemble(start Word, count int) string {
	var b strings.Builder

	addr := start
	emitted := 0
	var runBytes []byte
	runStart := Word(0)

	flushRun := func() {
		if len(runBytes) == 0 {
			return
		}
		b.WriteString(line{
			Addr: runStart,
			Text: fmt.Sprintf("out_literal_run(%q)", string(runBytes)),
		}.render())
		b.WriteByte('\n')
		runBytes = nil
	}

	for {
		if count > 0 && emitted >= count {
			break
		}
		if int(addr) >= MemSize {
			break
		}

		instr, err := m.Decode(addr)
		if err != nil {
			flushRun()
			b.WriteString(line{Addr: addr, Text: renderDecodeError(err)}.render())
			b.WriteByte('\n')
			addr++
			emitted++
			continue
		}

		if instr.Op == Out && !instr.Operands[0].IsRegister() {
			raw := instr.Operands[0].Literal
			if raw == '\n' {
				flushRun()
				b.WriteString(line{Addr: addr, Text: "out_newline", Annotation: m.Annotations[addr]}.render())
				b.WriteByte('\n')
				addr += instr.Len()
				emitted++
				continue
			}
			if raw <= 0xFF && isPrintableOutByte(byte(raw)) {
				if len(runBytes) == 0 {
					runStart = addr
				}
				runBytes = append(runBytes, byte(raw))
				addr += instr.Len()
				emitted++
				continue
			}
		}

		flushRun()
		b.WriteString(line{Addr: addr, Text: instr.String(), Annotation: m.Annotations[addr]}.render())
		b.WriteByte('\n')
		addr += instr.Len()
		emitted++
	}
	flushRun()

	return b.String()
}

func renderDecodeError(err error) string {
	switch e := err.(type) {
	case *UnknownOpcodeError:
		return fmt.Sprintf("unknown(%d)", e.Word)
	case *MalformedOperandError:
		return fmt.Sprintf("malformed(%d)", e.Word)
	default:
		return err.Error()
	}
}
