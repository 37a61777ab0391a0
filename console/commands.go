package console

import (
	"fmt"
	"strconv"
	"strings"

	"synacorvm/controller"
	"synacorvm/vm"
)

// cmd mirrors the teacher's command/parser.cmd: a name, the minimum prefix
// length that still disambiguates it, and the handler. min lets "c" match
// "continue" while "s" matches nothing: it is shorter than the minimum for
// "step", "save" and "set".
type cmd struct {
	name    string
	min     int
	process func(*Console, []string) (bool, error)
}

var cmdList = []cmd{
	{name: "load", min: 1, process: cmdLoad},
	{name: "save", min: 2, process: cmdSave},
	{name: "step", min: 2, process: cmdStep},
	{name: "next", min: 1, process: cmdNext},
	{name: "up", min: 2, process: cmdUp},
	{name: "continue", min: 1, process: cmdContinue},
	{name: "runto", min: 3, process: cmdRunTo},
	{name: "ret", min: 3, process: cmdRet},
	{name: "add_break", min: 2, process: cmdAddBreak},
	{name: "clear_break", min: 2, process: cmdClearBreak},
	{name: "break", min: 2, process: cmdBreak},
	{name: "evaluate", min: 1, process: cmdEvaluate},
	{name: "peek", min: 2, process: cmdPeek},
	{name: "poke", min: 2, process: cmdPoke},
	{name: "set", min: 3, process: cmdSet},
	{name: "annotate", min: 2, process: cmdAnnotate},
	{name: "input", min: 2, process: cmdInput},
	{name: "disasm", min: 2, process: cmdDisasm},
	{name: "backtrace", min: 2, process: cmdBacktrace},
	{name: "quit", min: 1, process: cmdQuit},
}

// matchCommand reports whether word is a valid abbreviation of c.name: it
// must match a literal prefix of c.name at least c.min characters long.
func matchCommand(c cmd, word string) bool {
	if len(word) == 0 || len(word) > len(c.name) || len(word) < c.min {
		return false
	}
	return c.name[:len(word)] == word
}

func lookupCommand(word string) (cmd, error) {
	var matches []cmd
	for _, c := range cmdList {
		if matchCommand(c, word) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return cmd{}, fmt.Errorf("unknown command: %q", word)
	case 1:
		return matches[0], nil
	default:
		return cmd{}, fmt.Errorf("ambiguous command: %q", word)
	}
}

// completeCmd supports liner's tab completion: given a partial line,
// returns every full command name it could still expand to.
func completeCmd(line string) []string {
	fields := strings.Fields(line)
	if len(fields) > 1 || (len(fields) == 1 && strings.HasSuffix(line, " ")) {
		return nil
	}
	prefix := ""
	if len(fields) == 1 {
		prefix = fields[0]
	}
	var out []string
	for _, c := range cmdList {
		if strings.HasPrefix(c.name, prefix) {
			out = append(out, c.name)
		}
	}
	return out
}

func parseWord(s string) (vm.Word, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address/value %q: %w", s, err)
	}
	if n >= vm.ValueSpace {
		return 0, fmt.Errorf("value %d out of range [0,%d]", n, vm.ValueSpace-1)
	}
	return vm.Word(n), nil
}

func parseRegister(s string) (uint8, error) {
	s = strings.TrimPrefix(s, "r")
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil || n >= vm.NumRegisters {
		return 0, fmt.Errorf("invalid register %q", s)
	}
	return uint8(n), nil
}

func reportStatus(s controller.Status) string {
	reason := map[controller.StopReason]string{
		controller.StopStep:         "stepped",
		controller.StopBreakpoint:   "breakpoint",
		controller.StopHalt:         "halted",
		controller.StopWaitForInput: "waiting for input",
		controller.StopError:        "error",
		controller.StopReturn:       "returned",
		controller.StopInterrupted:  "interrupted",
	}[s.Stopped]
	line := fmt.Sprintf("[%05d] %s (mode=%s)", s.PC, reason, s.Mode)
	if s.LastInstr != "" {
		line += " last=" + s.LastInstr
	}
	if s.Err != nil {
		line += " error=" + s.Err.Error()
	}
	return line
}

func cmdLoad(con *Console, args []string) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("usage: load <path>")
	}
	data, err := con.fs.ReadFile(args[0])
	if err != nil {
		return false, err
	}
	if err := con.ctl.Load(data); err != nil {
		return false, err
	}
	con.printf("loaded %s\n", args[0])
	return false, nil
}

func cmdSave(con *Console, args []string) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("usage: save <path>")
	}
	data, err := con.ctl.Save()
	if err != nil {
		return false, err
	}
	if err := con.fs.WriteFile(args[0], data); err != nil {
		return false, err
	}
	con.printf("saved %s\n", args[0])
	return false, nil
}

func cmdStep(con *Console, args []string) (bool, error) {
	n := 1
	if len(args) == 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			return false, fmt.Errorf("usage: step [n]")
		}
		n = v
	}
	var last controller.Status
	for i := 0; i < n; i++ {
		last = con.ctl.Step()
		if last.Stopped != controller.StopStep {
			break
		}
	}
	con.printf("%s\n", reportStatus(last))
	return false, nil
}

func cmdNext(con *Console, _ []string) (bool, error) {
	con.printf("%s\n", reportStatus(con.ctl.Next()))
	return false, nil
}

func cmdUp(con *Console, _ []string) (bool, error) {
	con.printf("%s\n", reportStatus(con.ctl.Up()))
	return false, nil
}

func cmdContinue(con *Console, _ []string) (bool, error) {
	con.printf("%s\n", reportStatus(con.ctl.Continue()))
	return false, nil
}

func cmdRunTo(con *Console, args []string) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("usage: runto <addr>")
	}
	target, err := parseWord(args[0])
	if err != nil {
		return false, err
	}
	con.printf("%s\n", reportStatus(con.ctl.RunTo(target)))
	return false, nil
}

func cmdRet(con *Console, _ []string) (bool, error) {
	con.printf("%s\n", reportStatus(con.ctl.Ret()))
	return false, nil
}

func cmdAddBreak(con *Console, args []string) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("usage: add_break <addr>")
	}
	addr, err := parseWord(args[0])
	if err != nil {
		return false, err
	}
	con.ctl.AddBreak(addr)
	con.printf("breakpoint set at %d\n", addr)
	return false, nil
}

func cmdClearBreak(con *Console, args []string) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("usage: clear_break <addr>")
	}
	addr, err := parseWord(args[0])
	if err != nil {
		return false, err
	}
	con.ctl.ClearBreak(addr)
	con.printf("breakpoint cleared at %d\n", addr)
	return false, nil
}

// cmdBreak is the bare, argument-less interrupt: it sends Controller.Break.
// The console runs one command at a time, so any continue/run-to/next/up/ret
// it started has already returned when this runs, and Break then has no
// effect. It is distinct from cmdAddBreak, which sets a persistent
// breakpoint address.
func cmdBreak(con *Console, _ []string) (bool, error) {
	con.ctl.Break()
	con.printf("break requested\n")
	return false, nil
}

func cmdEvaluate(con *Console, args []string) (bool, error) {
	if len(args) < 1 {
		return false, fmt.Errorf("usage: evaluate <op> [arg]...")
	}
	op, ok := vm.OpcodeByName(strings.ToLower(args[0]))
	if !ok {
		return false, fmt.Errorf("unknown opcode %q", args[0])
	}
	operands := args[1:]
	if len(operands) > 3 {
		return false, fmt.Errorf("too many operands for %s", args[0])
	}
	instr := vm.Instruction{Op: op, NumArgs: len(operands)}
	for i, a := range operands {
		operand, err := parseOperand(a)
		if err != nil {
			return false, err
		}
		instr.Operands[i] = operand
	}
	hint, err := con.ctl.Evaluate(instr)
	if err != nil {
		return false, err
	}
	con.printf("evaluated %s -> hint=%v\n", instr.String(), hint)
	return false, nil
}

// parseOperand parses an evaluate argument as either a register ("r0"-"r7")
// or a literal value.
func parseOperand(s string) (vm.Operand, error) {
	if len(s) > 1 && (s[0] == 'r' || s[0] == 'R') {
		if reg, err := parseRegister(s); err == nil {
			return vm.Operand{Kind: vm.KindRegister, Register: reg}, nil
		}
	}
	w, err := parseWord(s)
	if err != nil {
		return vm.Operand{}, fmt.Errorf("invalid operand %q: %w", s, err)
	}
	return vm.Operand{Kind: vm.KindLiteral, Literal: w}, nil
}

func cmdPeek(con *Console, args []string) (bool, error) {
	if len(args) != 1 {
		return false, fmt.Errorf("usage: peek <addr>")
	}
	addr, err := parseWord(args[0])
	if err != nil {
		return false, err
	}
	value, annotation := con.ctl.Peek(addr)
	if annotation != "" {
		con.printf("[%05d] = %d  # %s\n", addr, value, annotation)
	} else {
		con.printf("[%05d] = %d\n", addr, value)
	}
	return false, nil
}

func cmdPoke(con *Console, args []string) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("usage: poke <addr> <value>")
	}
	addr, err := parseWord(args[0])
	if err != nil {
		return false, err
	}
	value, err := parseWord(args[1])
	if err != nil {
		return false, err
	}
	con.ctl.Poke(addr, value)
	con.printf("[%05d] := %d\n", addr, value)
	return false, nil
}

func cmdSet(con *Console, args []string) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("usage: set <reg> <value>")
	}
	reg, err := parseRegister(args[0])
	if err != nil {
		return false, err
	}
	value, err := parseWord(args[1])
	if err != nil {
		return false, err
	}
	con.ctl.SetRegister(reg, value)
	con.printf("r%d := %d\n", reg, value)
	return false, nil
}

func cmdAnnotate(con *Console, args []string) (bool, error) {
	if len(args) < 2 {
		return false, fmt.Errorf("usage: annotate <addr> <text>")
	}
	addr, err := parseWord(args[0])
	if err != nil {
		return false, err
	}
	con.ctl.Annotate(addr, strings.Join(args[1:], " "))
	return false, nil
}

func cmdInput(con *Console, args []string) (bool, error) {
	con.ctl.Input(strings.Join(args, " "))
	return false, nil
}

func cmdDisasm(con *Console, args []string) (bool, error) {
	start := vm.Word(0)
	count := 20
	if len(args) >= 1 {
		v, err := parseWord(args[0])
		if err != nil {
			return false, err
		}
		start = v
	}
	if len(args) >= 2 {
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 1 {
			return false, fmt.Errorf("invalid count %q", args[1])
		}
		count = v
	}
	con.printf("%s", con.ctl.Disassemble(start, count))
	return false, nil
}

func cmdBacktrace(con *Console, _ []string) (bool, error) {
	frames := con.ctl.Backtrace()
	if len(frames) == 0 {
		con.printf("(empty call trace)\n")
		return false, nil
	}
	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		if f.Annotation != "" {
			con.printf("#%d  [%05d]  %s\n", len(frames)-1-i, f.CallSite, f.Annotation)
		} else {
			con.printf("#%d  [%05d]\n", len(frames)-1-i, f.CallSite)
		}
	}
	return false, nil
}

func cmdQuit(_ *Console, _ []string) (bool, error) {
	return true, nil
}
