package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"synacorvm/boundary"
	"synacorvm/console"
	"synacorvm/controller"
	"synacorvm/internal/logger"
	"synacorvm/vm"
)

// breakList collects repeated -break flags into a slice of addresses, the
// way flag.Func lets a single flag name be passed more than once.
type breakList []vm.Word

func (b *breakList) String() string {
	if b == nil {
		return ""
	}
	strs := make([]string, len(*b))
	for i, w := range *b {
		strs[i] = strconv.Itoa(int(w))
	}
	return strings.Join(strs, ",")
}

func (b *breakList) Set(s string) error {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n >= vm.ValueSpace {
		return fmt.Errorf("invalid breakpoint address %q", s)
	}
	*b = append(*b, vm.Word(n))
	return nil
}

func main() {
	var breaks breakList
	debug := flag.Bool("debug", false, "enter the interactive debugger instead of running to completion")
	savePath := flag.String("save", "", "write the final machine state to this path on exit")
	logDebug := flag.Bool("log-debug", false, "mirror every log record to stderr regardless of level")
	flag.Var(&breaks, "break", "address to set a breakpoint at before running (repeatable)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: synacor [-debug] [-break addr]... [-save path] <program.bin>")
		os.Exit(2)
	}

	log := logger.New(os.Stderr, *logDebug)

	image, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Error("failed to read program", "err", err)
		os.Exit(1)
	}

	m := vm.NewMachine(image)
	for _, addr := range breaks {
		m.AddBreakpoint(addr)
	}
	if *debug {
		m.Mode = vm.ModeStep
	} else {
		m.Mode = vm.ModeRun
	}

	term := boundary.NewDirectTerminal(os.Stdout)
	ctl := controller.New(m, term)
	defer ctl.Shutdown()

	if *debug {
		con := console.New(ctl, os.Stdout, log)
		con.Run()
	} else {
		status := ctl.Continue()
		switch status.Stopped {
		case controller.StopWaitForInput:
			log.Warn("program requested input but none was supplied in run-to-completion mode; halting")
		case controller.StopBreakpoint:
			log.Info("stopped at breakpoint in run-to-completion mode", "pc", status.PC)
		case controller.StopError:
			log.Error("execution aborted", "pc", status.PC, "err", status.Err)
			os.Exit(1)
		}
	}

	if *savePath != "" {
		data, err := ctl.Save()
		if err != nil {
			log.Error("failed to save state", "err", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*savePath, data, 0o644); err != nil {
			log.Error("failed to write save file", "err", err)
			os.Exit(1)
		}
	}
}
