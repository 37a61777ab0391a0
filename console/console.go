// Package console is the interactive front end: a liner-backed REPL that
// translates abbreviated commands into controller.Controller calls, modeled
// on the teacher pack's rcornwell-S370 command/reader and command/parser
// packages rather than anything in the chosen teacher repo itself, which
// has no interactive debugger front end of its own.
package console

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/peterh/liner"

	"synacorvm/controller"
)

// fileSystem is the narrow slice of os's file API the load/save commands
// need, kept as an interface so tests can substitute an in-memory fake.
type fileSystem interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
}

type osFileSystem struct{}

func (osFileSystem) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }
func (osFileSystem) WriteFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

// Console drives the interactive REPL against one controller.
type Console struct {
	ctl    *controller.Controller
	fs     fileSystem
	out    io.Writer
	log    *slog.Logger
	prompt string
}

// New builds a Console around ctl, writing prompts and command output to
// out and logging diagnostics to log.
func New(ctl *controller.Controller, out io.Writer, log *slog.Logger) *Console {
	return &Console{
		ctl:    ctl,
		fs:     osFileSystem{},
		out:    out,
		log:    log,
		prompt: "synacor> ",
	}
}

func (con *Console) printf(format string, args ...any) {
	fmt.Fprintf(con.out, format, args...)
}

// Run starts the read-eval-print loop and blocks until the user quits or
// input is exhausted, the way the teacher's ConsoleReader does.
func (con *Console) Run() {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(partial string) []string {
		return completeCmd(partial)
	})

	for {
		text, err := line.Prompt(con.prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return
			}
			con.log.Error("error reading line", "err", err)
			return
		}
		line.AppendHistory(text)

		quit, err := con.dispatch(text)
		if err != nil {
			con.printf("error: %s\n", err)
		}
		if quit {
			return
		}
	}
}

func (con *Console) dispatch(text string) (bool, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false, nil
	}
	c, err := lookupCommand(fields[0])
	if err != nil {
		return false, err
	}
	return c.process(con, fields[1:])
}
