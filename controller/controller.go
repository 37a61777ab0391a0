// Package controller owns the single goroutine that is allowed to mutate a
// *vm.Machine. Every other goroutine (the console REPL, a future network
// front end, tests) talks to it through Controller's methods, never through the machine
// directly — the same single-owner discipline the teacher applies to
// hardware devices in vm/devices.go, repurposed here for debugger state
// instead of CPU-to-device traffic.
package controller

import (
	"synacorvm/boundary"
	"synacorvm/vm"
)

// Controller serializes all access to one Machine through a command queue
// processed by a single goroutine.
type Controller struct {
	machine     *vm.Machine
	terminal    boundary.Terminal
	cmds        chan command
	done        chan struct{}
	interrupted bool
}

// New starts a Controller's command loop in its own goroutine and returns
// immediately. Callers interact with it exclusively via the exported
// Controller methods in commands.go.
func New(m *vm.Machine, term boundary.Terminal) *Controller {
	c := &Controller{
		machine:  m,
		terminal: term,
		cmds:     make(chan command, 16),
		done:     make(chan struct{}),
	}
	go c.loop()
	return c
}

// Shutdown stops the command loop. Pending commands already queued are
// still processed before it exits.
func (c *Controller) Shutdown() {
	close(c.cmds)
	<-c.done
}

func (c *Controller) loop() {
	defer close(c.done)
	for cmd := range c.cmds {
		cmd.run(c)
	}
}

// submit enqueues cmd and blocks until it has been processed, returning
// whatever the command produced.
func submit[T any](c *Controller, run func(*Controller) T) T {
	reply := make(chan T, 1)
	c.cmds <- command{run: func(c *Controller) {
		reply <- run(c)
	}}
	return <-reply
}

// command is the queue element: a closure that runs on the owning goroutine
// and always completes by sending to its caller's reply channel, mirroring
// the teacher's Request/Response shape from vm/devices.go without needing a
// parallel struct per request kind.
type command struct {
	run func(*Controller)
}

// drainPending services at most one already-queued command without
// blocking, so a run loop (Continue/RunTo/runUntilReturn) stays responsive
// to Break and Shutdown instead of only checking between whole runs. It is
// called from inside the run loop's own goroutine — the same one the
// top-level loop() would otherwise be using to read c.cmds — so it is safe
// to read c.cmds directly here. Reports whether the caller should stop.
func (c *Controller) drainPending() (stop bool) {
	select {
	case cmd, ok := <-c.cmds:
		if !ok {
			return true
		}
		cmd.run(c)
	default:
	}
	return c.interrupted
}

// checkInterrupt is called once per iteration of a run loop. It services any
// already-queued command (a Peek, a Break, ...) and reports whether the run
// should stop now, clearing the interrupted flag so it does not bleed into
// the next run.
func (c *Controller) checkInterrupt() bool {
	if c.drainPending() {
		c.interrupted = false
		return true
	}
	return false
}

// flushOutput drains the machine's pending output and forwards it to the
// terminal boundary. Any write failure is attached to the machine as a
// diagnostic but does not stop execution — a full console channel should
// not wedge the interpreter.
func (c *Controller) flushOutput() {
	out := c.machine.TakeOutput()
	if len(out) == 0 {
		return
	}
	if err := c.terminal.Write(out); err != nil {
		c.machine.LastErr = &vm.IOError{Op: "terminal-write", Err: err}
	}
}
