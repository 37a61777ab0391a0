package boundary

import "errors"

// ErrTerminalBusy is returned by ChannelTerminal.Write when the consumer
// goroutine has fallen behind and the output channel is at capacity.
var ErrTerminalBusy = errors.New("terminal output channel is full")
