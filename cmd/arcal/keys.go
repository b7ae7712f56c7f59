package main

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"golang.org/x/term"

	"go.viam.com/arcal/logging"
	"go.viam.com/arcal/session"
)

const ctrlC = 0x03

var keyBindings = map[byte]session.Command{
	's':   session.CommandAccept,
	'w':   session.CommandSave,
	'r':   session.CommandLoad,
	'e':   session.CommandToggleShape,
	'q':   session.CommandQuit,
	ctrlC: session.CommandQuit,
}

// startKeys reads key presses from r on a background goroutine. When r is a terminal and raw is set, the
// terminal is switched to raw mode so single keys arrive without enter; the returned func restores it.
func startKeys(r io.Reader, raw bool, logger logging.Logger) (<-chan session.Command, func(), error) {
	restore := func() {}
	if f, ok := r.(*os.File); ok && raw && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		state, err := term.MakeRaw(fd)
		if err != nil {
			return nil, nil, errors.Wrap(err, "cannot switch terminal to raw mode")
		}
		restore = func() {
			if err := term.Restore(fd, state); err != nil {
				logger.Warnw("failed to restore terminal", "error", err)
			}
		}
	}
	commands := make(chan session.Command, 16)
	utils.PanicCapturingGo(func() {
		readKeys(r, commands, logger)
	})
	return commands, restore, nil
}

func readKeys(r io.Reader, commands chan<- session.Command, logger logging.Logger) {
	defer close(commands)
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warnw("key input stopped", "error", err)
			}
			return
		}
		if cmd, ok := keyBindings[b]; ok {
			commands <- cmd
		}
	}
}
