// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/codegangsta/cli"
	shlex "github.com/flynn-archive/go-shlex"
	"github.com/peterh/liner"

	log "github.com/golang/glog"
	"golang.org/x/sys/unix"

	"github.com/jmtorrespalma/psem/internal/core"
	"github.com/jmtorrespalma/psem/internal/tick"
	"github.com/jmtorrespalma/psem/pkg/sem"
)

var usage = `
	semshell is a tool to poke at the named semaphores of its own process.
	It exists to demonstrate and debug the semaphore registry: every command
	runs against an in-process table, so state only survives within one
	shell session.

	You can either issue one command:

		semshell <subcommand> [<flags>...]

	or start a command line interpreter and issue commands interactively:

		semshell shell

	The shell keeps the handles returned by 'open' and closes them on exit,
	so reference counting and deferred unlink can be observed with 'ls'
	between commands.
	`

// semCli drives the semaphore facade from the command line. Handles
// returned by open are kept per name so close can release them one at a
// time, mirroring the open/close pairing of the API.
type semCli struct {
	// Open handles, most recent last. close pops from the back.
	handles map[string][]*sem.Sem
	// the command line framework we'll use to launch commands.
	app *cli.App
	// True if we are running a shell.
	inShell bool
}

// newSemCli creates a new semCli object.
func newSemCli() *semCli {
	s := &semCli{handles: make(map[string][]*sem.Sem)}
	app := cli.NewApp()
	app.Name = "semshell"
	app.Usage = usage

	app.Commands = []cli.Command{
		{
			Name:    "open",
			Aliases: []string{"o"},
			Usage:   "Opens a named semaphore, creating it if requested.",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "create, c",
					Usage: "create the semaphore if it does not exist",
				},
				cli.BoolFlag{
					Name:  "excl, e",
					Usage: "with --create, fail if the name already exists",
				},
				cli.IntFlag{
					Name:  "value, n",
					Usage: "initial value when creating",
				},
			},
			ArgsUsage: "<name>",
			Action:    s.cmdOpen,
		},
		{
			Name:      "close",
			Usage:     "Closes the most recently opened handle for a name.",
			ArgsUsage: "<name>",
			Action:    s.cmdClose,
		},
		{
			Name:      "unlink",
			Aliases:   []string{"rm"},
			Usage:     "Marks a named semaphore for destruction on last close.",
			ArgsUsage: "<name>",
			Action:    s.cmdUnlink,
		},
		{
			Name:      "post",
			Aliases:   []string{"p"},
			Usage:     "Increments a semaphore.",
			ArgsUsage: "<name>",
			Action:    s.cmdPost,
		},
		{
			Name:      "wait",
			Aliases:   []string{"w"},
			Usage:     "Decrements a semaphore, blocking until it is positive.",
			ArgsUsage: "<name>",
			Action:    s.cmdWait,
		},
		{
			Name:      "trywait",
			Usage:     "Decrements a semaphore without blocking.",
			ArgsUsage: "<name>",
			Action:    s.cmdTryWait,
		},
		{
			Name:  "timedwait",
			Usage: "Decrements a semaphore, waiting up to a relative timeout.",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "ms",
					Usage: "timeout in milliseconds from now",
					Value: 1000,
				},
			},
			ArgsUsage: "<name>",
			Action:    s.cmdTimedWait,
		},
		{
			Name:      "value",
			Aliases:   []string{"v"},
			Usage:     "Prints the current count of a semaphore.",
			ArgsUsage: "<name>",
			Action:    s.cmdValue,
		},
		{
			Name:   "ls",
			Usage:  "Lists all registered names and local open handles.",
			Action: s.cmdList,
		},
		{
			Name:   "stats",
			Usage:  "Prints registry transaction metrics.",
			Action: s.cmdStats,
		},
		{
			Name:   "shell",
			Usage:  "Starts a shell for interaction.",
			Action: s.cmdShell,
		},
	}
	s.app = app

	// By default 'HelpName' will be the parent command name('semshell' in
	// our case) + command name. Overwrite 'HelpName' to be command name only.
	for i := range s.app.Commands {
		s.app.Commands[i].HelpName = s.app.Commands[i].Name
	}
	return s
}

// run starts a command specified by users.
func (s *semCli) run(args []string) error {
	return s.app.Run(args)
}

// stop closes every handle the cli still holds.
func (s *semCli) stop() {
	for name, hs := range s.handles {
		for _, h := range hs {
			if err := h.Close(); err != nil {
				log.Errorf("closing %q: %v", name, err)
			}
		}
	}
	s.handles = make(map[string][]*sem.Sem)
}

// arg returns the single name argument of a command, or exits the command.
func arg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one semaphore name")
	}
	return c.Args().First(), nil
}

// handle returns the most recently opened handle for a name.
func (s *semCli) handle(name string) (*sem.Sem, error) {
	hs := s.handles[name]
	if len(hs) == 0 {
		return nil, fmt.Errorf("no open handle for %q, use 'open' first", name)
	}
	return hs[len(hs)-1], nil
}

func (s *semCli) cmdOpen(c *cli.Context) error {
	name, err := arg(c)
	if err != nil {
		return err
	}

	var flags sem.OpenFlag
	if c.Bool("create") {
		flags |= sem.Create
	}
	if c.Bool("excl") {
		flags |= sem.Exclusive
	}

	h, err := sem.Open(name, flags, sem.OpenConfig{InitialValue: c.Int("value")})
	if err != nil {
		return fmt.Errorf("open %q: %v", name, err)
	}
	s.handles[name] = append(s.handles[name], h)
	fmt.Printf("opened %q, value %d, local handles %d\n", name, h.Value(), len(s.handles[name]))
	return nil
}

func (s *semCli) cmdClose(c *cli.Context) error {
	name, err := arg(c)
	if err != nil {
		return err
	}
	hs := s.handles[name]
	if len(hs) == 0 {
		return fmt.Errorf("no open handle for %q", name)
	}
	h := hs[len(hs)-1]
	if err := h.Close(); err != nil {
		return fmt.Errorf("close %q: %v", name, err)
	}
	s.handles[name] = hs[:len(hs)-1]
	fmt.Printf("closed %q, local handles %d\n", name, len(s.handles[name]))
	return nil
}

func (s *semCli) cmdUnlink(c *cli.Context) error {
	name, err := arg(c)
	if err != nil {
		return err
	}
	if err := sem.Unlink(name); err != nil {
		return fmt.Errorf("unlink %q: %v", name, err)
	}
	fmt.Printf("unlinked %q\n", name)
	return nil
}

func (s *semCli) cmdPost(c *cli.Context) error {
	name, err := arg(c)
	if err != nil {
		return err
	}
	h, err := s.handle(name)
	if err != nil {
		return err
	}
	h.Post()
	fmt.Printf("posted %q, value %d\n", name, h.Value())
	return nil
}

func (s *semCli) cmdWait(c *cli.Context) error {
	name, err := arg(c)
	if err != nil {
		return err
	}
	h, err := s.handle(name)
	if err != nil {
		return err
	}
	h.Wait()
	fmt.Printf("acquired %q, value %d\n", name, h.Value())
	return nil
}

func (s *semCli) cmdTryWait(c *cli.Context) error {
	name, err := arg(c)
	if err != nil {
		return err
	}
	h, err := s.handle(name)
	if err != nil {
		return err
	}
	if err := h.TryWait(); err != nil {
		return fmt.Errorf("trywait %q: %v", name, err)
	}
	fmt.Printf("acquired %q, value %d\n", name, h.Value())
	return nil
}

func (s *semCli) cmdTimedWait(c *cli.Context) error {
	name, err := arg(c)
	if err != nil {
		return err
	}
	h, err := s.handle(name)
	if err != nil {
		return err
	}

	// Commands take a relative timeout; the facade wants an absolute
	// deadline on the tick clock.
	nowMs := tick.Monotonic{}.Ticks() * 1000 / core.TickRate
	deadlineMs := nowMs + int64(c.Int("ms"))
	deadline := unix.NsecToTimespec(deadlineMs * int64(time.Millisecond))
	if err := h.TimedWait(deadline); err != nil {
		return fmt.Errorf("timedwait %q: %v", name, err)
	}
	fmt.Printf("acquired %q, value %d\n", name, h.Value())
	return nil
}

func (s *semCli) cmdValue(c *cli.Context) error {
	name, err := arg(c)
	if err != nil {
		return err
	}
	h, err := s.handle(name)
	if err != nil {
		return err
	}
	fmt.Printf("%d\n", h.Value())
	return nil
}

func (s *semCli) cmdList(c *cli.Context) error {
	names := sem.Names()
	if len(names) == 0 {
		fmt.Println("no named semaphores")
		return nil
	}
	for _, name := range names {
		fmt.Printf("%-20q local handles %d\n", name, len(s.handles[name]))
	}
	return nil
}

func (s *semCli) cmdStats(c *cli.Context) error {
	stats := sem.OpStats()
	ops := make([]string, 0, len(stats))
	for op := range stats {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		fmt.Printf("%-8s %s\n", op, stats[op])
	}
	return nil
}

// cmdShell implements the "shell" subcommand.
func (s *semCli) cmdShell(c *cli.Context) error {
	s.inShell = true
	defer func() { s.inShell = false }()

	// Make cli not exit on errors.
	cli.OsExiter = func(int) {}

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	// Add commands auto completion.
	line.SetCompleter(func(l string) (res []string) {
		for _, cmd := range s.app.Commands {
			if strings.HasPrefix(cmd.Name, l) {
				res = append(res, cmd.Name)
			}
		}
		return
	})

	defer line.Close()

	for {
		input, err := line.Prompt("(sem) ")
		if err != nil {
			log.Errorf("error: %v", err)
			return nil
		}

		// We use 'shlex' because we want to split the input line into
		// tokens using shell-style rules for quoting and commenting.
		args, err := shlex.Split(input)
		if err != nil {
			log.Errorf("error: %v", err)
			continue
		}

		// Skip empty line.
		if 0 == len(args) {
			continue
		}

		if args[0] == "exit" {
			return nil
		}

		if err := s.runCommand(c, args...); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		} else {
			// Adds succeeded command to command history.
			line.AppendHistory(input)
		}
	}
}

// runCommand dispatches one tokenized command line through the cli app.
func (s *semCli) runCommand(c *cli.Context, args ...string) error {
	return s.app.Run(append([]string{s.app.Name}, args...))
}
