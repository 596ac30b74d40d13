// Package buildtest provides a scripted Spawner for testing rules without
// running real toolchains.
package buildtest

import (
	"context"
	"sync"

	"github.com/goplus/llbuild/pkgs/build"
)

// Handler decides the outcome of one spawned command.
type Handler func(cmd build.Cmd) (build.Output, error)

// Spawner records every command and answers it with the first handler
// registered for the command name, or with empty success output.
type Spawner struct {
	mu       sync.Mutex
	handlers map[string]Handler
	cmds     []build.Cmd
}

// NewSpawner returns a Spawner with no handlers.
func NewSpawner() *Spawner {
	return &Spawner{handlers: make(map[string]Handler)}
}

// Handle sets the handler for commands named name.
func (s *Spawner) Handle(name string, h Handler) {
	s.mu.Lock()
	s.handlers[name] = h
	s.mu.Unlock()
}

// Fail makes every command named name exit with code 1 and stderr.
func (s *Spawner) Fail(name, stderr string) {
	s.Handle(name, func(build.Cmd) (build.Output, error) {
		return build.Output{Stderr: []byte(stderr)}, &build.ExitError{Name: name, Code: 1, Stderr: stderr}
	})
}

// Reply makes every command named name succeed with stdout.
func (s *Spawner) Reply(name, stdout string) {
	s.Handle(name, func(build.Cmd) (build.Output, error) {
		return build.Output{Stdout: []byte(stdout)}, nil
	})
}

func (s *Spawner) Spawn(ctx context.Context, cmd build.Cmd) (build.Output, error) {
	s.mu.Lock()
	s.cmds = append(s.cmds, cmd)
	h := s.handlers[cmd.Name]
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return build.Output{}, err
	}
	if h == nil {
		return build.Output{}, nil
	}
	return h(cmd)
}

// Cmds returns the commands spawned so far.
func (s *Spawner) Cmds() []build.Cmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]build.Cmd(nil), s.cmds...)
}

// Named returns the commands named name spawned so far.
func (s *Spawner) Named(name string) []build.Cmd {
	var out []build.Cmd
	for _, c := range s.Cmds() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
