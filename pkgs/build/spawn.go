package build

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/goplus/llbuild/internal/env"
	"github.com/qiniu/x/log"
)

// Cmd describes one external process invocation.
type Cmd struct {
	Name string
	Args []string
	Env  map[string]string // overrides applied on top of the current environment
	Dir  string
}

// Output is what a finished process wrote.
type Output struct {
	Stdout []byte
	Stderr []byte
}

// A Spawner runs external processes. A process that exits with a nonzero
// status is reported as an *ExitError carrying its error stream.
type Spawner interface {
	Spawn(ctx context.Context, cmd Cmd) (Output, error)
}

// ExecSpawner runs processes with os/exec. Each process is started in its
// own process group, which is killed when ctx is done.
type ExecSpawner struct{}

func (ExecSpawner) Spawn(ctx context.Context, c Cmd) (Output, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = env.Merge(os.Environ(), c.Env)
	}
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debugf("spawn: %s %q", c.Name, c.Args)
	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, &ExitError{Name: c.Name, Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return out, err
	}
	return out, nil
}

// RecipeArgs is handed to a rule's recipe by the executor.
type RecipeArgs struct {
	book    *Book
	spawner Spawner

	// Log receives diagnostics the recipe wants surfaced to the user.
	Log io.Writer

	mu       sync.Mutex
	postreqs []string
	seen     map[string]bool
}

// NewRecipeArgs returns the arguments for running one recipe.
func NewRecipeArgs(book *Book, spawner Spawner, logw io.Writer) *RecipeArgs {
	if spawner == nil {
		spawner = ExecSpawner{}
	}
	if logw == nil {
		logw = io.Discard
	}
	return &RecipeArgs{book: book, spawner: spawner, Log: logw}
}

func (a *RecipeArgs) Book() *Book { return a.book }

// Abs returns the absolute path of p.
func (a *RecipeArgs) Abs(p Path) string { return a.book.Abs(p) }

// AbsAll returns the absolute paths of ps.
func (a *RecipeArgs) AbsAll(ps ...Path) []string { return a.book.AbsAll(ps...) }

// Spawn runs cmd. It makes RecipeArgs a Spawner, so helpers that need to
// run tools on behalf of a recipe can be handed the recipe's arguments.
func (a *RecipeArgs) Spawn(ctx context.Context, cmd Cmd) (Output, error) {
	return a.spawner.Spawn(ctx, cmd)
}

// AddPostreq records an absolute path discovered while the recipe ran
// (for instance an included header). The executor treats it as an
// additional prerequisite of the rule from then on. Repeated paths are
// recorded once.
func (a *RecipeArgs) AddPostreq(abs string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.seen[abs] {
		return
	}
	if a.seen == nil {
		a.seen = make(map[string]bool)
	}
	a.seen[abs] = true
	a.postreqs = append(a.postreqs, abs)
}

// Postreqs returns the paths recorded with AddPostreq.
func (a *RecipeArgs) Postreqs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.postreqs...)
}
