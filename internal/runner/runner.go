// Package runner executes the rules of a build.Book on the local machine.
//
// Rules run concurrently once the rules producing their prerequisites have
// finished. A rule is skipped when every target is newer than every
// prerequisite, including the postrequisites its recipe reported on the
// previous run, which are kept as dependency files under
// <build>/.llbuild/deps, and when the rule's signature matches the digest
// recorded under <build>/.llbuild/sig.
package runner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/goplus/llbuild/pkgs/build"
	"github.com/goplus/llbuild/pkgs/depfile"
	"github.com/qiniu/x/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// StateDir is the directory under the build root holding executor state.
const StateDir = ".llbuild"

// EventKind says what happened to a rule.
type EventKind int

const (
	Started EventKind = iota
	Finished
	UpToDate
	Failed
	Skipped
)

func (k EventKind) String() string {
	switch k {
	case Started:
		return "started"
	case Finished:
		return "finished"
	case UpToDate:
		return "up to date"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event reports progress on one rule.
type Event struct {
	Kind EventKind
	Desc string
	Err  error // set for Failed
}

// Options configures a Runner.
type Options struct {
	// Jobs bounds the number of recipes running at once. Zero means one
	// per CPU.
	Jobs int
	// KeepGoing keeps running rules that do not depend on a failed one.
	// Configuration errors stop the build regardless.
	KeepGoing bool
	// Spawner runs the processes recipes ask for. Nil means
	// build.ExecSpawner.
	Spawner build.Spawner
	// Log receives what recipes write to RecipeArgs.Log.
	Log io.Writer
	// Report, if set, is called for every rule event. Calls are
	// serialized.
	Report func(Event)
}

// RuleError is the failure of one recipe.
type RuleError struct {
	Desc string
	Err  error
}

func (e *RuleError) Error() string { return e.Desc + ": " + e.Err.Error() }
func (e *RuleError) Unwrap() error { return e.Err }

var errSkipped = errors.New("skipped after an upstream failure")

type node struct {
	rule build.Rule
	desc string
	deps []*node

	done chan struct{}
	ran  bool
	err  error
}

// Runner executes the rules of one book.
type Runner struct {
	book   *build.Book
	opts   Options
	nodes  []*node
	byRule map[build.Rule]*node

	reportMu sync.Mutex
}

// New returns a Runner for book. It fails if the rules depend on each
// other in a cycle.
func New(book *build.Book, opts Options) (*Runner, error) {
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.NumCPU()
	}
	r := &Runner{book: book, opts: opts, byRule: make(map[build.Rule]*node)}
	for _, rule := range book.Rules() {
		n := &node{rule: rule, desc: build.Describe(rule)}
		r.nodes = append(r.nodes, n)
		r.byRule[rule] = n
	}
	for _, n := range r.nodes {
		seen := make(map[*node]bool)
		for _, p := range n.rule.Prereqs() {
			producer, ok := book.Producer(p)
			if !ok {
				continue
			}
			if d := r.byRule[producer]; !seen[d] {
				seen[d] = true
				n.deps = append(n.deps, d)
			}
		}
	}
	if err := r.checkCycles(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runner) checkCycles() error {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[*node]int, len(r.nodes))
	var stack []*node
	var visit func(n *node) error
	visit = func(n *node) error {
		switch state[n] {
		case visiting:
			i := len(stack) - 1
			for stack[i] != n {
				i--
			}
			var names []string
			for _, m := range stack[i:] {
				names = append(names, m.desc)
			}
			names = append(names, n.desc)
			return build.Configf("rules", "dependency cycle: %s", strings.Join(names, " -> "))
		case visited:
			return nil
		}
		state[n] = visiting
		stack = append(stack, n)
		for _, d := range n.deps {
			if err := visit(d); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = visited
		return nil
	}
	for _, n := range r.nodes {
		if err := visit(n); err != nil {
			return err
		}
	}
	return nil
}

// closure returns the nodes needed to produce goals, or every node if
// goals is empty.
func (r *Runner) closure(goals []build.Path) ([]*node, error) {
	if len(goals) == 0 {
		return r.nodes, nil
	}
	need := make(map[*node]bool)
	var mark func(n *node)
	mark = func(n *node) {
		if need[n] {
			return
		}
		need[n] = true
		for _, d := range n.deps {
			mark(d)
		}
	}
	for _, g := range goals {
		rule, ok := r.book.Producer(g)
		if !ok {
			return nil, build.Configf(g.String(), "no rule produces this path")
		}
		mark(r.byRule[rule])
	}
	var out []*node
	for _, n := range r.nodes {
		if need[n] {
			out = append(out, n)
		}
	}
	return out, nil
}

// Len returns the number of rules that Run(goals...) would consider.
func (r *Runner) Len(goals ...build.Path) int {
	nodes, err := r.closure(goals)
	if err != nil {
		return 0
	}
	return len(nodes)
}

// Run brings goals up to date, or every target if goals is empty. Failed
// recipes are returned as *RuleError values joined with errors.Join.
func (r *Runner) Run(ctx context.Context, goals ...build.Path) error {
	nodes, err := r.closure(goals)
	if err != nil {
		return err
	}
	unlock, err := lockBuildDir(filepath.Join(r.book.BuildDir(), StateDir))
	if err != nil {
		return err
	}
	defer unlock()

	for _, n := range nodes {
		n.done = make(chan struct{})
		n.ran = false
		n.err = nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var g errgroup.Group
	sem := semaphore.NewWeighted(int64(r.opts.Jobs))
	log.Debugf("runner: %d rules, %d jobs", len(nodes), r.opts.Jobs)

	for _, n := range nodes {
		n := n
		g.Go(func() error {
			defer close(n.done)
			err := r.runNode(runCtx, sem, n)
			if err != nil && (!r.opts.KeepGoing || errors.Is(err, build.ErrConfig)) {
				cancel()
			}
			return err
		})
	}
	waitErr := g.Wait()

	var failures []error
	for _, n := range nodes {
		var re *RuleError
		if errors.As(n.err, &re) {
			failures = append(failures, re)
		}
	}
	if len(failures) > 0 {
		return errors.Join(failures...)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return waitErr
}

func (r *Runner) runNode(ctx context.Context, sem *semaphore.Weighted, n *node) error {
	for _, d := range n.deps {
		select {
		case <-d.done:
		case <-ctx.Done():
			n.err = ctx.Err()
			return n.err
		}
		if d.err != nil {
			n.err = errSkipped
			r.report(Event{Kind: Skipped, Desc: n.desc})
			return nil
		}
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		n.err = err
		return err
	}
	defer sem.Release(1)

	stale, why, err := r.outdated(n)
	if err != nil {
		return r.fail(n, err)
	}
	if !stale {
		r.report(Event{Kind: UpToDate, Desc: n.desc})
		return nil
	}
	log.Debugf("runner: %s: %s", n.desc, why)

	r.report(Event{Kind: Started, Desc: n.desc})
	args := build.NewRecipeArgs(r.book, r.opts.Spawner, r.opts.Log)
	if err := n.rule.Recipe(ctx, args); err != nil {
		r.discard(n)
		if ctx.Err() != nil {
			// Canceled, not failed: a killed process is not the cause.
			n.err = ctx.Err()
			return n.err
		}
		return r.fail(n, err)
	}
	if err := r.savePostreqs(n, args.Postreqs()); err != nil {
		return r.fail(n, fmt.Errorf("recording dependencies: %w", err))
	}
	if err := r.saveSignature(n); err != nil {
		return r.fail(n, fmt.Errorf("recording signature: %w", err))
	}
	n.ran = true
	r.report(Event{Kind: Finished, Desc: n.desc})
	return nil
}

func (r *Runner) fail(n *node, err error) error {
	n.err = &RuleError{Desc: n.desc, Err: err}
	r.report(Event{Kind: Failed, Desc: n.desc, Err: err})
	return n.err
}

func (r *Runner) report(ev Event) {
	if r.opts.Report == nil {
		return
	}
	r.reportMu.Lock()
	defer r.reportMu.Unlock()
	r.opts.Report(ev)
}

// outdated reports whether n has to run and why.
func (r *Runner) outdated(n *node) (bool, string, error) {
	targets := n.rule.Targets()
	if len(targets) == 0 {
		return true, "rule has no targets", nil
	}
	var oldest time.Time
	for i, t := range targets {
		fi, err := os.Stat(r.book.Abs(t))
		if err != nil {
			return true, t.Rel() + " does not exist", nil
		}
		if i == 0 || fi.ModTime().Before(oldest) {
			oldest = fi.ModTime()
		}
	}
	if sig := build.Signature(n.rule); sig != "" {
		saved, err := os.ReadFile(r.statePath(n, "sig"))
		if err != nil || string(saved) != digest(sig) {
			return true, "rule changed", nil
		}
	}
	for _, d := range n.deps {
		if d.ran {
			return true, d.desc + " was rebuilt", nil
		}
	}
	for _, p := range n.rule.Prereqs() {
		fi, err := os.Stat(r.book.Abs(p))
		if err != nil {
			if _, ok := r.book.Producer(p); ok {
				return true, p.Rel() + " does not exist", nil
			}
			return false, "", build.Configf(n.desc, "prerequisite %s does not exist and no rule produces it", p)
		}
		if fi.ModTime().After(oldest) {
			return true, p.Rel() + " is newer", nil
		}
	}

	postreqs, err := depfile.Read(r.statePath(n, "deps"))
	if err != nil {
		return true, "no recorded dependencies", nil
	}
	for _, p := range postreqs {
		fi, err := os.Stat(p)
		if err != nil {
			return true, p + " is gone", nil
		}
		if fi.ModTime().After(oldest) {
			return true, p + " is newer", nil
		}
	}
	return false, "", nil
}

// statePath returns the file under the state directory kind holding what
// the runner remembers about n. Rules are keyed by their first target.
func (r *Runner) statePath(n *node, kind string) string {
	first := n.rule.Targets()[0]
	name := filepath.FromSlash(first.Rel())
	if kind == "deps" {
		name += ".d"
	}
	return filepath.Join(r.book.BuildDir(), StateDir, kind, name)
}

func digest(sig string) string {
	sum := sha256.Sum256([]byte(sig))
	return hex.EncodeToString(sum[:])
}

func (r *Runner) saveSignature(n *node) error {
	sig := build.Signature(n.rule)
	if sig == "" || len(n.rule.Targets()) == 0 {
		return nil
	}
	file := r.statePath(n, "sig")
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return err
	}
	return os.WriteFile(file, []byte(digest(sig)), 0o644)
}

func (r *Runner) savePostreqs(n *node, postreqs []string) error {
	targets := n.rule.Targets()
	if len(targets) == 0 {
		return nil
	}
	state := r.statePath(n, "deps")
	if err := os.MkdirAll(filepath.Dir(state), 0o755); err != nil {
		return err
	}
	return depfile.Write(state, r.book.Abs(targets[0]), postreqs)
}

// discard removes what a failed recipe may have left behind, so the rule
// runs again next time.
func (r *Runner) discard(n *node) {
	targets := n.rule.Targets()
	for _, t := range targets {
		os.Remove(r.book.Abs(t))
	}
	if len(targets) > 0 {
		os.Remove(r.statePath(n, "deps"))
		os.Remove(r.statePath(n, "sig"))
	}
}

// Clean removes every target of book and the executor state. It returns
// the number of files removed.
func Clean(book *build.Book) (int, error) {
	removed := 0
	for _, rule := range book.Rules() {
		for _, t := range rule.Targets() {
			err := os.Remove(book.Abs(t))
			switch {
			case err == nil:
				removed++
			case !errors.Is(err, os.ErrNotExist):
				return removed, err
			}
		}
	}
	for _, kind := range []string{"deps", "sig"} {
		if err := os.RemoveAll(filepath.Join(book.BuildDir(), StateDir, kind)); err != nil {
			return removed, err
		}
	}
	return removed, nil
}
