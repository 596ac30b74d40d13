package build

import (
	"context"
	"fmt"
	"path/filepath"
)

// Rule describes one build action.
type Rule interface {
	// Prereqs returns the paths the recipe reads.
	Prereqs() []Path
	// Targets returns the paths the recipe writes.
	Targets() []Path
	// Recipe produces the targets. A non-nil error means none of the
	// targets may be treated as build products.
	Recipe(ctx context.Context, args *RecipeArgs) error
}

// Describer is implemented by rules that have a short human readable
// description, such as "CC src/hello.c".
type Describer interface {
	Describe() string
}

// Signer is implemented by rules whose targets depend on more than the
// contents of their prerequisites, such as a command line or generated
// text. The executor reruns a rule whose signature differs from the one
// it last ran with.
type Signer interface {
	Signature() string
}

// Signature returns the signature of r, or "" if r is not a Signer.
func Signature(r Rule) string {
	if s, ok := r.(Signer); ok {
		return s.Signature()
	}
	return ""
}

// Describe returns a description of r.
func Describe(r Rule) string {
	if d, ok := r.(Describer); ok {
		return d.Describe()
	}
	if ts := r.Targets(); len(ts) > 0 {
		return ts[0].String()
	}
	return fmt.Sprintf("%T", r)
}

// Book collects the rules of one build session.
type Book struct {
	srcDir   string
	buildDir string

	rules    []Rule
	producer map[Path]Rule
}

// NewBook returns an empty Book for the given source and build directories.
func NewBook(srcDir, buildDir string) *Book {
	return &Book{
		srcDir:   filepath.Clean(srcDir),
		buildDir: filepath.Clean(buildDir),
		producer: make(map[Path]Rule),
	}
}

func (b *Book) SrcDir() string   { return b.srcDir }
func (b *Book) BuildDir() string { return b.buildDir }

// Add registers r. Every target may be produced by at most one rule.
func (b *Book) Add(r Rule) error {
	targets := r.Targets()
	for _, t := range targets {
		if !t.IsBuild() {
			return Configf(Describe(r), "target %s is not in the build tree", t)
		}
		if other, ok := b.producer[t]; ok {
			return Configf(t.String(), "produced by both %q and %q", Describe(other), Describe(r))
		}
	}
	for _, t := range targets {
		b.producer[t] = r
	}
	b.rules = append(b.rules, r)
	return nil
}

// Rules returns the registered rules in registration order.
func (b *Book) Rules() []Rule {
	return b.rules
}

// Producer returns the rule that produces p.
func (b *Book) Producer(p Path) (Rule, bool) {
	r, ok := b.producer[p]
	return r, ok
}

// Abs returns the absolute file system path of p.
func (b *Book) Abs(p Path) string {
	root := b.srcDir
	if p.IsBuild() {
		root = b.buildDir
	}
	return filepath.Join(root, filepath.FromSlash(p.rel))
}

// AbsAll is like Abs for multiple paths.
func (b *Book) AbsAll(ps ...Path) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = b.Abs(p)
	}
	return out
}
