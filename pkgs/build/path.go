// Package build defines the rule model shared by the toolchain adapters and
// the build-graph executor that runs them.
//
// A rule declares the paths it reads (prerequisites) and the paths it
// writes (targets), and a recipe that produces the targets. Paths are
// rooted either in the source tree or in the build output tree, so rules
// never need to know where either lives on disk until the recipe runs.
package build

import (
	"path"
	"path/filepath"
	"strings"
)

// Root identifies the tree a Path is relative to.
type Root uint8

const (
	RootSrc Root = iota + 1
	RootBuild
)

func (r Root) String() string {
	switch r {
	case RootSrc:
		return "src"
	case RootBuild:
		return "build"
	}
	return "none"
}

// A Path is a slash-separated path relative to the source or build root.
// The zero Path is not a valid path and reports IsZero.
type Path struct {
	root Root
	rel  string
}

// Src returns a path relative to the source directory.
func Src(rel string) Path {
	return Path{root: RootSrc, rel: clean(rel)}
}

// Build returns a path relative to the build directory.
func Build(rel string) Path {
	return Path{root: RootBuild, rel: clean(rel)}
}

func clean(rel string) string {
	rel = path.Clean("/" + filepath.ToSlash(rel))
	return strings.TrimPrefix(rel, "/")
}

// Gen returns the build path generated from p with its extension replaced
// by ext. Source and build paths map to the same relative location under
// the build root, so src/a.c and build/src/a.c never collide with each
// other's generated files.
func Gen(p Path, ext string) Path {
	rel := strings.TrimSuffix(p.rel, path.Ext(p.rel)) + ext
	if p.root == RootBuild {
		return Build(path.Join("__build__", rel))
	}
	return Build(rel)
}

func (p Path) Root() Root     { return p.root }
func (p Path) Rel() string    { return p.rel }
func (p Path) IsZero() bool   { return p.root == 0 }
func (p Path) IsBuild() bool  { return p.root == RootBuild }
func (p Path) Ext() string    { return path.Ext(p.rel) }
func (p Path) Base() string   { return path.Base(p.rel) }
func (p Path) String() string { return "$" + p.root.String() + "/" + p.rel }

// Dir returns the directory containing p, in the same root.
func (p Path) Dir() Path {
	return Path{root: p.root, rel: clean(path.Dir(p.rel))}
}

// Join appends elem to p.
func (p Path) Join(elem ...string) Path {
	return Path{root: p.root, rel: clean(path.Join(append([]string{p.rel}, elem...)...))}
}
