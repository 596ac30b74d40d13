package cc

import (
	"github.com/goplus/llbuild/pkgs/build"
)

// A TranslationUnit is one source file and the configuration it is
// compiled with. Its language is the family of Std.
type TranslationUnit struct {
	Src          build.Path
	Std          Std
	IncludePaths []string
	Definitions  map[string]string

	// PrecompiledHeader is the header to precompile and include, or the
	// zero Path.
	PrecompiledHeader build.Path
}

// Lang returns the language family of tu.
func (tu *TranslationUnit) Lang() Lang {
	return tu.Std.Lang()
}

// CompileInfo returns a copy of tu's own compile information.
func (tu *TranslationUnit) CompileInfo() *CompileInfo {
	info := &CompileInfo{
		IncludePaths: append([]string(nil), tu.IncludePaths...),
		Definitions:  make(map[string]string, len(tu.Definitions)),
	}
	if tu.Lang() == LangCxx {
		info.CxxStd = tu.Std
	} else {
		info.CStd = tu.Std
	}
	for k, v := range tu.Definitions {
		info.Definitions[k] = v
	}
	return info
}

// A Linkable is something an image links against: either an external
// package known by name, or a file (a library or a package descriptor).
type Linkable struct {
	name string
	path build.Path
}

// Pkg returns a reference to the package called name.
func Pkg(name string) Linkable { return Linkable{name: name} }

// File returns a reference to a package descriptor or library file.
func File(p build.Path) Linkable { return Linkable{path: p} }

// Name returns the package name, or "" for a path reference.
func (l Linkable) Name() string { return l.name }

// Path returns the referenced path, or the zero Path for a name.
func (l Linkable) Path() build.Path { return l.path }

func (l Linkable) String() string {
	if !l.path.IsZero() {
		return l.path.String()
	}
	return l.name
}

// Executable describes a linked executable.
type Executable struct {
	Name      string
	OutputDir build.Path
	Units     []*TranslationUnit
	Link      []Linkable
	Runtime   Lang
	Debug     bool
}

// Library describes a dynamic library. Public is what consumers compile
// with: exported include paths and definitions; standards are filled in
// from the library's units by the compiler.
type Library struct {
	Executable
	Version string
	Public  CompileInfo
}

// A Compiler turns executable and library descriptions into rules.
type Compiler interface {
	AddExecutable(book *build.Book, exe *Executable) (build.Path, error)
	AddLibrary(book *build.Book, lib *Library) (build.Path, error)
	AddCompileCommands(book *build.Book) (build.Path, error)
}

// RuntimeLang returns the language an image built from units must be
// linked as: C++ if any unit is C++.
func RuntimeLang(units []*TranslationUnit) Lang {
	for _, tu := range units {
		if tu.Lang() == LangCxx {
			return LangCxx
		}
	}
	return LangC
}
