// Package cc describes C and C++ projects: translation units, the compile
// information libraries export to their consumers, and the front end that
// normalizes user options into executable and library descriptions for a
// toolchain-specific Compiler.
package cc

import (
	"github.com/goplus/llbuild/pkgs/build"
	"github.com/qiniu/x/log"
)

// Options configures a C front end.
type Options struct {
	// Debug selects a development build. Units get DEBUG defined in a
	// development build and NDEBUG otherwise, unless either is set
	// explicitly.
	Debug bool

	// CStd and CxxStd are the standards .c and C++ sources are compiled
	// with. A source whose family has no standard is an error.
	CStd   Std
	CxxStd Std
}

// ExecutableOptions describes an executable as the user writes it.
type ExecutableOptions struct {
	Name string
	// OutputDir is relative to the build directory.
	OutputDir string
	// Src lists source files relative to the source directory.
	Src []string
	// IncludePaths are relative to the source directory. Nil means
	// []string{"include"}.
	IncludePaths []string
	Definitions  map[string]string
	Link         []Linkable
	// PrecompiledHeader is a header, relative to the source directory,
	// to precompile and include in every unit.
	PrecompiledHeader string
}

// LibraryOptions describes a library. Include paths and definitions of
// the embedded ExecutableOptions are exported to consumers; the private
// ones are used only to compile the library itself.
type LibraryOptions struct {
	ExecutableOptions
	Version            string
	PrivateIncludes    []string
	PrivateDefinitions map[string]string
}

// C normalizes project options and hands them to a Compiler.
type C struct {
	book     *build.Book
	compiler Compiler
	opts     Options
}

// New returns a front end adding rules for compiler to book.
func New(book *build.Book, compiler Compiler, opts Options) *C {
	return &C{book: book, compiler: compiler, opts: opts}
}

// AddExecutable adds the rules for an executable and returns its path.
func (c *C) AddExecutable(opts ExecutableOptions) (build.Path, error) {
	exe, _, err := c.normalize(&opts, nil, nil)
	if err != nil {
		return build.Path{}, err
	}
	log.Debugf("cc: executable %s: %d units, runtime %v", exe.Name, len(exe.Units), exe.Runtime)
	return c.compiler.AddExecutable(c.book, exe)
}

// AddLibrary adds the rules for a dynamic library and returns its path.
func (c *C) AddLibrary(opts LibraryOptions) (build.Path, error) {
	exe, public, err := c.normalize(&opts.ExecutableOptions, opts.PrivateIncludes, opts.PrivateDefinitions)
	if err != nil {
		return build.Path{}, err
	}
	lib := &Library{Executable: *exe, Version: opts.Version, Public: *public}
	log.Debugf("cc: library %s %s: %d units, runtime %v", lib.Name, lib.Version, len(lib.Units), lib.Runtime)
	return c.compiler.AddLibrary(c.book, lib)
}

// AddCompileCommands adds the compile_commands.json rule covering every
// unit added so far.
func (c *C) AddCompileCommands() (build.Path, error) {
	return c.compiler.AddCompileCommands(c.book)
}

func (c *C) normalize(opts *ExecutableOptions, privateIncludes []string, privateDefs map[string]string) (*Executable, *CompileInfo, error) {
	if opts.Name == "" {
		return nil, nil, build.Configf("cc", "target without a name")
	}
	if len(opts.Src) == 0 {
		return nil, nil, build.Configf(opts.Name, "no source files")
	}

	rawIncludes := opts.IncludePaths
	if rawIncludes == nil {
		rawIncludes = []string{"include"}
	}
	var includes []string
	for _, i := range rawIncludes {
		includes = append(includes, c.book.Abs(build.Src(i)))
	}
	public := &CompileInfo{
		IncludePaths: append([]string(nil), includes...),
		Definitions:  copyDefs(opts.Definitions),
	}
	for _, i := range privateIncludes {
		includes = append(includes, c.book.Abs(build.Src(i)))
	}

	defs := copyDefs(opts.Definitions)
	_, hasDebug := defs["DEBUG"]
	_, hasNDebug := defs["NDEBUG"]
	if !hasDebug && !hasNDebug {
		if c.opts.Debug {
			defs["DEBUG"] = ""
		} else {
			defs["NDEBUG"] = ""
		}
	}
	for k, v := range privateDefs {
		defs[k] = v
	}

	var pch build.Path
	if opts.PrecompiledHeader != "" {
		pch = build.Src(opts.PrecompiledHeader)
	}

	units := make([]*TranslationUnit, 0, len(opts.Src))
	for _, s := range opts.Src {
		tu, err := c.unit(build.Src(s), includes, defs, pch)
		if err != nil {
			return nil, nil, err
		}
		units = append(units, tu)
	}

	exe := &Executable{
		Name:      opts.Name,
		OutputDir: build.Build(opts.OutputDir),
		Units:     units,
		Link:      opts.Link,
		Runtime:   RuntimeLang(units),
		Debug:     c.opts.Debug,
	}
	return exe, public, nil
}

func (c *C) unit(src build.Path, includes []string, defs map[string]string, pch build.Path) (*TranslationUnit, error) {
	tu := &TranslationUnit{
		Src:               src,
		IncludePaths:      includes,
		Definitions:       defs,
		PrecompiledHeader: pch,
	}
	switch src.Ext() {
	case ".c":
		if c.opts.CStd.Lang() != LangC {
			return nil, build.Configf(src.Rel(), "source file is a C file but no C standard was given to the build system")
		}
		tu.Std = c.opts.CStd
	case ".cpp", ".cxx", ".cc":
		if c.opts.CxxStd.Lang() != LangCxx {
			return nil, build.Configf(src.Rel(), "source file is a C++ file but no C++ standard was given to the build system")
		}
		tu.Std = c.opts.CxxStd
	default:
		return nil, build.Configf(src.Rel(), "file extension %q is not recognized by the build system", src.Ext())
	}
	return tu, nil
}

func copyDefs(defs map[string]string) map[string]string {
	out := make(map[string]string, len(defs))
	for k, v := range defs {
		out[k] = v
	}
	return out
}
