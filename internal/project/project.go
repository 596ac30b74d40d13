// Package project loads build.hcl, the file describing the libraries and
// executables of a C/C++ project.
//
//	project "hello" {
//	  c_std   = "c17"
//	  cxx_std = "c++20"
//	}
//
//	library "foo" {
//	  version       = "1.0.0"
//	  output_dir    = "foolib"
//	  src           = ["foo/foo.cpp", "foo/bar.cpp"]
//	  include_paths = ["foo/include"]
//	  definitions   = { FOO_TEST_MACRO = 4 }
//	}
//
//	executable "hello" {
//	  src  = ["src/hello.c"]
//	  link = ["foo", "zlib"]
//	}
//
// Expressions may refer to os, arch and debug.
package project

import (
	"sort"
	"strings"

	"github.com/goplus/llbuild/pkgs/build"
	"github.com/goplus/llbuild/pkgs/cc"
	"github.com/goplus/llbuild/pkgs/pkgconfig"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/qiniu/x/log"
	"github.com/zclconf/go-cty/cty"
)

// DefaultFile is the project file name looked up in the source directory.
const DefaultFile = "build.hcl"

// Vars are the variables visible to expressions in the project file.
type Vars struct {
	OS    string
	Arch  string
	Debug bool
}

func (v Vars) evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"os":    cty.StringVal(v.OS),
			"arch":  cty.StringVal(v.Arch),
			"debug": cty.BoolVal(v.Debug),
		},
	}
}

type fileSchema struct {
	Project     *projectBlock  `hcl:"project,block"`
	Libraries   []*targetBlock `hcl:"library,block"`
	Executables []*targetBlock `hcl:"executable,block"`
}

type projectBlock struct {
	Name            string `hcl:"name,label"`
	CStd            string `hcl:"c_std,optional"`
	CxxStd          string `hcl:"cxx_std,optional"`
	Manifest        string `hcl:"manifest,optional"`
	CompileCommands *bool  `hcl:"compile_commands,optional"`
}

type targetBlock struct {
	Name               string            `hcl:"name,label"`
	Src                []string          `hcl:"src"`
	OutputDir          string            `hcl:"output_dir,optional"`
	IncludePaths       []string          `hcl:"include_paths,optional"`
	Definitions        map[string]string `hcl:"definitions,optional"`
	Link               []string          `hcl:"link,optional"`
	PrecompiledHeader  string            `hcl:"precompiled_header,optional"`
	Version            string            `hcl:"version,optional"`
	PrivateIncludes    []string          `hcl:"private_includes,optional"`
	PrivateDefinitions map[string]string `hcl:"private_definitions,optional"`

	DefRange hcl.Range `hcl:",def_range"`
}

// Project is a loaded project file.
type Project struct {
	Name            string
	Options         cc.Options
	Manifest        string // relative to the source directory
	CompileCommands bool

	// Libraries are ordered so that every library comes after the
	// libraries it links.
	Libraries   []cc.LibraryOptions
	Executables []cc.ExecutableOptions
}

// Load reads the project file at filename.
func Load(filename string, vars Vars) (*Project, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, build.Configf(filename, "%s", diags.Error())
	}
	return decode(filename, file, vars)
}

// Parse is like Load for a project file already in memory.
func Parse(src []byte, filename string, vars Vars) (*Project, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, build.Configf(filename, "%s", diags.Error())
	}
	return decode(filename, file, vars)
}

func decode(filename string, file *hcl.File, vars Vars) (*Project, error) {
	var f fileSchema
	if diags := gohcl.DecodeBody(file.Body, vars.evalContext(), &f); diags.HasErrors() {
		return nil, build.Configf(filename, "%s", diags.Error())
	}
	if f.Project == nil {
		return nil, build.Configf(filename, "missing project block")
	}

	p := &Project{
		Name:            f.Project.Name,
		Options:         cc.Options{Debug: vars.Debug},
		Manifest:        f.Project.Manifest,
		CompileCommands: f.Project.CompileCommands == nil || *f.Project.CompileCommands,
	}
	if p.Manifest == "" {
		p.Manifest = pkgconfig.DefaultManifest
	}
	var err error
	if f.Project.CStd != "" {
		if p.Options.CStd, err = parseStd(filename, f.Project.CStd, cc.LangC); err != nil {
			return nil, err
		}
	}
	if f.Project.CxxStd != "" {
		if p.Options.CxxStd, err = parseStd(filename, f.Project.CxxStd, cc.LangCxx); err != nil {
			return nil, err
		}
	}

	names := make(map[string]bool)
	for _, b := range append(append([]*targetBlock(nil), f.Libraries...), f.Executables...) {
		if names[b.Name] {
			return nil, build.Configf(b.DefRange.String(), "target %q defined twice", b.Name)
		}
		names[b.Name] = true
	}

	libs := make(map[string]*targetBlock, len(f.Libraries))
	for _, b := range f.Libraries {
		libs[b.Name] = b
	}
	ordered, err := sortLibraries(f.Libraries, libs)
	if err != nil {
		return nil, err
	}
	for _, b := range ordered {
		p.Libraries = append(p.Libraries, cc.LibraryOptions{
			ExecutableOptions:  executableOptions(b, libs),
			Version:            b.Version,
			PrivateIncludes:    b.PrivateIncludes,
			PrivateDefinitions: b.PrivateDefinitions,
		})
	}
	for _, b := range f.Executables {
		if b.Version != "" || b.PrivateIncludes != nil || b.PrivateDefinitions != nil {
			return nil, build.Configf(b.DefRange.String(), "executable %q: version and private settings apply to libraries only", b.Name)
		}
		p.Executables = append(p.Executables, executableOptions(b, libs))
	}
	log.Debugf("project: %s: %d libraries, %d executables", p.Name, len(p.Libraries), len(p.Executables))
	return p, nil
}

func parseStd(filename, s string, want cc.Lang) (cc.Std, error) {
	std, err := cc.ParseStd(s)
	if err != nil {
		return cc.StdNone, build.Configf(filename, "%v", err)
	}
	if std.Lang() != want {
		return cc.StdNone, build.Configf(filename, "%s is not a %s standard", s, want)
	}
	return std, nil
}

func executableOptions(b *targetBlock, libs map[string]*targetBlock) cc.ExecutableOptions {
	opts := cc.ExecutableOptions{
		Name:              b.Name,
		OutputDir:         b.OutputDir,
		Src:               b.Src,
		IncludePaths:      b.IncludePaths,
		Definitions:       b.Definitions,
		PrecompiledHeader: b.PrecompiledHeader,
	}
	for _, l := range b.Link {
		opts.Link = append(opts.Link, linkable(l, libs))
	}
	return opts
}

// linkable interprets one link entry: a project library, a descriptor file
// in the source tree, or a package name.
func linkable(s string, libs map[string]*targetBlock) cc.Linkable {
	if _, ok := libs[s]; ok {
		return cc.Pkg(s)
	}
	if strings.HasSuffix(s, ".pc") {
		return cc.File(build.Src(s))
	}
	return cc.Pkg(s)
}

// sortLibraries orders libraries so each follows the project libraries it
// links. Ties keep file order.
func sortLibraries(blocks []*targetBlock, libs map[string]*targetBlock) ([]*targetBlock, error) {
	const (
		visiting = 1
		visited  = 2
	)
	state := make(map[string]int, len(blocks))
	var out []*targetBlock
	var stack []string
	var visit func(b *targetBlock) error
	visit = func(b *targetBlock) error {
		switch state[b.Name] {
		case visiting:
			i := len(stack) - 1
			for stack[i] != b.Name {
				i--
			}
			cycle := append(append([]string(nil), stack[i:]...), b.Name)
			return build.Configf(b.DefRange.String(), "library link cycle: %s", strings.Join(cycle, " -> "))
		case visited:
			return nil
		}
		state[b.Name] = visiting
		stack = append(stack, b.Name)
		for _, l := range b.Link {
			if dep, ok := libs[l]; ok {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[b.Name] = visited
		out = append(out, b)
		return nil
	}
	for _, b := range blocks {
		if err := visit(b); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AddRules adds the rules of every target to c and returns the paths the
// project builds, sorted.
func (p *Project) AddRules(c *cc.C) ([]build.Path, error) {
	var outs []build.Path
	for _, lib := range p.Libraries {
		out, err := c.AddLibrary(lib)
		if err != nil {
			return nil, err
		}
		outs = append(outs, out)
	}
	for _, exe := range p.Executables {
		out, err := c.AddExecutable(exe)
		if err != nil {
			return nil, err
		}
		outs = append(outs, out)
	}
	if p.CompileCommands {
		out, err := c.AddCompileCommands()
		if err != nil {
			return nil, err
		}
		outs = append(outs, out)
	}
	sort.Slice(outs, func(i, j int) bool { return outs[i].Rel() < outs[j].Rel() })
	return outs, nil
}
