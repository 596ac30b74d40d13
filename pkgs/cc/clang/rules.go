package clang

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/llbuild/pkgs/build"
	"github.com/goplus/llbuild/pkgs/cc"
	"github.com/goplus/llbuild/pkgs/depfile"
	"github.com/goplus/llbuild/pkgs/pkgconfig"
)

// unitFlags are the options a translation unit and the precompiled header
// it includes must agree on. clang refuses a precompiled header built with
// a different optimization level, PIC level or predefined macros.
type unitFlags struct {
	std   cc.Std
	info  *cc.CompileInfo
	refs  []pkgconfig.Ref
	pic   bool
	debug bool
}

// args returns the compiler arguments for f that name no file.
func (f *unitFlags) args(c *Compiler) []string {
	cmd := append(c.baseArgs(), "-g")
	if f.debug {
		cmd = append(cmd, "-O0")
	} else {
		cmd = append(cmd, "-O2")
	}
	cmd = append(cmd, f.std.Flag())
	if f.pic {
		cmd = append(cmd, "-fPIC")
	}
	cmd = append(cmd, f.info.IncludeArgs()...)
	return append(cmd, f.info.DefinitionArgs()...)
}

// signature identifies the command built from f by tool, independent of
// what pkg-config answers; the descriptors queried are prerequisites.
func (f *unitFlags) signature(c *Compiler, tool string, extra ...string) string {
	parts := append([]string{tool}, f.args(c)...)
	for _, ref := range f.refs {
		parts = append(parts, "pkg:"+ref.String())
	}
	return strings.Join(append(parts, extra...), "\x00")
}

// objectRule compiles one translation unit.
type objectRule struct {
	unitFlags
	c   *Compiler
	tu  *cc.TranslationUnit
	pch build.Path

	obj, json, dep build.Path
}

func (r *objectRule) Prereqs() []build.Path {
	ps := []build.Path{r.tu.Src}
	if !r.pch.IsZero() {
		ps = append(ps, r.pch)
	}
	return append(ps, refPaths(r.refs)...)
}

func (r *objectRule) Targets() []build.Path {
	return []build.Path{r.obj, r.json, r.dep}
}

func (r *objectRule) Describe() string {
	if r.tu.Lang() == cc.LangCxx {
		return "CXX  " + r.tu.Src.Rel()
	}
	return "CC   " + r.tu.Src.Rel()
}

func (r *objectRule) Signature() string {
	return r.signature(r.c, r.c.tc.Tool(r.tu.Lang()), "pch:"+r.pch.Rel())
}

func (r *objectRule) Recipe(ctx context.Context, args *build.RecipeArgs) error {
	src, obj, json, dep := args.Abs(r.tu.Src), args.Abs(r.obj), args.Abs(r.json), args.Abs(r.dep)
	if err := os.MkdirAll(filepath.Dir(obj), 0o755); err != nil {
		return err
	}

	cmd := append(r.args(r.c), "-c", src, "-MJ", json, "-MD", "-MF", dep, "-o", obj)
	if !r.pch.IsZero() {
		cmd = append(cmd, "-include-pch", args.Abs(r.pch))
	}
	flags, err := r.c.pkg.Cflags(ctx, args, r.refs)
	if err != nil {
		return err
	}
	cmd = append(cmd, flags...)

	return compile(ctx, args, build.Cmd{Name: r.c.tc.Tool(r.tu.Lang()), Args: cmd}, obj, dep)
}

// pchRule precompiles a header once for every unit requesting it with the
// same PIC and optimization settings.
type pchRule struct {
	unitFlags
	c      *Compiler
	header build.Path

	out, dep build.Path
}

func (r *pchRule) Prereqs() []build.Path {
	return append([]build.Path{r.header}, refPaths(r.refs)...)
}

func (r *pchRule) Targets() []build.Path { return []build.Path{r.out, r.dep} }
func (r *pchRule) Describe() string      { return "PCH  " + r.header.Rel() }

func (r *pchRule) Signature() string {
	return r.signature(r.c, r.c.tc.Tool(r.std.Lang()))
}

func (r *pchRule) Recipe(ctx context.Context, args *build.RecipeArgs) error {
	header, out, dep := args.Abs(r.header), args.Abs(r.out), args.Abs(r.dep)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	lang := "c-header"
	if r.std.Lang() == cc.LangCxx {
		lang = "c++-header"
	}
	cmd := append(r.args(r.c), "-MD", "-MF", dep, "-o", out)
	flags, err := r.c.pkg.Cflags(ctx, args, r.refs)
	if err != nil {
		return err
	}
	cmd = append(cmd, flags...)
	cmd = append(cmd, "-x", lang, header)
	return compile(ctx, args, build.Cmd{Name: r.c.tc.Tool(r.std.Lang()), Args: cmd}, out, dep)
}

// compile runs a compiler invocation that writes out and the dependency
// listing dep, then reports every header the listing names as a
// postrequisite. A failed invocation reports nothing and leaves no output.
func compile(ctx context.Context, args *build.RecipeArgs, cmd build.Cmd, out, dep string) error {
	cmd.Dir = args.Book().SrcDir()
	if _, err := args.Spawn(ctx, cmd); err != nil {
		os.Remove(out)
		return err
	}
	deps, err := depfile.Read(dep)
	if err != nil {
		return fmt.Errorf("reading dependency listing: %w", err)
	}
	for _, d := range deps {
		if !filepath.IsAbs(d) {
			d = filepath.Join(cmd.Dir, d)
		}
		args.AddPostreq(d)
	}
	return nil
}

// ImageKind selects what an image rule links.
type ImageKind int

const (
	Executable ImageKind = iota
	DynamicLibrary
)

func (k ImageKind) String() string {
	if k == DynamicLibrary {
		return "dynamic library"
	}
	return "executable"
}

// imageRule links objects into an executable or a dynamic library.
type imageRule struct {
	c       *Compiler
	kind    ImageKind
	runtime cc.Lang
	objs    []build.Path
	libs    []*library
	refs    []pkgconfig.Ref
	out     build.Path
}

func (r *imageRule) Prereqs() []build.Path {
	ps := append([]build.Path(nil), r.objs...)
	for _, lib := range r.libs {
		ps = append(ps, lib.binary)
	}
	return append(ps, refPaths(r.refs)...)
}

func (r *imageRule) Targets() []build.Path { return []build.Path{r.out} }

func (r *imageRule) Signature() string {
	parts := []string{r.c.tc.Tool(r.runtime), r.kind.String(), r.c.tc.GOOS}
	parts = append(parts, r.c.baseArgs()...)
	for _, p := range r.Prereqs() {
		parts = append(parts, p.String())
	}
	return strings.Join(parts, "\x00")
}

func (r *imageRule) Describe() string {
	if r.kind == DynamicLibrary {
		return "DYLIB " + r.out.Rel()
	}
	return "LINK " + r.out.Rel()
}

func (r *imageRule) Recipe(ctx context.Context, args *build.RecipeArgs) error {
	out := args.Abs(r.out)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}

	cmd := r.c.baseArgs()
	if r.kind == DynamicLibrary {
		base := filepath.Base(out)
		if r.c.tc.isDarwin() {
			cmd = append(cmd, "-dynamiclib", "-install_name", "@rpath/"+base)
		} else {
			cmd = append(cmd, "-shared", "-Wl,-soname,"+base)
		}
	}
	cmd = append(cmd, "-o", out)
	cmd = append(cmd, args.AbsAll(r.objs...)...)

	seen := make(map[string]bool)
	for _, lib := range r.libs {
		dir := args.Abs(lib.binary.Dir())
		if !seen[dir] {
			seen[dir] = true
			cmd = append(cmd, "-Wl,-rpath,"+dir)
		}
	}
	flags, err := r.c.pkg.Libs(ctx, args, r.refs)
	if err != nil {
		return err
	}
	cmd = append(cmd, flags...)

	_, err = args.Spawn(ctx, build.Cmd{Name: r.c.tc.Tool(r.runtime), Args: cmd, Dir: args.Book().SrcDir()})
	if err != nil {
		os.Remove(out)
		return err
	}
	return nil
}

// compileCommandsRule joins the -MJ fragments of every unit into a
// compilation database.
type compileCommandsRule struct {
	fragments []build.Path
	out       build.Path
}

func (r *compileCommandsRule) Prereqs() []build.Path { return r.fragments }
func (r *compileCommandsRule) Targets() []build.Path { return []build.Path{r.out} }
func (r *compileCommandsRule) Describe() string      { return "GEN  " + r.out.Rel() }

func (r *compileCommandsRule) Signature() string {
	var b strings.Builder
	for _, p := range r.fragments {
		b.WriteString(p.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func (r *compileCommandsRule) Recipe(ctx context.Context, args *build.RecipeArgs) error {
	var buf bytes.Buffer
	buf.WriteString("[\n")
	n := 0
	for _, p := range r.fragments {
		data, err := os.ReadFile(args.Abs(p))
		if err != nil {
			return err
		}
		// Each fragment is one object followed by a comma.
		data = bytes.TrimRight(data, " \t\r\n,")
		if len(data) == 0 {
			continue
		}
		if n > 0 {
			buf.WriteString(",\n")
		}
		buf.Write(data)
		n++
	}
	buf.WriteString("\n]\n")

	out := args.Abs(r.out)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	return os.WriteFile(out, buf.Bytes(), 0o644)
}

func refPaths(refs []pkgconfig.Ref) []build.Path {
	var ps []build.Path
	for _, ref := range refs {
		if !ref.Path.IsZero() {
			ps = append(ps, ref.Path)
		}
	}
	return ps
}
