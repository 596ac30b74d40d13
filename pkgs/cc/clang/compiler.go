// Package clang implements cc.Compiler with the clang toolchain.
//
// Every translation unit becomes one compile rule that also writes a
// compile_commands.json fragment (-MJ) and a dependency listing (-MD); the
// headers named in the listing are reported to the executor as
// prerequisites discovered after the fact. Precompiled headers are built
// once per header and code generation settings, and shared. Executables and dynamic libraries are linked
// by one rule shape parameterized by ImageKind; every library also exports
// a pkg-config descriptor so later targets can consume it by name.
package clang

import (
	"path"
	"runtime"

	"github.com/goplus/llbuild/pkgs/build"
	"github.com/goplus/llbuild/pkgs/cc"
	"github.com/goplus/llbuild/pkgs/pkgconfig"
	"github.com/qiniu/x/log"
)

// Toolchain names the executables of a clang installation.
type Toolchain struct {
	CC   string // C front end
	CXX  string // C++ front end
	GOOS string // target operating system, decides library naming
}

// DefaultToolchain returns clang and clang++ for the host system.
func DefaultToolchain() Toolchain {
	return Toolchain{CC: "clang", CXX: "clang++", GOOS: runtime.GOOS}
}

// Tool returns the front end for lang.
func (tc Toolchain) Tool(lang cc.Lang) string {
	if lang == cc.LangCxx {
		return tc.CXX
	}
	return tc.CC
}

// LibraryFile returns the file name of the dynamic library called name.
func (tc Toolchain) LibraryFile(name string) string {
	switch tc.GOOS {
	case "darwin", "ios":
		return "lib" + name + ".dylib"
	case "windows":
		return name + ".dll"
	}
	return "lib" + name + ".so"
}

// ExecutableFile returns the file name of the executable called name.
func (tc Toolchain) ExecutableFile(name string) string {
	if tc.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

func (tc Toolchain) isDarwin() bool {
	return tc.GOOS == "darwin" || tc.GOOS == "ios"
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithToolchain overrides the default toolchain.
func WithToolchain(tc Toolchain) Option {
	return func(c *Compiler) { c.tc = tc }
}

// WithColor forces colored diagnostics even though they are captured.
func WithColor(on bool) Option {
	return func(c *Compiler) { c.color = on }
}

// library is what the compiler remembers about a library it added.
type library struct {
	name   string
	binary build.Path
	pc     build.Path
	info   *cc.CompileInfo // exported to consumers, including transitive deps
}

// Compiler adds clang rules to a build.Book.
type Compiler struct {
	tc    Toolchain
	color bool
	pkg   *pkgconfig.Resolver

	libraries map[build.Path]*library
	byName    map[string]*library
	pchs      map[pchKey]*pchRule

	compileCommands []build.Path
}

var _ cc.Compiler = (*Compiler)(nil)

// New returns a Compiler resolving package references with pkg.
func New(pkg *pkgconfig.Resolver, opts ...Option) *Compiler {
	c := &Compiler{
		tc:        DefaultToolchain(),
		pkg:       pkg,
		libraries: make(map[build.Path]*library),
		byName:    make(map[string]*library),
		pchs:      make(map[pchKey]*pchRule),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// links is the resolved link list of one image.
type links struct {
	libs []*library      // in-project libraries
	refs []pkgconfig.Ref // everything handed to pkg-config
	info *cc.CompileInfo // merged exports of libs
}

// resolveLinks splits refs into in-project libraries and external
// packages. A reference naming a library added earlier, by its build path
// or by its name, always resolves to that library.
func (c *Compiler) resolveLinks(target string, refs []cc.Linkable) (*links, error) {
	l := &links{info: &cc.CompileInfo{}}
	for _, ref := range refs {
		var lib *library
		if p := ref.Path(); !p.IsZero() {
			lib = c.libraries[p]
			if lib == nil {
				l.refs = append(l.refs, pkgconfig.PathRef(p))
				continue
			}
		} else if lib = c.libraries[build.Build(ref.Name())]; lib == nil {
			lib = c.byName[ref.Name()]
		}
		if lib == nil {
			l.refs = append(l.refs, pkgconfig.NameRef(ref.Name()))
			continue
		}
		l.libs = append(l.libs, lib)
		l.refs = append(l.refs, pkgconfig.PathRef(lib.pc))
		l.info.Merge(lib.info)
	}
	if err := c.pkg.Check(l.refs); err != nil {
		return nil, err
	}
	log.Debugf("clang: %s links %d in-project libraries, %d pkg-config refs", target, len(l.libs), len(l.refs))
	return l, nil
}

// AddExecutable implements cc.Compiler.
func (c *Compiler) AddExecutable(book *build.Book, exe *cc.Executable) (build.Path, error) {
	out := exe.OutputDir.Join(c.tc.ExecutableFile(exe.Name))
	l, err := c.resolveLinks(exe.Name, exe.Link)
	if err != nil {
		return build.Path{}, err
	}
	objs, err := c.addObjects(book, exe, l, false)
	if err != nil {
		return build.Path{}, err
	}
	img := &imageRule{c: c, kind: Executable, runtime: exe.Runtime, objs: objs, libs: l.libs, refs: l.refs, out: out}
	if err := book.Add(img); err != nil {
		return build.Path{}, err
	}
	return out, nil
}

// AddLibrary implements cc.Compiler.
func (c *Compiler) AddLibrary(book *build.Book, lib *cc.Library) (build.Path, error) {
	out := lib.OutputDir.Join(c.tc.LibraryFile(lib.Name))
	for _, ref := range lib.Link {
		if ref.Path() == out || ref.Name() == lib.Name || ref.Name() == out.Rel() {
			return build.Path{}, build.Configf(lib.Name, "library links itself")
		}
	}
	if _, ok := c.byName[lib.Name]; ok {
		return build.Path{}, build.Configf(lib.Name, "library defined twice")
	}

	l, err := c.resolveLinks(lib.Name, lib.Link)
	if err != nil {
		return build.Path{}, err
	}
	objs, err := c.addObjects(book, &lib.Executable, l, !c.tc.isDarwin())
	if err != nil {
		return build.Path{}, err
	}

	public := &lib.Public
	cflags := append(public.IncludeArgs(), public.DefinitionArgs()...)
	pc, err := c.pkg.Export(pkgconfig.Package{
		Name:    lib.Name,
		Version: lib.Version,
		Cflags:  cflags,
		Libs:    []string{"-L" + book.Abs(lib.OutputDir), "-l" + lib.Name},
	})
	if err != nil {
		return build.Path{}, err
	}

	img := &imageRule{c: c, kind: DynamicLibrary, runtime: lib.Runtime, objs: objs, libs: l.libs, refs: l.refs, out: out}
	if err := book.Add(img); err != nil {
		return build.Path{}, err
	}

	exported := public.Clone()
	for _, tu := range lib.Units {
		if tu.Lang() == cc.LangCxx {
			exported.CxxStd = cc.MaxStd(exported.CxxStd, tu.Std)
		} else {
			exported.CStd = cc.MaxStd(exported.CStd, tu.Std)
		}
	}
	exported.Merge(l.info)

	entry := &library{name: lib.Name, binary: out, pc: pc, info: exported}
	c.libraries[out] = entry
	c.byName[lib.Name] = entry
	return out, nil
}

// addObjects adds one compile rule per unit of exe and returns the object
// paths. Objects live under <output dir>/<name>.dir so the same source
// can be compiled for several targets with different flags.
func (c *Compiler) addObjects(book *build.Book, exe *cc.Executable, l *links, pic bool) ([]build.Path, error) {
	objDir := exe.OutputDir.Join(exe.Name + ".dir")
	objs := make([]build.Path, 0, len(exe.Units))
	for _, tu := range exe.Units {
		info, err := cc.Effective(tu, l.info)
		if err != nil {
			return nil, err
		}
		gen := func(ext string) build.Path {
			return objDir.Join(build.Gen(tu.Src, ext).Rel())
		}
		obj := &objectRule{
			unitFlags: unitFlags{std: tu.Std, info: info, refs: l.refs, pic: pic, debug: exe.Debug},
			c:         c,
			tu:        tu,
			obj:       gen(".o"),
			json:      gen(".json"),
			dep:       gen(".d"),
		}
		if !tu.PrecompiledHeader.IsZero() {
			pch, err := c.addPCH(book, tu, obj.unitFlags)
			if err != nil {
				return nil, err
			}
			obj.pch = pch
		}
		if err := book.Add(obj); err != nil {
			return nil, err
		}
		c.compileCommands = append(c.compileCommands, obj.json)
		objs = append(objs, obj.obj)
	}
	return objs, nil
}

// pchKey identifies one precompiled form of a header. Units compiled
// with different PIC or optimization settings cannot share it.
type pchKey struct {
	header build.Path
	pic    bool
	debug  bool
}

func (k pchKey) dir() string {
	dir := "release"
	if k.debug {
		dir = "debug"
	}
	if k.pic {
		dir += "-pic"
	}
	return path.Join("pch", dir)
}

// addPCH returns the precompiled form of tu's header, adding the rule that
// builds it the first time the header is requested with these settings.
// Later requesters share the artifact built with the first requester's
// standard and flags.
func (c *Compiler) addPCH(book *build.Book, tu *cc.TranslationUnit, flags unitFlags) (build.Path, error) {
	key := pchKey{header: tu.PrecompiledHeader, pic: flags.pic, debug: flags.debug}
	if r, ok := c.pchs[key]; ok {
		if r.std != tu.Std {
			log.Debugf("clang: %s uses %s, precompiled header %s was built for %s", tu.Src.Rel(), tu.Std, key.header.Rel(), r.std)
		}
		return r.out, nil
	}
	gen := build.Gen(key.header, ".pch")
	r := &pchRule{
		unitFlags: flags,
		c:         c,
		header:    key.header,
		out:       build.Build(path.Join(key.dir(), gen.Rel())),
		dep:       build.Build(path.Join(key.dir(), gen.Rel()+".d")),
	}
	if err := book.Add(r); err != nil {
		return build.Path{}, err
	}
	c.pchs[key] = r
	return r.out, nil
}

// AddCompileCommands implements cc.Compiler.
func (c *Compiler) AddCompileCommands(book *build.Book) (build.Path, error) {
	r := &compileCommandsRule{
		fragments: append([]build.Path(nil), c.compileCommands...),
		out:       build.Build("compile_commands.json"),
	}
	if err := book.Add(r); err != nil {
		return build.Path{}, err
	}
	return r.out, nil
}

func (c *Compiler) baseArgs() []string {
	if c.color {
		return []string{"-fcolor-diagnostics"}
	}
	return nil
}
