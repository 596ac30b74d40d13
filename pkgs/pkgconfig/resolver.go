package pkgconfig

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goplus/llbuild/internal/env"
	"github.com/goplus/llbuild/pkgs/build"
	"github.com/qiniu/x/log"
)

// Query modes understood by pkg-config.
const (
	ModeCflags = "--cflags"
	ModeLibs   = "--libs"
)

// A Ref names a package either by pkg-config name or by the path of a
// descriptor file. Descriptor paths are handed to pkg-config directly.
type Ref struct {
	Name string
	Path build.Path
}

// NameRef returns a reference to the package called name.
func NameRef(name string) Ref { return Ref{Name: name} }

// PathRef returns a reference to the descriptor at p.
func PathRef(p build.Path) Ref { return Ref{Path: p} }

func (r Ref) String() string {
	if !r.Path.IsZero() {
		return r.Path.String()
	}
	return r.Name
}

// Resolver turns package references into flags. One Resolver is created
// per build session and shared by every rule that needs flags; it reads
// the manifest at most once.
type Resolver struct {
	book         *build.Book
	manifestPath string
	tool         string

	loadOnce    sync.Once
	manifest    *Manifest
	manifestErr error

	mu      sync.RWMutex
	byName  map[string]build.Path
	byPath  map[build.Path]string
	version map[string]string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithManifest sets the manifest path, relative to the source directory
// unless absolute.
func WithManifest(path string) Option {
	return func(r *Resolver) { r.manifestPath = path }
}

// WithTool sets the pkg-config executable.
func WithTool(name string) Option {
	return func(r *Resolver) { r.tool = name }
}

// NewResolver returns a Resolver for the project described by book.
func NewResolver(book *build.Book, opts ...Option) *Resolver {
	r := &Resolver{
		book:         book,
		manifestPath: DefaultManifest,
		tool:         "pkg-config",
		byName:       make(map[string]build.Path),
		byPath:       make(map[build.Path]string),
		version:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	if !filepath.IsAbs(r.manifestPath) {
		r.manifestPath = filepath.Join(book.SrcDir(), r.manifestPath)
	}
	return r
}

// Manifest returns the project's manifest, reading it on first use.
func (r *Resolver) Manifest() (*Manifest, error) {
	r.loadOnce.Do(func() {
		log.Debugf("pkgconfig: loading manifest %s", r.manifestPath)
		r.manifest, r.manifestErr = LoadManifest(r.manifestPath)
	})
	return r.manifest, r.manifestErr
}

// Register records that the descriptor for package name is produced at pc.
// Registered packages shadow manifest entries of the same name.
func (r *Resolver) Register(name, version string, pc build.Path) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = pc
	r.byPath[pc] = name
	r.version[name] = version
}

// Local returns the descriptor path registered for name, if any.
func (r *Resolver) Local(name string) (build.Path, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if pc, ok := r.byName[name]; ok {
		return pc, true
	}
	if pc := build.Build(name); r.byPath[pc] != "" {
		return pc, true
	}
	return build.Path{}, false
}

// Queries resolves refs to pkg-config arguments without running anything.
// Registered packages resolve to absolute descriptor paths; other names
// must be listed in the manifest.
func (r *Resolver) Queries(refs []Ref) ([]string, error) {
	queries := make([]string, 0, len(refs))
	for _, ref := range refs {
		if !ref.Path.IsZero() {
			queries = append(queries, r.book.Abs(ref.Path))
			continue
		}
		if pc, ok := r.Local(ref.Name); ok {
			queries = append(queries, r.book.Abs(pc))
			continue
		}
		m, err := r.Manifest()
		if err != nil {
			return nil, build.Configf(ref.Name, "cannot resolve library: %v", err)
		}
		c, ok := m.Constraint(ref.Name)
		if !ok {
			return nil, build.Configf(ref.Name, "not listed as a dependency in %s", filepath.Base(r.manifestPath))
		}
		queries = append(queries, c.Query(ref.Name))
	}
	return queries, nil
}

// Check reports configuration errors Queries would return for refs.
func (r *Resolver) Check(refs []Ref) error {
	_, err := r.Queries(refs)
	return err
}

// Cflags returns the compile flags for refs.
func (r *Resolver) Cflags(ctx context.Context, sp build.Spawner, refs []Ref) ([]string, error) {
	return r.Flags(ctx, sp, ModeCflags, refs)
}

// Libs returns the link flags for refs.
func (r *Resolver) Libs(ctx context.Context, sp build.Spawner, refs []Ref) ([]string, error) {
	return r.Flags(ctx, sp, ModeLibs, refs)
}

// Flags runs pkg-config once for all refs in the given mode. If pkg-config
// fails the returned *build.ExitError carries its error stream and no
// flags are returned.
func (r *Resolver) Flags(ctx context.Context, sp build.Spawner, mode string, refs []Ref) ([]string, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	queries, err := r.Queries(refs)
	if err != nil {
		return nil, err
	}
	out, err := sp.Spawn(ctx, build.Cmd{
		Name: r.tool,
		Args: append([]string{mode}, queries...),
		Env: map[string]string{
			"PKG_CONFIG_PATH": env.PkgConfigPath(r.book.BuildDir(), r.book.SrcDir()),
		},
	})
	if err != nil {
		return nil, err
	}
	return strings.Fields(string(out.Stdout)), nil
}
