package pkgconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/llbuild/pkgs/build"
	"github.com/qiniu/x/log"
)

// Package is the content of a pkg-config descriptor.
type Package struct {
	Name        string
	Version     string
	Description string
	Cflags      []string
	Libs        []string
}

// Marshal renders p in the .pc file format.
func (p *Package) Marshal() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", p.Name)
	fmt.Fprintf(&b, "Version: %s\n", p.Version)
	desc := p.Description
	if desc == "" {
		desc = p.Name + " library"
	}
	fmt.Fprintf(&b, "Description: %s\n", desc)
	if len(p.Cflags) > 0 {
		fmt.Fprintf(&b, "Cflags: %s\n", strings.Join(p.Cflags, " "))
	}
	if len(p.Libs) > 0 {
		fmt.Fprintf(&b, "Libs: %s\n", strings.Join(p.Libs, " "))
	}
	return []byte(b.String())
}

// DescriptorPath returns where the descriptor for package name is written.
func DescriptorPath(name string) build.Path {
	return build.Build("pkgconfig").Join(name + ".pc")
}

type descriptorRule struct {
	pkg Package
	out build.Path
}

func (r *descriptorRule) Prereqs() []build.Path { return nil }
func (r *descriptorRule) Targets() []build.Path { return []build.Path{r.out} }
func (r *descriptorRule) Describe() string      { return "PC   " + r.out.Rel() }
func (r *descriptorRule) Signature() string     { return string(r.pkg.Marshal()) }

func (r *descriptorRule) Recipe(ctx context.Context, args *build.RecipeArgs) error {
	out := args.Abs(r.out)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	return os.WriteFile(out, r.pkg.Marshal(), 0o644)
}

// Export adds a rule writing the descriptor for pkg to book and registers
// it, so later references to pkg.Name resolve to the produced descriptor
// rather than to the manifest.
func (r *Resolver) Export(pkg Package) (build.Path, error) {
	if pkg.Name == "" {
		return build.Path{}, build.Configf("pkgconfig", "package without a name")
	}
	if pkg.Version == "" {
		return build.Path{}, build.Configf(pkg.Name, "library has no version")
	}
	out := DescriptorPath(pkg.Name)
	if err := r.book.Add(&descriptorRule{pkg: pkg, out: out}); err != nil {
		return build.Path{}, err
	}
	r.Register(pkg.Name, pkg.Version, out)
	r.warnShadowed(pkg)
	return out, nil
}

func (r *Resolver) warnShadowed(pkg Package) {
	if _, err := os.Stat(r.manifestPath); err != nil {
		return
	}
	m, err := r.Manifest()
	if err != nil {
		return
	}
	if c, ok := m.Constraint(pkg.Name); ok && !c.Allows(pkg.Version) {
		log.Warnf("pkgconfig: %s %s built in this project shadows manifest entry %q", pkg.Name, pkg.Version, c.Query(pkg.Name))
	}
}
