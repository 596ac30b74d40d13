// Package pkgconfig resolves library references to compiler and linker
// flags with pkg-config, and exports descriptors for libraries produced by
// the build.
package pkgconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goplus/llbuild/pkgs/build"
	"github.com/goplus/llbuild/x/vercmp"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// DefaultManifest is the manifest file name looked up in the source tree.
const DefaultManifest = "pkgconfig.json"

// Manifest lists the external libraries a project may use, each with a
// version constraint.
type Manifest struct {
	// Dependencies maps a pkg-config package name to a version constraint
	// such as ">= 1.2.11".
	Dependencies map[string]string `json:"dependencies" yaml:"dependencies"`

	constraints map[string]Constraint
}

// LoadManifest reads a JSON manifest, or a YAML one when the file name ends
// in .yaml or .yml.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseManifest(path, data)
}

// ParseManifest decodes data read from path.
func ParseManifest(path string, data []byte) (*Manifest, error) {
	var m Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err := yaml.Unmarshal(data, &m)
		if err != nil {
			return nil, build.Configf(path, "%v", err)
		}
	default:
		err := json.Unmarshal(data, &m)
		if err != nil {
			return nil, build.Configf(path, "%v", err)
		}
	}

	m.constraints = make(map[string]Constraint, len(m.Dependencies))
	for name, s := range m.Dependencies {
		c, err := ParseConstraint(s)
		if err != nil {
			return nil, build.Configf(path, "dependency %q: %v", name, err)
		}
		m.constraints[name] = c
	}
	return &m, nil
}

// Constraint returns the constraint for name.
func (m *Manifest) Constraint(name string) (Constraint, bool) {
	c, ok := m.constraints[name]
	return c, ok
}

// Names returns the dependency names in sorted order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.constraints))
	for name := range m.constraints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// A Constraint restricts the acceptable versions of a package.
type Constraint struct {
	Op      string
	Version string
}

var ops = []string{">=", "<=", "!=", "=", ">", "<"}

// ParseConstraint parses "<op> <version>". A bare version means ">=".
func ParseConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Constraint{}, fmt.Errorf("empty version constraint")
	}
	for _, op := range ops {
		if rest, ok := strings.CutPrefix(s, op); ok {
			v := strings.TrimSpace(rest)
			if v == "" || strings.ContainsAny(v, " \t<>=!") {
				return Constraint{}, fmt.Errorf("invalid version constraint %q", s)
			}
			return Constraint{Op: op, Version: v}, nil
		}
	}
	if strings.ContainsAny(s, " \t<>=!") {
		return Constraint{}, fmt.Errorf("invalid version constraint %q", s)
	}
	return Constraint{Op: ">=", Version: s}, nil
}

func (c Constraint) String() string {
	return c.Op + " " + c.Version
}

// Query returns the pkg-config query selecting name under c.
func (c Constraint) Query(name string) string {
	return name + " " + c.String()
}

// Allows reports whether version satisfies c.
func (c Constraint) Allows(version string) bool {
	n := CompareVersions(version, c.Version)
	switch c.Op {
	case ">=":
		return n >= 0
	case "<=":
		return n <= 0
	case ">":
		return n > 0
	case "<":
		return n < 0
	case "=":
		return n == 0
	case "!=":
		return n != 0
	}
	return false
}

// CompareVersions orders two versions. Semantic versions (with or without
// a leading "v") compare by semver rules; anything else compares the way
// pkg-config does.
func CompareVersions(a, b string) int {
	sa, sb := "v"+strings.TrimPrefix(a, "v"), "v"+strings.TrimPrefix(b, "v")
	if semver.IsValid(sa) && semver.IsValid(sb) {
		return semver.Compare(sa, sb)
	}
	return vercmp.Compare(a, b)
}
