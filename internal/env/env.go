// Package env builds environments for spawned toolchain processes without
// touching the current process environment.
package env

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// ListSeparator separates entries of PATH-style variables.
var ListSeparator = func() string {
	if runtime.GOOS == "windows" {
		return ";"
	}
	return ":"
}()

// Merge returns base with override applied, as a sorted KEY=VALUE list.
func Merge(base []string, override map[string]string) []string {
	envMap := make(map[string]string, len(base)+len(override))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range override {
		envMap[k] = v
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}

// PrependPath returns the value of a PATH-style variable with dirs placed
// before its current value. Empty entries are dropped.
func PrependPath(current string, dirs ...string) string {
	var parts []string
	for _, d := range dirs {
		if d != "" {
			parts = append(parts, d)
		}
	}
	if current != "" {
		parts = append(parts, current)
	}
	return strings.Join(parts, ListSeparator)
}

// PkgConfigPath returns the PKG_CONFIG_PATH value that lets pkg-config find
// descriptors produced in buildDir and hand-written ones in srcDir, ahead
// of whatever the user already configured.
func PkgConfigPath(buildDir, srcDir string) string {
	return PrependPath(os.Getenv("PKG_CONFIG_PATH"),
		filepath.Join(buildDir, "pkgconfig"), buildDir, srcDir)
}
