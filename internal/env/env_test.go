package env

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMerge(t *testing.T) {
	base := []string{"PATH=/bin", "HOME=/root", "BROKEN"}
	got := Merge(base, map[string]string{"PATH": "/usr/bin", "CC": "clang"})
	want := []string{"CC=clang", "HOME=/root", "PATH=/usr/bin"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Merge mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeEmptyOverride(t *testing.T) {
	got := Merge([]string{"B=2", "A=1"}, nil)
	if diff := cmp.Diff([]string{"A=1", "B=2"}, got); diff != "" {
		t.Errorf("Merge mismatch (-want +got):\n%s", diff)
	}
}

func TestPrependPath(t *testing.T) {
	tests := []struct {
		current string
		dirs    []string
		want    []string
	}{
		{"", []string{"/a"}, []string{"/a"}},
		{"/old", []string{"/a", "/b"}, []string{"/a", "/b", "/old"}},
		{"/old", []string{"", "/b"}, []string{"/b", "/old"}},
		{"", nil, nil},
	}
	for _, tt := range tests {
		got := PrependPath(tt.current, tt.dirs...)
		want := strings.Join(tt.want, ListSeparator)
		if got != want {
			t.Errorf("PrependPath(%q, %q) = %q, want %q", tt.current, tt.dirs, got, want)
		}
	}
}

func TestPkgConfigPath(t *testing.T) {
	t.Setenv("PKG_CONFIG_PATH", "/usr/lib/pkgconfig")

	got := strings.Split(PkgConfigPath("/b", "/s"), ListSeparator)
	want := []string{filepath.Join("/b", "pkgconfig"), "/b", "/s", "/usr/lib/pkgconfig"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PkgConfigPath mismatch (-want +got):\n%s", diff)
	}
}
