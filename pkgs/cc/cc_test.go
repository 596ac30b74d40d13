package cc

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/goplus/llbuild/pkgs/build"
)

func TestParseStd(t *testing.T) {
	tests := []struct {
		in   string
		want Std
		flag string
		lang Lang
	}{
		{"C89", C89, "-std=c89", LangC},
		{"c17", C17, "-std=c17", LangC},
		{"C++20", Cxx20, "-std=c++20", LangCxx},
		{"c++03", Cxx03, "-std=c++03", LangCxx},
	}
	for _, tt := range tests {
		got, err := ParseStd(tt.in)
		if err != nil {
			t.Fatalf("ParseStd(%q): %v", tt.in, err)
		}
		if got != tt.want || got.Flag() != tt.flag || got.Lang() != tt.lang {
			t.Errorf("ParseStd(%q) = %v (%s, %v)", tt.in, got, got.Flag(), got.Lang())
		}
	}
	for _, bad := range []string{"", "C23", "gnu99"} {
		if _, err := ParseStd(bad); err == nil {
			t.Errorf("ParseStd(%q) succeeded", bad)
		}
	}
}

func TestMaxStd(t *testing.T) {
	order := []Std{StdNone, C89, C99, C11, C17}
	for i, a := range order {
		for j, b := range order {
			want := a
			if j > i {
				want = b
			}
			if got := MaxStd(a, b); got != want {
				t.Errorf("MaxStd(%v, %v) = %v, want %v", a, b, got, want)
			}
		}
	}
}

func TestMergeProperties(t *testing.T) {
	infos := []*CompileInfo{
		{},
		{CStd: C99, IncludePaths: []string{"/a", "/b"}},
		{CStd: C11, CxxStd: Cxx14, IncludePaths: []string{"/b", "/c"}, Definitions: map[string]string{"X": "1"}},
		{CxxStd: Cxx20, Definitions: map[string]string{"X": "2", "Y": ""}},
	}
	for _, a := range infos {
		for _, b := range infos {
			got := a.Clone()
			got.Merge(b)

			if got.CStd < a.CStd || got.CStd < b.CStd || got.CxxStd < a.CxxStd || got.CxxStd < b.CxxStd {
				t.Errorf("Merge(%+v, %+v) standards = %v/%v", a, b, got.CStd, got.CxxStd)
			}
			have := make(map[string]int)
			for _, p := range got.IncludePaths {
				have[p]++
			}
			for _, p := range append(append([]string(nil), a.IncludePaths...), b.IncludePaths...) {
				if have[p] != 1 {
					t.Errorf("Merge(%+v, %+v) include %q appears %d times", a, b, p, have[p])
				}
			}
			for k, v := range b.Definitions {
				if got.Definitions[k] != v {
					t.Errorf("Merge(%+v, %+v) %s = %q, want %q", a, b, k, got.Definitions[k], v)
				}
			}
		}
	}
}

func TestMergeDoesNotAlias(t *testing.T) {
	base := &CompileInfo{Definitions: map[string]string{"A": "1"}}
	orig := base.Clone()
	c := base.Clone()
	c.Merge(&CompileInfo{Definitions: map[string]string{"A": "2"}, IncludePaths: []string{"/x"}})
	if diff := cmp.Diff(orig, base); diff != "" {
		t.Errorf("Merge on a clone changed the original (-want +got):\n%s", diff)
	}
}

func TestDefinitionArgs(t *testing.T) {
	info := &CompileInfo{Definitions: map[string]string{"NDEBUG": "", "FOO": "4"}}
	if diff := cmp.Diff([]string{"-DFOO=4", "-DNDEBUG="}, info.DefinitionArgs()); diff != "" {
		t.Errorf("DefinitionArgs mismatch (-want +got):\n%s", diff)
	}
	if args := (&CompileInfo{}).DefinitionArgs(); args != nil {
		t.Errorf("DefinitionArgs on empty = %v, want nil", args)
	}
}

func TestEffective(t *testing.T) {
	tu := &TranslationUnit{
		Src:          build.Src("src/hello.c"),
		Std:          C11,
		IncludePaths: []string{"/src/include"},
		Definitions:  map[string]string{"NDEBUG": ""},
	}

	info, err := Effective(tu, &CompileInfo{CStd: C99, IncludePaths: []string{"/foo/include"}, Definitions: map[string]string{"FOO": "4"}})
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	if info.CStd != C11 {
		t.Errorf("CStd = %v, want C11", info.CStd)
	}
	if diff := cmp.Diff([]string{"/src/include", "/foo/include"}, info.IncludePaths); diff != "" {
		t.Errorf("IncludePaths mismatch (-want +got):\n%s", diff)
	}
	if info.Definitions["FOO"] != "4" {
		t.Errorf("FOO not merged: %v", info.Definitions)
	}
	if _, ok := tu.Definitions["FOO"]; ok {
		t.Error("Effective modified the unit's definitions")
	}

	_, err = Effective(tu, &CompileInfo{CStd: C17})
	var tooLow *StdTooLowError
	if !errors.As(err, &tooLow) {
		t.Fatalf("err = %v, want *StdTooLowError", err)
	}
	if tooLow.Unit != "src/hello.c" || tooLow.Required != C17 {
		t.Errorf("StdTooLowError = %+v", tooLow)
	}
	if !errors.Is(err, build.ErrConfig) {
		t.Error("StdTooLowError is not a configuration error")
	}

	// A C++ requirement does not constrain a C unit.
	if _, err := Effective(tu, &CompileInfo{CxxStd: Cxx20}); err != nil {
		t.Errorf("Effective with C++ requirement: %v", err)
	}
}

type recordingCompiler struct {
	exes []*Executable
	libs []*Library
}

func (c *recordingCompiler) AddExecutable(book *build.Book, exe *Executable) (build.Path, error) {
	c.exes = append(c.exes, exe)
	return exe.OutputDir.Join(exe.Name), nil
}

func (c *recordingCompiler) AddLibrary(book *build.Book, lib *Library) (build.Path, error) {
	c.libs = append(c.libs, lib)
	return lib.OutputDir.Join("lib" + lib.Name + ".so"), nil
}

func (c *recordingCompiler) AddCompileCommands(book *build.Book) (build.Path, error) {
	return build.Build("compile_commands.json"), nil
}

func TestAddLibrary(t *testing.T) {
	book := build.NewBook("/proj", "/proj/build")
	rc := &recordingCompiler{}
	c := New(book, rc, Options{CStd: C17, CxxStd: Cxx20})

	_, err := c.AddLibrary(LibraryOptions{
		ExecutableOptions: ExecutableOptions{
			Name:              "foo",
			OutputDir:         "foolib",
			Definitions:       map[string]string{"FOO_TEST_MACRO": "4"},
			PrecompiledHeader: "foo/include/pch.hpp",
			IncludePaths:      []string{"foo/include"},
			Src:               []string{"foo/foo.cpp", "foo/bar.cpp"},
		},
		Version:            "1.0.0",
		PrivateDefinitions: map[string]string{"EXPORT_FOO_API": ""},
		PrivateIncludes:    []string{"foo/private"},
	})
	if err != nil {
		t.Fatalf("AddLibrary: %v", err)
	}
	lib := rc.libs[0]

	if lib.Runtime != LangCxx || lib.Version != "1.0.0" || lib.OutputDir != build.Build("foolib") {
		t.Errorf("library = %+v", lib)
	}
	wantPublic := CompileInfo{
		IncludePaths: []string{filepath.Join("/proj", "foo", "include")},
		Definitions:  map[string]string{"FOO_TEST_MACRO": "4"},
	}
	if diff := cmp.Diff(wantPublic, lib.Public); diff != "" {
		t.Errorf("Public mismatch (-want +got):\n%s", diff)
	}

	tu := lib.Units[0]
	if tu.Std != Cxx20 || tu.PrecompiledHeader != build.Src("foo/include/pch.hpp") {
		t.Errorf("unit = %+v", tu)
	}
	wantIncludes := []string{filepath.Join("/proj", "foo", "include"), filepath.Join("/proj", "foo", "private")}
	if diff := cmp.Diff(wantIncludes, tu.IncludePaths); diff != "" {
		t.Errorf("unit includes mismatch (-want +got):\n%s", diff)
	}
	wantDefs := map[string]string{"FOO_TEST_MACRO": "4", "EXPORT_FOO_API": "", "NDEBUG": ""}
	if diff := cmp.Diff(wantDefs, tu.Definitions); diff != "" {
		t.Errorf("unit definitions mismatch (-want +got):\n%s", diff)
	}
}

func TestAddExecutableDefaults(t *testing.T) {
	book := build.NewBook("/proj", "/proj/build")
	rc := &recordingCompiler{}
	c := New(book, rc, Options{Debug: true, CStd: C17})

	_, err := c.AddExecutable(ExecutableOptions{
		Name: "hello",
		Src:  []string{"src/hello.c"},
		Link: []Linkable{Pkg("zlib")},
	})
	if err != nil {
		t.Fatalf("AddExecutable: %v", err)
	}
	exe := rc.exes[0]
	if exe.Runtime != LangC || !exe.Debug || exe.OutputDir != build.Build("") {
		t.Errorf("executable = %+v", exe)
	}
	tu := exe.Units[0]
	if diff := cmp.Diff([]string{filepath.Join("/proj", "include")}, tu.IncludePaths); diff != "" {
		t.Errorf("default includes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"DEBUG": ""}, tu.Definitions); diff != "" {
		t.Errorf("definitions mismatch (-want +got):\n%s", diff)
	}
	if !tu.PrecompiledHeader.IsZero() {
		t.Errorf("unexpected precompiled header %v", tu.PrecompiledHeader)
	}
}

func TestExplicitDebugDefinitionWins(t *testing.T) {
	rc := &recordingCompiler{}
	c := New(build.NewBook("/p", "/p/b"), rc, Options{Debug: true, CStd: C17})
	_, err := c.AddExecutable(ExecutableOptions{
		Name:        "hello",
		Src:         []string{"hello.c"},
		Definitions: map[string]string{"NDEBUG": "1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]string{"NDEBUG": "1"}, rc.exes[0].Units[0].Definitions); diff != "" {
		t.Errorf("definitions mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeErrors(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		exe  ExecutableOptions
	}{
		{"c without std", Options{CxxStd: Cxx17}, ExecutableOptions{Name: "a", Src: []string{"a.c"}}},
		{"c++ without std", Options{CStd: C17}, ExecutableOptions{Name: "a", Src: []string{"a.cc"}}},
		{"c++ std given as c std", Options{CStd: Cxx17}, ExecutableOptions{Name: "a", Src: []string{"a.c"}}},
		{"unknown extension", Options{CStd: C17}, ExecutableOptions{Name: "a", Src: []string{"a.f90"}}},
		{"no name", Options{CStd: C17}, ExecutableOptions{Src: []string{"a.c"}}},
		{"no sources", Options{CStd: C17}, ExecutableOptions{Name: "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := &recordingCompiler{}
			c := New(build.NewBook("/p", "/p/b"), rc, tt.opts)
			if _, err := c.AddExecutable(tt.exe); !errors.Is(err, build.ErrConfig) {
				t.Errorf("err = %v, want ErrConfig", err)
			}
			if len(rc.exes) != 0 {
				t.Error("compiler was called despite the error")
			}
		})
	}
}

func TestRuntimeLang(t *testing.T) {
	c := &TranslationUnit{Std: C17}
	cxx := &TranslationUnit{Std: Cxx17}
	if RuntimeLang([]*TranslationUnit{c, c}) != LangC {
		t.Error("all-C image is not C")
	}
	if RuntimeLang([]*TranslationUnit{c, cxx}) != LangCxx {
		t.Error("mixed image is not C++")
	}
}
