package pkgconfig

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/goplus/llbuild/pkgs/build"
	"github.com/goplus/llbuild/pkgs/build/buildtest"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newBook(t *testing.T, manifest string) *build.Book {
	t.Helper()
	src := t.TempDir()
	if manifest != "" {
		writeFile(t, filepath.Join(src, DefaultManifest), manifest)
	}
	return build.NewBook(src, filepath.Join(src, "build"))
}

func TestParseConstraint(t *testing.T) {
	tests := []struct {
		in      string
		want    Constraint
		wantErr bool
	}{
		{">= 1.2.11", Constraint{">=", "1.2.11"}, false},
		{">=1.2.11", Constraint{">=", "1.2.11"}, false},
		{"= 3.0", Constraint{"=", "3.0"}, false},
		{"!= 2", Constraint{"!=", "2"}, false},
		{"< 4", Constraint{"<", "4"}, false},
		{"1.2", Constraint{">=", "1.2"}, false},
		{"", Constraint{}, true},
		{">=", Constraint{}, true},
		{">= 1 2", Constraint{}, true},
		{"=> 1", Constraint{}, true},
		{"==1.0", Constraint{}, true},
		{">= =1.0", Constraint{}, true},
		{"<=>2", Constraint{}, true},
	}
	for _, tt := range tests {
		got, err := ParseConstraint(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseConstraint(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseConstraint(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestConstraintAllows(t *testing.T) {
	tests := []struct {
		c       string
		version string
		want    bool
	}{
		{">= 1.2.11", "1.2.13", true},
		{">= 1.2.11", "1.2.9", false},
		{">= 1.2", "v1.10.0", true},
		{"< 3.0", "2.99", true},
		{"= 1.0", "1.0", true},
		{"!= 1.0", "1.0", false},
		{"> 1.0a", "1.0", false},
	}
	for _, tt := range tests {
		c, err := ParseConstraint(tt.c)
		if err != nil {
			t.Fatal(err)
		}
		if got := c.Allows(tt.version); got != tt.want {
			t.Errorf("%q.Allows(%q) = %v, want %v", tt.c, tt.version, got, tt.want)
		}
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "pkgconfig.json")
	writeFile(t, jsonPath, `{"dependencies": {"zlib": ">= 1.2", "sqlite3": "3.40"}}`)
	m, err := LoadManifest(jsonPath)
	if err != nil {
		t.Fatalf("LoadManifest(json): %v", err)
	}
	if diff := cmp.Diff([]string{"sqlite3", "zlib"}, m.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
	if c, _ := m.Constraint("sqlite3"); c.Query("sqlite3") != "sqlite3 >= 3.40" {
		t.Errorf("sqlite3 query = %q", c.Query("sqlite3"))
	}

	yamlPath := filepath.Join(dir, "pkgconfig.yaml")
	writeFile(t, yamlPath, "dependencies:\n  zlib: \">= 1.2\"\n  libpng: \"= 1.6.43\"\n")
	m, err = LoadManifest(yamlPath)
	if err != nil {
		t.Fatalf("LoadManifest(yaml): %v", err)
	}
	if c, ok := m.Constraint("libpng"); !ok || c != (Constraint{"=", "1.6.43"}) {
		t.Errorf("libpng constraint = %+v, %v", c, ok)
	}

	badPath := filepath.Join(dir, "bad.json")
	writeFile(t, badPath, `{"dependencies": {"zlib": ""}}`)
	if _, err := LoadManifest(badPath); !errors.Is(err, build.ErrConfig) {
		t.Errorf("LoadManifest(bad) err = %v, want ErrConfig", err)
	}

	writeFile(t, badPath, `{"dependencies": {"zlib": "==1.0"}}`)
	if _, err := LoadManifest(badPath); !errors.Is(err, build.ErrConfig) || !strings.Contains(err.Error(), "zlib") {
		t.Errorf("LoadManifest(==1.0) err = %v, want ErrConfig naming zlib", err)
	}
}

func TestQueriesExternal(t *testing.T) {
	book := newBook(t, `{"dependencies": {"zlib": ">= 1.2.11"}}`)
	r := NewResolver(book)

	got, err := r.Queries([]Ref{NameRef("zlib"), PathRef(build.Src("third_party/x.pc"))})
	if err != nil {
		t.Fatalf("Queries: %v", err)
	}
	want := []string{"zlib >= 1.2.11", filepath.Join(book.SrcDir(), "third_party", "x.pc")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Queries mismatch (-want +got):\n%s", diff)
	}
}

func TestLocalShadowsManifest(t *testing.T) {
	book := newBook(t, `{"dependencies": {"foo": ">= 9.0"}}`)
	r := NewResolver(book)

	pc, err := r.Export(Package{Name: "foo", Version: "1.0.0"})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	for _, ref := range []Ref{NameRef("foo"), NameRef(pc.Rel()), PathRef(pc)} {
		got, err := r.Queries([]Ref{ref})
		if err != nil {
			t.Fatalf("Queries(%v): %v", ref, err)
		}
		if want := []string{book.Abs(pc)}; !cmp.Equal(want, got) {
			t.Errorf("Queries(%v) = %q, want %q", ref, got, want)
		}
	}
}

func TestLocalDoesNotNeedManifest(t *testing.T) {
	book := newBook(t, "")
	r := NewResolver(book)
	pc, err := r.Export(Package{Name: "foo", Version: "1.0.0"})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	got, err := r.Queries([]Ref{NameRef("foo")})
	if err != nil {
		t.Fatalf("Queries: %v", err)
	}
	if want := []string{book.Abs(pc)}; !cmp.Equal(want, got) {
		t.Errorf("Queries = %q, want %q", got, want)
	}
}

func TestUnknownLibraryDoesNotSpawn(t *testing.T) {
	book := newBook(t, `{"dependencies": {"zlib": ">= 1.2.11"}}`)
	r := NewResolver(book)
	sp := buildtest.NewSpawner()

	_, err := r.Cflags(context.Background(), sp, []Ref{NameRef("zlib"), NameRef("sqlite3")})
	if !errors.Is(err, build.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
	if !strings.Contains(err.Error(), "sqlite3") {
		t.Errorf("error %q does not name the library", err)
	}
	if n := len(sp.Cmds()); n != 0 {
		t.Errorf("spawned %d processes, want 0", n)
	}
}

func TestMissingManifest(t *testing.T) {
	book := newBook(t, "")
	r := NewResolver(book)
	if err := r.Check([]Ref{NameRef("zlib")}); !errors.Is(err, build.ErrConfig) {
		t.Errorf("Check err = %v, want ErrConfig", err)
	}
}

func TestFlags(t *testing.T) {
	book := newBook(t, `{"dependencies": {"zlib": ">= 1.2.11", "sqlite3": "3.40"}}`)
	r := NewResolver(book)
	sp := buildtest.NewSpawner()
	sp.Reply("pkg-config", "-I/opt/zlib/include  -I/opt/sqlite/include\n")

	flags, err := r.Cflags(context.Background(), sp, []Ref{NameRef("zlib"), NameRef("sqlite3")})
	if err != nil {
		t.Fatalf("Cflags: %v", err)
	}
	if diff := cmp.Diff([]string{"-I/opt/zlib/include", "-I/opt/sqlite/include"}, flags); diff != "" {
		t.Errorf("flags mismatch (-want +got):\n%s", diff)
	}

	cmds := sp.Named("pkg-config")
	if len(cmds) != 1 {
		t.Fatalf("spawned pkg-config %d times, want one batch", len(cmds))
	}
	wantArgs := []string{"--cflags", "zlib >= 1.2.11", "sqlite3 >= 3.40"}
	if diff := cmp.Diff(wantArgs, cmds[0].Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	pcPath := cmds[0].Env["PKG_CONFIG_PATH"]
	if !strings.Contains(pcPath, book.BuildDir()) || !strings.Contains(pcPath, book.SrcDir()) {
		t.Errorf("PKG_CONFIG_PATH = %q, want build and source dirs", pcPath)
	}
}

func TestFlagsFailure(t *testing.T) {
	book := newBook(t, `{"dependencies": {"zlib": ">= 1.2.11"}}`)
	r := NewResolver(book)
	sp := buildtest.NewSpawner()
	const stderr = "Package zlib was not found in the pkg-config search path.\n"
	sp.Fail("pkg-config", stderr)

	flags, err := r.Libs(context.Background(), sp, []Ref{NameRef("zlib")})
	var exitErr *build.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("err = %v, want *build.ExitError", err)
	}
	if exitErr.Stderr != stderr {
		t.Errorf("Stderr = %q, want %q", exitErr.Stderr, stderr)
	}
	if flags != nil {
		t.Errorf("flags = %q, want none", flags)
	}
}

func TestFlagsNoRefs(t *testing.T) {
	r := NewResolver(newBook(t, ""))
	sp := buildtest.NewSpawner()
	flags, err := r.Libs(context.Background(), sp, nil)
	if err != nil || flags != nil {
		t.Errorf("Libs(nil) = %q, %v", flags, err)
	}
	if len(sp.Cmds()) != 0 {
		t.Error("spawned pkg-config without refs")
	}
}

func TestExport(t *testing.T) {
	book := newBook(t, "")
	r := NewResolver(book)
	pkg := Package{
		Name:    "foo",
		Version: "1.0.0",
		Cflags:  []string{"-I/src/foo/include", "-DFOO_TEST_MACRO=4"},
		Libs:    []string{"-L/build/foolib", "-lfoo"},
	}
	pc, err := r.Export(pkg)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if pc != build.Build("pkgconfig/foo.pc") {
		t.Errorf("descriptor path = %v", pc)
	}
	if _, err := r.Export(pkg); !errors.Is(err, build.ErrConfig) {
		t.Errorf("second Export err = %v, want ErrConfig", err)
	}
	if _, err := r.Export(Package{Name: "bar"}); !errors.Is(err, build.ErrConfig) {
		t.Errorf("Export without version err = %v, want ErrConfig", err)
	}

	rule, ok := book.Producer(pc)
	if !ok {
		t.Fatal("no rule produces the descriptor")
	}
	if err := rule.Recipe(context.Background(), build.NewRecipeArgs(book, nil, nil)); err != nil {
		t.Fatalf("Recipe: %v", err)
	}
	data, err := os.ReadFile(book.Abs(pc))
	if err != nil {
		t.Fatal(err)
	}
	want := "Name: foo\n" +
		"Version: 1.0.0\n" +
		"Description: foo library\n" +
		"Cflags: -I/src/foo/include -DFOO_TEST_MACRO=4\n" +
		"Libs: -L/build/foolib -lfoo\n"
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("descriptor mismatch (-want +got):\n%s", diff)
	}
}

func TestFlagsE2E(t *testing.T) {
	if _, err := exec.LookPath("pkg-config"); err != nil {
		t.Skip("pkg-config not found in PATH")
	}
	book := newBook(t, "")
	r := NewResolver(book)
	pc, err := r.Export(Package{Name: "llbuildtest", Version: "1.0.0", Cflags: []string{"-DLLBUILD_TEST=1"}, Libs: []string{"-lllbuildtest"}})
	if err != nil {
		t.Fatal(err)
	}
	rule, _ := book.Producer(pc)
	if err := rule.Recipe(context.Background(), build.NewRecipeArgs(book, nil, nil)); err != nil {
		t.Fatal(err)
	}

	flags, err := r.Cflags(context.Background(), build.ExecSpawner{}, []Ref{NameRef("llbuildtest")})
	if err != nil {
		t.Fatalf("Cflags: %v", err)
	}
	if diff := cmp.Diff([]string{"-DLLBUILD_TEST=1"}, flags); diff != "" {
		t.Errorf("flags mismatch (-want +got):\n%s", diff)
	}
}
