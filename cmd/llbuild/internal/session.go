package internal

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/goplus/llbuild/internal/project"
	"github.com/goplus/llbuild/pkgs/build"
	"github.com/goplus/llbuild/pkgs/cc"
	"github.com/goplus/llbuild/pkgs/cc/clang"
	"github.com/goplus/llbuild/pkgs/pkgconfig"
	"golang.org/x/term"
)

// session is one loaded project with its rules added to a book.
type session struct {
	project *project.Project
	book    *build.Book
	outputs []build.Path
}

func resolveDirs() (srcDir, buildDir string, err error) {
	srcDir, err = filepath.Abs(srcDirFlag)
	if err != nil {
		return "", "", err
	}
	buildDir = buildDirFlag
	if buildDir == "" {
		buildDir = filepath.Join(srcDir, "build")
	}
	buildDir, err = filepath.Abs(buildDir)
	return srcDir, buildDir, err
}

func loadSession(debug bool) (*session, error) {
	srcDir, buildDir, err := resolveDirs()
	if err != nil {
		return nil, err
	}
	proj, err := project.Load(filepath.Join(srcDir, project.DefaultFile), project.Vars{
		OS:    runtime.GOOS,
		Arch:  runtime.GOARCH,
		Debug: debug,
	})
	if err != nil {
		return nil, err
	}

	book := build.NewBook(srcDir, buildDir)
	resolver := pkgconfig.NewResolver(book, pkgconfig.WithManifest(proj.Manifest))
	compiler := clang.New(resolver, clang.WithColor(isTerminal(os.Stderr)))
	outputs, err := proj.AddRules(cc.New(book, compiler, proj.Options))
	if err != nil {
		return nil, err
	}
	return &session{project: proj, book: book, outputs: outputs}, nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
