package cc

import (
	"fmt"
	"sort"

	"github.com/goplus/llbuild/pkgs/build"
)

// CompileInfo is what a translation unit needs to compile: the minimum
// standards, include search paths and preprocessor definitions. Libraries
// export one to everything that links them.
type CompileInfo struct {
	CStd         Std
	CxxStd       Std
	IncludePaths []string
	Definitions  map[string]string
}

// Clone returns a deep copy of info.
func (info *CompileInfo) Clone() *CompileInfo {
	c := &CompileInfo{
		CStd:         info.CStd,
		CxxStd:       info.CxxStd,
		IncludePaths: append([]string(nil), info.IncludePaths...),
		Definitions:  make(map[string]string, len(info.Definitions)),
	}
	for k, v := range info.Definitions {
		c.Definitions[k] = v
	}
	return c
}

// Merge folds add into info: each standard becomes the newer of the two,
// include paths are unioned and definitions from add replace same-named
// ones in info (last writer wins; colliding values are not reported).
func (info *CompileInfo) Merge(add *CompileInfo) {
	if add == nil {
		return
	}
	info.CStd = MaxStd(info.CStd, add.CStd)
	info.CxxStd = MaxStd(info.CxxStd, add.CxxStd)

	seen := make(map[string]bool, len(info.IncludePaths))
	for _, p := range info.IncludePaths {
		seen[p] = true
	}
	for _, p := range add.IncludePaths {
		if !seen[p] {
			seen[p] = true
			info.IncludePaths = append(info.IncludePaths, p)
		}
	}

	if len(add.Definitions) > 0 && info.Definitions == nil {
		info.Definitions = make(map[string]string, len(add.Definitions))
	}
	for k, v := range add.Definitions {
		info.Definitions[k] = v
	}
}

// Required returns the minimum standard info imposes on units of lang.
func (info *CompileInfo) Required(lang Lang) Std {
	if lang == LangCxx {
		return info.CxxStd
	}
	return info.CStd
}

// DefinitionArgs returns -D flags for the definitions, sorted by name.
func (info *CompileInfo) DefinitionArgs() []string {
	if len(info.Definitions) == 0 {
		return nil
	}
	keys := make([]string, 0, len(info.Definitions))
	for k := range info.Definitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, "-D"+k+"="+info.Definitions[k])
	}
	return args
}

// IncludeArgs returns -I flags for the include paths.
func (info *CompileInfo) IncludeArgs() []string {
	args := make([]string, 0, len(info.IncludePaths))
	for _, p := range info.IncludePaths {
		args = append(args, "-I"+p)
	}
	return args
}

// StdTooLowError reports a unit declared at an older standard than one of
// the libraries it links requires.
type StdTooLowError struct {
	Unit     string
	Std      Std
	Required Std
}

func (e *StdTooLowError) Error() string {
	return fmt.Sprintf("%s: compiled as %s but a linked library requires at least %s", e.Unit, e.Std, e.Required)
}

func (e *StdTooLowError) Is(target error) bool {
	return target == build.ErrConfig
}

// Effective returns the CompileInfo tu is compiled with: its own info
// merged with deps, the combined info of the libraries it links. It fails
// if tu's standard is older than deps require, since a unit cannot be
// down-leveled below what a dependency's headers need.
func Effective(tu *TranslationUnit, deps *CompileInfo) (*CompileInfo, error) {
	info := tu.CompileInfo()
	if deps == nil {
		return info, nil
	}
	lang := tu.Lang()
	if req := deps.Required(lang); MaxStd(tu.Std, req) != tu.Std {
		return nil, &StdTooLowError{Unit: tu.Src.Rel(), Std: tu.Std, Required: req}
	}
	info.Merge(deps)
	return info, nil
}
