// Package depfile reads and writes make-style dependency files such as the
// ones produced by "cc -MD -MF".
package depfile

import (
	"fmt"
	"os"
	"strings"
)

// Parse returns the prerequisites of the single rule in contents, in the
// order they appear. The target and its separator are dropped; duplicates
// are kept. Lines continued with a trailing backslash are joined first, so
// "a: b c" and "a: b \<newline> c" parse the same.
//
// Parse does not validate its input: it expects well-formed output from a
// compiler.
func Parse(contents string) []string {
	contents = strings.ReplaceAll(contents, "\\\r\n", " ")
	contents = strings.ReplaceAll(contents, "\\\n", " ")
	_, prereqs, ok := cutTarget(contents)
	if !ok {
		return nil
	}
	return strings.Fields(prereqs)
}

// cutTarget splits contents at the target separator. A colon followed by
// a path separator belongs to a Windows drive letter, not to the rule.
func cutTarget(contents string) (target, prereqs string, ok bool) {
	for i := 0; i < len(contents); i++ {
		if contents[i] != ':' {
			continue
		}
		if i+1 < len(contents) && (contents[i+1] == '\\' || contents[i+1] == '/') {
			continue
		}
		return contents[:i], contents[i+1:], true
	}
	return "", "", false
}

// Write creates filename with a gcc-style rule stating that target depends
// on deps.
func Write(filename, target string, deps []string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if len(deps) == 0 {
		_, err = fmt.Fprintf(f, "%s:\n", target)
	} else {
		_, err = fmt.Fprintf(f, "%s: \\\n %s\n", target, strings.Join(deps, " \\\n "))
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Read parses the dependency file at filename.
func Read(filename string) ([]string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(string(data)), nil
}
