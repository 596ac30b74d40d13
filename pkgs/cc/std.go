package cc

import (
	"fmt"
	"strings"
)

// Lang is the language family of a translation unit or a linked image.
type Lang uint8

const (
	LangC Lang = iota + 1
	LangCxx
)

func (l Lang) String() string {
	switch l {
	case LangC:
		return "C"
	case LangCxx:
		return "C++"
	}
	return "unknown"
}

// Std is a language standard. Standards of one family are ordered by age;
// the zero Std means "no requirement" and is older than every standard.
type Std uint8

const (
	StdNone Std = iota

	C89
	C99
	C11
	C17

	Cxx98
	Cxx03
	Cxx11
	Cxx14
	Cxx17
	Cxx20
)

var stdNames = [...]string{
	StdNone: "",
	C89:     "C89",
	C99:     "C99",
	C11:     "C11",
	C17:     "C17",
	Cxx98:   "C++98",
	Cxx03:   "C++03",
	Cxx11:   "C++11",
	Cxx14:   "C++14",
	Cxx17:   "C++17",
	Cxx20:   "C++20",
}

// ParseStd parses a standard name such as "C17" or "c++20".
func ParseStd(s string) (Std, error) {
	for std, name := range stdNames {
		if name != "" && strings.EqualFold(name, s) {
			return Std(std), nil
		}
	}
	return StdNone, fmt.Errorf("unknown language standard %q", s)
}

func (s Std) String() string {
	if int(s) < len(stdNames) {
		return stdNames[s]
	}
	return fmt.Sprintf("Std(%d)", s)
}

// Lang returns the family of s.
func (s Std) Lang() Lang {
	switch {
	case s >= C89 && s <= C17:
		return LangC
	case s >= Cxx98 && s <= Cxx20:
		return LangCxx
	}
	return 0
}

// Flag returns the compiler flag selecting s, e.g. "-std=c17".
func (s Std) Flag() string {
	return "-std=" + strings.ToLower(s.String())
}

// MaxStd returns the newer of a and b. Both must be of the same family or
// StdNone.
func MaxStd(a, b Std) Std {
	if a < b {
		return b
	}
	return a
}
