// Package vercmp compares version strings the way pkg-config does when it
// checks a "name >= version" query.
package vercmp

// Compare returns -1, 0 or 1 depending on whether a is older than, equal
// to or newer than b.
//
// Versions are split into runs of digits and runs of letters; any other
// character only separates runs. Digit runs compare numerically, letter
// runs compare bytewise, and a digit run is newer than a letter run. When
// one version runs out of segments first, the longer one is newer.
func Compare(a, b string) int {
	if a == b {
		return 0
	}
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		for i < len(a) && !isAlnum(a[i]) {
			i++
		}
		for j < len(b) && !isAlnum(b[j]) {
			j++
		}
		if i >= len(a) || j >= len(b) {
			break
		}

		si, sj := i, j
		numeric := isDigit(a[i])
		if numeric {
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			for j < len(b) && isDigit(b[j]) {
				j++
			}
		} else {
			for i < len(a) && isAlpha(a[i]) {
				i++
			}
			for j < len(b) && isAlpha(b[j]) {
				j++
			}
		}

		if sj == j {
			// b has a segment of the other kind here.
			if numeric {
				return 1
			}
			return -1
		}

		segA, segB := a[si:i], b[sj:j]
		if numeric {
			segA, segB = trimZeros(segA), trimZeros(segB)
			if len(segA) != len(segB) {
				if len(segA) > len(segB) {
					return 1
				}
				return -1
			}
		}
		if segA != segB {
			if segA < segB {
				return -1
			}
			return 1
		}
	}
	switch {
	case i >= len(a) && j >= len(b):
		return 0
	case i < len(a):
		return 1
	}
	return -1
}

func trimZeros(s string) string {
	for len(s) > 1 && s[0] == '0' {
		s = s[1:]
	}
	return s
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func isAlnum(c byte) bool { return isDigit(c) || isAlpha(c) }
