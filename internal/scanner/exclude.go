package scanner

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strings"
)

// Matcher evaluates gitignore-style exclusion patterns against slash
// separated paths relative to a scan root.
//
// Supported syntax: "dir/" (directories only), "*.ext" and other path.Match
// globs per segment, "**" for any number of segments, a leading "/" or an
// inner "/" to anchor at the base, and "!" to re-include. The last matching
// pattern wins. A matching directory excludes everything beneath it.
type Matcher struct {
	rules []rule
}

type rule struct {
	segments []string
	base     string
	negate   bool
	dirOnly  bool
	anchored bool
}

// NewMatcher compiles patterns that apply from the scan root.
func NewMatcher(patterns ...string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		m.Add(p, "")
	}
	return m
}

// Add compiles one pattern. base restricts it to paths under that
// directory (used for nested .gitignore files). Blank lines and comments
// are ignored.
func (m *Matcher) Add(pattern, base string) {
	p := strings.TrimRight(pattern, " \t\r")
	if p == "" || strings.HasPrefix(p, "#") {
		return
	}

	r := rule{base: strings.Trim(base, "/")}
	switch {
	case strings.HasPrefix(p, `\!`), strings.HasPrefix(p, `\#`):
		p = p[1:]
	case strings.HasPrefix(p, "!"):
		r.negate = true
		p = p[1:]
	}
	if strings.HasSuffix(p, "/") {
		r.dirOnly = true
		p = strings.TrimRight(p, "/")
	}
	if strings.HasPrefix(p, "/") {
		r.anchored = true
		p = strings.TrimLeft(p, "/")
	} else if strings.Contains(p, "/") && !strings.HasPrefix(p, "**/") {
		r.anchored = true
	}
	if p == "" {
		return
	}

	r.segments = strings.Split(p, "/")
	m.rules = append(m.rules, r)
}

// AddFile reads patterns from a .gitignore-format file.
func (m *Matcher) AddFile(file, base string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.Add(sc.Text(), base)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read ignore file: %w", err)
	}
	return nil
}

// Len returns the number of compiled patterns.
func (m *Matcher) Len() int {
	return len(m.rules)
}

// Match reports whether rel (slash separated) is excluded.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = strings.Trim(path.Clean("/"+rel), "/")
	if rel == "" {
		return false
	}
	segs := strings.Split(rel, "/")

	excluded := false
	for _, r := range m.rules {
		if r.match(segs, isDir) {
			excluded = !r.negate
		}
	}
	return excluded
}

func (r rule) match(segs []string, isDir bool) bool {
	if r.base != "" {
		baseSegs := strings.Split(r.base, "/")
		if len(segs) <= len(baseSegs) {
			return false
		}
		for i, b := range baseSegs {
			if segs[i] != b {
				return false
			}
		}
		segs = segs[len(baseSegs):]
	}

	last := len(segs)
	starts := last
	if r.anchored {
		starts = 1
	}
	for start := 0; start < starts; start++ {
		for _, n := range consumed(r.segments, segs[start:]) {
			if n == 0 {
				continue
			}
			end := start + n
			if r.dirOnly && end == last && !isDir {
				continue
			}
			return true
		}
	}
	return false
}

// consumed returns every count of leading segments of segs that pattern
// can match completely.
func consumed(pattern, segs []string) []int {
	if len(pattern) == 0 {
		return []int{0}
	}

	var out []int
	if pattern[0] == "**" {
		for skip := 0; skip <= len(segs); skip++ {
			for _, n := range consumed(pattern[1:], segs[skip:]) {
				out = append(out, skip+n)
			}
		}
		return out
	}

	if len(segs) == 0 {
		return nil
	}
	if ok, _ := path.Match(pattern[0], segs[0]); !ok {
		return nil
	}
	for _, n := range consumed(pattern[1:], segs[1:]) {
		out = append(out, n+1)
	}
	return out
}
