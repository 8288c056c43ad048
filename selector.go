package convkit

import (
	"fmt"

	"github.com/gobwas/glob"
)

// Selector filters the files a store lists.
type Selector interface {
	Match(file *FileInfo) bool
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(file *FileInfo) bool

func (f SelectorFunc) Match(file *FileInfo) bool { return f(file) }

// All returns a selector that matches all files.
func All() Selector {
	return SelectorFunc(func(*FileInfo) bool { return true })
}

type globSelector struct {
	g glob.Glob
}

// Glob compiles a store pattern. Paths are slash-separated: "*" and "?" do not
// cross a slash, "**" does, and "{a,b}" and "[a-z]" work as usual.
//
//	Glob("*.csv")           // CSV files at the root
//	Glob("**/*.{json,yml}") // JSON and YAML files in any subdirectory
//
// The empty pattern selects everything.
func Glob(pattern string) (Selector, error) {
	if pattern == "" {
		return All(), nil
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("%w: pattern %q: %v", ErrInvalidName, pattern, err)
	}
	return &globSelector{g: g}, nil
}

func (s *globSelector) Match(file *FileInfo) bool {
	return s.g.Match(file.Path)
}

// Filter returns the files sel matches, in order.
func Filter(files []FileInfo, sel Selector) []FileInfo {
	var out []FileInfo
	for i := range files {
		if sel.Match(&files[i]) {
			out = append(out, files[i])
		}
	}
	return out
}
