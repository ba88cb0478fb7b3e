package walk

import (
	"fmt"

	"github.com/gobwas/glob"
)

// filter holds compiled include/exclude globs. Patterns use '/' as the
// separator, so '*' stays within one path segment and '**' crosses them.
type filter struct {
	include []glob.Glob
	exclude []glob.Glob
}

func newFilter(include, exclude []string) (filter, error) {
	var f filter
	for _, p := range include {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return filter{}, fmt.Errorf("invalid include pattern %q: %w", p, err)
		}
		f.include = append(f.include, g)
	}
	for _, p := range exclude {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return filter{}, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		f.exclude = append(f.exclude, g)
	}
	return f, nil
}

func matchAny(globs []glob.Glob, paths ...string) bool {
	for _, g := range globs {
		for _, c := range paths {
			if c != "" && g.Match(c) {
				return true
			}
		}
	}
	return false
}

// candidates are the strings a path is matched as. The rooted form lets
// "**/x" patterns match entries at the top of a root.
func candidates(rel, logical string) []string {
	return []string{rel, "/" + rel, logical}
}

// accepts applies exclude first, then include. An empty include list
// accepts everything not excluded.
func (f filter) accepts(paths ...string) bool {
	if matchAny(f.exclude, paths...) {
		return false
	}
	if len(f.include) == 0 {
		return true
	}
	return matchAny(f.include, paths...)
}

// prunes reports whether a directory is excluded as a whole.
func (f filter) prunes(rel, logical string) bool {
	return matchAny(f.exclude, rel, rel+"/", "/"+rel+"/", logical, logical+"/")
}
