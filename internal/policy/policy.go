// Package policy decides which paths and algorithms an invocation may use.
// It is applied to every generated target and to every path named by a
// checksum file, so an attacker-controlled sumfile cannot make the tool read
// outside the configured base directory.
package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hashcc/internal/digest"
)

var (
	ErrAbsolutePath  = errors.New("absolute path not allowed")
	ErrPathTraversal = errors.New("path escapes base dir")
	ErrWeakAlgorithm = errors.New("weak algorithm not allowed")
)

// ViolationError reports a rejected path. It unwraps to one of the
// package sentinels.
type ViolationError struct {
	Path string
	Err  error
}

func (e *ViolationError) Error() string { return e.Err.Error() + ": " + e.Path }

func (e *ViolationError) Unwrap() error { return e.Err }

// IsViolation reports whether err is a policy rejection.
func IsViolation(err error) bool {
	var v *ViolationError
	return errors.As(err, &v) || errors.Is(err, ErrWeakAlgorithm)
}

// Policy is immutable once built.
type Policy struct {
	baseDir       string
	allowAbsolute bool
	allowWeak     bool
}

// New resolves baseDir to an absolute, symlink-free directory. An empty
// baseDir disables containment checks.
func New(baseDir string, allowAbsolute, allowWeak bool) (Policy, error) {
	const errCtx = "building policy"

	p := Policy{allowAbsolute: allowAbsolute, allowWeak: allowWeak}
	if baseDir == "" {
		return p, nil
	}

	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return Policy{}, fmt.Errorf("%s: %w", errCtx, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return Policy{}, fmt.Errorf("%s: cannot resolve base dir: %w", errCtx, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return Policy{}, fmt.Errorf("%s: %w", errCtx, err)
	}
	if !info.IsDir() {
		return Policy{}, fmt.Errorf("%s: base dir is not a directory: %s", errCtx, baseDir)
	}

	p.baseDir = resolved
	return p, nil
}

func (p Policy) BaseDir() string { return p.baseDir }

func (p Policy) CheckAlgorithm(alg digest.Algorithm) error {
	if alg.Weak() && !p.allowWeak {
		return fmt.Errorf("%w: %s (pass allow_weak to proceed)", ErrWeakAlgorithm, alg)
	}
	return nil
}

// Resolve validates candidate and returns the path to open. Relative
// candidates are joined onto the base dir when one is configured. Nothing is
// read; existing path components are only resolved through symlinks.
func (p Policy) Resolve(candidate string) (string, error) {
	if filepath.IsAbs(candidate) && !p.allowAbsolute {
		return "", &ViolationError{Path: candidate, Err: ErrAbsolutePath}
	}
	if p.baseDir == "" {
		return filepath.Clean(candidate), nil
	}

	joined := candidate
	if !filepath.IsAbs(joined) {
		joined = filepath.Join(p.baseDir, joined)
	}
	joined = filepath.Clean(joined)

	if !within(p.baseDir, joined) {
		return "", &ViolationError{Path: candidate, Err: ErrPathTraversal}
	}

	resolved, err := evalExisting(joined)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", candidate, err)
	}
	if !within(p.baseDir, resolved) {
		return "", &ViolationError{Path: candidate, Err: ErrPathTraversal}
	}
	return joined, nil
}

// Contains checks an already resolved, symlink-free path against the base
// dir.
func (p Policy) Contains(realPath string) error {
	if p.baseDir == "" {
		return nil
	}
	if !within(p.baseDir, realPath) {
		return &ViolationError{Path: realPath, Err: ErrPathTraversal}
	}
	return nil
}

func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

// evalExisting resolves symlinks in the longest existing prefix of path and
// re-appends the missing tail.
func evalExisting(path string) (string, error) {
	var tail []string
	cur := path
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return path, nil
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}
