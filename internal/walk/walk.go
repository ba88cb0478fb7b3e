// Package walk turns root arguments into an ordered sequence of hashing
// targets. Directory contents are emitted in lexicographic order of their
// slash-separated relative path, so output is stable across runs on an
// unchanged tree.
package walk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"sort"

	"hashcc/definitions"
	"hashcc/internal/archive"
	"hashcc/internal/policy"

	"github.com/rs/zerolog"
)

var (
	ErrRootNotFound = errors.New("root not found")
	ErrStdinMixed   = errors.New("stdin cannot be combined with other roots")
	ErrNoRoots      = errors.New("no roots given")
)

type Options struct {
	Include  []string
	Exclude  []string
	Archives bool
	Policy   policy.Policy
	Logger   zerolog.Logger
}

type Enumerator struct {
	opts   Options
	filter filter
	log    zerolog.Logger
	roots  []root
}

type root struct {
	arg      string
	path     string
	info     fs.FileInfo
	rejected error
}

type file struct {
	rel     string
	logical string
	path    string
	size    int64
	err     error
}

func New(opts Options) (*Enumerator, error) {
	f, err := newFilter(opts.Include, opts.Exclude)
	if err != nil {
		return nil, err
	}
	return &Enumerator{opts: opts, filter: f, log: opts.Logger}, nil
}

// Prepare validates the roots before any work is scheduled. A missing root
// is fatal; a root rejected by policy is not, and is later emitted as a
// failed target.
func (e *Enumerator) Prepare(args []string) error {
	const errCtx = "preparing roots"

	if len(args) == 0 {
		return fmt.Errorf("%s: %w", errCtx, ErrNoRoots)
	}

	roots := make([]root, 0, len(args))
	for _, arg := range args {
		if arg == definitions.StdinPath {
			if len(args) > 1 {
				return fmt.Errorf("%s: %w", errCtx, ErrStdinMixed)
			}
			roots = append(roots, root{arg: arg})
			continue
		}

		resolved, err := e.opts.Policy.Resolve(arg)
		if err != nil {
			if policy.IsViolation(err) {
				roots = append(roots, root{arg: arg, rejected: err})
				continue
			}
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		info, err := os.Stat(resolved)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%s: %w: %s", errCtx, ErrRootNotFound, arg)
			}
			return fmt.Errorf("%s: %w", errCtx, err)
		}
		roots = append(roots, root{arg: arg, path: resolved, info: info})
	}

	e.roots = roots
	return nil
}

// Targets yields every target of the prepared roots. Each call walks the
// tree again. Enumeration stops when ctx is done.
//
// Overlapping roots are walked once: a real path already visited through an
// earlier root is skipped, and no logical path is emitted twice.
func (e *Enumerator) Targets(ctx context.Context) iter.Seq[definitions.Target] {
	return func(yield func(definitions.Target) bool) {
		visited := map[string]struct{}{}
		emitted := map[string]struct{}{}
		emit := func(t definitions.Target) bool {
			if _, dup := emitted[t.LogicalPath]; dup {
				e.log.Debug().Str("path", t.LogicalPath).Msg("skipping duplicate path")
				return true
			}
			emitted[t.LogicalPath] = struct{}{}
			return yield(t)
		}

		for _, r := range e.roots {
			if ctx.Err() != nil {
				return
			}
			if !e.emitRoot(ctx, r, visited, emit) {
				return
			}
		}
	}
}

func (e *Enumerator) emitRoot(ctx context.Context, r root, visited map[string]struct{}, yield func(definitions.Target) bool) bool {
	logicalRoot := filepath.ToSlash(r.arg)

	switch {
	case r.rejected != nil:
		return yield(definitions.Target{
			LogicalPath: logicalRoot,
			Kind:        definitions.KindFile,
			Path:        r.arg,
			Size:        -1,
			Err:         r.rejected,
		})

	case r.arg == definitions.StdinPath:
		return yield(definitions.Target{
			LogicalPath: definitions.StdinPath,
			Kind:        definitions.KindStdin,
			Size:        -1,
		})
	}

	rel := path.Base(logicalRoot)
	if !r.info.IsDir() && !e.filter.accepts(candidates(rel, logicalRoot)...) {
		return true
	}
	if real, err := filepath.EvalSymlinks(r.path); err == nil {
		if _, seen := visited[real]; seen {
			e.log.Debug().Str("path", logicalRoot).Msg("skipping root already covered")
			return true
		}
		visited[real] = struct{}{}
	}
	if !r.info.IsDir() {
		return e.emitFile(ctx, file{rel: rel, logical: logicalRoot, path: r.path, size: r.info.Size()}, yield)
	}

	var files []file
	e.collect(ctx, r.path, "", logicalRoot, visited, &files)

	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })

	for _, f := range files {
		if ctx.Err() != nil {
			return false
		}
		if !e.emitFile(ctx, f, yield) {
			return false
		}
	}
	return true
}

// collect walks dir depth first. Symlinks are followed, but every resolved
// real path is visited at most once, which also breaks cycles.
func (e *Enumerator) collect(ctx context.Context, dir, rel, logicalRoot string, visited map[string]struct{}, out *[]file) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		*out = append(*out, file{rel: rel, logical: joinLogical(logicalRoot, rel), path: dir, err: err})
		return
	}

	for _, de := range entries {
		if ctx.Err() != nil {
			return
		}

		childRel := path.Join(rel, de.Name())
		childPath := filepath.Join(dir, de.Name())
		logical := joinLogical(logicalRoot, childRel)

		info, err := os.Stat(childPath)
		if err != nil {
			// Broken symlink or a file removed mid-walk.
			if e.filter.accepts(candidates(childRel, logical)...) {
				*out = append(*out, file{rel: childRel, logical: logical, path: childPath, err: err})
			}
			continue
		}

		switch {
		case info.IsDir():
			if e.filter.prunes(childRel, logical) {
				continue
			}
			real, err := filepath.EvalSymlinks(childPath)
			if err != nil {
				*out = append(*out, file{rel: childRel, logical: logical, path: childPath, err: err})
				continue
			}
			if _, seen := visited[real]; seen {
				e.log.Debug().Str("path", logical).Msg("skipping already visited directory")
				continue
			}
			visited[real] = struct{}{}
			if err := e.opts.Policy.Contains(real); err != nil {
				*out = append(*out, file{rel: childRel, logical: logical, path: childPath, err: err})
				continue
			}
			e.collect(ctx, childPath, childRel, logicalRoot, visited, out)

		case info.Mode().IsRegular():
			if !e.filter.accepts(candidates(childRel, logical)...) {
				continue
			}
			real, err := filepath.EvalSymlinks(childPath)
			if err != nil {
				*out = append(*out, file{rel: childRel, logical: logical, path: childPath, err: err})
				continue
			}
			if _, seen := visited[real]; seen {
				e.log.Debug().Str("path", logical).Msg("skipping already visited file")
				continue
			}
			visited[real] = struct{}{}
			f := file{rel: childRel, logical: logical, path: childPath, size: info.Size()}
			if err := e.opts.Policy.Contains(real); err != nil {
				f.err = err
			}
			*out = append(*out, f)

		default:
			e.log.Debug().Str("path", logical).Str("mode", info.Mode().String()).Msg("skipping non-regular file")
		}
	}
}

func (e *Enumerator) emitFile(ctx context.Context, f file, yield func(definitions.Target) bool) bool {
	if f.err != nil {
		return yield(definitions.Target{LogicalPath: f.logical, Kind: definitions.KindFile, Path: f.path, Size: -1, Err: f.err})
	}

	format := archive.Detect(f.path)
	if !e.opts.Archives || format == archive.FormatNone {
		return yield(definitions.Target{LogicalPath: f.logical, Kind: definitions.KindFile, Path: f.path, Size: f.size})
	}

	entries, err := archive.List(f.path, format)
	for _, entry := range entries {
		if ctx.Err() != nil {
			return false
		}
		vp := archive.VirtualPath(f.logical, entry.Name)
		if !e.filter.accepts(entry.Name, "/"+entry.Name, vp) {
			continue
		}
		ok := yield(definitions.Target{
			LogicalPath: vp,
			Kind:        definitions.KindArchiveEntry,
			Path:        f.path,
			Entry:       entry.Name,
			Open:        entry.Open,
			Size:        entry.Size,
		})
		if !ok {
			return false
		}
	}
	if err != nil {
		e.log.Warn().Err(err).Str("path", f.logical).Msg("archive could not be read completely")
		return yield(definitions.Target{LogicalPath: f.logical, Kind: definitions.KindFile, Path: f.path, Size: -1, Err: err})
	}
	return true
}

func joinLogical(logicalRoot, rel string) string {
	if rel == "" {
		return logicalRoot
	}
	return path.Join(logicalRoot, rel)
}
