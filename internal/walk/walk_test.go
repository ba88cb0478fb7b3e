package walk_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"hashcc/definitions"
	"hashcc/internal/policy"
	"hashcc/internal/walk"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, root string, rel ...string) {
	t.Helper()
	for _, r := range rel {
		p := filepath.Join(root, filepath.FromSlash(r))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(r), 0o600))
	}
}

func basePolicy(t *testing.T, base string) policy.Policy {
	t.Helper()
	p, err := policy.New(base, false, false)
	require.NoError(t, err)
	return p
}

func collect(t *testing.T, opts walk.Options, roots ...string) []definitions.Target {
	t.Helper()

	e, err := walk.New(opts)
	require.NoError(t, err)
	require.NoError(t, e.Prepare(roots))

	var out []definitions.Target
	for target := range e.Targets(context.Background()) {
		out = append(out, target)
	}
	return out
}

func logical(targets []definitions.Target) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.LogicalPath)
	}
	return out
}

func TestTargets_lexicographic_order(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	touch(t, base, "b.txt", "a/z.txt", "a/b.txt", "c/d/e.txt", "A.txt", "a.txt")

	targets := collect(t, walk.Options{Policy: basePolicy(t, base)}, ".")
	assert.Equal(t, []string{"A.txt", "a.txt", "a/b.txt", "a/z.txt", "b.txt", "c/d/e.txt"}, logical(targets))

	for _, target := range targets {
		assert.Equal(t, definitions.KindFile, target.Kind)
		assert.NoError(t, target.Err)
		assert.Positive(t, target.Size)
	}

	// Restartable.
	again := collect(t, walk.Options{Policy: basePolicy(t, base)}, ".")
	assert.Equal(t, logical(targets), logical(again))
}

func TestTargets_logical_paths_carry_root(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	touch(t, base, "data/x.bin", "data/sub/y.bin", "top.txt")

	targets := collect(t, walk.Options{Policy: basePolicy(t, base)}, "data", "top.txt")
	assert.Equal(t, []string{"data/sub/y.bin", "data/x.bin", "top.txt"}, logical(targets))
}

func TestTargets_overlapping_roots_emit_once(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	touch(t, base, "a.txt", "dir/x.txt", "dir/sub/y.txt")
	opts := walk.Options{Policy: basePolicy(t, base)}

	tests := []struct {
		name  string
		roots []string
		want  []string
	}{
		{"same file twice", []string{"a.txt", "a.txt"}, []string{"a.txt"}},
		{"file then its directory", []string{"a.txt", "."}, []string{"a.txt", "dir/sub/y.txt", "dir/x.txt"}},
		{"dot prefixed alias", []string{"a.txt", "./a.txt"}, []string{"a.txt"}},
		{"directory then subdirectory", []string{"dir", "dir/sub"}, []string{"dir/sub/y.txt", "dir/x.txt"}},
		{"subdirectory then directory", []string{"dir/sub", "dir"}, []string{"dir/sub/y.txt", "dir/x.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, logical(collect(t, opts, tt.roots...)))
		})
	}
}

func TestTargets_include_exclude(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	touch(t, base, "keep.txt", "skip.log", "a/inner.txt", "a/inner.log", "b/deep/c.txt", "vendor/v.txt")

	tests := []struct {
		name    string
		include []string
		exclude []string
		want    []string
	}{
		{
			name: "everything",
			want: []string{"a/inner.log", "a/inner.txt", "b/deep/c.txt", "keep.txt", "skip.log", "vendor/v.txt"},
		},
		{
			name:    "include only",
			include: []string{"**/*.txt"},
			want:    []string{"a/inner.txt", "b/deep/c.txt", "keep.txt", "vendor/v.txt"},
		},
		{
			name:    "exclude beats include",
			include: []string{"**/*.txt"},
			exclude: []string{"vendor/**", "a/inner.txt"},
			want:    []string{"b/deep/c.txt", "keep.txt"},
		},
		{
			name:    "star stays within one segment",
			exclude: []string{"*.log"},
			want:    []string{"a/inner.log", "a/inner.txt", "b/deep/c.txt", "keep.txt", "vendor/v.txt"},
		},
		{
			name:    "exclude extension everywhere",
			exclude: []string{"**/*.log"},
			want:    []string{"a/inner.txt", "b/deep/c.txt", "keep.txt", "vendor/v.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := walk.Options{Include: tt.include, Exclude: tt.exclude, Policy: basePolicy(t, base)}
			assert.Equal(t, tt.want, logical(collect(t, opts, ".")))
		})
	}
}

func TestNew_invalid_pattern(t *testing.T) {
	t.Parallel()

	_, err := walk.New(walk.Options{Include: []string{"[abc"}})
	assert.Error(t, err)
}

func TestTargets_symlink_cycle(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	base := t.TempDir()
	touch(t, base, "a/file.txt", "b.txt")
	require.NoError(t, os.Symlink("..", filepath.Join(base, "a", "loop")))
	require.NoError(t, os.Symlink("b.txt", filepath.Join(base, "alias.txt")))

	targets := collect(t, walk.Options{Policy: basePolicy(t, base)}, ".")

	// Each real file appears exactly once: the alias resolves to b.txt and
	// sorts first, so b.txt itself is the duplicate.
	assert.Equal(t, []string{"a/file.txt", "alias.txt"}, logical(targets))
}

func TestTargets_symlink_escape_rejected(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	outside := t.TempDir()
	touch(t, outside, "secret.txt")

	base := t.TempDir()
	touch(t, base, "ok.txt")
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(base, "leak.txt")))
	require.NoError(t, os.Symlink(outside, filepath.Join(base, "leakdir")))

	targets := collect(t, walk.Options{Policy: basePolicy(t, base)}, ".")
	require.Equal(t, []string{"leak.txt", "leakdir", "ok.txt"}, logical(targets))

	assert.ErrorIs(t, targets[0].Err, policy.ErrPathTraversal)
	assert.ErrorIs(t, targets[1].Err, policy.ErrPathTraversal)
	assert.NoError(t, targets[2].Err)
}

func TestTargets_broken_symlink_is_failure(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	base := t.TempDir()
	require.NoError(t, os.Symlink("missing.txt", filepath.Join(base, "dangling.txt")))

	targets := collect(t, walk.Options{Policy: basePolicy(t, base)}, ".")
	require.Len(t, targets, 1)
	assert.Equal(t, "dangling.txt", targets[0].LogicalPath)
	assert.Error(t, targets[0].Err)
}

func TestTargets_archives(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	touch(t, base, "plain.txt")

	f, err := os.Create(filepath.Join(base, "pkg.zip"))
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, name := range []string{"inner.txt", "skip.log", "dir/nested.txt"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(name))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	require.NoError(t, os.WriteFile(filepath.Join(base, "broken.tar.gz"), []byte("garbage"), 0o600))

	opts := walk.Options{Archives: true, Exclude: []string{"**/*.log"}, Policy: basePolicy(t, base)}
	targets := collect(t, opts, ".")
	require.Equal(t, []string{
		"broken.tar.gz",
		"pkg.zip!/inner.txt",
		"pkg.zip!/dir/nested.txt",
		"plain.txt",
	}, logical(targets))

	assert.Error(t, targets[0].Err)
	assert.Equal(t, definitions.KindArchiveEntry, targets[1].Kind)
	assert.Equal(t, "inner.txt", targets[1].Entry)
	assert.NotNil(t, targets[1].Open)

	// Without the option the container is a plain file.
	opts.Archives = false
	assert.Equal(t, []string{"broken.tar.gz", "pkg.zip", "plain.txt"}, logical(collect(t, opts, ".")))
}

func TestPrepare_roots(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	touch(t, base, "x.txt")
	p := basePolicy(t, base)

	e, err := walk.New(walk.Options{Policy: p})
	require.NoError(t, err)

	assert.ErrorIs(t, e.Prepare(nil), walk.ErrNoRoots)
	assert.ErrorIs(t, e.Prepare([]string{"nope.txt"}), walk.ErrRootNotFound)
	assert.ErrorIs(t, e.Prepare([]string{"-", "x.txt"}), walk.ErrStdinMixed)
}

func TestTargets_stdin(t *testing.T) {
	t.Parallel()

	targets := collect(t, walk.Options{}, "-")
	require.Len(t, targets, 1)
	assert.Equal(t, definitions.KindStdin, targets[0].Kind)
	assert.Equal(t, definitions.StdinPath, targets[0].LogicalPath)
}

func TestTargets_rejected_root(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	touch(t, base, "x.txt")

	targets := collect(t, walk.Options{Policy: basePolicy(t, base)}, "../../etc/passwd", "/etc/passwd", "x.txt")
	require.Equal(t, []string{"../../etc/passwd", "/etc/passwd", "x.txt"}, logical(targets))
	assert.ErrorIs(t, targets[0].Err, policy.ErrPathTraversal)
	assert.ErrorIs(t, targets[1].Err, policy.ErrAbsolutePath)
	assert.NoError(t, targets[2].Err)
}

func TestTargets_cancelled(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	touch(t, base, "a.txt", "b.txt")

	e, err := walk.New(walk.Options{Policy: basePolicy(t, base)})
	require.NoError(t, err)
	require.NoError(t, e.Prepare([]string{"."}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := 0
	for range e.Targets(ctx) {
		n++
	}
	assert.Zero(t, n)
}
