package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const abcSHA256 = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

type invocation struct {
	code   int
	stdout string
	stderr string
}

func invoke(t *testing.T, stdin string, args ...string) invocation {
	t.Helper()
	t.Setenv("HASHCC_CONFIG", "")
	t.Setenv("HASHCC_LOG_LEVEL", "")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return invocation{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func tree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("abc"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("hello\n"), 0o600))
	return dir
}

func generateSumfile(t *testing.T, dir string, extra ...string) string {
	t.Helper()
	sumfile := filepath.Join(t.TempDir(), "SHA256SUMS")
	args := append([]string{"generate", "--base-dir", dir, "-f", "sumfile", "-o", sumfile}, extra...)
	res := invoke(t, "", append(args, ".")...)
	require.Equal(t, exitOK, res.code, res.stderr)
	return sumfile
}

func TestRun_generate_then_verify(t *testing.T) {
	dir := tree(t)
	sumfile := generateSumfile(t, dir)

	data, err := os.ReadFile(sumfile)
	require.NoError(t, err)
	assert.Equal(t, abcSHA256+"  a.txt\n", strings.SplitAfter(string(data), "\n")[0])
	assert.Contains(t, string(data), "  sub/b.txt\n")

	res := invoke(t, "", "verify", "--base-dir", dir, sumfile)
	assert.Equal(t, exitOK, res.code, res.stderr)
	assert.Equal(t, "a.txt: OK\nsub/b.txt: OK\n", res.stdout)
	assert.Contains(t, res.stderr, "Summary: OK=2 FAILED=0 MISSING=0 INVALID_PATH=0 ERROR=0")

	// Aliases and stdin input reach the same code path.
	res = invoke(t, string(data), "check", "-q", "--base-dir", dir, "-")
	assert.Equal(t, exitOK, res.code, res.stderr)
	assert.Empty(t, res.stdout)
	assert.NotContains(t, res.stderr, "Summary:")
}

func TestRun_verify_reports_failures(t *testing.T) {
	dir := tree(t)
	sumfile := generateSumfile(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("abd"), 0o600))
	require.NoError(t, os.Remove(filepath.Join(dir, "sub", "b.txt")))

	f, err := os.OpenFile(sumfile, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(abcSHA256 + "  ../outside.txt\nnot a checksum line\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res := invoke(t, "", "verify", "--base-dir", dir, sumfile)
	assert.Equal(t, exitFailed, res.code)
	assert.Contains(t, res.stdout, "a.txt: FAILED\n")
	assert.Contains(t, res.stdout, "sub/b.txt: MISSING\n")
	assert.Contains(t, res.stdout, "../outside.txt: REJECTED")
	assert.Contains(t, res.stderr, "Summary: OK=0 FAILED=1 MISSING=1 INVALID_PATH=1 ERROR=1")
}

func TestRun_fatal_errors(t *testing.T) {
	dir := tree(t)

	cases := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"frobnicate"}},
		{"weak algorithm", []string{"generate", "--algo", "md5", dir}},
		{"unknown algorithm", []string{"generate", "--algo", "crc32", dir}},
		{"missing root", []string{"generate", filepath.Join(dir, "nope")}},
		{"bad flag", []string{"generate", "--no-such-flag"}},
		{"negative workers", []string{"generate", "--workers", "-1", dir}},
		{"missing checksum file", []string{"verify", filepath.Join(dir, "nope.sum")}},
		{"verify without file", []string{"verify"}},
		{"compare bad hex", []string{"compare", "xyz", filepath.Join(dir, "a.txt")}},
		{"compare arity", []string{"compare", abcSHA256}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := invoke(t, "", tc.args...)
			assert.Equal(t, exitFatal, res.code, res.stderr)
		})
	}
}

func TestRun_weak_algorithm_allowed(t *testing.T) {
	dir := tree(t)

	res := invoke(t, "", "gen", "--algo", "md5", "--allow-weak", "--base-dir", dir, ".")
	assert.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "900150983cd24fb0d6963f7d28e17f72  a.txt\n")
}

func TestRun_generate_defaults_to_stdin(t *testing.T) {
	dir := tree(t)
	t.Chdir(dir)

	res := invoke(t, "abc", "generate", "-a", "blake3")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Equal(t, "6437b3ac38465133ffb63b75273a8db548c558465d79db03fd359c6cd5bd9d85  -\n", res.stdout)

	res = invoke(t, "abc", "generate", "-")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Equal(t, abcSHA256+"  -\n", res.stdout)
}

func TestRun_generate_repeated_roots(t *testing.T) {
	dir := tree(t)

	res := invoke(t, "", "generate", "--base-dir", dir, "-f", "sumfile", "a.txt", "a.txt", ".")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Equal(t, 1, strings.Count(res.stdout, "  a.txt\n"), res.stdout)
	assert.Equal(t, 1, strings.Count(res.stdout, "  sub/b.txt\n"), res.stdout)
}

func TestRun_compare(t *testing.T) {
	dir := tree(t)
	file := filepath.Join(dir, "a.txt")

	res := invoke(t, "", "compare", abcSHA256, file)
	assert.Equal(t, exitOK, res.code, res.stderr)
	assert.Equal(t, file+": OK\n", res.stdout)

	res = invoke(t, "", "cmp", strings.ToUpper(abcSHA256), file)
	assert.Equal(t, exitOK, res.code, res.stderr)

	res = invoke(t, "", "compare", strings.Repeat("0", 64), file)
	assert.Equal(t, exitFailed, res.code)
	assert.Equal(t, file+": FAILED\n", res.stdout)

	res = invoke(t, "", "compare", abcSHA256, filepath.Join(dir, "gone.txt"))
	assert.Equal(t, exitFailed, res.code)
	assert.Contains(t, res.stdout, "MISSING")
}

func TestRun_config_file(t *testing.T) {
	dir := tree(t)
	cfg := filepath.Join(t.TempDir(), "hashcc.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("algorithm: blake3\nformat: json\nbase_dir: "+dir+"\n"), 0o600))

	res := invoke(t, "", "generate", "--config", cfg, "a.txt")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, `"path": "a.txt"`)
	assert.Contains(t, res.stdout, "6437b3ac38465133ffb63b75273a8db548c558465d79db03fd359c6cd5bd9d85")

	// Flags that are set win over the file.
	res = invoke(t, "", "generate", "--config", cfg, "-f", "sumfile", "a.txt")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Equal(t, "6437b3ac38465133ffb63b75273a8db548c558465d79db03fd359c6cd5bd9d85  a.txt\n", res.stdout)
}

func TestRun_help(t *testing.T) {
	res := invoke(t, "", "--help")
	assert.Equal(t, exitOK, res.code)
	assert.Contains(t, res.stdout, "hashcc verify")

	res = invoke(t, "", "verify", "--help")
	assert.Equal(t, exitOK, res.code)
	assert.Contains(t, res.stderr, "--algo")
}
