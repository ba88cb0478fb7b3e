package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"hashcc/internal/config"
	"hashcc/internal/digest"
	"hashcc/internal/index"
	"hashcc/internal/output"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "hashcc.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDefault_is_valid(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, digest.SHA256, cfg.DigestAlgorithm())
	assert.Equal(t, output.FormatText, cfg.OutputFormat())
	assert.Equal(t, index.FormatAuto, cfg.IndexFormat())
	assert.Equal(t, digest.DefaultChunkSize, cfg.ChunkSize)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	p := writeConfig(t, `
algorithm: BLAKE3
base_dir: `+base+`
exclude: ["**/*.tmp", ".git/**"]
archives: true
workers: 3
format: sumfile
log:
  level: debug
`)

	cfg, err := config.LoadFile(p)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, digest.BLAKE3, cfg.DigestAlgorithm())
	assert.Equal(t, base, cfg.BaseDir)
	assert.Equal(t, []string{"**/*.tmp", ".git/**"}, cfg.Exclude)
	assert.True(t, cfg.Archives)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, output.FormatSum, cfg.OutputFormat())
	assert.Equal(t, "debug", cfg.Log.Level)
	// Unset keys keep their defaults.
	assert.Equal(t, digest.DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadFile_errors(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.LoadFile(writeConfig(t, "algorithm: sha256\nunknown_key: 1\n"))
	assert.Error(t, err)

	cfg, err := config.LoadFile(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown algorithm", func(c *config.Config) { c.Algorithm = "crc32" }},
		{"missing base dir", func(c *config.Config) { c.BaseDir = "/definitely/not/here" }},
		{"negative workers", func(c *config.Config) { c.Workers = -1 }},
		{"tiny chunk", func(c *config.Config) { c.ChunkSize = 1 }},
		{"bad format", func(c *config.Config) { c.Format = "xml" }},
		{"bad checksum format", func(c *config.Config) { c.ChecksumFormat = "json" }},
		{"empty exclude", func(c *config.Config) { c.Exclude = []string{""} }},
		{"bad log level", func(c *config.Config) { c.Log.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), config.ErrInvalid)
		})
	}
}

func TestOverlay_only_changed_flags(t *testing.T) {
	t.Parallel()

	fileCfg, err := config.LoadFile(writeConfig(t, "algorithm: sha512\nworkers: 8\nexclude: [a]\n"))
	require.NoError(t, err)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.Default().AddFlags(flags)
	require.NoError(t, flags.Parse([]string{"--workers", "2", "--exclude", "x,y", "--allow-weak", "-f", "json"}))

	require.NoError(t, fileCfg.Overlay(flags))
	require.NoError(t, fileCfg.Validate())

	assert.Equal(t, digest.SHA512, fileCfg.DigestAlgorithm(), "unset flag must not override the file")
	assert.Equal(t, 2, fileCfg.Workers)
	assert.Equal(t, []string{"x", "y"}, fileCfg.Exclude)
	assert.True(t, fileCfg.AllowWeak)
	assert.Equal(t, output.FormatJSON, fileCfg.OutputFormat())
}
