// Package config holds the settings of one hashcc invocation.
//
// Values come from three layers, later ones winning: Default, an optional
// YAML file (--config or HASHCC_CONFIG), and command line flags that were
// set explicitly. The result is validated once and then only read.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"hashcc/internal/digest"
	"hashcc/internal/index"
	"hashcc/internal/output"
	"hashcc/internal/source"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfig   = "HASHCC_CONFIG"
	EnvLogLevel = "HASHCC_LOG_LEVEL"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Algorithm string `yaml:"algorithm" validate:"required,algorithm"`
	AllowWeak bool   `yaml:"allow_weak"`

	// BaseDir confines every path to one directory tree. Empty disables
	// containment.
	BaseDir       string `yaml:"base_dir" validate:"omitempty,dir"`
	AllowAbsolute bool   `yaml:"allow_absolute"`

	Include  []string `yaml:"include" validate:"dive,required"`
	Exclude  []string `yaml:"exclude" validate:"dive,required"`
	Archives bool     `yaml:"archives"`

	// Workers <= 0 uses one per CPU.
	Workers       int   `yaml:"workers" validate:"min=0,max=4096"`
	Window        int   `yaml:"window" validate:"min=0"`
	MmapThreshold int64 `yaml:"mmap_threshold" validate:"min=-1"`
	ChunkSize     int   `yaml:"chunk_size" validate:"min=512,max=67108864"`

	Format         string `yaml:"format" validate:"oneof=text json csv sum sumfile"`
	ChecksumFormat string `yaml:"checksum_format" validate:"oneof=auto sum sumfile csv"`
	Output         string `yaml:"output"`
	Quiet          bool   `yaml:"quiet"`
	Progress       bool   `yaml:"progress"`

	Log LogConfig `yaml:"log"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

func Default() *Config {
	return &Config{
		Algorithm:      digest.SHA256.String(),
		MmapThreshold:  source.DefaultMmapThreshold,
		ChunkSize:      digest.DefaultChunkSize,
		Format:         output.FormatText.String(),
		ChecksumFormat: index.FormatAuto.String(),
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// Load reads path, falling back to $HASHCC_CONFIG. With neither set it
// returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		cfg := Default()
		cfg.applyEnv()
		return cfg, nil
	}
	return LoadFile(path)
}

func LoadFile(path string) (*Config, error) {
	const errCtx = "loading config"

	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s %s: %w", errCtx, path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		c.Log.Level = strings.ToLower(lvl)
	}
}

// AddFlags binds every option to flagSet, with the current values as
// defaults.
func (c *Config) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&c.Algorithm, "algo", "a", c.Algorithm, "digest algorithm: md5, sha1, sha256, sha512, blake3")
	flagSet.BoolVar(&c.AllowWeak, "allow-weak", c.AllowWeak, "permit md5 and sha1")
	flagSet.StringVar(&c.BaseDir, "base-dir", c.BaseDir, "confine all paths to this directory")
	flagSet.BoolVar(&c.AllowAbsolute, "allow-absolute", c.AllowAbsolute, "permit absolute paths")
	flagSet.StringSliceVar(&c.Include, "include", c.Include, "only hash paths matching `GLOB` (repeatable)")
	flagSet.StringSliceVar(&c.Exclude, "exclude", c.Exclude, "skip paths matching `GLOB` (repeatable)")
	flagSet.BoolVar(&c.Archives, "archives", c.Archives, "hash entries inside .zip, .tar and .tar.gz files")
	flagSet.IntVarP(&c.Workers, "workers", "j", c.Workers, "parallel workers (0 = one per CPU)")
	flagSet.IntVar(&c.Window, "window", c.Window, "max results buffered for reordering (0 = 4 per worker)")
	flagSet.Int64Var(&c.MmapThreshold, "mmap-threshold", c.MmapThreshold, "memory-map files of at least this many bytes (-1 disables)")
	flagSet.IntVar(&c.ChunkSize, "chunk-size", c.ChunkSize, "read size in bytes")
	flagSet.StringVarP(&c.Format, "format", "f", c.Format, "output format: text, json, csv, sumfile")
	flagSet.StringVar(&c.ChecksumFormat, "checksum-format", c.ChecksumFormat, "checksum file format: auto, sumfile, csv")
	flagSet.StringVarP(&c.Output, "output", "o", c.Output, "write results to `FILE` instead of stdout")
	flagSet.BoolVarP(&c.Quiet, "quiet", "q", c.Quiet, "only report failures")
	flagSet.BoolVar(&c.Progress, "progress", c.Progress, "show a progress bar on a terminal")
	flagSet.StringVar(&c.Log.Level, "log-level", c.Log.Level, "trace, debug, info, warn, error or disabled")
	flagSet.StringVar(&c.Log.Format, "log-format", c.Log.Format, "console or json")
}

// Overlay copies every flag that was set on flagSet onto c. Flags that were
// left alone do not override values loaded from a file.
func (c *Config) Overlay(flagSet *pflag.FlagSet) error {
	own := pflag.NewFlagSet("overlay", pflag.ContinueOnError)
	c.AddFlags(own)

	var errs []error
	flagSet.Visit(func(f *pflag.Flag) {
		dst := own.Lookup(f.Name)
		if dst == nil {
			return
		}
		if src, ok := f.Value.(pflag.SliceValue); ok {
			if to, ok := dst.Value.(pflag.SliceValue); ok {
				errs = append(errs, to.Replace(src.GetSlice()))
				return
			}
		}
		errs = append(errs, dst.Value.Set(f.Value.String()))
	})
	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("algorithm", func(fl validator.FieldLevel) bool {
		_, err := digest.ParseAlgorithm(fl.Field().String())
		return err == nil
	})

	c.Algorithm = strings.ToLower(strings.TrimSpace(c.Algorithm))
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	c.ChecksumFormat = strings.ToLower(strings.TrimSpace(c.ChecksumFormat))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))

	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// DigestAlgorithm is only meaningful after Validate.
func (c *Config) DigestAlgorithm() digest.Algorithm {
	alg, _ := digest.ParseAlgorithm(c.Algorithm)
	return alg
}

func (c *Config) OutputFormat() output.Format {
	f, _ := output.ParseFormat(c.Format)
	return f
}

func (c *Config) IndexFormat() index.Format {
	f, _ := index.ParseFormat(c.ChecksumFormat)
	return f
}
