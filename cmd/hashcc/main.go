package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"hashcc/definitions"
	"hashcc/internal/config"
	"hashcc/internal/index"
	"hashcc/internal/logger"
	"hashcc/internal/metrics"
	"hashcc/internal/output"
	"hashcc/internal/policy"
	"hashcc/internal/progress"
	"hashcc/internal/scheduler"
	"hashcc/internal/source"
	"hashcc/internal/verify"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailed  = 1
	exitFatal   = 2
	cmdGenerate = "generate"
	cmdCompare  = "compare"
	cmdVerify   = "verify"
)

var aliases = map[string]string{
	"generate": cmdGenerate, "gen": cmdGenerate,
	"compare": cmdCompare, "cmp": cmdCompare,
	"verify": cmdVerify, "ver": cmdVerify, "check": cmdVerify,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type env struct {
	cfg    *config.Config
	log    zerolog.Logger
	opts   verify.Options
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return exitFatal
	}
	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stdout)
		return exitOK
	}
	cmd, ok := aliases[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "error: unknown command %q\n\n", args[0])
		printUsage(stderr)
		return exitFatal
	}

	flagSet := pflag.NewFlagSet("hashcc "+cmd, pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	var configPath string
	flagSet.StringVar(&configPath, "config", "", "YAML config `FILE` (default $"+config.EnvConfig+")")
	config.Default().AddFlags(flagSet)

	if err := flagSet.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitFatal
	}

	e, err := setup(cmd, configPath, flagSet, stdin, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFatal
	}

	switch cmd {
	case cmdGenerate:
		return e.generate(ctx, flagSet.Args())
	case cmdCompare:
		return e.compare(ctx, flagSet.Args())
	default:
		return e.verify(ctx, flagSet.Args())
	}
}

func setup(cmd, configPath string, flagSet *pflag.FlagSet, stdin io.Reader, stdout, stderr io.Writer) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Overlay(flagSet); err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: stderr})

	// Paths named on the command line are the operator's own; only paths
	// read from a checksum file are untrusted by default.
	allowAbsolute := cfg.AllowAbsolute || (cmd != cmdVerify && cfg.BaseDir == "")
	pol, err := policy.New(cfg.BaseDir, allowAbsolute, cfg.AllowWeak)
	if err != nil {
		return nil, err
	}

	return &env{
		cfg: cfg,
		log: log,
		opts: verify.Options{
			Algorithm: cfg.DigestAlgorithm(),
			Policy:    pol,
			Selector: source.Selector{
				MmapThreshold: cfg.MmapThreshold,
				ChunkSize:     cfg.ChunkSize,
				Stdin:         stdin,
			},
			Scheduler: scheduler.Options{Workers: cfg.Workers, Window: cfg.Window},
			Include:   cfg.Include,
			Exclude:   cfg.Exclude,
			Archives:  cfg.Archives,
			Logger:    log,
			Stats:     &metrics.Stats{},
		},
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

// startProgress attaches a spinner when asked for and stderr is a terminal.
func (e *env) startProgress() func() {
	if !e.cfg.Progress || e.cfg.Quiet {
		return func() {}
	}
	f, ok := e.stderr.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return func() {}
	}
	e.opts.Bar = progress.New(e.stderr, -1, e.opts.Stats.Snapshot)
	return e.opts.Bar.Close
}

// openOutput returns stdout or the --output file.
func (e *env) openOutput() (io.Writer, func() error, error) {
	if e.cfg.Output == "" {
		return e.stdout, func() error { return nil }, nil
	}
	f, err := os.Create(e.cfg.Output) // #nosec G304 -- operator supplied
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func (e *env) generate(ctx context.Context, roots []string) int {
	if len(roots) == 0 {
		roots = []string{definitions.StdinPath}
	}

	w, closeOut, err := e.openOutput()
	if err != nil {
		fmt.Fprintf(e.stderr, "error: %v\n", err)
		return exitFatal
	}
	out, err := output.NewWriter(w, e.cfg.OutputFormat())
	if err != nil {
		_ = closeOut()
		fmt.Fprintf(e.stderr, "error: %v\n", err)
		return exitFatal
	}

	stopProgress := e.startProgress()
	e.opts.Stats.Start()
	stats, err := verify.Generate(ctx, e.opts, roots, out.Write)
	e.opts.Stats.Stop()
	stopProgress()

	err = errors.Join(err, out.Close(), closeOut())
	if err != nil {
		fmt.Fprintf(e.stderr, "error: %v\n", err)
		return exitFatal
	}

	snap := stats.Snapshot()
	e.log.Info().
		Int64("files", snap.Processed).
		Int64("failed", snap.Errors+snap.Rejected).
		Int64("bytes", snap.BytesHashed).
		Int64("duration_ms", snap.DurationMs).
		Msg("generate finished")
	if !snap.Clean() {
		return exitFailed
	}
	return exitOK
}

func (e *env) compare(ctx context.Context, args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(e.stderr, "usage: hashcc compare [flags] HASH FILE")
		return exitFatal
	}

	vr, err := verify.Compare(ctx, e.opts, args[1], args[0])
	if err != nil {
		fmt.Fprintf(e.stderr, "error: %v\n", err)
		return exitFatal
	}
	if err := output.WriteVerify(e.stdout, []definitions.VerifyResult{vr}, false); err != nil {
		fmt.Fprintf(e.stderr, "error: %v\n", err)
		return exitFatal
	}
	if vr.Outcome != definitions.OutcomeMatch {
		return exitFailed
	}
	return exitOK
}

func (e *env) verify(ctx context.Context, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(e.stderr, "usage: hashcc verify [flags] CHECKSUM_FILE")
		return exitFatal
	}

	var (
		loaded index.LoadResult
		err    error
	)
	if args[0] == definitions.StdinPath {
		loaded, err = index.Parse(e.stdin, e.cfg.IndexFormat(), e.opts.Algorithm)
	} else {
		loaded, err = index.Load(args[0], e.cfg.IndexFormat(), e.opts.Algorithm)
	}
	if err != nil {
		fmt.Fprintf(e.stderr, "error: reading checksum file: %v\n", err)
		return exitFatal
	}

	w, closeOut, err := e.openOutput()
	if err != nil {
		fmt.Fprintf(e.stderr, "error: %v\n", err)
		return exitFatal
	}

	stopProgress := e.startProgress()
	e.opts.Stats.Start()
	res, err := verify.Verify(ctx, e.opts, loaded)
	e.opts.Stats.Stop()
	stopProgress()
	if err != nil {
		_ = closeOut()
		fmt.Fprintf(e.stderr, "error: %v\n", err)
		return exitFatal
	}

	if err := errors.Join(output.WriteVerify(w, res.Entries, e.cfg.Quiet), closeOut()); err != nil {
		fmt.Fprintf(e.stderr, "error: %v\n", err)
		return exitFatal
	}
	if !e.cfg.Quiet {
		metrics.Print(e.stderr, res.Stats)
	}

	if !res.OK() {
		return exitFailed
	}
	return exitOK
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `hashcc computes and verifies file digests.

Usage:
  hashcc generate [flags] [PATH...]     hash files, directories and archives (stdin without PATH)
  hashcc compare  [flags] HASH FILE     check one file against a digest
  hashcc verify   [flags] CHECKSUM_FILE check every entry of a sumfile or CSV (- for stdin)

Aliases: gen, cmp, ver, check.

  echo -n 'hello' | hashcc generate --algo blake3

Exit status is 0 when everything matched, 1 when any item failed and 2
when the run could not start.

Run "hashcc <command> --help" for the flags.
`)
}
