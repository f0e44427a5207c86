// Package cmd defines the routeshot command line.
//
// The root command and its run subcommand do the same thing: load
// configuration from flags, environment, and an optional file, capture every
// route, and exit with the run's status. SIGINT and SIGTERM end the process
// immediately with 130 and 143.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/routeshot/internal/app"
	"github.com/JakeFAU/routeshot/internal/config"
	"github.com/JakeFAU/routeshot/internal/crawler"
	"github.com/JakeFAU/routeshot/internal/logging"
)

// Runner executes one capture run. It is swapped out in tests.
type Runner func(ctx context.Context, cfg config.Config, opts app.Options) crawler.RunSummary

func defaultRunner(ctx context.Context, cfg config.Config, opts app.Options) crawler.RunSummary {
	return app.New(cfg, opts).Run(ctx)
}

// env is the process surface the commands touch.
type env struct {
	stdout  io.Writer
	stderr  io.Writer
	run     Runner
	exit    func(int)
	signals func(chan<- os.Signal)
}

func defaultEnv() *env {
	return &env{
		stdout: os.Stdout,
		stderr: os.Stderr,
		run:    defaultRunner,
		exit:   os.Exit,
		signals: func(c chan<- os.Signal) {
			signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		},
	}
}

// exitError carries a non-zero exit status out of RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func newRootCmd(e *env) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "routeshot",
		Short: "Screenshot every route of a web app in headless Chrome",
		Long: `routeshot visits a list of application routes in headless Chrome, checks
that each one loads with a good status, and writes a full-page PNG per route
to the output directory. Any failed route makes the run exit with status 1.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML/TOML/JSON config file")
	addRunFlags(root)
	root.SetOut(e.stdout)
	root.SetErr(e.stderr)

	runE := func(cmd *cobra.Command, _ []string) error {
		return runCapture(cmd, e, cfgFile)
	}
	root.RunE = runE
	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Capture every configured route (the default action)",
		Args:  cobra.NoArgs,
		RunE:  runE,
	})
	return root
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("base-url", config.DefaultBaseURL, "origin routes are resolved against")
	f.String("device", "desktop", "device profile: desktop or mobile")
	f.String("routes", "", "comma-separated routes overriding the built-in list")
	f.Int("timeout-ms", int(config.DefaultTimeout.Milliseconds()), "per-navigation timeout in milliseconds")
	f.String("headless", "new", "browser mode: new, true/1, or false/0")
	f.Int("concurrency", config.DefaultConcurrency, "number of parallel browser tabs")
	f.String("output-dir", config.DefaultOutputDir, "directory screenshots are written to")
	f.Bool("fail-fast", false, "stop claiming routes after the first failure")
}

func runCapture(cmd *cobra.Command, e *env, cfgFile string) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		fmt.Fprintf(e.stderr, "%s load config: %v\n", logging.TagError, err)
		return &exitError{code: 1, err: err}
	}

	logger := logging.New(logging.Config{
		Development: cfg.LogDevelopment,
		Stdout:      e.stdout,
		Stderr:      e.stderr,
	})
	defer func() { _ = logger.Sync() }()

	stop := watchSignals(logger, e)
	defer stop()

	summary := e.run(cmd.Context(), cfg, app.Options{Logger: logger, ProgressOut: e.stderr})
	if code := summary.ExitCode(); code != 0 {
		return &exitError{code: code, err: summary.Err}
	}
	return nil
}

// Execute runs the command line and returns the process exit status.
func Execute() int {
	return execute(context.Background(), defaultEnv(), os.Args[1:])
}

func execute(ctx context.Context, e *env, args []string) int {
	root := newRootCmd(e)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	// Flag and argument errors.
	fmt.Fprintf(e.stderr, "%s %v\n", logging.TagError, err)
	return 1
}

// signalExitCode follows the shell convention of 128 plus the signal number.
func signalExitCode(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return 1
}

func signalName(sig os.Signal) string {
	switch sig {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return sig.String()
	}
}

// watchSignals exits the process as soon as an interrupt arrives. Browser
// teardown is skipped; chromedp's allocator kills Chrome with the process.
func watchSignals(logger *zap.Logger, e *env) (stop func()) {
	sigs := make(chan os.Signal, 1)
	e.signals(sigs)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigs:
			logging.Info(logger, fmt.Sprintf("received %s, exiting...", signalName(sig)))
			_ = logger.Sync()
			e.exit(signalExitCode(sig))
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
