package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	percolator "github.com/percolator-ci/percolator"
	"github.com/percolator-ci/percolator/config"
	"github.com/percolator-ci/percolator/exitcodes"
	"github.com/percolator-ci/percolator/flags"
	"github.com/percolator-ci/percolator/logging"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := newApp()

	// Start telemetry
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup open telemetry: %v\n", err)
		os.Exit(exitcodes.RuntimeErr)
	}
	defer otelShutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		// The ExitErrHandler normally exits before we get here; this path
		// only runs when it declined to.
		os.Exit(exitCodeFor(err))
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "percolator"
	app.Usage = "Parallel test runner service"
	app.Description = "percolator brews registered test suites through configurable worker pools"
	app.ArgsUsage = "<config> <package> [<package>...]"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		if err == nil {
			return
		}
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			// Use the exit code from the ExitCoder
			cli.HandleExitCoder(exitErr)
			return
		}
		cli.HandleExitCoder(cli.Exit(err.Error(), exitCodeFor(err)))
	}
	return app
}

// exitCodeFor maps an error onto the exit code contract: 0 on success,
// 1 for test failures, 2 for runtime errors.
func exitCodeFor(err error) int {
	if err == nil {
		return exitcodes.Success
	}
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if percolator.IsRuntimeError(err) {
		return exitcodes.RuntimeErr
	}
	return exitcodes.TestFailure
}

func run(cliCtx *cli.Context) error {
	eng, err := config.LoadEngine(cliCtx.String(flags.EngineConfig.Name))
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return percolator.NewRuntimeError(fmt.Errorf("failed to load engine config: %w", err))
	}

	logger := logging.Setup(cliCtx.String(flags.LogLevel.Name), eng.MasterLogPath())

	cfg, err := percolator.NewConfig(cliCtx, eng, logger)
	if err != nil {
		return percolator.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	appCtx, cancel := context.WithCancelCause(cliCtx.Context)
	defer cancel(nil)

	svc, err := percolator.New(appCtx, cfg, Version, cancel)
	if err != nil {
		return percolator.NewRuntimeError(fmt.Errorf("failed to create percolator: %w", err))
	}

	if err := svc.Start(appCtx); err != nil {
		if stopErr := svc.Stop(context.Background()); stopErr != nil {
			logger.Error("Failed to stop service after start error", "error", stopErr)
		}
		return err
	}

	// Block until a run-once completion or a shutdown signal cancels the
	// context, then drain the service.
	<-appCtx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := svc.Stop(stopCtx); err != nil {
		logger.Error("Failed to stop service cleanly", "error", err)
	}
	if err := svc.WaitForShutdown(stopCtx); err != nil {
		logger.Warn("Shutdown incomplete", "error", err)
	}

	if cause := context.Cause(appCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}
