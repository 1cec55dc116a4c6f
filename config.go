package percolator

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/percolator-ci/percolator/config"
	"github.com/percolator-ci/percolator/flags"
	"github.com/percolator-ci/percolator/registry"
	"github.com/percolator-ci/percolator/types"
)

// Config holds the application configuration
type Config struct {
	ConfigName     string        // Test configuration identifier (first positional argument)
	TestConfigPath string        // Resolved path of the test configuration file
	Packages       []string      // Dotted package roots to collect suites from
	ListFile       string        // File with an explicit test list in replay syntax
	DryRun         bool          // Resolve and list tests without running them
	Filters        types.Filters // Compiled tag and regex filters

	ResultFormat string // Machine-readable report format: json, xml or subunit
	ResultDir    string // Directory for report files
	Verbosity    int    // Console verbosity, 1 to 3

	// Worker counts for the three pool levels
	ModuleWorkers int
	ClassWorkers  int
	TestWorkers   int

	RunInterval time.Duration // Interval between test runs
	RunOnce     bool          // Indicates if the service should exit after one test run

	Serve       bool   // Expose the healthz and metrics endpoints
	HealthzAddr string // Listen address for the healthz server
	MetricsAddr string // Listen address for the metrics server

	EngineConfigPath string // Engine config file in effect, for display
	DataDir          string // Engine data directory
	LogDir           string // Directory to store test logs

	// Registry overrides the process-wide default registry; nil selects
	// registry.Default.
	Registry *registry.Registry

	Log *slog.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, eng *config.Engine, log *slog.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("invalid command line: %w", err)
	}

	configName := ctx.Args().First()
	packages := ctx.Args().Tail()

	tags, allTags := types.ParseTags(ctx.StringSlice(flags.Tags.Name))
	regexes, err := types.CompileRegexes(ctx.StringSlice(flags.RegexList.Name))
	if err != nil {
		return nil, fmt.Errorf("invalid regex filter: %w", err)
	}

	listFile := ctx.String(flags.File.Name)
	if listFile != "" {
		listFile, err = filepath.Abs(listFile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for test list '%s': %w", ctx.String(flags.File.Name), err)
		}
	}

	resultDir, err := filepath.Abs(ctx.String(flags.ResultDirectory.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for result directory '%s': %w", ctx.String(flags.ResultDirectory.Name), err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	// Get log directory, default to the engine log directory
	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = eng.LogDir
	}
	logDir, err = filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}

	return &Config{
		ConfigName:     configName,
		TestConfigPath: eng.TestConfigPath(configName),
		Packages:       packages,
		ListFile:       listFile,
		DryRun:         ctx.Bool(flags.DryRun.Name),
		Filters: types.Filters{
			Tags:    tags,
			AllTags: allTags,
			Regexes: regexes,
		},
		ResultFormat:  ctx.String(flags.Result.Name),
		ResultDir:     resultDir,
		Verbosity:     ctx.Int(flags.Verbose.Name),
		ModuleWorkers: ctx.Int(flags.ModuleWorkers.Name),
		ClassWorkers:  ctx.Int(flags.ClassWorkers.Name),
		TestWorkers:   ctx.Int(flags.TestWorkers.Name),
		RunInterval:   runInterval,
		RunOnce:       runOnce,
		// The sidecar servers stay up for the process lifetime; a one-shot
		// run only carries them when asked.
		Serve:            ctx.Bool(flags.Serve.Name) || !runOnce,
		HealthzAddr:      ctx.String(flags.HealthzAddr.Name),
		MetricsAddr:      ctx.String(flags.MetricsAddr.Name),
		EngineConfigPath: config.EnginePath(ctx.String(flags.EngineConfig.Name)),
		DataDir:          eng.DataDir,
		LogDir:           logDir,
		Log:              log,
	}, nil
}
