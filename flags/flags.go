package flags

import (
	"fmt"
	"slices"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "PERCOLATOR"

// ResultFormats lists the report formats the --result flag accepts.
var ResultFormats = []string{"json", "xml", "subunit"}

// prefixEnvVar adds the application prefix to an environment variable name.
func prefixEnvVar(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	DryRun = &cli.BoolFlag{
		Name:    "dry-run",
		Aliases: []string{"d"},
		Usage:   "List the tests that would run without running them",
		EnvVars: prefixEnvVar("DRY_RUN"),
	}
	RegexList = &cli.StringSliceFlag{
		Name:    "regex-list",
		Aliases: []string{"r"},
		Usage:   "Filter tests by regex against the dotted test path (eg. 'CartSuite.*quote')",
		EnvVars: prefixEnvVar("REGEX_LIST"),
	}
	File = &cli.StringFlag{
		Name:    "file",
		Aliases: []string{"F"},
		Usage:   "Path to a test list file whose entries replace the positional packages",
		EnvVars: prefixEnvVar("FILE"),
	}
	Result = &cli.StringFlag{
		Name:    "result",
		Usage:   "Report format to generate (json, xml or subunit)",
		EnvVars: prefixEnvVar("RESULT"),
	}
	ResultDirectory = &cli.StringFlag{
		Name:    "result-directory",
		Value:   "./",
		Usage:   "Directory test result reports are written to",
		EnvVars: prefixEnvVar("RESULT_DIRECTORY"),
	}
	Tags = &cli.StringSliceFlag{
		Name:    "tags",
		Aliases: []string{"t"},
		Usage:   "Filter tests by tag; prefix the list with '+' to require all tags instead of any",
		EnvVars: prefixEnvVar("TAGS"),
	}
	Verbose = &cli.IntFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Value:   2,
		Usage:   "Console verbosity: 1 summary only, 2 per-test lines, 3 streams captured test logs",
		EnvVars: prefixEnvVar("VERBOSE"),
	}
	ModuleWorkers = &cli.IntFlag{
		Name:    "module-workers",
		Value:   1,
		Usage:   "Number of test packages to run in parallel",
		EnvVars: prefixEnvVar("MODULE_WORKERS"),
	}
	ClassWorkers = &cli.IntFlag{
		Name:    "class-workers",
		Value:   1,
		Usage:   "Number of suites to run in parallel within a package",
		EnvVars: prefixEnvVar("CLASS_WORKERS"),
	}
	TestWorkers = &cli.IntFlag{
		Name:    "test-workers",
		Value:   1,
		Usage:   "Number of tests to run in parallel within a suite",
		EnvVars: prefixEnvVar("TEST_WORKERS"),
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
		EnvVars: prefixEnvVar("RUN_INTERVAL"),
	}
	EngineConfig = &cli.StringFlag{
		Name:    "engine-config",
		Usage:   "Path to the engine config file (defaults to <engine home>/engine.yaml)",
		EnvVars: prefixEnvVar("ENGINE_CONFIG"),
	}
	LogDir = &cli.StringFlag{
		Name:    "log-dir",
		Usage:   "Directory run logs are written to (defaults to the engine log directory)",
		EnvVars: prefixEnvVar("LOG_DIR"),
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		Usage:   "Lowest log level that will be output (debug, info, warn, error)",
		EnvVars: prefixEnvVar("LOG_LEVEL"),
	}
	Serve = &cli.BoolFlag{
		Name:    "serve",
		Usage:   "Serve healthz and metrics endpoints even in run-once mode",
		EnvVars: prefixEnvVar("SERVE"),
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz-addr",
		Value:   "0.0.0.0:8080",
		Usage:   "Address the healthz server listens on",
		EnvVars: prefixEnvVar("HEALTHZ_ADDR"),
	}
	MetricsAddr = &cli.StringFlag{
		Name:    "metrics-addr",
		Value:   "0.0.0.0:7300",
		Usage:   "Address the Prometheus metrics server listens on",
		EnvVars: prefixEnvVar("METRICS_ADDR"),
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	DryRun,
	RegexList,
	File,
	Result,
	ResultDirectory,
	Tags,
	Verbose,
	ModuleWorkers,
	ClassWorkers,
	TestWorkers,
	RunInterval,
	EngineConfig,
	LogDir,
	LogLevel,
	Serve,
	HealthzAddr,
	MetricsAddr,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

// CheckRequired validates the invocation: the test config identifier and
// package list arrive as positional arguments, so flag parsing alone
// cannot reject an empty command line.
func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	if ctx.NArg() == 0 {
		return fmt.Errorf("a test config identifier is required")
	}
	if ctx.NArg() < 2 && !ctx.IsSet(File.Name) {
		return fmt.Errorf("at least one test package or a --file list is required")
	}
	if result := ctx.String(Result.Name); result != "" && !slices.Contains(ResultFormats, result) {
		return fmt.Errorf("invalid result format %q (expected json, xml or subunit)", result)
	}
	return nil
}
