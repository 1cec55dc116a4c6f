package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	percolator "github.com/percolator-ci/percolator"
	"github.com/percolator-ci/percolator/exitcodes"
	"github.com/percolator-ci/percolator/registry"
	"github.com/percolator-ci/percolator/suite"
)

// TestExitCodeFor verifies the exit code contract:
// - Exit code 0 when all tests pass
// - Exit code 1 when any tests fail
// - Exit code 2 when there's a runtime error
func TestExitCodeFor(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "nil error means success",
			err:      nil,
			expected: exitcodes.Success,
		},
		{
			name:     "test failure exits with code 1",
			err:      percolator.NewTestFailureError("2 of 5 tests failed"),
			expected: exitcodes.TestFailure,
		},
		{
			name:     "runtime error exits with code 2",
			err:      percolator.NewRuntimeError(errors.New("bad engine config")),
			expected: exitcodes.RuntimeErr,
		},
		{
			name:     "wrapped runtime error keeps code 2",
			err:      percolator.NewRuntimeError(errors.New("resolver exploded")),
			expected: exitcodes.RuntimeErr,
		},
		{
			name:     "unclassified error defaults to code 1",
			err:      errors.New("something else"),
			expected: exitcodes.TestFailure,
		},
		{
			name:     "explicit exit coder wins",
			err:      cli.Exit("custom", 3),
			expected: 3,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, exitCodeFor(tc.err))
		})
	}
}

func TestAppMetadata(t *testing.T) {
	app := newApp()
	assert.Equal(t, "percolator", app.Name)
	assert.NotEmpty(t, app.Flags)
	assert.NotNil(t, app.Action)
	assert.NotNil(t, app.ExitErrHandler)
}

// CmdBrewSuite is a minimal passing suite for driving the app end to end.
type CmdBrewSuite struct {
	suite.Fixture
}

func (s *CmdBrewSuite) TestPreheat(t *suite.T) {}

// TestAppRunOnce drives the full CLI pipeline in-process: engine config
// from a scratch home, one registered suite, run-once mode.
func TestAppRunOnce(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PERCOLATOR_HOME", home)

	configDir := filepath.Join(home, "configs")
	require.NoError(t, os.MkdirAll(configDir, 0755))
	testConfig := "brew:\n  temperature: \"93\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "smoke.yaml"), []byte(testConfig), 0644))

	// The default registry is shared; the suite stays registered for the
	// remainder of the test binary, which is harmless.
	if _, ok := registry.Default.Module("github.com/percolator-ci/percolator/cmd"); !ok {
		require.NoError(t, registry.Default.Add(&CmdBrewSuite{}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app := newApp()
	err := app.RunContext(ctx, []string{
		"percolator",
		"--verbose", "1",
		"--log-dir", filepath.Join(home, "logs"),
		"smoke",
		"github.com/percolator-ci/percolator/cmd",
	})
	require.NoError(t, err)

	// The run directory and its summary land under the log dir.
	runDirs, err := filepath.Glob(filepath.Join(home, "logs", "testrun-*"))
	require.NoError(t, err)
	require.Len(t, runDirs, 1)
	assert.FileExists(t, filepath.Join(runDirs[0], "summary.log"))
}

// TestAppDryRun verifies the dry-run path exits cleanly without a run
// directory.
func TestAppDryRun(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PERCOLATOR_HOME", home)

	configDir := filepath.Join(home, "configs")
	require.NoError(t, os.MkdirAll(configDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "smoke.yaml"), []byte("brew: {}\n"), 0644))

	if _, ok := registry.Default.Module("github.com/percolator-ci/percolator/cmd"); !ok {
		require.NoError(t, registry.Default.Add(&CmdBrewSuite{}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	app := newApp()
	err := app.RunContext(ctx, []string{
		"percolator",
		"--dry-run",
		"--log-dir", filepath.Join(home, "logs"),
		"smoke",
		"github.com/percolator-ci/percolator/cmd",
	})
	require.NoError(t, err)

	runDirs, err := filepath.Glob(filepath.Join(home, "logs", "testrun-*"))
	require.NoError(t, err)
	assert.Empty(t, runDirs)
}
