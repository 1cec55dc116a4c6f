package flags

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// TestOptionalFlagsDontSetRequired asserts that all flags deemed optional set
// the Required field to false.
func TestOptionalFlagsDontSetRequired(t *testing.T) {
	for _, flag := range optionalFlags {
		reqFlag, ok := flag.(cli.RequiredFlag)
		require.True(t, ok)
		require.False(t, reqFlag.IsRequired())
	}
}

// TestUniqueFlags asserts that all flag names are unique, to avoid accidental conflicts between the many flags.
func TestUniqueFlags(t *testing.T) {
	seenCLI := make(map[string]struct{})
	for _, flag := range Flags {
		name := flag.Names()[0]
		if _, ok := seenCLI[name]; ok {
			t.Errorf("duplicate flag %s", name)
			continue
		}
		seenCLI[name] = struct{}{}
	}
}

func TestHasEnvVar(t *testing.T) {
	for _, flag := range Flags {
		flagName := flag.Names()[0]

		t.Run(flagName, func(t *testing.T) {
			envFlagGetter, ok := flag.(interface {
				GetEnvVars() []string
			})
			require.True(t, ok, "must be able to cast the flag to an EnvVar interface")
			envFlags := envFlagGetter.GetEnvVars()
			require.Equal(t, 1, len(envFlags), "flags should have exactly one env var")
		})
	}
}

// TestEnvVarFormat asserts every env var is the flag name upper-cased
// under the application prefix.
func TestEnvVarFormat(t *testing.T) {
	for _, flag := range Flags {
		flagName := flag.Names()[0]

		t.Run(flagName, func(t *testing.T) {
			envFlagGetter, ok := flag.(interface {
				GetEnvVars() []string
			})
			require.True(t, ok, "must be able to cast the flag to an EnvVar interface")
			envFlags := envFlagGetter.GetEnvVars()
			expected := EnvVarPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
			require.Equal(t, expected, envFlags[0])
		})
	}
}

func runCheckRequired(t *testing.T, args ...string) error {
	t.Helper()
	app := cli.NewApp()
	app.Flags = Flags
	var checkErr error
	app.Action = func(ctx *cli.Context) error {
		checkErr = CheckRequired(ctx)
		return nil
	}
	require.NoError(t, app.Run(append([]string{"percolator"}, args...)))
	return checkErr
}

func TestCheckRequired(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "no arguments",
			args:    nil,
			wantErr: "test config identifier is required",
		},
		{
			name:    "config without packages",
			args:    []string{"prod"},
			wantErr: "at least one test package",
		},
		{
			name: "config and package",
			args: []string{"prod", "example.com/checkout"},
		},
		{
			name: "file list replaces packages",
			args: []string{"--file", "list.txt", "prod"},
		},
		{
			name: "valid result format",
			args: []string{"--result", "xml", "prod", "example.com/checkout"},
		},
		{
			name:    "invalid result format",
			args:    []string{"--result", "html", "prod", "example.com/checkout"},
			wantErr: `invalid result format "html"`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := runCheckRequired(t, tc.args...)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestFlagDefaults(t *testing.T) {
	assert.Equal(t, 1, ModuleWorkers.Value)
	assert.Equal(t, 1, ClassWorkers.Value)
	assert.Equal(t, 1, TestWorkers.Value)
	assert.Equal(t, 2, Verbose.Value)
	assert.Equal(t, "./", ResultDirectory.Value)
	assert.Equal(t, "info", LogLevel.Value)
}
