package percolator

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

const mugArt = `
    ( (
     ) )
  .........
  |       |___
  |       |_  |
  |  :-)  |_| |
  |       |___|
  |_______|`

const coldBrewArt = `
  .........
  |       |___
  |  >_<  |_  |
  |  ~~~  |_| |
  |       |___|
  |_______|`

// printMug writes the startup banner.
func printMug(w io.Writer) {
	fmt.Fprintln(w, mugArt)
	fmt.Fprintln(w, color.CyanString("=== Percolator ==="))
}

// printConfiguration writes the percolated configuration block: where
// tests come from and which files and directories this run uses.
func printConfiguration(w io.Writer, cfg *Config) {
	fmt.Fprintln(w, strings.Repeat("=", 70))
	fmt.Fprintln(w, "Percolated Configuration")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	if len(cfg.Packages) > 0 {
		fmt.Fprintf(w, "BREWING FROM: ....: %s\n", cfg.Packages[0])
		for _, pkg := range cfg.Packages[1:] {
			fmt.Fprintf(w, "%s%s\n", strings.Repeat(" ", 20), pkg)
		}
	}
	if cfg.ListFile != "" {
		fmt.Fprintf(w, "TEST LIST FILE....: %s\n", cfg.ListFile)
	}
	fmt.Fprintf(w, "ENGINE CONFIG FILE: %s\n", cfg.EngineConfigPath)
	fmt.Fprintf(w, "TEST CONFIG FILE..: %s\n", cfg.TestConfigPath)
	fmt.Fprintf(w, "DATA DIRECTORY....: %s\n", cfg.DataDir)
	fmt.Fprintf(w, "LOG PATH..........: %s\n", cfg.LogDir)
	fmt.Fprintln(w, strings.Repeat("=", 70))
}

// printBrewFailed writes the failure art shown after a failing run.
func printBrewFailed(w io.Writer) {
	fmt.Fprintln(w, coldBrewArt)
	fmt.Fprintln(w, color.RedString("=== the brew went cold ==="))
}
