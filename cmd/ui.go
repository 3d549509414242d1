package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// newProgress returns a progress callback drawing a bar on stderr, or nil when disabled.
func newProgress(enabled bool, description string) (func(done, total int), func()) {
	if !enabled {
		return nil, func() {}
	}
	var bar *progressbar.ProgressBar
	update := func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetDescription(description),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetItsString("rows"),
				progressbar.OptionShowIts(),
				progressbar.OptionSetRenderBlankState(true),
				progressbar.OptionOnCompletion(func() { fmt.Fprint(os.Stderr, "\n") }),
			)
		}
		_ = bar.Set(done)
	}
	finish := func() {
		if bar != nil {
			_ = bar.Finish()
		}
	}
	return update, finish
}

// newSpinner returns a tick callback for passes whose size is not known up front.
func newSpinner(description string) (func(), func()) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
	)
	return func() { _ = bar.Add(1) }, func() {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
}

// printReport writes a report as JSON with --json, or its summary line otherwise.
// failed selects the warning color.
func printReport(report interface{}, summary string, failed bool) error {
	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	if noColor {
		color.NoColor = true
	}
	c := color.New(color.FgGreen, color.Bold)
	if failed {
		c = color.New(color.FgYellow, color.Bold)
	}
	_, err := c.Fprintln(os.Stdout, summary)
	return err
}
