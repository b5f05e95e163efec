package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gale/internal/driver"
	"gale/internal/observ"
)

func printTimings(cmd *cobra.Command, path string, report observ.Report) error {
	show, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil || !show {
		return err
	}
	out := cmd.ErrOrStderr()
	if isJSONOutput(cmd) {
		return driver.WriteTimings(out, path, report)
	}
	fmt.Fprintf(out, "timings (%s):\n", path)
	for _, p := range report.Phases {
		fmt.Fprintf(out, "  %-24s %7.2f ms", p.Name, p.DurationMS)
		if p.Note != "" {
			fmt.Fprintf(out, "  // %s", p.Note)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "  %-24s %7.2f ms\n", "total", report.TotalMS)
	return nil
}

func isJSONOutput(cmd *cobra.Command) bool {
	f := cmd.Flags().Lookup("format")
	return f != nil && f.Value.String() == "json"
}
