package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"gale/internal/bytecode"
	"gale/internal/irfile"
	"gale/internal/version"
)

type versionPayload struct {
	Tool         string `json:"tool"`
	Version      string `json:"version"`
	ImageVersion uint16 `json:"image_version"`
	IRSchema     uint16 `json:"ir_schema"`
	GitCommit    string `json:"git_commit,omitempty"`
	BuildDate    string `json:"build_date,omitempty"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show gale build fingerprints",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := cmd.Flags().GetString("format")
		if err != nil {
			return err
		}
		p := collectVersion()
		switch strings.ToLower(format) {
		case "json":
			return writeJSON(cmd.OutOrStdout(), p)
		case "pretty":
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "gale %s (image v%d, ir schema %d)\n", version.Banner(), p.ImageVersion, p.IRSchema)
			if p.GitCommit != "" {
				fmt.Fprintf(out, "commit: %s\n", p.GitCommit)
			}
			if p.BuildDate != "" {
				fmt.Fprintf(out, "built:  %s\n", p.BuildDate)
			}
			return nil
		default:
			return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
		}
	},
}

func init() {
	versionCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

func collectVersion() versionPayload {
	v := strings.TrimSpace(version.Version)
	if v == "" {
		v = "dev"
	}
	return versionPayload{
		Tool:         "gale",
		Version:      v,
		ImageVersion: bytecode.Version,
		IRSchema:     irfile.Schema,
		GitCommit:    strings.TrimSpace(version.GitCommit),
		BuildDate:    strings.TrimSpace(version.BuildDate),
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
