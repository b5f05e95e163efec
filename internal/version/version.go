// Package version carries the build metadata of the gale CLI.
package version

import "github.com/fatih/color"

// Version information for the gale CLI.
// These variables can be overridden at build time via -ldflags.

var (
	// Version is the semantic version of the CLI.
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

var (
	versionMajorColor = color.New(color.FgYellow, color.Bold)
	versionMinorColor = color.New(color.FgGreen, color.Bold)
	versionPatchColor = color.New(color.FgBlue, color.Bold)
)

// Banner renders Version with each numeric component colored. Anything
// that is not a plain major.minor.patch is returned unchanged.
func Banner() string {
	var parts [3]string
	rest := Version
	for i := range parts {
		end := 0
		for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
			end++
		}
		if end == 0 {
			return Version
		}
		parts[i], rest = rest[:end], rest[end:]
		if i < 2 {
			if rest == "" || rest[0] != '.' {
				return Version
			}
			rest = rest[1:]
		}
	}
	return versionMajorColor.Sprint(parts[0]) + "." + versionMinorColor.Sprint(parts[1]) + "." + versionPatchColor.Sprint(parts[2]) + rest
}
