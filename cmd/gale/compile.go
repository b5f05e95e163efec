package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"gale/internal/bytecode"
	"gale/internal/driver"
	"gale/internal/irfile"
)

var compileCmd = &cobra.Command{
	Use:   "compile <module.gir>",
	Short: "Compile an IR module to a bytecode image",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompile,
}

func init() {
	compileCmd.Flags().StringP("output", "o", "", "output image (default: input with .gbc)")
	compileCmd.Flags().String("base", "", "emit a delta over this image")
	compileCmd.Flags().Int("jobs", 0, "functions lowered in parallel (0 = GOMAXPROCS)")
	compileCmd.Flags().Bool("no-opt", false, "skip the optimization pipeline")
	compileCmd.Flags().Bool("cache", false, "reuse images from the user cache directory")
	compileCmd.Flags().String("format", "pretty", "summary format (pretty|json)")
}

func runCompile(cmd *cobra.Command, args []string) error {
	input := args[0]
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + ".gbc"
	}
	basePath, err := cmd.Flags().GetString("base")
	if err != nil {
		return err
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return err
	}
	noOpt, err := cmd.Flags().GetBool("no-opt")
	if err != nil {
		return err
	}
	useCache, err := cmd.Flags().GetBool("cache")
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	m, err := irfile.ReadFile(input)
	if err != nil {
		return err
	}
	opts := driver.Options{Config: cfg, Jobs: jobs, NoOptimize: noOpt}
	if basePath != "" {
		if opts.Base, err = readImageFile(basePath); err != nil {
			return err
		}
	}
	if useCache {
		disk, err := driver.OpenDiskCache("gale")
		if err != nil {
			return fmt.Errorf("open cache: %w", err)
		}
		opts.Cache = driver.NewImageCache(1, disk)
	}

	res, err := driver.Compile(cmd.Context(), m, opts)
	if err != nil {
		return fmt.Errorf("%s: %w", input, err)
	}
	if err := writeImageFile(output, res.Image); err != nil {
		return err
	}
	if err := printTimings(cmd, input, res.Timings); err != nil {
		return err
	}
	return printSummary(cmd, output, res)
}

func printSummary(cmd *cobra.Command, output string, res *driver.Result) error {
	out := cmd.OutOrStdout()
	if isJSONOutput(cmd) {
		return writeJSON(out, struct {
			Output string       `json:"output"`
			Digest string       `json:"digest,omitempty"`
			Delta  bool         `json:"delta"`
			Stats  driver.Stats `json:"stats"`
		}{output, digestString(res.Digest), res.Image.IsDelta(), res.Stats})
	}
	s := res.Stats
	kind := "image"
	if res.Image.IsDelta() {
		kind = "delta"
	}
	fmt.Fprintf(out, "%s %s %s: %d functions, %d bytes, %d strings, %d buffers\n",
		color.GreenString("compiled"), kind, output, s.Funcs, s.CodeBytes, s.Strings, s.Literals)
	if s.CacheHit {
		fmt.Fprintln(out, color.CyanString("cache hit"), digestString(res.Digest))
	} else {
		fmt.Fprintf(out, "  frame <= %d, %d spill slots, %d spills, %d reloads, %d coalesced moves\n",
			s.FrameRegs, s.SpillSlots, s.Spills, s.Reloads, s.Coalesced)
	}
	return nil
}

func digestString(d driver.Digest) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func readImageFile(path string) (*bytecode.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := bytecode.ReadImage(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

func writeImageFile(path string, img *bytecode.Image) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), ".gbc-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()
	if err = bytecode.WriteImage(f, img); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
