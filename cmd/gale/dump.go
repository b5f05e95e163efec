package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gale/internal/ir"
	"gale/internal/irfile"
	"gale/internal/lir"
	"gale/internal/lower"
	"gale/internal/observ"
	"gale/internal/opt"
	"gale/internal/regalloc"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <module.gir>",
	Short: "Print an IR module, optionally after optimization or lowering",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func init() {
	dumpCmd.Flags().Bool("opt", false, "run the optimization pipeline first")
	dumpCmd.Flags().Bool("lir", false, "print the lowered LIR instead of the IR")
	dumpCmd.Flags().Bool("regs", false, "with --lir, print the code after register allocation")
	dumpCmd.Flags().Bool("types", false, "annotate IR values with their static types")
}

func runDump(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	optimize, _ := flags.GetBool("opt")
	showLIR, _ := flags.GetBool("lir")
	showRegs, _ := flags.GetBool("regs")
	types, _ := flags.GetBool("types")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	m, err := irfile.ReadFile(args[0])
	if err != nil {
		return err
	}
	if err := ir.Validate(m); err != nil {
		return fmt.Errorf("%s: invalid module: %w", args[0], err)
	}
	timer := observ.NewTimer()
	if optimize {
		p := opt.Default(cfg.Pipeline)
		p.Timer = timer
		if err := p.Run(cmd.Context(), m); err != nil {
			return err
		}
	}
	out := cmd.OutOrStdout()
	if !showLIR {
		if err := ir.DumpModule(out, m, ir.DumpOptions{Types: types}); err != nil {
			return err
		}
		return printTimings(cmd, args[0], timer.Report())
	}
	for _, f := range m.Funcs {
		var lf *lir.Func
		if err := timer.Track("lower/"+f.Name, func() (err error) {
			lf, err = lower.Lower(cmd.Context(), m, f, cfg.Lowering)
			return err
		}); err != nil {
			return fmt.Errorf("function %s: %w", f.Name, err)
		}
		if showRegs {
			if _, err := regalloc.AllocateContext(cmd.Context(), lf, cfg.RegAlloc); err != nil {
				return fmt.Errorf("function %s: %w", f.Name, err)
			}
		}
		if err := lir.Dump(out, lf); err != nil {
			return err
		}
	}
	return printTimings(cmd, args[0], timer.Report())
}
