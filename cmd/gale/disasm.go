package main

import (
	"github.com/spf13/cobra"

	"gale/internal/bytecode"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <image.gbc> [delta.gbc...]",
	Short: "Print a bytecode image as text",
	Long:  `disasm prints an image. Deltas given after it are merged in order first.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := readImageFile(args[0])
		if err != nil {
			return err
		}
		for _, path := range args[1:] {
			delta, err := readImageFile(path)
			if err != nil {
				return err
			}
			if img, err = bytecode.Merge(img, delta); err != nil {
				return err
			}
		}
		return bytecode.Disassemble(cmd.OutOrStdout(), img)
	},
}
