package main

import (
	"github.com/spf13/cobra"

	"gale/internal/config"
)

// loadConfig reads --config, or the nearest gale.toml, over the defaults.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	if path == "" {
		found, ok, err := config.Find(".")
		if err != nil {
			return config.Config{}, err
		}
		if !ok {
			return config.Default(), nil
		}
		path = found
	}
	return config.Load(path)
}
