package main

import (
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the super admin account if it does not exist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a := &app{cfg: cfg, log: log}
		defer a.close(ctx)
		if err := a.openStorage(ctx); err != nil {
			return err
		}
		return a.seed(ctx)
	},
}
