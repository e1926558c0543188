package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newChainCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Operate on the claim hash chain",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "link",
		Short: "Link every unchained row once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer d.Close()
			runner, err := d.chainRunner(a.cfg, a.logger)
			if err != nil {
				return err
			}
			n, err := runner.RunOnce(ctx)
			if err != nil {
				return err
			}
			a.logger.InfoContext(ctx, "chain linked", "rows", n)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Recompute the stored chain and print the first mismatch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer d.Close()
			runner, err := d.chainRunner(a.cfg, a.logger)
			if err != nil {
				return err
			}
			report, err := runner.Verify(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	})
	return cmd
}
