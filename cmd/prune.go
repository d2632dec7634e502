package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var pruneMonths int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete snapshots older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		months := pruneMonths
		if months == 0 {
			months = cfg.Store.RetentionMonths
		}

		n, err := st.PruneSnapshots(ctx, months)
		if err != nil {
			return eris.Wrap(err, "prune snapshots")
		}
		zap.L().Info("prune complete", zap.Int64("deleted", n), zap.Int("retention_months", months))
		return nil
	},
}

func init() {
	pruneCmd.Flags().IntVar(&pruneMonths, "months", 0, "retention window in months (default from config)")
	rootCmd.AddCommand(pruneCmd)
}
