package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/traffic-cli/internal/model"
)

var (
	reportDomains string
	reportFile    string
	reportBypass  bool
	reportOut     string
)

var reportCmd = &cobra.Command{
	Use:   "report [domains...]",
	Short: "Run a batch and emit extraction diagnostics as YAML",
	Long:  "Runs extraction like the batch command but reports strategy hit rates, failure classes, and confirmed zero-traffic domains instead of the records themselves. Useful when the upstream page layout changes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		domains, err := readDomainArgs(args, reportDomains, reportFile)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := env.Runner.Run(ctx, model.BatchRequest{
			Domains:     domains,
			BypassCache: reportBypass,
		}); err != nil {
			return eris.Wrap(err, "run batch")
		}

		out := os.Stdout
		if reportOut != "" {
			f, err := os.Create(reportOut)
			if err != nil {
				return eris.Wrapf(err, "create output file %s", reportOut)
			}
			defer f.Close()
			out = f
		}
		return env.Diag.Snapshot().WriteYAML(out)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportDomains, "domains", "", "comma-separated list of domains")
	reportCmd.Flags().StringVar(&reportFile, "file", "", "file with one domain per line")
	reportCmd.Flags().BoolVar(&reportBypass, "bypass-cache", false, "force re-extraction even for fresh cached records")
	reportCmd.Flags().StringVar(&reportOut, "out", "", "write the YAML report to a file")
	rootCmd.AddCommand(reportCmd)
}
