package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/traffic-cli/internal/model"
)

var (
	batchDomains string
	batchFile    string
	batchBypass  bool
	batchJSON    bool
	batchOut     string
)

var batchCmd = &cobra.Command{
	Use:   "batch [domains...]",
	Short: "Extract traffic metrics for a set of domains",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		domains, err := readDomainArgs(args, batchDomains, batchFile)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Runner.Run(ctx, model.BatchRequest{
			Domains:     domains,
			BypassCache: batchBypass,
		})
		if err != nil {
			return eris.Wrap(err, "run batch")
		}

		out := os.Stdout
		if batchOut != "" {
			f, err := os.Create(batchOut)
			if err != nil {
				return eris.Wrapf(err, "create output file %s", batchOut)
			}
			defer f.Close()
			out = f
		}

		if batchJSON || batchOut != "" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return eris.Wrap(err, "encode results")
			}
		}

		printSummary(result)
		return nil
	},
}

func printSummary(result *model.BatchResult) {
	p := message.NewPrinter(language.English)
	m := result.Metadata
	p.Fprintf(os.Stderr, "domains: %d  sub-batches: %d  cache hits: %d  misses: %d  errors: %d\n",
		m.TotalDomains, m.BatchesProcessed, m.CacheHits, m.CacheMisses, len(m.Errors))
	for _, rec := range result.Results {
		if rec.Error != "" {
			p.Fprintf(os.Stderr, "  %-40s error: %s\n", rec.Domain, rec.Error)
			continue
		}
		if rec.MonthlyVisits != nil {
			p.Fprintf(os.Stderr, "  %-40s %d visits (%s)\n", rec.Domain, *rec.MonthlyVisits, rec.MonthYear)
		}
	}
}

func init() {
	batchCmd.Flags().StringVar(&batchDomains, "domains", "", "comma-separated list of domains")
	batchCmd.Flags().StringVar(&batchFile, "file", "", "file with one domain per line")
	batchCmd.Flags().BoolVar(&batchBypass, "bypass-cache", false, "force re-extraction even for fresh cached records")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "write full results as JSON to stdout")
	batchCmd.Flags().StringVar(&batchOut, "out", "", "write full results as JSON to a file")
	rootCmd.AddCommand(batchCmd)
}
