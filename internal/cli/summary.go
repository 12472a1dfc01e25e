package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"taxdesk/internal/core"
	"taxdesk/internal/log"
	"taxdesk/internal/worker"
)

func newSummaryCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Inspect and rebuild income summaries",
	}

	var (
		userID  string
		taxYear int
	)
	keyFlags := func(c *cobra.Command) {
		c.Flags().StringVar(&userID, "user-id", "", "Account id")
		c.Flags().IntVar(&taxYear, "tax-year", 0, "Tax year")
		_ = c.MarkFlagRequired("user-id")
		_ = c.MarkFlagRequired("tax-year")
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the stored summary as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := core.ParseKey(userID, taxYear)
			if err != nil {
				return err
			}
			repo, err := opts.openRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			sum, err := opts.summaryService(repo).Get(cmd.Context(), key)
			if err != nil {
				return err
			}
			return printJSON(cmd, sum)
		},
	}
	keyFlags(show)

	recompute := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild one summary from its stored details",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := core.ParseKey(userID, taxYear)
			if err != nil {
				return err
			}
			repo, err := opts.openRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			sum, err := opts.summaryService(repo).Recompute(cmd.Context(), key)
			if err != nil {
				return err
			}
			opts.logger.Info("Summary recomputed",
				log.FieldUserID, key.UserID,
				log.FieldTaxYear, key.TaxYear,
				log.FieldRevision, sum.Revision)
			return printJSON(cmd, sum)
		},
	}
	keyFlags(recompute)

	var batch int
	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute every summary that is missing or older than its details",
		Long: `Reconcile runs one pass of the worker's scheduled job: it finds up to
--batch keys whose summary is stale and recomputes each of them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := opts.openRepository()
			if err != nil {
				return err
			}
			defer repo.Close()

			w := worker.NewSummaryWorker(opts.summaryService(repo), repo, nil, worker.Options{
				BatchSize: batch,
				Logger:    opts.logger,
			})
			n, err := w.Reconcile(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "recomputed %d summaries\n", n)
			return err
		},
	}
	reconcile.Flags().IntVar(&batch, "batch", 100, "Maximum summaries to recompute")

	cmd.AddCommand(show, recompute, reconcile)
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
