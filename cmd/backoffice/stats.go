package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"backoffice/pkg/config"
	"backoffice/pkg/metrics"
)

func newStatsCmd(_ *options) *cobra.Command {
	var (
		prometheusURL string
		window        string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-stage token usage and turn outcomes from Prometheus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if prometheusURL == "" {
				cfg, err := config.GetConfig()
				if err != nil {
					return err
				}
				prometheusURL = cfg.Metrics.PrometheusURL
			}
			if prometheusURL == "" {
				return fmt.Errorf("no Prometheus URL: set metrics.prometheus_url or --prometheus")
			}

			q, err := metrics.NewQueryService(prometheusURL)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			usage, err := q.GetStageUsage(ctx, window)
			if err != nil {
				return err
			}
			outcomes, err := q.GetTurnOutcomes(ctx, window)
			if err != nil {
				return err
			}
			rejections, err := q.GetGuardRejections(ctx, window)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STAGE\tREQUESTS\tERRORS\tPROMPT\tCOMPLETION\tTOTAL")
			for _, u := range usage {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
					u.Stage, u.Requests, u.Errors, u.PromptTokens, u.CompletionTokens, u.TotalTokens)
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "OUTCOME\tTURNS")
			for _, k := range sortedKeys(outcomes) {
				fmt.Fprintf(w, "%s\t%d\n", k, outcomes[k])
			}
			if len(rejections) > 0 {
				fmt.Fprintln(w)
				fmt.Fprintln(w, "GUARD REJECTION\tCOUNT")
				for _, k := range sortedKeys(rejections) {
					fmt.Fprintf(w, "%s\t%d\n", k, rejections[k])
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&prometheusURL, "prometheus", "", "Prometheus base URL (defaults to metrics.prometheus_url)")
	cmd.Flags().StringVarP(&window, "window", "w", "", "Only count this range, e.g. 24h (default: since start)")
	return cmd
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
