package corpus

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloo-solutions/newsvec/internal/domain"
	"github.com/cloo-solutions/newsvec/internal/service"
	"github.com/spf13/cobra"
)

// DeleteCmd creates the delete command.
func DeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document_id>",
		Short: "Delete a document and all of its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				deleted, err := app.Retrieval.Delete(ctx, args[0])
				if err != nil {
					return err
				}
				if wantJSON(cmd) {
					return printJSON(cmd.OutOrStdout(), map[string]any{"document_id": args[0], "deleted": deleted})
				}
				if deleted {
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "No chunks found for %s\n", args[0])
				}
				return nil
			})
		},
	}
}

// StatsCmd creates the stats command.
func StatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show corpus statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				stats, err := app.Retrieval.Stats(ctx)
				if err != nil {
					return err
				}
				if wantJSON(cmd) {
					return printJSON(cmd.OutOrStdout(), stats)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Backend:    %s\n", stats.Backend)
				if stats.Collection != "" {
					fmt.Fprintf(w, "Collection: %s\n", stats.Collection)
				}
				fmt.Fprintf(w, "Chunks:     %d\n", stats.TotalChunks)
				return nil
			})
		},
	}
}

// MarketCmd creates the market command.
func MarketCmd() *cobra.Command {
	var (
		minRelevance float64
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "market",
		Short: "List documents by market relevance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				docs, err := app.Retrieval.MarketRelevant(ctx, minRelevance, limit)
				if err != nil {
					return err
				}
				if wantJSON(cmd) {
					return printJSON(cmd.OutOrStdout(), docs)
				}
				printSummaries(cmd, docs)
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&minRelevance, "min", service.DefaultMinMarketRelevance, "Minimum market relevance")
	cmd.Flags().IntVarP(&limit, "limit", "n", service.DefaultMarketLimit, "Maximum number of documents")

	return cmd
}

func printSummaries(cmd *cobra.Command, docs []*domain.DocumentSummary) {
	w := cmd.OutOrStdout()
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents found.")
		return
	}
	for _, d := range docs {
		fmt.Fprintf(w, "%.2f  %s  %s\n", d.MarketRelevance, d.PublishedAt, d.Title)
		fmt.Fprintf(w, "      ID: %s", d.DocumentID)
		if len(d.Keywords) > 0 {
			fmt.Fprintf(w, "  Keywords: %s", strings.Join(d.Keywords, ", "))
		}
		fmt.Fprintln(w)
	}
}

// SentimentCmd creates the sentiment command.
func SentimentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sentiment",
		Short: "Summarize document sentiment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				start, end, err := timeRange(app, cmd)
				if err != nil {
					return err
				}
				summary, err := app.Retrieval.SentimentSummary(ctx, start, end)
				if err != nil {
					return err
				}
				if wantJSON(cmd) {
					return printJSON(cmd.OutOrStdout(), summary)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Documents: %d  Average: %.3f\n", summary.Total, summary.AverageSentiment)
				for _, label := range []string{domain.SentimentPositive, domain.SentimentNeutral, domain.SentimentNegative} {
					count := map[string]int{
						domain.SentimentPositive: summary.Positive,
						domain.SentimentNeutral:  summary.Neutral,
						domain.SentimentNegative: summary.Negative,
					}[label]
					fmt.Fprintf(w, "  %-8s %4d  %5.1f%%\n", label, count, summary.Distribution[label]*100)
				}
				return nil
			})
		},
	}

	addTimeRangeFlags(cmd)

	return cmd
}
