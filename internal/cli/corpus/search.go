package corpus

import (
	"context"
	"strings"

	"github.com/cloo-solutions/newsvec/internal/domain"
	"github.com/cloo-solutions/newsvec/internal/service"
	"github.com/spf13/cobra"
)

// SearchCmd creates the search command.
func SearchCmd() *cobra.Command {
	var (
		top      int
		keywords []string
		filters  []string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search news documents",
		Long: `Ranks documents by semantic similarity of their chunks to the query.
Keywords restrict results to chunks containing any of them; filters are
field=value equality terms on document metadata.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				start, end, err := timeRange(app, cmd)
				if err != nil {
					return err
				}
				extra, err := ParseFilters(filters)
				if err != nil {
					return err
				}

				results, err := app.Retrieval.Search(ctx, service.SearchRequest{
					Query:    args[0],
					TopN:     top,
					Keywords: keywords,
					Start:    start,
					End:      end,
					Filters:  extra,
				})
				if err != nil {
					return err
				}
				return writeResults(cmd, results)
			})
		},
	}

	cmd.Flags().IntVarP(&top, "top", "n", 10, "Maximum number of documents")
	cmd.Flags().StringArrayVarP(&keywords, "keyword", "k", nil, "Require chunks containing this text (repeatable, any matches)")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Metadata equality filter field=value (repeatable)")
	addTimeRangeFlags(cmd)

	return cmd
}

// SimilarCmd creates the similar command.
func SimilarCmd() *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "similar <document_id>",
		Short: "Find documents similar to a stored one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				results, err := app.Retrieval.Similar(ctx, args[0], top)
				if err != nil {
					return err
				}
				return writeResults(cmd, results)
			})
		},
	}

	cmd.Flags().IntVarP(&top, "top", "n", 10, "Maximum number of documents")

	return cmd
}

func writeResults(cmd *cobra.Command, results []*domain.SearchResult) error {
	if wantJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), results)
	}
	printResults(cmd.OutOrStdout(), results)
	return nil
}

// ParseFilters turns field=value pairs into filter terms. Later pairs for
// the same field win.
func ParseFilters(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		field, value, ok := strings.Cut(p, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, domain.InvalidFilter("filter %q must be field=value", p)
		}
		out[field] = value
	}
	return out, nil
}
