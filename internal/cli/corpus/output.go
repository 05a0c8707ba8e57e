package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloo-solutions/newsvec/internal/domain"
	"github.com/cloo-solutions/newsvec/internal/telemetry"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

const excerptPreviewRunes = 100

// openApp is replaced in tests.
var openApp = Open

// withApp opens the App for one command, runs fn and prints the gathered
// metrics when --metrics is set.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, span := telemetry.StartSpan(ctx, "cli."+cmd.Name(), telemetry.SpanAttributes{
		Backend:   app.Config.Backend,
		Operation: cmd.CommandPath(),
	})
	defer span.End()

	if err := fn(ctx, app); err != nil {
		// domain errors are input problems or were reported by the service
		if domain.ErrorCode(err) == "" {
			telemetry.CaptureError(ctx, err)
		}
		return err
	}

	if show, _ := cmd.Flags().GetBool("metrics"); show {
		return app.WriteMetrics(cmd.OutOrStdout())
	}
	return nil
}

// WriteMetrics writes the registry in the Prometheus text format.
func (a *App) WriteMetrics(w io.Writer) error {
	families, err := a.Registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("output")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func printResults(w io.Writer, results []*domain.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "Found %d results:\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(w, "%d. %s (%.3f)\n", i+1, r.Metadata.Title, r.CompositeScore)
		fmt.Fprintf(w, "   %s\n", preview(r.Excerpt))
		fmt.Fprintf(w, "   Published: %s  Chunks: %d/%d\n", r.Metadata.PublishedAt, r.MatchedChunks, r.TotalChunks)
		fmt.Fprintf(w, "   ID: %s\n", r.DocumentID)
		if i < len(results)-1 {
			fmt.Fprintln(w, strings.Repeat("-", 40))
		}
	}
}

// preview flattens an excerpt onto one line and truncates it.
func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= excerptPreviewRunes {
		return s
	}
	return string([]rune(s)[:excerptPreviewRunes-3]) + "..."
}

// parseTimeFlag reads an optional time flag strictly.
func parseTimeFlag(app *App, cmd *cobra.Command, name string) (*time.Time, error) {
	raw, _ := cmd.Flags().GetString(name)
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := app.Normalizer.ParseText(raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &t, nil
}

func addTimeRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("since", "", "Only documents published at or after this time (ISO-8601)")
	cmd.Flags().String("until", "", "Only documents published at or before this time (ISO-8601)")
}

func timeRange(app *App, cmd *cobra.Command) (*time.Time, *time.Time, error) {
	start, err := parseTimeFlag(app, cmd, "since")
	if err != nil {
		return nil, nil, err
	}
	end, err := parseTimeFlag(app, cmd, "until")
	if err != nil {
		return nil, nil, err
	}
	return start, end, nil
}
