package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cloo-solutions/newsvec/internal/domain"
	"github.com/spf13/cobra"
)

// IngestOutcome pairs an ingest result with its error, if any.
type IngestOutcome struct {
	*domain.IngestResult
	Error string `json:"error,omitempty"`
}

// IngestCmd creates the ingest command.
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [file|-]",
		Short: "Ingest news documents",
		Long: `Reads documents from a file, or stdin when the argument is "-" or absent,
and ingests each one. Input is a JSON array or one JSON document per line:

  {"document_id": "...", "title": "...", "body": "...", "published_at": "2024-01-15T10:30:00Z"}`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := "-"
			if len(args) == 1 {
				input = args[0]
			}
			return withApp(cmd, func(ctx context.Context, app *App) error {
				return runIngest(ctx, cmd, app, input)
			})
		},
	}
	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, app *App, input string) error {
	var r io.Reader = cmd.InOrStdin()
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", input, err)
		}
		defer f.Close()
		r = f
	}

	docs, err := ReadDocuments(r)
	if err != nil {
		return err
	}

	outcomes := make([]IngestOutcome, 0, len(docs))
	failed := 0
	for _, doc := range docs {
		result, err := app.Ingest.Ingest(ctx, doc)
		outcome := IngestOutcome{IngestResult: result}
		if err != nil {
			outcome.Error = err.Error()
			if domain.IsCollaboratorFailure(err) {
				failed++
			}
		}
		outcomes = append(outcomes, outcome)
	}

	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		if err := printJSON(out, outcomes); err != nil {
			return err
		}
	} else {
		printOutcomes(out, outcomes)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(docs))
	}
	return nil
}

func printOutcomes(w io.Writer, outcomes []IngestOutcome) {
	counts := map[domain.IngestStatus]int{}
	for _, o := range outcomes {
		counts[o.Status]++
		switch o.Status {
		case domain.IngestAccepted:
			fmt.Fprintf(w, "%-9s %s (%d chunks)\n", o.Status, o.DocumentID, o.TotalChunks)
		case domain.IngestDuplicate:
			fmt.Fprintf(w, "%-9s %s\n", o.Status, o.DocumentID)
		default:
			fmt.Fprintf(w, "%-9s %s %s: %s\n", o.Status, o.DocumentID, o.Reason, o.Error)
		}
	}
	fmt.Fprintf(w, "\n%d accepted, %d duplicate, %d rejected\n",
		counts[domain.IngestAccepted], counts[domain.IngestDuplicate], counts[domain.IngestRejected])
}

// ReadDocuments decodes a JSON array or a stream of JSON documents.
func ReadDocuments(r io.Reader) ([]*domain.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var docs []*domain.Document
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("failed to parse documents: %w", err)
		}
		return docs, nil
	}

	var docs []*domain.Document
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var doc domain.Document
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse document %d: %w", len(docs)+1, err)
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}
