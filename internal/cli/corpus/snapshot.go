package corpus

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// SnapshotCmd creates the snapshot command group.
func SnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage corpus snapshots in S3",
		Long:  "Copies every stored chunk, embeddings included, to or from a JSON lines object in the configured S3 bucket, and lists or deletes those objects.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "export <key>",
		Short: "Write the corpus to an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				snapshots, err := app.Snapshots(ctx)
				if err != nil {
					return err
				}
				n, err := snapshots.Export(ctx, args[0])
				if err != nil {
					return err
				}
				if wantJSON(cmd) {
					return printJSON(cmd.OutOrStdout(), map[string]any{"key": args[0], "chunks": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d chunks to %s\n", n, args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import <key>",
		Short: "Load a corpus object, skipping documents already stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				snapshots, err := app.Snapshots(ctx)
				if err != nil {
					return err
				}
				result, err := snapshots.Import(ctx, args[0])
				if err != nil {
					return err
				}
				if wantJSON(cmd) {
					return printJSON(cmd.OutOrStdout(), result)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d documents (%d chunks), skipped %d\n",
					result.Documents, result.Chunks, result.Skipped)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list [prefix]",
		Short: "List snapshot objects",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			return withApp(cmd, func(ctx context.Context, app *App) error {
				objects, err := app.ObjectStore(ctx)
				if err != nil {
					return err
				}
				infos, err := objects.ListObjects(ctx, prefix)
				if err != nil {
					return err
				}
				if wantJSON(cmd) {
					return printJSON(cmd.OutOrStdout(), infos)
				}
				if len(infos) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No snapshots found.")
					return nil
				}
				for _, o := range infos {
					fmt.Fprintf(cmd.OutOrStdout(), "%-40s %10d  %s\n", o.Key, o.Size, o.LastModified.Format(time.RFC3339))
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a snapshot object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *App) error {
				objects, err := app.ObjectStore(ctx)
				if err != nil {
					return err
				}
				if err := objects.DeleteObject(ctx, args[0]); err != nil {
					return err
				}
				if wantJSON(cmd) {
					return printJSON(cmd.OutOrStdout(), map[string]any{"key": args[0], "deleted": true})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	})

	return cmd
}
