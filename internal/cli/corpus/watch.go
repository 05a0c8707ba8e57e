package corpus

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/newsvec/internal/domain"
	"github.com/cloo-solutions/newsvec/internal/jobs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// WatchCmd creates the watch command.
func WatchCmd() *cobra.Command {
	var (
		interval time.Duration
		once     bool
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Ingest document files dropped into a directory",
		Long: `Polls a directory for .json and .jsonl document files and ingests them.
Ingested files move to done/; unreadable files, and files whose store or
embedding failures persist, move to failed/.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return domain.ErrInvalidInterval.Wrap(fmt.Errorf("--interval %s", interval))
			}
			return withApp(cmd, func(ctx context.Context, app *App) error {
				w := cmd.OutOrStdout()
				processor := jobs.NewInboxProcessor(args[0], app.Ingest, ReadDocuments, app.Logger, func(r jobs.FileReport) {
					if wantJSON(cmd) {
						_ = printJSON(w, r)
						return
					}
					fmt.Fprintf(w, "%s: %d accepted, %d duplicate, %d rejected, %d failed\n",
						r.File, r.Accepted, r.Duplicate, r.Rejected, r.Failed)
				})

				if once {
					return processor.Process(ctx)
				}

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				worker, err := jobs.NewWorker(processor, interval, app.Logger)
				if err != nil {
					return err
				}
				app.Logger.Info("watching inbox", zap.String("dir", args[0]), zap.Duration("interval", interval))
				worker.Start(ctx)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "Polling interval")
	cmd.Flags().BoolVar(&once, "once", false, "Process the directory once and exit")

	return cmd
}
