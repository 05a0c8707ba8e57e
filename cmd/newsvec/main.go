package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/newsvec/internal/cli"
	"github.com/cloo-solutions/newsvec/internal/cli/corpus"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "newsvec",
		Short: "Semantic retrieval over chunked financial news",
		Long: `newsvec ingests news documents as embedded chunks and answers
document-level semantic queries over them.

Environment variables (a .env file in the working directory is also read):
  NEWSVEC_BACKEND          chromem (default), pgvector or qdrant
  NEWSVEC_EMBED_MODE       client (default) or store
  NEWSVEC_OPENAI_API_KEY   key for embeddings and LLM keyword extraction
  NEWSVEC_DATABASE_URL     PostgreSQL URL for the pgvector backend
  NEWSVEC_QDRANT_HOST      Qdrant host for the qdrant backend
  NEWSVEC_REDIS_ADDR       optional embedding cache
  NEWSVEC_S3_ENDPOINT      object store for snapshots`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().Bool("metrics", false, "Print collected metrics after the command")
	cli.AddHelpJSONFlag(rootCmd)

	corpus.Version = version
	rootCmd.AddCommand(corpus.Commands()...)

	if handled, err := cli.HandleHelpJSON(os.Stdout, rootCmd, os.Args[1:]); handled {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
