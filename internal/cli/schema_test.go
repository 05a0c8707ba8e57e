package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTree(t *testing.T) *cobra.Command {
	t.Helper()

	root := &cobra.Command{Use: "newsvec", Short: "root"}
	root.PersistentFlags().Bool("output", false, "Output as JSON")
	AddHelpJSONFlag(root)

	search := &cobra.Command{Use: "search <query>", Short: "Search news documents", Run: func(*cobra.Command, []string) {}}
	search.Flags().IntP("top", "n", 10, "Maximum number of documents")
	search.Flags().String("since", "", "Lower bound")
	require.NoError(t, search.MarkFlagRequired("since"))

	snapshot := &cobra.Command{Use: "snapshot", Short: "snapshots"}
	snapshot.AddCommand(&cobra.Command{Use: "export <key>", Short: "export", Run: func(*cobra.Command, []string) {}})
	snapshot.AddCommand(&cobra.Command{Use: "secret", Hidden: true, Run: func(*cobra.Command, []string) {}})

	root.AddCommand(search, snapshot)
	return root
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema(testTree(t))

	assert.Equal(t, "newsvec", schema.Name)
	require.Len(t, schema.Flags, 1)
	assert.Equal(t, "output", schema.Flags[0].Name)

	require.Len(t, schema.Subcommands, 2)
	search := schema.Subcommands[0]
	assert.Equal(t, "search", search.Name)
	assert.Equal(t, "search <query>", search.Use)

	flags := map[string]FlagSchema{}
	for _, f := range search.Flags {
		flags[f.Name] = f
	}
	assert.Equal(t, "n", flags["top"].Shorthand)
	assert.Equal(t, "int", flags["top"].Type)
	assert.Equal(t, "10", flags["top"].Default)
	assert.False(t, flags["top"].Required)
	assert.True(t, flags["since"].Required)
	assert.NotContains(t, flags, "output")
	assert.NotContains(t, flags, "help-json")

	snapshot := schema.Subcommands[1]
	require.Len(t, snapshot.Subcommands, 1)
	assert.Equal(t, "export", snapshot.Subcommands[0].Name)
}

func TestHandleHelpJSON(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		handled bool
		target  string
	}{
		{name: "root", args: []string{"--help-json"}, handled: true, target: "newsvec"},
		{name: "subcommand", args: []string{"snapshot", "export", "--help-json"}, handled: true, target: "export"},
		{name: "positional args skipped", args: []string{"search", "央行", "--help-json"}, handled: true, target: "search"},
		{name: "absent", args: []string{"search", "央行"}, handled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handled, err := HandleHelpJSON(&buf, testTree(t), tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.handled, handled)
			if !tt.handled {
				assert.Empty(t, buf.String())
				return
			}

			var got CommandSchema
			require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
			assert.Equal(t, tt.target, got.Name)
		})
	}
}
