// Package cli holds helpers shared by the newsvec commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const helpJSONFlag = "help-json"

// FlagSchema describes one command flag.
type FlagSchema struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// CommandSchema describes a command, its flags and its subcommands.
type CommandSchema struct {
	Name        string          `json:"name"`
	Use         string          `json:"use,omitempty"`
	Description string          `json:"description,omitempty"`
	Long        string          `json:"long,omitempty"`
	ValidArgs   []string        `json:"valid_args,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

// GenerateSchema walks cmd and its visible subcommands. Persistent flags
// appear once, on the command that declares them.
func GenerateSchema(cmd *cobra.Command) CommandSchema {
	schema := CommandSchema{
		Name:        cmd.Name(),
		Use:         cmd.Use,
		Description: cmd.Short,
		Long:        cmd.Long,
		ValidArgs:   cmd.ValidArgs,
		Flags:       flagSchemas(cmd.LocalFlags()),
	}

	for _, sub := range cmd.Commands() {
		if sub.Name() == "help" || sub.Name() == "completion" || sub.Hidden {
			continue
		}
		schema.Subcommands = append(schema.Subcommands, GenerateSchema(sub))
	}
	return schema
}

func flagSchemas(set *pflag.FlagSet) []FlagSchema {
	var flags []FlagSchema
	set.VisitAll(func(f *pflag.Flag) {
		if f.Name == helpJSONFlag || f.Name == "help" || f.Hidden {
			return
		}
		_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
		flags = append(flags, FlagSchema{
			Name:        f.Name,
			Shorthand:   f.Shorthand,
			Type:        f.Value.Type(),
			Default:     f.DefValue,
			Description: f.Usage,
			Required:    required,
		})
	})
	return flags
}

// WriteSchema writes the schema of cmd as indented JSON.
func WriteSchema(w io.Writer, cmd *cobra.Command) error {
	out, err := json.MarshalIndent(GenerateSchema(cmd), "", "  ")
	if err != nil {
		return fmt.Errorf("generating schema: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

// AddHelpJSONFlag adds the --help-json flag to a command tree.
func AddHelpJSONFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool(helpJSONFlag, false, "Output command schema as JSON")
}

// HandleHelpJSON looks for --help-json in args, the process arguments
// without the program name, and writes the schema of the command named by
// the arguments before it. It runs ahead of Execute so positional argument
// checks do not reject the call. It reports whether a schema was written.
func HandleHelpJSON(w io.Writer, root *cobra.Command, args []string) (bool, error) {
	for i, arg := range args {
		if arg == "--"+helpJSONFlag {
			return true, WriteSchema(w, findTargetCommand(root, args[:i]))
		}
	}
	return false, nil
}

func findTargetCommand(cmd *cobra.Command, args []string) *cobra.Command {
	if len(args) == 0 {
		return cmd
	}
	for _, sub := range cmd.Commands() {
		if sub.Name() == args[0] || sub.HasAlias(args[0]) {
			return findTargetCommand(sub, args[1:])
		}
	}
	return findTargetCommand(cmd, args[1:])
}
