// Package command holds cobra helpers shared by the CLI subcommands.
package command

import (
	"github.com/spf13/cobra"
)

// NewSubcommandGroup returns a command that only dispatches to its
// subcommands, printing help when invoked bare.
func NewSubcommandGroup(name string, subcommands ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use: name,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	cmd.AddCommand(subcommands...)

	return cmd
}
