package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/gpiolive/config"
)

// newProfilesCmd lists the compiled-in board profiles.
func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the board profiles",
		Long:  `List the board profiles compiled into this binary, with their pin counts.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPINS\tDESCRIPTION")
			for _, name := range config.Names() {
				p, err := config.Load(name)
				if err != nil {
					return err
				}
				marker := ""
				if name == config.DefaultProfile {
					marker = " (default)"
				}
				fmt.Fprintf(tw, "%s%s\t%d\t%s\n", name, marker, len(p.Pins), p.Description)
			}
			return tw.Flush()
		},
	}
}
