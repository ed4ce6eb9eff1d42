// version.go implements `awsdeploy version`.
package main

import (
	"fmt"

	"github.com/example/awsdeploy/internal/buildinfo"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the awsdeploy version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "awsdeploy "+buildinfo.String())
		},
	}
}
