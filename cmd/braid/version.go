package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/braid"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of braid",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "braid version %s\n", strings.TrimSpace(braid.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
