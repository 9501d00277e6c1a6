package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is stamped at release time via -ldflags; "dev" covers local
// builds run straight out of the working tree.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the reldbctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}
