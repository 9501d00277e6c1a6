// Command reldbctl drives the storage core standalone: opening a data
// directory, running the deadlock detector against it, running a scripted
// insert/get/delete workload against the B+ tree under a transaction, and
// printing buffer-pool configuration.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reldbctl",
	Short: "Operate the reldb storage core from the command line",
}

var devLog bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&devLog, "dev", false, "use a human-readable development logger instead of JSON")
	rootCmd.AddCommand(versionCmd, serveCmd, statsCmd, workloadCmd)
}
