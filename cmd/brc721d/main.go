// Command brc721d is the BRC-721 indexer and watch-only wallet daemon.
// With no subcommand it runs the scanner and the read-only HTTP API
// concurrently until signaled; every other subcommand runs once and exits.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brc721/brc721d/internal/daemonerr"
)

func main() {
	var envFile string
	var reset bool

	root := &cobra.Command{
		Use:   "brc721d",
		Short: "BRC-721 indexer and watch-only wallet daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(envFile, reset)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file to load before reading the environment")
	root.Flags().BoolVar(&reset, "reset", false, "wipe the Store before starting")

	root.AddCommand(walletCmd(&envFile))
	root.AddCommand(txCmd(&envFile))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(daemonerr.ExitCode(err))
	}
}
