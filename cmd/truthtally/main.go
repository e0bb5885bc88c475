package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "truthtally",
		Short: "Community fact-tracking for political statements",
		Long: `truthtally tracks politicians and their public statements. Signed-in
users vote on statements, moderators adjudicate them, and every change is
kept in an append-only audit log.

Server configuration comes from the YAML file given with --config, then from
TRUTHTALLY_* environment variables (a .env file is read first).`,
		SilenceUsage: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("truthtally v%s\n", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
