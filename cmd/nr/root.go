package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nrlog/nr/cmd/nr/bench"
)

const Version = "0.1.0"

var (
	// RootCmd represents the base command when called without any subcommands.
	RootCmd = &cobra.Command{
		Use:   "nr",
		Short: "node-replicated shared log toolkit",
		Long: fmt.Sprintf(`nr (v%s)

A toolkit for github.com/nrlog/nr, a NUMA-aware node-replicated shared log:
one append-only log of mutating operations, replayed independently by one
replica per NUMA node, combined via flat combining.`, Version),
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of nr",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nr v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	RootCmd.AddCommand(bench.Cmd)
	RootCmd.AddCommand(versionCmd)
}

// initConfig loads .env files (if present) and wires environment variables
// prefixed NR_ into viper, mirroring how flags are bound per-command.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("nr")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// Execute adds all child commands to RootCmd and runs it. It is called once
// by main.main.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}
