package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/braid/internal/cli"
	"github.com/aretw0/braid/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "braid",
	Short: "braid composes units into pipelines with session history",
	Long: `braid runs a chat pipeline built from composable units. Each session
keeps its message history in the configured store (memory, file or redis).`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	flags := rootCmd.PersistentFlags()
	flags.String("config", "braid.yaml", "Path to the configuration file (YAML or JSON)")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("store", "", "History backend: memory, file or redis")
	flags.String("store-path", "", "Directory for the file backend")
	flags.String("redis-addr", "", "Address of the redis backend")
}

// loadConfig reads the config file and applies explicit flags on top.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	var override config.Config
	override.Log.Level, _ = cmd.Flags().GetString("log-level")
	override.Store.Backend, _ = cmd.Flags().GetString("store")
	override.Store.Path, _ = cmd.Flags().GetString("store-path")
	override.Store.Redis.Addr, _ = cmd.Flags().GetString("redis-addr")
	if cmd.Flags().Lookup("addr") != nil {
		override.Server.Addr, _ = cmd.Flags().GetString("addr")
	}
	return cfg.Merge(override), nil
}

func buildStack(cmd *cobra.Command) (*cli.Stack, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return cli.Build(cfg)
}
