// Command taskprocessor runs the tiered priority scheduler and worker pool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vnykmshr/taskprocessor/internal/config"
	"github.com/vnykmshr/taskprocessor/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type globalFlags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "taskprocessor",
		Short:         "Tiered priority task scheduler with a worker pool",
		Long:          `taskprocessor routes tasks into HIGH, NORMAL, LOW and BACKLOG tiers by priority and drains them with a fixed pool of workers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to a YAML config file (default: search ./taskprocessor.yaml, ./configs, ~/.taskprocessor)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	root.AddCommand(newRunCmd(&flags))
	root.AddCommand(newSubmitDemoCmd(&flags))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "taskprocessor %s\n", version)
		},
	}
}

// load reads .env files and the config, applying flag overrides.
func load(flags *globalFlags) (*config.Config, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func setupLogger(c config.LogConfig) (*zap.Logger, func(), error) {
	log, err := logger.Setup(c)
	if err != nil {
		return nil, nil, err
	}
	return log, func() { _ = log.Sync() }, nil
}
