// ABOUTME: CLI entrypoint for kodejam with serve, chat, and version commands.
// ABOUTME: Loads .env files, builds the cobra command tree, and runs it under a signal-aware context.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2389-research/kodejam/config"
)

var version = "dev"

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

func main() {
	loadDotEnvAuto()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// newRootCmd builds the full command tree.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "kodejam",
		Short: "Drive a coding agent from a canvas and stream its output",
		Long: `kodejam runs the Claude CLI on behalf of a design canvas.

The serve command exposes chat, build plan/execute, and screenshot endpoints
over HTTP with Server-Sent Events and WebSocket streaming. The chat command is
a terminal client for a running server.

Quick Start:
  kodejam serve                         # listen on 127.0.0.1:3001
  kodejam chat --repo . --page Home     # talk to the agent about a page`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(`{{printf "kodejam %s\n" .Version}}`)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/kodejam/config.yaml)")

	root.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the kodejam version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kodejam %s\n", version)
		},
	}
}

// loadConfig reads the config file named by --config, or the XDG default.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		if p, err := defaultConfigPath(); err == nil {
			path = p
		}
	}
	return config.Load(path)
}
