// Package cli wires configuration, storage, the relay and the HTTP surface
// into the shieldx commands.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command for the shieldx CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "shieldx",
		Short: "Event, trigger and rule registry for microservice pipelines",
		Long: `shieldx records events emitted by microservice functions, maps event
types to triggers and triggers to rules, and relays events from a message
broker into storage.

Run 'shieldx help <command>' for more information on a specific command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to the YAML config file (defaults and environment only when empty)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewConsumeCommand(opts))
	cmd.AddCommand(NewProduceCommand(opts))

	return cmd
}

// Execute runs the root command. It is called by main.main().
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
