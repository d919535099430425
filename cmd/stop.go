package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the stallwatch daemon",
	Long: `Stop the stallwatch daemon gracefully.

This command sends daemon_shutdown over the control socket. The daemon stops
polling, closes its reporters and exits cleanly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStop(cmd.Context(), GetClient(), cmd.OutOrStdout())
	},
}

func runStop(ctx context.Context, client ClientInterface, out io.Writer) error {
	if err := client.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop: %w", err)
	}
	fmt.Fprintln(out, "✓ Daemon is shutting down")
	return nil
}
