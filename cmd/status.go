package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/stallwatch/internal/tracker"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of every network tracked by the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context(), GetClient(), cmd.OutOrStdout(), statusOutput)
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "output format: table|json|yaml")
}

func runStatus(ctx context.Context, client ClientInterface, out io.Writer, format string) error {
	st, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	if format != "table" {
		return encode(out, st, format)
	}

	fmt.Fprintf(out, "stallwatch %s, up %ds\n", st.Version, st.UptimeSec)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NETWORK\tSTATE\tFAIL%\tSENT\tSENT_SINCE_RECV\tRECEIVED\tSOCKETS")
	for _, n := range st.Networks {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			n.Network, networkState(n), n.FailPercentage, n.Sent,
			n.SentSinceLastRecv, n.Received, n.MatchedSockets)
	}
	return tw.Flush()
}

func networkState(n tracker.NetworkStatus) string {
	switch {
	case n.Idle:
		return "idle"
	case !n.Polled:
		return "unknown"
	case n.StallSuspected:
		return "STALL"
	default:
		return "ok"
	}
}
