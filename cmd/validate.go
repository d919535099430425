package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/stallwatch/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load and validate the configuration file without starting the daemon.

Examples:
  stallwatch validate -c /etc/stallwatch/config.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(cmd.OutOrStdout(), configFile); err != nil {
			exitWithError("INVALID", err)
		}
	},
}

func runValidate(out io.Writer, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "VALID: %s: %d network(s), poll every %s, fail >= %d%% over >= %d packets\n",
		path,
		len(cfg.Networks),
		cfg.Poll.IntervalDuration(),
		cfg.Connectivity.TCPPacketsFailPercentage,
		cfg.Connectivity.TCPMinPacketsThreshold,
	)
	for _, n := range cfg.Networks {
		if n.Static() {
			fmt.Fprintf(out, "  %-12s mark 0x%x/0x%x\n", n.Name, n.Mark, n.Mask)
		} else {
			fmt.Fprintf(out, "  %-12s ip rule lookup table %d\n", n.Name, n.Table)
		}
	}

	var reporters []string
	if cfg.Reporters.Log.Enabled {
		reporters = append(reporters, "log")
	}
	if cfg.Reporters.Kafka.Enabled {
		reporters = append(reporters, "kafka:"+cfg.Reporters.Kafka.Topic)
	}
	fmt.Fprintf(out, "  reporters: %v\n", reporters)
	return nil
}
