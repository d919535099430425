package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/stallwatch/internal/daemon"
	"firestige.xyz/stallwatch/internal/tracker"
)

var pollOutput string

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll every configured network once",
	Long: `Dump TCP sockets once per configured network and print the result.

A single poll compares socket counters against nothing, so every socket
contributes its lifetime totals.

Examples:
  stallwatch poll -c config.yml
  stallwatch poll -c config.yml -o yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPoll(cmd.OutOrStdout(), daemon.PollOnce, configFile, pollOutput)
	},
}

func init() {
	pollCmd.Flags().StringVarP(&pollOutput, "output", "o", "json", "output format: json|yaml")
}

type pollFunc func(configPath string, opts ...daemon.Option) ([]tracker.NetworkStatus, error)

func runPoll(out io.Writer, poll pollFunc, path, format string) error {
	if format != "json" && format != "yaml" {
		return fmt.Errorf("unsupported output format %q (must be json/yaml)", format)
	}

	statuses, err := poll(path)
	if err != nil {
		return fmt.Errorf("poll failed: %w", err)
	}

	return encode(out, statuses, format)
}

// encode writes v as indented json or yaml.
func encode(out io.Writer, v any, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}
