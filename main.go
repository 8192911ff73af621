package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "plcping",
		Short: "PLC reachability checks",
		Long: `plcping checks whether PLCs answer on the network before any
protocol traffic is attempted, once from the command line or continuously
as a monitor that publishes results over MQTT.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newPingCmd())
	rootCmd.AddCommand(newIdentifyCmd())
	rootCmd.AddCommand(newMonitorCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

func reportError(w io.Writer, err error) {
	if errors.Is(err, errUnreachable) {
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}
