package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mochigome-git/plc-ping/pkg/enip"
)

type identifyFlags struct {
	port      int
	timeoutMs int
}

func newIdentifyCmd() *cobra.Command {
	flags := &identifyFlags{}

	cmd := &cobra.Command{
		Use:     "identify <address>",
		Short:   "Ask an EtherNet/IP device for its identity",
		Example: `  plcping identify 192.168.0.10`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(flags.timeoutMs)*time.Millisecond)
			defer cancel()

			id, rtt, err := enip.Identify(ctx, args[0], flags.port)
			if err != nil {
				return fmt.Errorf("identify %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Product:  %s\n", id.ProductName)
			fmt.Fprintf(out, "Vendor:   %d\n", id.VendorID)
			fmt.Fprintf(out, "Type:     %d\n", id.DeviceType)
			fmt.Fprintf(out, "Code:     %d\n", id.ProductCode)
			fmt.Fprintf(out, "Revision: %d.%d\n", id.RevisionMajor, id.RevisionMinor)
			fmt.Fprintf(out, "Serial:   0x%08X\n", id.SerialNumber)
			fmt.Fprintf(out, "State:    %d\n", id.State)
			fmt.Fprintf(out, "RTT:      %s\n", rtt)
			return nil
		},
	}

	cmd.Flags().IntVar(&flags.port, "port", enip.DefaultPort, "EtherNet/IP UDP port")
	cmd.Flags().IntVar(&flags.timeoutMs, "timeout-ms", 2000, "Reply timeout in milliseconds")
	return cmd
}
