package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mochigome-git/plc-ping/internal/logging"
	"github.com/mochigome-git/plc-ping/pkg/config"
	"github.com/mochigome-git/plc-ping/pkg/mqtt"
	"github.com/mochigome-git/plc-ping/pkg/plc"
	"github.com/mochigome-git/plc-ping/pkg/probe"
)

// errUnreachable makes the process exit non-zero. main prints nothing for it;
// runPing has already reported the result.
var errUnreachable = errors.New("unreachable")

type pingFlags struct {
	name      string
	aux       int
	attempts  int
	timeoutMs int
	method    string
	port      int
	json      bool
	logLevel  string
}

func newPingCmd() *cobra.Command {
	flags := &pingFlags{}

	cmd := &cobra.Command{
		Use:   "ping <address>",
		Short: "Check once whether a PLC answers",
		Long: `Probe a PLC with a bounded number of attempts. Exits with status 1
when the device does not answer.`,
		Example: `  plcping ping 192.168.0.10
  plcping ping 192.168.0.10 --method enip --attempts 3 --timeout-ms 500`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.name, "name", "", "Label for the device (default: the address)")
	cmd.Flags().IntVar(&flags.aux, "aux", 0, "Auxiliary device parameter, recorded in the result")
	cmd.Flags().IntVar(&flags.attempts, "attempts", config.DefaultAttempts, "Probe attempts")
	cmd.Flags().IntVar(&flags.timeoutMs, "timeout-ms", config.DefaultTimeoutMs, "Per-attempt timeout in milliseconds")
	cmd.Flags().StringVar(&flags.method, "method", string(probe.MethodAuto), "Probe method: auto, icmp, tcp, enip")
	cmd.Flags().IntVar(&flags.port, "port", config.DefaultPort, "Port for the tcp and enip methods")
	cmd.Flags().BoolVar(&flags.json, "json", false, "Print the result as JSON")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "warn", "Log level")

	return cmd
}

func runPing(cmd *cobra.Command, address string, flags *pingFlags) error {
	logger, closer, err := logging.New(flags.logLevel, "")
	if err != nil {
		return err
	}
	defer closer.Close()

	name := flags.name
	if name == "" {
		name = address
	}

	p, err := plc.FromConfig(config.PLCConfig{
		Name:      name,
		Host:      address,
		Auxiliary: flags.aux,
		Attempts:  flags.attempts,
		TimeoutMs: flags.timeoutMs,
		Method:    flags.method,
		Port:      flags.port,
	}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), p.MaxDuration()+time.Second)
	defer cancel()
	res := p.Probe(ctx)

	out := cmd.OutOrStdout()
	if flags.json {
		payload, err := mqtt.Encode(res)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(payload))
	} else if res.Reachable {
		fmt.Fprintf(out, "%s (%s) is reachable: %s via %s, attempt %d\n", res.Name, res.Address, res.RTT, res.Method, res.Attempts)
		if res.Identity != nil {
			fmt.Fprintf(out, "  identity: %s\n", res.Identity)
		}
	} else {
		fmt.Fprintf(out, "%s (%s) is unreachable after %d attempt(s): %s\n", res.Name, res.Address, res.Attempts, res.Error)
	}

	if !res.Reachable {
		return errUnreachable
	}
	return nil
}
