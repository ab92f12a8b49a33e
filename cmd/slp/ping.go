package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cyberinferno/go-slp/pingclient"
	"github.com/cyberinferno/go-slp/status"
)

type pingOptions struct {
	count    int
	interval time.Duration
	timeout  time.Duration
	protocol uint64
	json     bool
	verbose  bool
}

// pingAttempt is one row of the ping report.
type pingAttempt struct {
	Seq    int         `json:"seq"`
	Result *pingResult `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

type pingResult struct {
	Version    string `json:"version"`
	Protocol   uint64 `json:"protocol"`
	Online     uint64 `json:"online"`
	Max        uint64 `json:"max"`
	MOTD       string `json:"motd"`
	LatencyMs  int64  `json:"latency_ms"`
	HasFavicon bool   `json:"has_favicon"`
	SecureChat bool   `json:"enforces_secure_chat"`
}

func pingCmd() *cobra.Command {
	opts := pingOptions{}

	cmd := &cobra.Command{
		Use:   "ping <host:port>",
		Short: "Query a server's status and measure its ping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args[0], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.count, "count", "n", 1, "Number of pings to send")
	cmd.Flags().DurationVarP(&opts.interval, "interval", "i", time.Second, "Wait between pings")
	cmd.Flags().DurationVarP(&opts.timeout, "timeout", "t", 5*time.Second, "Timeout for each ping")
	cmd.Flags().Uint64Var(&opts.protocol, "protocol", status.DefaultProtocol, "Protocol version sent in the handshake")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print results as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print every phase of the exchange")

	return cmd
}

func runPing(ctx context.Context, out, errOut io.Writer, address string, opts pingOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.count < 1 {
		opts.count = 1
	}

	config := pingclient.DefaultConfig(address)
	config.ProtocolVersion = opts.protocol
	config.ConnectionTimeout = opts.timeout
	config.Timeout = opts.timeout

	client := pingclient.New(config)
	if opts.verbose {
		client.OnPhase(func(e pingclient.PhaseEvent) {
			if e.Error != nil {
				fmt.Fprintf(errOut, "%s  %-15s %s: %v\n", e.Timestamp.Format("15:04:05.000"), e.Phase, e.Address, e.Error)
				return
			}
			fmt.Fprintf(errOut, "%s  %-15s %s\n", e.Timestamp.Format("15:04:05.000"), e.Phase, e.Address)
		})
	}

	attempts := make([]pingAttempt, 0, opts.count)
	failures := 0
	for seq := 1; seq <= opts.count; seq++ {
		if seq > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(opts.interval):
			}
		}

		result, err := client.Ping(ctx)
		attempt := pingAttempt{Seq: seq}
		if err != nil {
			failures++
			attempt.Error = err.Error()
		} else {
			attempt.Result = newPingResult(result)
		}

		attempts = append(attempts, attempt)
	}

	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(attempts); err != nil {
			return err
		}
	} else {
		renderPingTable(out, address, attempts)
	}

	if failures == opts.count {
		return fmt.Errorf("all %d pings to %s failed", opts.count, address)
	}

	return nil
}

func newPingResult(r *pingclient.Result) *pingResult {
	return &pingResult{
		Version:    r.Status.Version.Name,
		Protocol:   r.Status.Version.Protocol,
		Online:     r.Status.Players.Online,
		Max:        r.Status.Players.Max,
		MOTD:       r.Status.Description.Text,
		LatencyMs:  r.Latency.Milliseconds(),
		HasFavicon: r.Status.Favicon != "",
		SecureChat: r.Status.EnforcesSecureChat,
	}
}

func renderPingTable(out io.Writer, address string, attempts []pingAttempt) {
	fmt.Fprintf(out, "\nServer: %s\n", address)

	tw := tablewriter.NewWriter(out)
	tw.SetHeader([]string{"#", "Version", "Protocol", "Players", "MOTD", "Latency", "Error"})
	tw.SetBorder(false)
	tw.SetAutoWrapText(false)

	for _, a := range attempts {
		if a.Result == nil {
			tw.Append([]string{strconv.Itoa(a.Seq), "-", "-", "-", "-", "-", a.Error})
			continue
		}

		r := a.Result
		tw.Append([]string{
			strconv.Itoa(a.Seq),
			r.Version,
			strconv.FormatUint(r.Protocol, 10),
			fmt.Sprintf("%d/%d", r.Online, r.Max),
			r.MOTD,
			fmt.Sprintf("%dms", r.LatencyMs),
			"",
		})
	}

	tw.Render()
}
