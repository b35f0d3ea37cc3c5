package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/tidwall/sjson"

	"github.com/jmcleod/remotehand/protocol"
	"github.com/jmcleod/remotehand/transport"
)

var (
	sendAddr     string
	sendPassword string
	sendTimeout  time.Duration
	sendPretty   bool
)

var sendCmd = &cobra.Command{
	Use:   "send [request...]",
	Short: "Send requests to a running agent",
	Long: `Sends each request, a JSON object, to the agent over one connection and
prints every response on its own line.

With --password the login exchange is sent first. The agent only grants
access from the exchange after a successful login, so the remaining
requests run authorized.`,
	Example: `  remotehand send --addr 127.0.0.1:4632 --password s3cret '{"request":"sayHello"}'
  remotehand send '{"accessPassword":"s3cret"}'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendAddr, "addr", "a", "127.0.0.1:4632", "Agent socket address")
	sendCmd.Flags().StringVarP(&sendPassword, "password", "p", "", "Log in with this secret before sending")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 30*time.Second, "Overall timeout")
	sendCmd.Flags().BoolVar(&sendPretty, "pretty", false, "Indent responses")
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
	defer cancel()

	requests := make([][]byte, 0, len(args)+1)
	if cmd.Flags().Changed("password") {
		login, err := sjson.SetBytes([]byte(`{}`), "password", sendPassword)
		if err != nil {
			return err
		}
		requests = append(requests, login)
	}
	for _, arg := range args {
		requests = append(requests, []byte(arg))
	}

	conn, err := transport.Dial(ctx, sendAddr)
	if err != nil {
		return err
	}
	defer conn.Close()
	return exchangeAll(ctx, conn, requests, cmd.OutOrStdout(), sendPretty)
}

type exchanger interface {
	Exchange(ctx context.Context, request []byte) ([]byte, error)
}

func exchangeAll(ctx context.Context, c exchanger, requests [][]byte, out io.Writer, pretty bool) error {
	for _, req := range requests {
		resp, err := c.Exchange(ctx, req)
		if err != nil {
			return fmt.Errorf("request %s: %w", req, err)
		}
		fmt.Fprintf(out, "%s\n", protocol.Format(resp, pretty))
	}
	return nil
}
