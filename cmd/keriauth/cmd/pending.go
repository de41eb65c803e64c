package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/keriauth/api"
)

var (
	maxAge      time.Duration
	sendPayload string
	sendTimeout time.Duration
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Inspect pending background-to-App requests",
}

var pendingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending requests, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPendingList(cmd.Context(), newAPIClient(apiAddr), cmd.OutOrStdout())
	},
}

var pendingSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove pending requests older than --max-age",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp api.SweepResponse
		err := newAPIClient(apiAddr).do(cmd.Context(), http.MethodPost, "/pending/sweep",
			api.SweepRequest{MaxAge: maxAge.String()}, &resp)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d\n", resp.Removed)
		return nil
	},
}

var pendingRemoveCmd = &cobra.Command{
	Use:   "remove <request-id>",
	Short: "Remove one pending request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newAPIClient(apiAddr).do(cmd.Context(), http.MethodDelete, "/pending/"+url.PathEscape(args[0]), nil, nil)
	},
}

var pendingSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a request to the App and print its response",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPendingSend(cmd.Context(), newAPIClient(apiAddr), cmd.OutOrStdout(), sendPayload, sendTimeout)
	},
}

func runPendingSend(ctx context.Context, c *apiClient, w io.Writer, payload string, timeout time.Duration) error {
	req := api.AppRequest{}
	if payload != "" {
		if !json.Valid([]byte(payload)) {
			return fmt.Errorf("payload is not valid JSON")
		}
		req.Payload = json.RawMessage(payload)
	}
	if timeout > 0 {
		req.Timeout = timeout.String()
		// The server waits up to timeout before answering.
		c.http.Timeout = timeout + 10*time.Second
	}
	var resp api.AppResponse
	if err := c.do(ctx, http.MethodPost, "/pending", req, &resp); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n%s\n", resp.RequestID, resp.Payload)
	return nil
}

func runPendingList(ctx context.Context, c *apiClient, w io.Writer) error {
	var resp api.ListPendingResponse
	if err := c.do(ctx, http.MethodGet, "/pending", nil, &resp); err != nil {
		return err
	}
	if len(resp.Requests) == 0 {
		fmt.Fprintln(w, "no pending requests")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REQUEST ID\tTYPE\tCREATED\tTAB")
	for _, r := range resp.Requests {
		tab := "-"
		if r.TabID != nil {
			tab = fmt.Sprint(*r.TabID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.RequestID, r.Type, r.CreatedAt.Format(time.RFC3339), tab)
	}
	return tw.Flush()
}

func init() {
	rootCmd.AddCommand(pendingCmd)
	pendingCmd.AddCommand(pendingListCmd, pendingSweepCmd, pendingRemoveCmd, pendingSendCmd)
	pendingSendCmd.Flags().StringVar(&sendPayload, "payload", "", "JSON payload to send to the App")
	pendingSendCmd.Flags().DurationVar(&sendTimeout, "timeout", 0, "How long to wait for the App (default: dispatcher request_timeout)")
	pendingSweepCmd.Flags().DurationVar(&maxAge, "max-age", time.Hour, "Remove requests created longer ago than this")
}
