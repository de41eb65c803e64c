package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/keriauth/api"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or control the session of a running dispatcher",
}

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the session is unlocked and when it expires",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessionStatus(cmd.Context(), newAPIClient(apiAddr), cmd.OutOrStdout())
	},
}

var sessionLockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Lock the session now",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newAPIClient(apiAddr).do(cmd.Context(), http.MethodPost, "/session/lock", nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "locked")
		return nil
	},
}

var sessionUnlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Unlock the session with a passcode read from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		passcode, err := readPasscode(cmd.InOrStdin())
		if err != nil {
			return err
		}
		var resp api.SessionResponse
		err = newAPIClient(apiAddr).do(cmd.Context(), http.MethodPost, "/session/unlock", api.UnlockRequest{Passcode: passcode}, &resp)
		if err != nil {
			return err
		}
		printSession(cmd.OutOrStdout(), resp)
		return nil
	},
}

func runSessionStatus(ctx context.Context, c *apiClient, w io.Writer) error {
	var resp api.SessionResponse
	if err := c.do(ctx, http.MethodGet, "/session", nil, &resp); err != nil {
		return err
	}
	printSession(w, resp)
	return nil
}

func printSession(w io.Writer, s api.SessionResponse) {
	if s.ExpiresAt == nil {
		fmt.Fprintf(w, "state: %s\n", s.State)
		return
	}
	fmt.Fprintf(w, "state: %s\nexpires: %s\n", s.State, s.ExpiresAt.Local().Format(time.RFC3339))
}

// readPasscode reads the first line of r.
func readPasscode(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading passcode: %w", err)
	}
	passcode := strings.TrimRight(line, "\r\n")
	if passcode == "" {
		return "", fmt.Errorf("no passcode given on stdin")
	}
	return passcode, nil
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionStatusCmd, sessionLockCmd, sessionUnlockCmd)
}
