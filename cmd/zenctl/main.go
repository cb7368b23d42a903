package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ployz-io/zen/config"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var socketPath string

	cmd := &cobra.Command{
		Use:   "zenctl",
		Short: "Inspect a zend daemon's cluster view",
	}
	cmd.PersistentFlags().StringVar(&socketPath, "socket", "", "admin API unix socket (overrides the current context)")

	cmd.AddCommand(statusCmd(&socketPath))
	cmd.AddCommand(membersCmd(&socketPath))
	return cmd
}

func statusCmd(socketPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show this node's believed cluster state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return get(cmd.Context(), *socketPath, "/v1/status")
		},
	}
}

func membersCmd(socketPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "members",
		Short: "List nodes in this node's believed cluster state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return get(cmd.Context(), *socketPath, "/v1/members")
		},
	}
}

func get(ctx context.Context, socketPath, path string) error {
	if socketPath == "" {
		resolved, err := resolveSocket()
		if err != nil {
			return err
		}
		socketPath = resolved
	}

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://zend"+path, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty any
	if err := json.Unmarshal(body, &pretty); err != nil {
		os.Stdout.Write(body)
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func resolveSocket() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	_, ctx, ok := cfg.Current()
	if !ok || ctx.Target() == "" {
		return "", fmt.Errorf("no current context set; pass --socket or set current-context in %s", config.Path())
	}
	return ctx.Target(), nil
}
