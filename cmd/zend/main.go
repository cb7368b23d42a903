package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ployz-io/zen/internal/adminapi"
	"github.com/ployz-io/zen/internal/cluster"
	"github.com/ployz-io/zen/internal/discovery"
	"github.com/ployz-io/zen/internal/logging"
	"github.com/ployz-io/zen/internal/metrics"
	"github.com/ployz-io/zen/internal/settings"
	"github.com/ployz-io/zen/internal/transport"
)

const defaultSocketPath = "/var/run/zend.sock"

func main() {
	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		debug       bool
		bindAddr    string
		clusterName string
		seeds       string
		socketPath  string
		settingsPath string
		nodeID      string
		masterEligible bool
		dataNode    bool
	)

	cmd := &cobra.Command{
		Use:   "zend",
		Short: "Zen discovery daemon",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelInfo
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := settings.Load(settingsPath)
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}
			if seeds != "" {
				cfg.Unicast.Hosts = strings.Split(seeds, ",")
			}

			if nodeID == "" {
				nodeID = uuid.NewString()
			}
			self := cluster.Node{
				ID:             nodeID,
				Name:           nodeID,
				Address:        bindAddr,
				MasterEligible: masterEligible,
				Data:           dataNode,
				Version:        1,
			}

			t := transport.New(bindAddr)
			go func() {
				if err := t.Listen(ctx, bindAddr); err != nil && ctx.Err() == nil {
					slog.Error("transport listener stopped", "err", err)
				}
			}()

			reg := prometheus.NewRegistry()
			m := metrics.New(reg)

			ctl := discovery.New(ctx, t, self, clusterName, cfg, discovery.WithMetrics(m))
			ctl.Start()

			admin := adminapi.New(ctl, slog.Default())
			serveErr := admin.ListenAndServe(ctx, socketPath)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
			ctl.Shutdown(shutdownCtx)
			cancel()

			if serveErr != nil && ctx.Err() == nil {
				return fmt.Errorf("admin api: %w", serveErr)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.Flags().StringVar(&bindAddr, "bind", "0.0.0.0:7946", "address to listen on and advertise")
	cmd.Flags().StringVar(&clusterName, "cluster-name", "zen", "cluster name this node belongs to")
	cmd.Flags().StringVar(&seeds, "seeds", "", "comma-separated list of seed host:port addresses")
	cmd.Flags().StringVar(&socketPath, "socket", defaultSocketPath, "admin API unix socket path")
	cmd.Flags().StringVar(&settingsPath, "config", "", "path to a discovery settings YAML file")
	cmd.Flags().StringVar(&nodeID, "node-id", "", "stable node id (random UUID if unset)")
	cmd.Flags().BoolVar(&masterEligible, "master-eligible", true, "whether this node may be elected master")
	cmd.Flags().BoolVar(&dataNode, "data", false, "whether this node holds data (see master_election.filter_data)")

	return cmd
}
