package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	gdpbridge "github.com/glimte/gdp-bridge"
	"github.com/glimte/gdp-bridge/config"
	"github.com/glimte/gdp-bridge/localbus"
	"github.com/glimte/gdp-bridge/serialization"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

const serverShutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gdp-bridge",
		Short: "Bridge a local pub/sub bus to a remote broker",
		Long: `gdp-bridge forwards messages between an in-process pub/sub bus and a remote
broker reached over a control channel (WebSocket or AMQP). Remote topics are
subscribed only while local subscribers exist.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "bridge.yaml", "Path to the YAML config file")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bridge until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, err := cfg.Log.NewLogger(os.Stderr)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logger)
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the config and report unknown message types",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return check(cmd.OutOrStdout(), cfg, serialization.NewStandardRegistry())
		},
	}

	rootCmd.AddCommand(runCmd, checkCmd)
	return rootCmd
}

// run serves the bridge and its optional HTTP endpoints until ctx is done
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	bus := localbus.NewMemoryBus(localbus.WithLogger(logger))

	client, err := gdpbridge.NewClient(cfg, bus, gdpbridge.WithLogger(logger))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	bridgeCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	if cfg.MetricsAddr != "" {
		serve(bridgeCtx, g, logger, "metrics", cfg.MetricsAddr, client.MetricsHandler())
	}
	if cfg.HealthAddr != "" {
		serve(bridgeCtx, g, logger, "health", cfg.HealthAddr, client.HealthHandler())
	}

	g.Go(func() error {
		defer cancel()
		return client.Run(bridgeCtx)
	})

	return g.Wait()
}

// serve runs an HTTP server in g until ctx is done
func serve(ctx context.Context, g *errgroup.Group, logger *slog.Logger, name, addr string, handler http.Handler) {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		logger.Info("serving", "server", name, "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s server: %w", name, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}

// check prints the configured routes and flags types the registry does not know
func check(out io.Writer, cfg *config.Config, registry serialization.TypeRegistry) error {
	routes := cfg.Routes()

	fmt.Fprintf(out, "Transport: %s\n", cfg.Remote.Transport)
	fmt.Fprintf(out, "Address:   %s\n\n", cfg.Remote.Address)
	fmt.Fprintf(out, "%-16s %-30s %-30s %-20s %-6s\n", "Direction", "Local", "Remote", "Type", "Known")
	fmt.Fprintln(out, strings.Repeat("-", 106))

	unknown := 0
	for _, r := range routes {
		known := registry.IsTypeKnown(r.Type)
		if !known {
			unknown++
		}
		fmt.Fprintf(out, "%-16s %-30s %-30s %-20s %-6t\n",
			r.Direction,
			truncate(r.Local, 30),
			truncate(r.Remote, 30),
			truncate(r.Type, 20),
			known,
		)
	}

	fmt.Fprintf(out, "\n%d routes, %d with unknown types\n", len(routes), unknown)
	return nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
