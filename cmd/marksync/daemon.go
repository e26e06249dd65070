package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/marksync/internal/daemon"
	"github.com/steveyegge/marksync/internal/dashboard"
	"github.com/steveyegge/marksync/internal/reconcile"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the reconciliation daemon in the foreground",
	Long: `Run the reconciliation daemon in the foreground.

The daemon loads the native tree snapshot, seeds the synced tree on first run,
then replays every change file in the spool directory and watches it for new
ones. Each change is reconciled into the synced tree; after a quiet period the
queued sync requests are executed.

With --dashboard, engine activity is broadcast over a WebSocket:
  ws://localhost:8787/ws

Example usage:
  marksync daemon
  marksync daemon --dashboard --port 9000`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Flags().Changed("dashboard") {
			cfg.Dashboard.Enabled, _ = cmd.Flags().GetBool("dashboard")
		}
		if cmd.Flags().Changed("port") {
			cfg.Dashboard.Port, _ = cmd.Flags().GetInt("port")
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		var observer reconcile.Observer
		if cfg.Dashboard.Enabled {
			server := dashboard.NewServer(&dashboard.Config{
				Port:   cfg.Dashboard.Port,
				Logger: logger.Named("dashboard"),
			})
			observer = dashboard.NewHandler(server, logger.Named("dashboard"))
			if err := server.Start(); err != nil {
				return err
			}
			defer server.Stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Dashboard server started on http://localhost:%d\n", cfg.Dashboard.Port)
			fmt.Fprintf(out, "WebSocket endpoint: ws://localhost:%d/ws\n", cfg.Dashboard.Port)
		}

		a, err := openApp(ctx, observer)
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := daemon.New(a.engine, a.platform, a.mappings, &daemon.Config{
			SpoolDir: cfg.Native.SpoolDir,
			TreeFile: cfg.Native.TreeFile,
			Logger:   logger.Named("daemon"),
		})
		if err != nil {
			return err
		}
		return d.Start(ctx)
	},
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "serve the activity dashboard (overrides dashboard.enabled)")
	daemonCmd.Flags().Int("port", 8787, "dashboard port (overrides dashboard.port)")
	rootCmd.AddCommand(daemonCmd)
}
