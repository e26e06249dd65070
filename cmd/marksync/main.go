// Command marksync reconciles browser bookmark changes into the synced
// bookmark tree.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/steveyegge/marksync/internal/config"
	"github.com/steveyegge/marksync/internal/logging"
)

// skipConfig marks commands that run without loading configuration.
const skipConfig = "marksync/skip-config"

var (
	configPath string

	cfg         *config.Config
	logger      *zap.SugaredLogger
	closeLogger func() error
)

var rootCmd = &cobra.Command{
	Use:   "marksync",
	Short: "Reconcile browser bookmark changes into a synced bookmark tree",
	Long: `marksync keeps a synced bookmark tree in step with the browser's own
bookmarks. The browser side drops change files into a spool directory; the
daemon replays them through the reconciliation engine, updates the id
mappings and queues sync requests.

Configuration is read from ~/.marksync/config.toml (see "marksync config init")
and MARKSYNC_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Annotations[skipConfig] == "true" {
			return nil
		}
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		l, closer, err := logging.New(c.Log, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		cfg, logger, closeLogger = c, l, closer
		return nil
	},
	PersistentPostRunE: func(*cobra.Command, []string) error {
		if closeLogger == nil {
			return nil
		}
		err := closeLogger()
		closeLogger = nil
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.marksync/config.toml)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "maintenance", Title: "Maintenance:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
