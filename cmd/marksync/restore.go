package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/steveyegge/marksync/internal/backup"
	"github.com/steveyegge/marksync/internal/bookmark"
)

var restoreCmd = &cobra.Command{
	Use:     "restore <file>",
	GroupID: "maintenance",
	Short:   "Replace browser and synced bookmarks with a backup",
	Long: `Replace browser and synced bookmarks with a backup.

The backup may be bookmark HTML as exported by browsers, or a JSON or YAML
file written by "marksync export". Top-level entries that are not containers
are placed under other bookmarks. Id mappings are rebuilt afterwards.

Example usage:
  marksync restore bookmarks.html
  marksync restore --yes backup.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		format, err := formatFlag(cmd, path)
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return errors.Wrap(err, "failed to open backup")
		}
		bs, err := backup.Read(f, format)
		f.Close()
		if err != nil {
			return err
		}
		bs = backup.ToContainers(bs)

		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			ok, err := confirm(
				fmt.Sprintf("Restore %d bookmarks from %s?", bookmark.Count(bs), path),
				"Current browser bookmarks in synced containers will be replaced.",
			)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Restore cancelled")
				return nil
			}
		}

		a, err := openApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.engine.Restore(cmd.Context(), bs); err != nil {
			return err
		}
		if err := a.saveTree(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored %d bookmarks\n", bookmark.Count(bs))
		return nil
	},
}

func init() {
	restoreCmd.Flags().String("format", "html", "backup format: json, yaml or html (default from file extension)")
	restoreCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(restoreCmd)
}
