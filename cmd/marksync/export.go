package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/steveyegge/marksync/internal/backup"
	"github.com/steveyegge/marksync/internal/bookmark"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "maintenance",
	Short:   "Export bookmarks as JSON, YAML or bookmark HTML",
	Long: `Export bookmarks as JSON, YAML or Netscape bookmark HTML.

With sync enabled the synced tree is exported; otherwise the browser's tree
is read directly. Empty containers are left out.

Example usage:
  marksync export > bookmarks.json
  marksync export --out bookmarks.html
  marksync export --format yaml`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, _ := cmd.Flags().GetString("out")
		format, err := formatFlag(cmd, out)
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		bs, err := a.engine.GetBookmarksForExport(cmd.Context())
		if err != nil {
			return err
		}
		if noIDs, _ := cmd.Flags().GetBool("no-ids"); noIDs {
			bs = bookmark.StripIDs(bs)
		}

		var w io.Writer = cmd.OutOrStdout()
		if out != "" {
			f, err := os.Create(out)
			if err != nil {
				return errors.Wrap(err, "failed to create export file")
			}
			defer f.Close()
			w = f
		}
		if err := backup.Write(w, format, bs); err != nil {
			return err
		}
		logger.Infow("Exported bookmarks", "count", bookmark.Count(bs), "format", format)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("format", "json", "output format: json, yaml or html")
	exportCmd.Flags().StringP("out", "o", "", "write to file instead of stdout")
	exportCmd.Flags().Bool("no-ids", false, "leave out synced ids, for import into another profile")
	rootCmd.AddCommand(exportCmd)
}

// formatFlag returns --format, or the format implied by path's extension when
// --format was not given.
func formatFlag(cmd *cobra.Command, path string) (backup.Format, error) {
	if !cmd.Flags().Changed("format") && path != "" {
		if f, err := backup.ParseFormat(filepath.Ext(path)); err == nil {
			return f, nil
		}
	}
	name, _ := cmd.Flags().GetString("format")
	return backup.ParseFormat(name)
}
