package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/steveyegge/marksync/internal/idmap"
)

var mappingsCmd = &cobra.Command{
	Use:     "mappings",
	GroupID: "maintenance",
	Short:   "Inspect or rebuild native/synced id mappings",
}

var mappingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List id mappings",
	Long: `List id mappings, oldest first.

--since accepts a timestamp (RFC 3339 or YYYY-MM-DD) or a natural language
expression such as "yesterday" or "2 hours ago".

Example usage:
  marksync mappings list
  marksync mappings list --since "last monday" --json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		sinceExpr, _ := cmd.Flags().GetString("since")
		since, err := parseSince(sinceExpr, time.Now())
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		ms, err := a.mappings.List(cmd.Context(), since)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ms)
		}
		return writeMappings(cmd.OutOrStdout(), ms)
	},
}

var mappingsRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild id mappings by pairing the synced and browser trees",
	Long: `Rebuild id mappings by pairing the synced and browser trees.

Children of each container are paired by position, recursively. The whole
mapping table is replaced. Use --dry-run to print the mappings that would be
written.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		planned, err := a.engine.PlanIdMappings(cmd.Context())
		if err != nil {
			return err
		}
		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			return writeMappings(cmd.OutOrStdout(), planned)
		}

		current, err := a.mappings.Count(cmd.Context())
		if err != nil {
			return err
		}
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			ok, err := confirm(
				fmt.Sprintf("Replace %d id mappings with %d rebuilt ones?", current, len(planned)),
				"Mappings are paired by position and may differ from the current ones.",
			)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Rebuild cancelled")
				return nil
			}
		}

		if err := a.engine.BuildIdMappingsFromScratch(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt %d id mappings\n", len(planned))
		return nil
	},
}

func init() {
	mappingsListCmd.Flags().String("since", "", "only mappings created at or after this time")
	mappingsListCmd.Flags().Bool("json", false, "print mappings as JSON")
	mappingsRebuildCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
	mappingsRebuildCmd.Flags().Bool("dry-run", false, "print the rebuilt mappings without saving them")

	mappingsCmd.AddCommand(mappingsListCmd, mappingsRebuildCmd)
	rootCmd.AddCommand(mappingsCmd)
}

var sinceLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"}

// parseSince turns a --since expression into a time relative to now. An
// empty expression means no lower bound.
func parseSince(expr string, now time.Time) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, nil
	}
	for _, layout := range sinceLayouts {
		if t, err := time.ParseInLocation(layout, expr, now.Location()); err == nil {
			return t, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(expr, now)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid --since %q", expr)
	}
	if r == nil {
		return time.Time{}, errors.Newf("invalid --since %q", expr)
	}
	return r.Time, nil
}

func writeMappings(w io.Writer, ms []idmap.Mapping) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYNCED\tNATIVE\tCREATED")
	for _, m := range ms {
		created := "-"
		if !m.CreatedAt.IsZero() {
			created = m.CreatedAt.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", m.SyncedID, m.NativeID, created)
	}
	return tw.Flush()
}
