package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/steveyegge/marksync/internal/bookmark"
	"github.com/steveyegge/marksync/internal/native"
)

type statusInfo struct {
	Database     string `json:"database"`
	TreeFile     string `json:"treeFile"`
	SyncEnabled  bool   `json:"syncEnabled"`
	SyncToolbar  bool   `json:"syncToolbar"`
	Mappings     int    `json:"mappings"`
	Bookmarks    int    `json:"bookmarks"`
	PendingSyncs int    `json:"pendingSyncs"`
	SpoolFiles   int    `json:"spoolFiles"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show mapping, cache and sync queue counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := collectStatus(cmd.Context(), a)
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		}
		renderStatus(cmd.OutOrStdout(), s, stdoutIsTerminal())
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "print status as JSON")
	rootCmd.AddCommand(statusCmd)
}

func collectStatus(ctx context.Context, a *app) (statusInfo, error) {
	s := statusInfo{
		Database:    cfg.Database.Path,
		TreeFile:    cfg.Native.TreeFile,
		SyncEnabled: cfg.Sync.Enabled,
		SyncToolbar: cfg.Sync.Toolbar,
		Bookmarks:   bookmark.Count(a.engine.Bookmarks()),
	}

	var err error
	if s.Mappings, err = a.mappings.Count(ctx); err != nil {
		return s, err
	}
	if s.PendingSyncs, err = a.db.GetPendingSyncCount(ctx); err != nil {
		return s, err
	}
	files, err := native.ListChangeFiles(cfg.Native.SpoolDir)
	if err != nil {
		return s, err
	}
	s.SpoolFiles = len(files)
	return s, nil
}

func renderStatus(w io.Writer, s statusInfo, styled bool) {
	title := "marksync status"
	row := func(label string, value any) {
		if styled {
			fmt.Fprintf(w, "%s%v\n", labelStyle.Render(label), value)
			return
		}
		fmt.Fprintf(w, "%-16s%v\n", label, value)
	}
	onOff := func(v bool) string {
		text := "off"
		if v {
			text = "on"
		}
		if !styled {
			return text
		}
		if v {
			return okStyle.Render(text)
		}
		return warnStyle.Render(text)
	}

	if styled {
		title = titleStyle.Render(title)
	}
	fmt.Fprintln(w, title)
	row("Database", s.Database)
	row("Tree file", s.TreeFile)
	row("Sync", onOff(s.SyncEnabled))
	row("Toolbar", onOff(s.SyncToolbar))
	row("Id mappings", s.Mappings)
	row("Bookmarks", s.Bookmarks)
	row("Pending syncs", s.PendingSyncs)
	row("Spooled changes", s.SpoolFiles)
}
