package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/marksync/internal/idmap"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	configPath = ""

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

const backupHTML = `<!DOCTYPE NETSCAPE-Bookmark-file-1>
<TITLE>Bookmarks</TITLE>
<H1>Bookmarks</H1>
<DL><p>
    <DT><A HREF="https://go.dev" ADD_DATE="1700000000">Go</A>
    <DT><H3>Reading</H3>
    <DL><p>
        <DT><A HREF="https://example.com/article">Article</A>
    </DL><p>
</DL><p>
`

func TestCommands_RestoreThenInspect(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfgPath := filepath.Join(home, "marksync.toml")

	out, err := execute(t, "config", "init", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+cfgPath)

	_, err = execute(t, "config", "init", cfgPath)
	assert.Error(t, err, "init must not overwrite")

	backupPath := filepath.Join(home, "bookmarks.html")
	require.NoError(t, os.WriteFile(backupPath, []byte(backupHTML), 0644))

	out, err = execute(t, "--config", cfgPath, "restore", "--yes", backupPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Restored 4 bookmarks")
	assert.FileExists(t, filepath.Join(home, ".marksync", "native-tree.json"))

	out, err = execute(t, "--config", cfgPath, "export", "--format", "html")
	require.NoError(t, err)
	assert.Contains(t, out, `<DT><A HREF="https://go.dev" ADD_DATE="1700000000">Go</A>`)
	assert.Contains(t, out, "[xbs] Other")

	out, err = execute(t, "--config", cfgPath, "export")
	require.NoError(t, err)
	assert.Contains(t, out, `"id":`)

	out, err = execute(t, "--config", cfgPath, "export", "--no-ids")
	require.NoError(t, err)
	assert.NotContains(t, out, `"id":`)
	assert.Contains(t, out, `"url": "https://example.com/article"`)

	out, err = execute(t, "--config", cfgPath, "status", "--json")
	require.NoError(t, err)
	var s statusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, 3, s.Mappings)
	assert.Equal(t, 4, s.Bookmarks)
	assert.Equal(t, 1, s.PendingSyncs)
	assert.True(t, s.SyncEnabled)
	assert.False(t, s.SyncToolbar)

	out, err = execute(t, "--config", cfgPath, "mappings", "list", "--json")
	require.NoError(t, err)
	var ms []idmap.Mapping
	require.NoError(t, json.Unmarshal([]byte(out), &ms))
	assert.Len(t, ms, 3)

	out, err = execute(t, "--config", cfgPath, "mappings", "rebuild", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "SYNCED")

	out, err = execute(t, "--config", cfgPath, "mappings", "rebuild", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Rebuilt 3 id mappings")
}

func TestExport_FormatFromExtension(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfgPath := filepath.Join(home, "marksync.toml")
	_, err := execute(t, "config", "init", cfgPath)
	require.NoError(t, err)

	outPath := filepath.Join(home, "export.yaml")
	_, err = execute(t, "--config", cfgPath, "export", "--out", outPath)
	require.NoError(t, err)
	assert.FileExists(t, outPath)

	_, err = execute(t, "--config", cfgPath, "export", "--format", "csv")
	assert.Error(t, err)
}

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	got, err := parseSince("", now)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = parseSince("2024-05-01T08:30:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC), got)

	got, err = parseSince("2024-05-01", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = parseSince("qwzx plgh", now)
	assert.Error(t, err)
}

func TestRenderStatus_Plain(t *testing.T) {
	var buf bytes.Buffer
	renderStatus(&buf, statusInfo{
		Database:     "/tmp/m.db",
		SyncEnabled:  true,
		Mappings:     5,
		PendingSyncs: 2,
	}, false)

	out := buf.String()
	assert.Contains(t, out, "marksync status\n")
	assert.Contains(t, out, "Database        /tmp/m.db\n")
	assert.Contains(t, out, "Sync            on\n")
	assert.Contains(t, out, "Toolbar         off\n")
	assert.Contains(t, out, "Id mappings     5\n")
	assert.Contains(t, out, "Pending syncs   2\n")
}
