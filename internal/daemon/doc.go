// Package daemon runs the reconciliation engine against a host shim that
// communicates through files.
//
// The host writes a JSON snapshot of its bookmark tree and drops one change
// file per native bookmark event into a spool directory. The daemon:
//  1. Loads the snapshot and the cached synced tree
//  2. Seeds the synced tree or rebuilds id mappings when they are missing
//  3. Replays spooled change files in name order, then watches for new ones
//  4. Reloads the snapshot whenever the host replaces it
//  5. Writes the snapshot back when the engine changes the native tree
//
// # File Watching
//
// SpoolWatcher wraps fsnotify. It reports creations and rewrites of
// <spool>/*.json as ChangeFile events and rewrites of the snapshot as
// TreeSnapshot events:
//
//	w, err := daemon.NewSpoolWatcher(logger)
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	if err := w.Start(spoolDir, treeFile); err != nil {
//	    return err
//	}
//	for ev := range w.Events() {
//	    fmt.Printf("%s: %s\n", ev.Target, ev.Path)
//	}
//
// The snapshot's directory is watched rather than the file, because hosts
// replace the snapshot by rename.
//
// # Change Files
//
// Change files are consumed once: a file is deleted after its change was
// handed to the engine. Files that cannot be decoded are moved to the
// rejected subdirectory of the spool.
//
// # Graceful Shutdown
//
// Cancelling the context passed to Start, or calling Stop, stops the
// watcher and then flushes the engine so every change already read from
// the spool is processed before Stop returns.
package daemon
