// Package syncq is the durable queue of sync requests between the
// reconciliation engine and the remote sync service.
//
// Requests are stored in the sync_queue table of the marksync database, so
// they survive restarts. ExecuteSync sends the whole pending batch through a
// Transport and deletes it only after the push succeeded:
//
//	exec := syncq.New(database, syncq.NewLogTransport(logger), logger)
//
//	if err := exec.QueueSync(ctx, syncq.Sync{Type: syncq.TypeRemote}); err != nil {
//	    return err
//	}
//	if err := exec.ExecuteSync(ctx); err != nil {
//	    // The batch stays queued and is retried by the next ExecuteSync.
//	    logger.Warnw("Sync failed", "error", err)
//	}
//
// LogTransport stands in for the sync service when none is configured.
package syncq
