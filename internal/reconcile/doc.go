// Package reconcile turns browser bookmark change events into updates of the
// synced bookmark tree and its id mappings.
//
// # Architecture
//
// The package consists of a few cooperating pieces:
//
//   - EventQueue: debounces native change events and drains them in order
//   - Processor: applies one change to a working copy of the synced tree
//   - Importer: reads the whole native tree into synced bookmarks
//   - Engine: owns the committed tree and ties the pieces together
//
// Each event is applied to a clone of the committed tree. Only an applied
// outcome replaces the committed tree; a skipped or failed change leaves it
// untouched, and a change that lands outside the synced locations is
// reverted in the browser instead.
//
// # Usage
//
//	engine, err := reconcile.New(reconcile.Config{
//	    Platform:   platform,
//	    Containers: container.NewResolver(platform, logger),
//	    Mappings:   idmap.New(database, logger),
//	    Cache:      database,
//	    Executor:   syncq.New(database, transport, logger),
//	    Logger:     logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	if err := engine.Load(ctx); err != nil {
//	    return err
//	}
//	if _, err := engine.Bootstrap(ctx); err != nil {
//	    return err
//	}
//	platform.Subscribe(engine.OnNativeEvent)
//
// # Event Processing
//
// The queue waits for the debounce interval (default 200ms) after the last
// event, then drains everything queued, including events that arrive while
// the drain runs. Before an event is handled, runs of moves into the same
// folder have their old indexes corrected, since the browser reports each
// move of a multi-select drag against the tree as it was before the drag.
// Every event is corrected at most once.
//
// After a drain the engine asks the sync executor to push, and after the
// sync delay moves folders standing in for unsupported containers back to
// the end of Other Bookmarks.
//
// # Error Handling
//
// A missing container is fatal: the drain stops and the remaining events
// stay queued for the next drain. Other errors are
// logged and the drain moves on. Use IsFatal to tell them apart.
//
// # Graceful Shutdown
//
// Flush drains queued events immediately, waiting for a running drain
// first. Close waits for a running drain, then stops the timers. Events
// still waiting for the debounce are dropped by Close, so call Flush first
// to keep them.
package reconcile
