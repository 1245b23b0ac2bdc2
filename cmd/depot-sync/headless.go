package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/joe/depot-sync/internal/syncengine"
)

var errSyncFailed = errors.New("some files failed to sync")

// runHeadless discovers, syncs every visible file and prints a summary.
func runHeadless(ctx context.Context, session *syncengine.Session, out io.Writer) error {
	err := session.Connect(ctx)
	if err != nil {
		return fmt.Errorf("could not connect (see %s): %w", session.LogPath(), err)
	}

	session.Rescan()

	var discoveryErr error

	err = session.Pump(ctx, func(event syncengine.Event) bool {
		switch ev := event.(type) {
		case syncengine.DiscoveryFailed:
			discoveryErr = ev.Err
			return true
		case syncengine.DiscoveryComplete:
			return true
		default:
			return false
		}
	})
	if err != nil {
		return err //nolint:wrapcheck // Pump wraps the context error
	}

	if discoveryErr != nil {
		return fmt.Errorf("discovery: %w", discoveryErr)
	}

	assets, leaves := session.Tree().Len()
	fmt.Fprintf(out, "found %d files across %d entities\n", leaves, assets)

	count, err := session.Go()
	if errors.Is(err, syncengine.ErrNothingToSync) {
		fmt.Fprintln(out, "nothing to sync")
		return nil
	}

	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	var bytes int64

	err = session.Pump(ctx, func(event syncengine.Event) bool {
		switch ev := event.(type) {
		case syncengine.SyncCompleted:
			if ev.Err != nil {
				fmt.Fprintf(out, "failed %s: %v\n", ev.Path, ev.Err)
			} else {
				bytes += ev.Size
			}
		case syncengine.ExecutionComplete:
			return true
		}

		return false
	})
	if err != nil {
		return err //nolint:wrapcheck // Pump wraps the context error
	}

	result := session.LastResult()
	fmt.Fprintf(out, "synced %d of %d files (%s), %d failed\n",
		result.Synced, count, humanize.IBytes(uint64(max(bytes, 0))), result.Failed)

	if result.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", errSyncFailed, result.Failed, count)
	}

	return nil
}
