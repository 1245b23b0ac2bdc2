package backend

import (
	"context"
	"fmt"
	"strings"
)

// Command names and tagged field keys shared by every backend.
const (
	CmdFstat = "fstat"
	CmdInfo  = "info"
	CmdSync  = "sync"

	FieldAction     = "action"
	FieldChange     = "change"
	FieldClientFile = "clientFile"
	FieldClientRoot = "clientRoot"
	FieldDepotFile  = "depotFile"
	FieldFileSize   = "fileSize"
	FieldHaveRev    = "haveRev"
	FieldHeadRev    = "headRev"
	FieldRev        = "rev"

	headSuffix = "#head"
)

// ClientRoot returns the workspace root reported by the backend.
func ClientRoot(ctx context.Context, conn Conn) (string, error) {
	results, err := conn.Run(ctx, CmdInfo)
	if err != nil {
		return "", fmt.Errorf("%s: %w", CmdInfo, err)
	}

	for _, result := range results {
		if root := result.Get(FieldClientRoot); root != "" {
			return root, nil
		}
	}

	return "", fmt.Errorf("%s: no %s reported", CmdInfo, FieldClientRoot) //nolint:err113 // Backend protocol error
}

// DryRun asks what a sync of root would do without changing files.
// Force includes files that are already current.
func DryRun(ctx context.Context, conn Conn, root string, force bool) ([]Result, error) {
	args := []string{"-n"}
	if force {
		args = append(args, "-f")
	}

	results, err := conn.Run(ctx, CmdSync, append(args, atHead(root))...)
	if err != nil {
		return nil, fmt.Errorf("%s -n %s: %w", CmdSync, root, err)
	}

	return results, nil
}

// HaveRevisions returns the have revision of every file under root keyed by client path.
// Files that were never synced are absent.
func HaveRevisions(ctx context.Context, conn Conn, root string) (map[string]string, error) {
	results, err := conn.Run(ctx, CmdFstat, root)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", CmdFstat, root, err)
	}

	haves := make(map[string]string, len(results))

	for _, result := range results {
		clientFile := result.Get(FieldClientFile)
		if clientFile == "" {
			continue
		}

		if have := result.Get(FieldHaveRev); have != "" {
			haves[clientFile] = have
		}
	}

	return haves, nil
}

// SyncFile performs the authoritative sync of one file to head and returns the
// tagged record for it. A file already at head returns a message-only result.
func SyncFile(ctx context.Context, conn Conn, path string, force bool) (Result, error) {
	var args []string
	if force {
		args = append(args, "-f")
	}

	results, err := conn.Run(ctx, CmdSync, append(args, atHead(path))...)
	if err != nil {
		return Result{}, fmt.Errorf("%s %s: %w", CmdSync, path, err)
	}

	for _, result := range results {
		if !result.IsMessage() {
			return result, nil
		}
	}

	if len(results) == 0 {
		return Result{}, fmt.Errorf("%s %s: no such file", CmdSync, path) //nolint:err113 // Backend reported nothing
	}

	return results[0], nil
}

func atHead(path string) string {
	if strings.Contains(path, "#") {
		return path
	}

	return path + headSuffix
}
