package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/golang/snappy"

	"github.com/critdex/critdex/internal/cache"
	"github.com/critdex/critdex/internal/errors"
)

// snapshotExt marks snappy-framed SQLite snapshots.
const snapshotExt = ".sqlite.sz"

// Snapshot checkpoints the cache database and uploads a snappy-compressed
// copy of it to the backend. Returns the object key of the snapshot.
func Snapshot(ctx context.Context, store *cache.SQLiteStore, backend Backend, prefix, passID string) (string, error) {
	if err := store.Checkpoint(ctx); err != nil {
		return "", errors.NewArchiveError(errors.CodeUploadFailed, "checkpointing cache", err)
	}

	f, err := os.Open(store.Path())
	if err != nil {
		return "", errors.NewArchiveError(errors.CodeUploadFailed, "opening cache database", err)
	}
	defer f.Close()

	key := path.Join(prefix, fmt.Sprintf("%s-%s%s",
		time.Now().UTC().Format("20060102T150405Z"), passID, snapshotExt))

	pr, pw := io.Pipe()
	go func() {
		w := snappy.NewBufferedWriter(pw)
		if _, err := io.Copy(w, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := w.Close(); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()

	if err := backend.Put(ctx, key, pr); err != nil {
		pr.CloseWithError(err)
		return "", errors.NewArchiveError(errors.CodeUploadFailed,
			fmt.Sprintf("uploading snapshot %s", key), err)
	}
	return key, nil
}

// Restore downloads a snapshot and decompresses it to destPath.
func Restore(ctx context.Context, backend Backend, key, destPath string) error {
	obj, err := backend.Get(ctx, key)
	if err != nil {
		return errors.NewArchiveError(errors.CodeDownloadFailed,
			fmt.Sprintf("downloading snapshot %s", key), err)
	}
	defer obj.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return errors.NewArchiveError(errors.CodeDownloadFailed,
			fmt.Sprintf("creating %s", destPath), err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, snappy.NewReader(obj)); err != nil {
		return errors.NewArchiveError(errors.CodeDownloadFailed,
			fmt.Sprintf("decompressing snapshot %s", key), err)
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot key under the prefix, or
// ErrObjectNotFound if none exists. Snapshot keys embed their creation time,
// so the lexicographically largest key is the newest.
func LatestSnapshot(ctx context.Context, backend Backend, prefix string) (string, error) {
	keys, err := backend.List(ctx, prefix)
	if err != nil {
		return "", errors.NewArchiveError(errors.CodeDownloadFailed, "listing snapshots", err)
	}
	latest := ""
	for _, key := range keys {
		if path.Ext(key) == ".sz" && key > latest {
			latest = key
		}
	}
	if latest == "" {
		return "", ErrObjectNotFound
	}
	return latest, nil
}
