// Package archiver bundles rendered transcripts into zip files.
package archiver

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"fknsrs.biz/p/vidscribe/internal/ctxlogger"
	"fknsrs.biz/p/vidscribe/internal/stringutil"
)

type Entry struct {
	Title string
	// Path is a filesystem path to the markdown file.
	Path string
}

// ZipTranscripts writes the entries, in order, as numbered markdown files.
// Entries whose file has gone missing are skipped.
func ZipTranscripts(ctx context.Context, wr io.Writer, entries []Entry) (int, error) {
	zw := zip.NewWriter(wr)

	n := 0
	for _, entry := range entries {
		fd, err := os.Open(entry.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				ctxlogger.GetLogger(ctx).WithField("archiver.path", entry.Path).Warn("transcript file missing; skipping")
				continue
			}

			return n, fmt.Errorf("archiver.ZipTranscripts: %w", err)
		}

		n++

		w, err := zw.Create(fmt.Sprintf("%03d - %s.md", n, stringutil.SafeFileName(entry.Title)))
		if err != nil {
			fd.Close()
			return n, fmt.Errorf("archiver.ZipTranscripts: %w", err)
		}

		_, err = io.Copy(w, fd)
		fd.Close()
		if err != nil {
			return n, fmt.Errorf("archiver.ZipTranscripts: %w", err)
		}
	}

	if err := zw.Close(); err != nil {
		return n, fmt.Errorf("archiver.ZipTranscripts: %w", err)
	}

	return n, nil
}
