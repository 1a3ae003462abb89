package archiver

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZipTranscripts(t *testing.T) {
	a := assert.New(t)

	dir := t.TempDir()

	first := filepath.Join(dir, "1.md")
	second := filepath.Join(dir, "2.md")
	a.NoError(os.WriteFile(first, []byte("# First\n"), 0644))
	a.NoError(os.WriteFile(second, []byte("# Second\n"), 0644))

	var buf bytes.Buffer
	n, err := ZipTranscripts(context.Background(), &buf, []Entry{
		{Title: "First", Path: first},
		{Title: "Gone", Path: filepath.Join(dir, "missing.md")},
		{Title: "Sec/ond", Path: second},
	})
	a.NoError(err)
	a.Equal(2, n)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	a.NoError(err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	a.Equal([]string{"001 - First.md", "002 - Sec ond.md"}, names)

	rd, err := zr.File[1].Open()
	a.NoError(err)
	d, err := io.ReadAll(rd)
	a.NoError(err)
	a.Equal("# Second\n", string(d))
}

func TestZipTranscriptsEmpty(t *testing.T) {
	a := assert.New(t)

	var buf bytes.Buffer
	n, err := ZipTranscripts(context.Background(), &buf, nil)
	a.NoError(err)
	a.Equal(0, n)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	a.NoError(err)
	a.Len(zr.File, 0)
}
