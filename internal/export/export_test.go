package export_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eargollo/hashscan/internal/cache"
	"github.com/eargollo/hashscan/internal/export"
	"github.com/eargollo/hashscan/internal/scan"
)

func scanTree(t *testing.T) (string, *scan.Report) {
	t.Helper()
	root := t.TempDir()
	for name, content := range map[string]string{"a.txt": "hello", "b.txt": "hello", "c.md": "world"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	s := scan.New(cache.NewMemoryStore(), scan.Options{
		Workers: 2,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	report, err := s.Run(context.Background(), root)
	require.NoError(t, err)
	return root, report
}

func readExport(t *testing.T, path string) (export.Header, []scan.FileRecord) {
	t.Helper()
	rc, err := export.Open(path)
	require.NoError(t, err)
	defer rc.Close()

	sc := bufio.NewScanner(rc)
	require.True(t, sc.Scan(), "missing header line")
	var hdr export.Header
	require.NoError(t, json.Unmarshal(sc.Bytes(), &hdr))

	var recs []scan.FileRecord
	for sc.Scan() {
		var rec scan.FileRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		recs = append(recs, rec)
	}
	require.NoError(t, sc.Err())
	return hdr, recs
}

func TestWriteFilePlainAndCompressed(t *testing.T) {
	root, report := scanTree(t)

	for _, name := range []string{"report.jsonl", "report.jsonl.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, export.WriteFile(path, root, report))

			hdr, recs := readExport(t, path)
			assert.Equal(t, root, hdr.Root)
			assert.Equal(t, int64(3), hdr.Summary.TotalFiles)
			assert.Equal(t, 3, hdr.Summary.Records)
			require.Len(t, recs, 3)

			byName := map[string]scan.FileRecord{}
			for _, r := range recs {
				byName[filepath.Base(r.Path)] = r
			}
			assert.Equal(t, byName["a.txt"].SHA256, byName["b.txt"].SHA256)
			assert.NotEqual(t, byName["a.txt"].SHA256, byName["c.md"].SHA256)
			assert.Equal(t, "document", string(byName["c.md"].Kind))
			assert.NotEmpty(t, byName["c.md"].MD5)
			assert.NotEmpty(t, byName["c.md"].SHA1)
		})
	}
}

func TestWriteFileCompressedIsNotPlainJSON(t *testing.T) {
	root, report := scanTree(t)
	path := filepath.Join(t.TempDir(), "r.zst")
	require.NoError(t, export.WriteFile(path, root, report))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	// zstd frame magic number.
	require.GreaterOrEqual(t, len(raw), 4)
	assert.Equal(t, []byte{0x28, 0xb5, 0x2f, 0xfd}, raw[:4])
}

func TestWriteFileBadPath(t *testing.T) {
	_, report := scanTree(t)
	err := export.WriteFile(filepath.Join(t.TempDir(), "missing", "r.jsonl"), "/", report)
	assert.Error(t, err)
}
