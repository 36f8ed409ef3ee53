// Package export writes scan records as JSON lines.
package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/eargollo/hashscan/internal/scan"
)

// Header is the first line of every export.
type Header struct {
	Root       string       `json:"root"`
	StartedAt  string       `json:"started_at"`
	DurationMs int64        `json:"duration_ms"`
	Summary    scan.Summary `json:"summary"`
}

// Write emits a header line followed by one JSON object per record.
func Write(w io.Writer, root string, report *scan.Report) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	if err := enc.Encode(Header{
		Root:       root,
		StartedAt:  report.StartedAt.UTC().Format(time.RFC3339),
		DurationMs: report.Elapsed().Milliseconds(),
		Summary:    report.Summary(),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for _, rec := range report.Records() {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode record %s: %w", rec.Path, err)
		}
	}
	return bw.Flush()
}

// WriteFile writes the export to path. Paths ending in ".zst" are
// zstd-compressed.
func WriteFile(path, root string, report *scan.Report) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %q: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close report %q: %w", path, cerr)
		}
	}()

	if !strings.HasSuffix(path, ".zst") {
		return Write(f, root, report)
	}

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	if err := Write(zw, root, report); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("zstd close: %w", err)
	}
	return nil
}

// Open returns a reader over an export file, transparently decompressing
// ".zst" files. The caller must close it.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report %q: %w", path, err)
	}
	if !strings.HasSuffix(path, ".zst") {
		return f, nil
	}
	zr, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return &zstdReadCloser{Decoder: zr, f: f}, nil
}

type zstdReadCloser struct {
	*zstd.Decoder
	f *os.File
}

func (z *zstdReadCloser) Close() error {
	z.Decoder.Close()
	return z.f.Close()
}
