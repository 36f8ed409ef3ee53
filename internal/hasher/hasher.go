// Package hasher computes file digests in a single streaming pass.
package hasher

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/opencontainers/go-digest"
)

const bufferSize = 256 * 1024 // 256 KB

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, bufferSize)
		return &b
	},
}

// Digests holds the hex-encoded digests of a file's content.
type Digests struct {
	MD5    string `json:"md5"`
	SHA1   string `json:"sha1"`
	SHA256 string `json:"sha256"`
}

// Result is the outcome of hashing one file.
type Result struct {
	Digests
	// Fingerprint is the content address of the file. It is the SHA-256
	// pass expressed as "sha256:<hex>".
	Fingerprint digest.Digest
	// BytesRead is the number of bytes streamed through the hashes.
	BytesRead int64
}

// Sum streams the file at path once through MD5, SHA-1 and SHA-256.
// Any open or read error is returned wrapped and no digests are produced.
func Sum(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return SumReader(f)
}

// SumReader hashes everything read from r.
func SumReader(r io.Reader) (Result, error) {
	h5 := md5.New()
	h1 := sha1.New()
	h256 := sha256.New()

	bp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bp)

	n, err := io.CopyBuffer(io.MultiWriter(h5, h1, h256), r, *bp)
	if err != nil {
		return Result{}, fmt.Errorf("read: %w", err)
	}

	return Result{
		Digests: Digests{
			MD5:    hex.EncodeToString(h5.Sum(nil)),
			SHA1:   hex.EncodeToString(h1.Sum(nil)),
			SHA256: hex.EncodeToString(h256.Sum(nil)),
		},
		Fingerprint: digest.NewDigest(digest.SHA256, h256),
		BytesRead:   n,
	}, nil
}
