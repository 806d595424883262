package data

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestIntegrityCompute_KnownDigest verifies the digest matches a direct
// SHA-256 of the same content.
func TestIntegrityCompute_KnownDigest(t *testing.T) {
	content := []byte("hello weave")
	expected := sha256.Sum256(content)

	var computer IntegrityComputer
	hash, n, err := computer.Compute(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if hash != hex.EncodeToString(expected[:]) {
		t.Errorf("Expected %s, got %s", hex.EncodeToString(expected[:]), hash)
	}
	if n != int64(len(content)) {
		t.Errorf("Expected %d bytes, got %d", len(content), n)
	}
}

// TestIntegrityCompute_Stability verifies identical content yields identical
// digests regardless of how the reader delivers it.
func TestIntegrityCompute_Stability(t *testing.T) {
	content := strings.Repeat("0123456789abcdef", 1<<12)

	var computer IntegrityComputer
	direct, _, err := computer.Compute(strings.NewReader(content))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	// One byte at a time forces many partial reads.
	trickled, _, err := computer.Compute(iotest{r: strings.NewReader(content)})
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if direct != trickled {
		t.Errorf("Digest depends on chunking: %s vs %s", direct, trickled)
	}
}

type iotest struct {
	r io.Reader
}

func (it iotest) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return it.r.Read(p)
}

func TestIntegrityTee_MatchesCopy(t *testing.T) {
	content := []byte("tee should hash exactly what is copied")

	var computer IntegrityComputer
	tee := computer.Tee(bytes.NewReader(content))

	var sink bytes.Buffer
	if _, err := io.Copy(&sink, tee); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}

	hash, n := tee.Sum()
	expected, expectedN, err := computer.Compute(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}

	if hash != expected || n != expectedN {
		t.Errorf("Tee digest %s/%d, Compute digest %s/%d", hash, n, expected, expectedN)
	}
	if !bytes.Equal(sink.Bytes(), content) {
		t.Error("Tee altered the copied bytes")
	}
}

func TestIntegrityComputeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.bin")
	content := []byte("file content")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	var computer IntegrityComputer
	hash, n, err := computer.ComputeFile(path)
	if err != nil {
		t.Fatalf("ComputeFile failed: %v", err)
	}

	expected := sha256.Sum256(content)
	if hash != hex.EncodeToString(expected[:]) {
		t.Errorf("Unexpected digest %s", hash)
	}
	if n != int64(len(content)) {
		t.Errorf("Expected %d bytes, got %d", len(content), n)
	}

	if _, _, err := computer.ComputeFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Expected error for missing file")
	}
}
