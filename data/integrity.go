package data

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
)

// integrityChunkSize bounds memory use while hashing; the digest does not
// depend on it.
const integrityChunkSize = 1 << 20

// IntegrityComputer streams content through SHA-256 while counting bytes.
// The zero value is ready to use.
type IntegrityComputer struct{}

// Compute reads r to EOF and returns the hex digest and byte count.
func (ic IntegrityComputer) Compute(r io.Reader) (string, int64, error) {
	tee := ic.Tee(r)
	buffer := make([]byte, integrityChunkSize)

	if _, err := io.CopyBuffer(io.Discard, tee, buffer); err != nil {
		return "", tee.count, err
	}

	hash, n := tee.Sum()
	return hash, n, nil
}

// Tee wraps r so content is hashed and counted as it is consumed, letting a
// copy and its integrity computation share one pass over the bytes.
func (IntegrityComputer) Tee(r io.Reader) *IntegrityReader {
	hasher := sha256.New()
	return &IntegrityReader{
		reader: io.TeeReader(r, hasher),
		hasher: hasher,
	}
}

type IntegrityReader struct {
	reader io.Reader
	hasher hash.Hash
	count  int64
}

func (ir *IntegrityReader) Read(p []byte) (int, error) {
	n, err := ir.reader.Read(p)
	ir.count += int64(n)
	return n, err
}

// Sum returns the digest and byte count of everything read so far.
func (ir *IntegrityReader) Sum() (string, int64) {
	return hex.EncodeToString(ir.hasher.Sum(nil)), ir.count
}

// ComputeFile opens path and computes its digest and size.
func (ic IntegrityComputer) ComputeFile(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	return ic.Compute(file)
}
