package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// ComputeChecksumReader computes the SHA-256 checksum of everything r yields.
func ComputeChecksumReader(r io.Reader) ([32]byte, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return [32]byte{}, err
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// VerifyFile compares the SHA-256 of the file at path with a hex digest.
// Returns ErrChecksumMismatch if they don't match.
func VerifyFile(path, wantHex string) error {
	want, err := hex.DecodeString(strings.TrimSpace(wantHex))
	if err != nil || len(want) != sha256.Size {
		return fmt.Errorf("invalid sha256 digest %q", wantHex)
	}

	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	got, err := ComputeChecksumReader(f)
	if err != nil {
		return fmt.Errorf("failed to hash file: %w", err)
	}
	if string(got[:]) != string(want) {
		return fmt.Errorf("%w: got %x", ErrChecksumMismatch, got)
	}
	return nil
}
