// Package media names and gates uploaded files.
package media

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
)

// Number of hex characters of the SHA-256 digest that we keep
const HashLength = 16

// Asset is a file that has been accepted into the system
type Asset struct {
	ContentHash string // First HashLength hex characters of sha256(content)
	Extension   string // Lower case, without the dot
	StoragePath string // {ContentHash}.{Extension}
}

// Extension returns the lower-cased text after the last dot in filename.
// A filename without a dot is returned whole (lower-cased), and an empty
// filename produces an empty extension.
func Extension(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	return strings.ToLower(filename[idx+1:])
}

// Stem returns filename without its final extension
func Stem(filename string) string {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 {
		return filename
	}
	return filename[:idx]
}

// AddressBytes computes the content-addressed name of content.
// Only the bytes and the extension of filename matter. The stem is ignored.
func AddressBytes(content []byte, filename string) Asset {
	sum := sha256.Sum256(content)
	return makeAsset(sum[:], filename)
}

// AddressFile hashes everything from the current position of r to EOF, and then
// seeks back to where it started, so that the caller can read the same bytes again.
func AddressFile(r io.ReadSeeker, filename string) (Asset, error) {
	start, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return Asset{}, err
	}
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return Asset{}, err
	}
	if _, err := r.Seek(start, io.SeekStart); err != nil {
		return Asset{}, err
	}
	return makeAsset(h.Sum(nil), filename), nil
}

func makeAsset(digest []byte, filename string) Asset {
	hash := hex.EncodeToString(digest)[:HashLength]
	ext := Extension(filename)
	return Asset{
		ContentHash: hash,
		Extension:   ext,
		StoragePath: hash + "." + ext,
	}
}
