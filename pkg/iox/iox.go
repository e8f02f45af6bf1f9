package iox

import (
	"io"
	"os"
	"path/filepath"
)

// WriteStreamToFile copies src into dstFilename. The content is first written to a
// temporary file in the same directory, which is then renamed over dstFilename, so
// readers never see a partially written file. On failure, dstFilename is untouched.
func WriteStreamToFile(dstFilename string, src io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dstFilename), ".partial-*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmpName, dstFilename)
	}
	if err != nil {
		os.Remove(tmpName)
		return 0, err
	}
	return n, nil
}
