package domain

import "io"

// Compressor produces and reads the gzip streams used for database dumps.
type Compressor interface {
	Compress(sourcePath, destPath string) error
	NewWriter(dst io.Writer) (io.WriteCloser, error)
	NewReader(src io.Reader) (io.ReadCloser, error)
}
