package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"

	"github.com/semmidev/sitekeep/internal/domain"
)

// ZipArchive appends entries to a zip file across process invocations.
//
// Open stages a fresh copy next to the target: existing entries are copied
// raw, without recompression, and new entries follow. Close writes the
// central directory and renames the staged file over the target, so the
// target is always either the previous valid archive or the new valid one.
type ZipArchive struct {
	path   string
	tmp    *os.File
	zw     *zip.Writer
	count  int
	closed bool
}

var _ domain.Archive = (*ZipArchive)(nil)

// Opener adapts Open to domain.ArchiveOpener.
func Opener(path string) (domain.Archive, error) {
	return Open(path)
}

func Open(path string) (*ZipArchive, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}

	zw := zip.NewWriter(tmp)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})

	a := &ZipArchive{path: path, tmp: tmp, zw: zw}

	if err := a.copyExisting(); err != nil {
		a.Abort()
		return nil, err
	}

	return a, nil
}

func (a *ZipArchive) copyExisting() error {
	r, err := zip.OpenReader(a.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open existing archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if err := a.zw.Copy(f); err != nil {
			return fmt.Errorf("failed to copy entry %s: %w", f.Name, err)
		}
		a.count++
	}
	return nil
}

// spoolThreshold is the largest source read into memory before its entry is
// created. Bigger sources are copied to a spool file next to the archive.
var spoolThreshold int64 = 32 << 20

// AddFile stores absPath under name. Failures to open, stat or read the
// source wrap domain.ErrUnreadable and leave the archive unchanged.
func (a *ZipArchive) AddFile(absPath, name string) error {
	if a.closed {
		return errors.New("archive is closed")
	}

	src, err := os.Open(absPath)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnreadable, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnreadable, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", domain.ErrUnreadable, absPath)
	}

	return a.addFrom(src, info, name)
}

// addFrom reads the whole source before the entry exists, since a zip entry
// cannot be taken back once its header is written.
func (a *ZipArchive) addFrom(src io.Reader, info fs.FileInfo, name string) error {
	body, cleanup, err := a.readSource(src, info.Size())
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrUnreadable, name, err)
	}
	defer cleanup()

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build header for %s: %w", name, err)
	}
	header.Name = strings.TrimPrefix(filepath.ToSlash(name), "/")
	header.Method = zip.Deflate

	w, err := a.zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create entry %s: %w", name, err)
	}
	if _, err := io.Copy(w, body); err != nil {
		return fmt.Errorf("failed to write entry %s: %w", name, err)
	}

	a.count++
	return nil
}

func (a *ZipArchive) readSource(src io.Reader, size int64) (io.Reader, func(), error) {
	if size <= spoolThreshold {
		data, err := io.ReadAll(src)
		if err != nil {
			return nil, nil, err
		}
		return bytes.NewReader(data), func() {}, nil
	}

	spool, err := os.CreateTemp(filepath.Dir(a.path), ".spool-*.tmp")
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		spool.Close()
		os.Remove(spool.Name())
	}
	if _, err := io.Copy(spool, src); err != nil {
		cleanup()
		return nil, nil, err
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, nil, err
	}
	return spool, cleanup, nil
}

// Count is the number of entries in the archive, including copied ones.
func (a *ZipArchive) Count() int {
	return a.count
}

func (a *ZipArchive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	if err := a.zw.Close(); err != nil {
		a.discard()
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := a.tmp.Sync(); err != nil {
		a.discard()
		return fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := a.tmp.Close(); err != nil {
		os.Remove(a.tmp.Name())
		return fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(a.tmp.Name(), a.path); err != nil {
		os.Remove(a.tmp.Name())
		return fmt.Errorf("failed to replace archive: %w", err)
	}
	return nil
}

// Abort drops everything added since Open. The target file is not touched.
func (a *ZipArchive) Abort() error {
	if a.closed {
		return nil
	}
	a.closed = true
	return a.discard()
}

func (a *ZipArchive) discard() error {
	a.tmp.Close()
	if err := os.Remove(a.tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// EntryCount opens the archive at path and returns its number of entries.
func EntryCount(path string) (int, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return len(r.File), nil
}

// Check reads every entry so that checksum mismatches surface, and returns
// the number of entries.
func Check(path string) (int, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return 0, fmt.Errorf("entry %s: %w", f.Name, err)
		}
		_, err = io.Copy(io.Discard, rc)
		rc.Close()
		if err != nil {
			return 0, fmt.Errorf("entry %s: %w", f.Name, err)
		}
	}
	return len(r.File), nil
}
