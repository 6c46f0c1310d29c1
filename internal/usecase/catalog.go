package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/semmidev/sitekeep/internal/domain"
)

// ArchiveChecker reads an archive fully and returns its entry count.
type ArchiveChecker func(path string) (int, error)

// Catalog inspects finalized backup sets under a destination.
type Catalog struct {
	storage domain.SetStorageFactory
	check   ArchiveChecker
	dumps   domain.Compressor
	logger  Logger
	loc     *time.Location
}

func NewCatalog(storage domain.SetStorageFactory, check ArchiveChecker, dumps domain.Compressor, logger Logger, loc *time.Location) *Catalog {
	if loc == nil {
		loc = time.Local
	}
	return &Catalog{storage: storage, check: check, dumps: dumps, logger: logger, loc: loc}
}

// List returns all sets newest first.
func (uc *Catalog) List(ctx context.Context, dest string) ([]domain.BackupSet, error) {
	store := uc.storage(dest)
	names, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sets: %w", err)
	}

	sets := make([]domain.BackupSet, 0, len(names))
	for _, name := range names {
		set, err := uc.describe(store.GetPath(name), name)
		if err != nil {
			uc.logger.Warnf("Could not describe backup set %s: %v", name, err)
			continue
		}
		sets = append(sets, set)
	}

	sort.SliceStable(sets, func(i, j int) bool {
		return sets[i].CreatedAt.After(sets[j].CreatedAt)
	})
	return sets, nil
}

func (uc *Catalog) describe(dir, name string) (domain.BackupSet, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return domain.BackupSet{}, err
	}
	set := domain.BackupSet{Name: name, Dir: dir, CreatedAt: info.ModTime()}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return set, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		switch {
		case strings.HasSuffix(e.Name(), ".sql.gz") && set.DBPath == "":
			set.DBPath = path
		case strings.HasSuffix(e.Name(), ".zip") && set.ZipPath == "":
			set.ZipPath = path
		case e.Name() == domain.ManifestFilename:
			set.Manifest = true
		default:
			continue
		}
		if fi, err := e.Info(); err == nil {
			set.Size += fi.Size()
		}
	}

	if m, err := readManifest(dir); err == nil {
		if t, err := time.ParseInLocation(stampLayout, m.CreatedAt, uc.loc); err == nil {
			set.CreatedAt = t
		}
	} else if t, err := extractTimestamp(name, uc.loc); err == nil {
		set.CreatedAt = t
	}

	if set.DBPath != "" || set.ZipPath != "" {
		hash, err := combinedSHA256(set.DBPath, set.ZipPath)
		if err != nil {
			return set, err
		}
		set.Hash = hash
	}
	return set, nil
}

func (uc *Catalog) Manifest(ctx context.Context, dest, name string) (*domain.Manifest, error) {
	dir, err := uc.setDir(dest, name)
	if err != nil {
		return nil, err
	}
	return readManifest(dir)
}

func (uc *Catalog) Delete(ctx context.Context, dest, name string) error {
	if _, err := uc.setDir(dest, name); err != nil {
		return err
	}
	if err := uc.storage(dest).Delete(ctx, name); err != nil {
		return err
	}
	uc.logger.Infof("Deleted backup set %s", name)
	return nil
}

// Verify recomputes the artifact checksums and compares them with the
// manifest. The dump and the archive are also read end to end.
func (uc *Catalog) Verify(ctx context.Context, dest, name string) (domain.VerifyResult, error) {
	result := domain.VerifyResult{Name: name}

	dir, err := uc.setDir(dest, name)
	if err != nil {
		return result, err
	}
	m, err := readManifest(dir)
	if err != nil {
		return result, err
	}

	for _, file := range []string{m.DB, m.Files} {
		if err := domain.ValidateName(file); err != nil {
			result.Detail = "manifest: " + err.Error()
			return result, nil
		}
	}

	var problems []string

	dbHash, err := fileSHA256(filepath.Join(dir, m.DB))
	switch {
	case err != nil:
		problems = append(problems, "db: "+err.Error())
	case m.DBSHA256 != "" && dbHash != m.DBSHA256:
		problems = append(problems, "db: checksum mismatch")
	default:
		result.DBOK = true
	}

	if result.DBOK && uc.dumps != nil {
		if err := uc.readDump(filepath.Join(dir, m.DB)); err != nil {
			result.DBOK = false
			problems = append(problems, "db: "+err.Error())
		}
	}

	zipPath := filepath.Join(dir, m.Files)
	filesHash, err := fileSHA256(zipPath)
	switch {
	case err != nil:
		problems = append(problems, "files: "+err.Error())
	case m.FilesSHA256 != "" && filesHash != m.FilesSHA256:
		problems = append(problems, "files: checksum mismatch")
	default:
		result.FilesOK = true
	}

	if result.FilesOK && uc.check != nil {
		n, err := uc.check(zipPath)
		switch {
		case err != nil:
			result.FilesOK = false
			problems = append(problems, "files: "+err.Error())
		case n != m.FileCount:
			result.FilesOK = false
			problems = append(problems, fmt.Sprintf("files: %d entries, manifest says %d", n, m.FileCount))
		}
	}

	result.Detail = strings.Join(problems, "; ")
	return result, nil
}

func (uc *Catalog) readDump(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := uc.dumps.NewReader(f)
	if err != nil {
		return err
	}
	defer r.Close()

	if _, err := io.Copy(io.Discard, r); err != nil {
		return fmt.Errorf("corrupt dump stream: %w", err)
	}
	return nil
}

func (uc *Catalog) setDir(dest, name string) (string, error) {
	if err := domain.ValidateName(name); err != nil {
		return "", fmt.Errorf("set: %w", err)
	}
	dir := uc.storage(dest).GetPath(name)
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", domain.ErrNotFound, name)
	}
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", domain.ErrNotFound, name)
	}
	return dir, nil
}

func readManifest(dir string) (*domain.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, domain.ManifestFilename))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: manifest", domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var m domain.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}
