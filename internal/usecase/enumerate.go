package usecase

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Enumerate walks root and returns slash-separated paths, relative to root,
// of every regular file to back up. Directories whose top-level segment
// matches excludeDirs (case-insensitive) are pruned, files whose base name
// matches an excludePatterns glob are dropped, and nothing resolving under
// dest is returned. Unreadable subtrees are skipped.
func Enumerate(root string, excludeDirs, excludePatterns []string, dest string) ([]string, error) {
	rootAbs, err := canonical(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(rootAbs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New(root + " is not a directory")
	}

	destAbs := ""
	if dest != "" {
		if destAbs, err = canonical(dest); err != nil {
			// a destination that does not resolve cannot contain anything
			destAbs = ""
		}
	}

	excluded := make(map[string]struct{}, len(excludeDirs))
	for _, d := range excludeDirs {
		d = strings.ToLower(strings.Trim(filepath.ToSlash(d), "/"))
		if d != "" {
			excluded[d] = struct{}{}
		}
	}

	patterns := make([]string, 0, len(excludePatterns))
	for _, p := range excludePatterns {
		if p != "" && doublestar.ValidatePattern(p) {
			patterns = append(patterns, p)
		}
	}

	files := []string{}
	err = filepath.WalkDir(rootAbs, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if d != nil && d.IsDir() && path != rootAbs {
				return fs.SkipDir
			}
			if path == rootAbs {
				return walkErr
			}
			return nil
		}
		if path == rootAbs {
			return nil
		}

		rel, err := filepath.Rel(rootAbs, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if !strings.Contains(rel, "/") {
				if _, ok := excluded[strings.ToLower(rel)]; ok {
					return fs.SkipDir
				}
			}
			if destAbs != "" && within(path, destAbs) {
				return fs.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}

		for _, p := range patterns {
			if ok, _ := doublestar.Match(p, d.Name()); ok {
				return nil
			}
		}

		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			st, err := os.Stat(resolved)
			if err != nil || !st.Mode().IsRegular() {
				return nil
			}
		}
		if destAbs != "" && within(resolved, destAbs) {
			return nil
		}

		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// within reports whether path is base or lies under it. Both must be
// canonical.
func within(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
