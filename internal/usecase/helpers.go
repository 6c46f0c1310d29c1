package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"
)

const stampLayout = "20060102-150405"

var timestampPattern = regexp.MustCompile(`(\d{8})[-_](\d{6})`)

// extractTimestamp finds a YYYYMMDD-HHMMSS stamp in a set or artifact name.
func extractTimestamp(name string, loc *time.Location) (time.Time, error) {
	matches := timestampPattern.FindStringSubmatch(name)
	if len(matches) < 3 {
		return time.Time{}, fmt.Errorf("invalid name format: no timestamp found")
	}
	return time.ParseInLocation(stampLayout, matches[1]+"-"+matches[2], loc)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// combinedSHA256 hashes the given files back to back, skipping empty paths.
func combinedSHA256(paths ...string) (string, error) {
	h := sha256.New()
	for _, p := range paths {
		if p == "" {
			continue
		}
		f, err := os.Open(p)
		if err != nil {
			return "", err
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
