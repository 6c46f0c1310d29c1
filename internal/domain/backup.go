package domain

import (
	"context"
	"time"
)

const (
	ManifestFilename = "manifest.json"
	ManifestVersion  = "1"
)

// Manifest describes a finalized backup set.
type Manifest struct {
	Version     string `json:"version"`
	CreatedAt   string `json:"created_at"`
	SiteURL     string `json:"site_url"`
	AppVersion  string `json:"app_version"`
	DB          string `json:"db"`
	Files       string `json:"files"`
	RetainDays  int    `json:"retain_days"`
	BaseName    string `json:"base_name"`
	Pattern     string `json:"pattern"`
	FileCount   int    `json:"file_count"`
	DBSHA256    string `json:"db_sha256,omitempty"`
	FilesSHA256 string `json:"files_sha256,omitempty"`
}

// BackupSet is a backup directory found under the destination.
type BackupSet struct {
	Name      string    `json:"name"`
	Dir       string    `json:"dir"`
	CreatedAt time.Time `json:"created_at"`
	DBPath    string    `json:"db_path,omitempty"`
	ZipPath   string    `json:"zip_path,omitempty"`
	Size      int64     `json:"size"`
	Hash      string    `json:"hash,omitempty"`
	Manifest  bool      `json:"has_manifest"`
}

// VerifyResult compares recorded checksums with the artifacts on disk.
type VerifyResult struct {
	Name    string `json:"name"`
	DBOK    bool   `json:"db_ok"`
	FilesOK bool   `json:"files_ok"`
	Detail  string `json:"detail,omitempty"`
}

func (v VerifyResult) OK() bool {
	return v.DBOK && v.FilesOK
}

// BackupExecutor runs a backup to completion.
type BackupExecutor interface {
	Run(ctx context.Context, settings Settings) (*Job, error)
}
