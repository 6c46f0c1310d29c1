package domain

import "context"

// Dumper writes a compressed SQL reconstruction of the site database.
type Dumper interface {
	Dump(ctx context.Context, outputPath string) error
}
