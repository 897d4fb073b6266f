// Package store manages the durable output of a harvest run.
//
// Each provider gets its own output root with the layout:
//
//	<root>/images/<safeId>.<ext>
//	<root>/images/<safeId>_additional_<n>.<ext>
//	<root>/metadata/<safeId>.json
//	<root>/thumbnails/<safeId>.<ext>
//
// The metadata file is the single source of truth for "already processed":
// it is written last, after asset downloads have been attempted, so its
// existence means the item is closed. Later runs (and later pages of the same
// run) must check HasMetadata before doing any per-item network work.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/skyarchive/museum-dl/internal/model"
)

const (
	imagesDir    = "images"
	metadataDir  = "metadata"
	thumbnailDir = "thumbnails"
)

// maxNameLen bounds sanitized filename stems. Long museum titles otherwise
// overrun filesystem limits.
const maxNameLen = 100

var (
	disallowedChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
	underscoreRuns  = regexp.MustCompile(`_+`)
)

// SafeName sanitizes a provider identifier or title for use as a filename
// stem.
//
// Characters outside [A-Za-z0-9._-] become underscores, runs of underscores
// collapse, trailing dots are removed, and the result is capped at 100
// characters. The output never contains a path separator, so identifiers
// like "/90402/SK-A-2344" cannot traverse out of the output root. An input
// that sanitizes to nothing becomes "unknown".
func SafeName(name string) string {
	name = disallowedChars.ReplaceAllString(name, "_")
	name = underscoreRuns.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	name = strings.TrimRight(name, ".")

	if len(name) > maxNameLen {
		name = name[:maxNameLen]
		name = strings.TrimRight(name, "._")
	}
	if name == "" {
		return "unknown"
	}
	return name
}

// Store is the on-disk output for one provider.
type Store struct {
	root string
}

// Open creates the output directories under root and returns a Store.
func Open(root string) (*Store, error) {
	for _, dir := range []string{root, filepath.Join(root, imagesDir), filepath.Join(root, metadataDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory %s: %w", dir, err)
		}
	}
	return &Store{root: root}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// HasMetadata reports whether the metadata file for safeID exists, which
// marks the item as already processed.
func (s *Store) HasMetadata(safeID string) bool {
	_, err := os.Stat(s.MetadataPath(safeID))
	return err == nil
}

// MetadataPath returns the metadata file path for safeID.
func (s *Store) MetadataPath(safeID string) string {
	return filepath.Join(s.root, metadataDir, safeID+".json")
}

// WriteMetadata persists the full detail payload for safeID as
// pretty-printed UTF-8 JSON. Writing this file closes the item.
func (s *Store) WriteMetadata(safeID string, payload map[string]any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata for %s: %w", safeID, err)
	}
	return os.WriteFile(s.MetadataPath(safeID), append(data, '\n'), 0o644)
}

// AssetPath returns the destination path for one downloaded asset.
//
// Primary assets land in images/ under the bare stem; additional assets get
// an "_additional_<n>" suffix (n is 1-indexed); thumbnails land in
// thumbnails/, which is created on first use.
func (s *Store) AssetPath(safeID string, asset model.Asset, n int) (string, error) {
	ext := asset.Ext()
	switch asset.Kind {
	case model.AssetAdditional:
		name := fmt.Sprintf("%s_additional_%d%s", safeID, n, ext)
		return filepath.Join(s.root, imagesDir, name), nil
	case model.AssetThumbnail:
		dir := filepath.Join(s.root, thumbnailDir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create thumbnail directory: %w", err)
		}
		return filepath.Join(dir, safeID+ext), nil
	default:
		return filepath.Join(s.root, imagesDir, safeID+ext), nil
	}
}
