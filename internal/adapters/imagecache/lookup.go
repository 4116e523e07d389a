package imagecache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mikey/eposter/internal/core"
	"github.com/mikey/eposter/internal/utils"
)

// Lookup returns the cached image path for id, probing extensions in the
// fixed order. Temporary downloads are never returned.
func (s *Synchronizer) Lookup(id string) (string, bool) {
	id = utils.CanonicalID(id)
	if !utils.ValidID(id) {
		return "", false
	}

	for _, ext := range extensions {
		path := filepath.Join(s.dir, id+"."+ext)
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return path, true
		}
	}
	return "", false
}

// List returns every cached entry sorted by id. A missing cache directory
// is an empty cache.
func (s *Synchronizer) List() ([]core.CacheEntry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read cache directory %s: %w", core.ErrFilesystem, s.dir, err)
	}

	seen := make(map[string]struct{})
	var entries []core.CacheEntry
	for _, de := range dirEntries {
		if !de.Type().IsRegular() {
			continue
		}
		stem, _, kind := classify(de.Name())
		if kind != kindImage {
			continue
		}
		if _, ok := seen[stem]; ok {
			continue
		}
		seen[stem] = struct{}{}

		if path, ok := s.Lookup(stem); ok {
			entries = append(entries, core.CacheEntry{ID: stem, Path: path})
		}
	}

	core.SortEntries(entries)
	return entries, nil
}
