package imagecache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mikey/eposter/internal/core"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// tempSuffix marks a download that has not been installed yet
const tempSuffix = ".part"

type fileKind int

const (
	kindOther fileKind = iota
	kindHidden
	kindTemp
	kindImage
)

// classify splits a cache directory file name into its stem and extension
func classify(name string) (stem, ext string, kind fileKind) {
	switch {
	case strings.HasPrefix(name, "."):
		return "", "", kindHidden
	case strings.HasSuffix(name, tempSuffix):
		return "", "", kindTemp
	}

	dot := filepath.Ext(name)
	stem = strings.TrimSuffix(name, dot)
	ext = strings.TrimPrefix(dot, ".")
	if extensionRank(ext) < 0 {
		return stem, ext, kindOther
	}
	return stem, ext, kindImage
}

// cleanup deletes every regular file that is not the kept image of a valid
// id. Hidden files and in-progress downloads are left alone, except for
// downloads abandoned longer than StaleTempAge.
func (s *Synchronizer) cleanup(valid []core.PosterRecord, result *core.SyncResult) error {
	validIDs := make(map[string]struct{}, len(valid))
	for _, rec := range valid {
		validIDs[rec.ID] = struct{}{}
	}

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("%w: read cache directory %s: %w", core.ErrFilesystem, s.dir, err)
	}

	// The best ranked extension per id survives, matching Lookup's probe order.
	keep := make(map[string]string)
	var stale []string

	for _, de := range dirEntries {
		if !de.Type().IsRegular() {
			continue
		}
		name := de.Name()
		stem, ext, kind := classify(name)

		switch kind {
		case kindHidden:
			continue
		case kindTemp:
			s.sweepTemp(de)
			continue
		case kindImage:
			if _, ok := validIDs[stem]; ok {
				current, seen := keep[stem]
				switch {
				case !seen:
					keep[stem] = name
				case extensionRank(ext) < extensionRank(extOf(current)):
					keep[stem] = name
					stale = append(stale, current)
				default:
					stale = append(stale, name)
				}
				continue
			}
		}
		stale = append(stale, name)
	}

	for _, name := range stale {
		path := filepath.Join(s.dir, name)
		if err := os.Remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			s.logger.Warn("Failed to delete stale cache file",
				zap.String("file", name),
				zap.Error(err))
			result.CleanupErr = multierr.Append(result.CleanupErr, fmt.Errorf("remove %s: %w", name, err))
			continue
		}
		result.Deleted = append(result.Deleted, name)
		s.logger.Info("Deleted stale cache file", zap.String("file", name))
	}

	return nil
}

// sweepTemp removes an in-progress artifact left behind by an interrupted
// sync. Syncs are serialized, so no live download can own it.
func (s *Synchronizer) sweepTemp(de fs.DirEntry) {
	if s.opts.StaleTempAge <= 0 {
		return
	}
	info, err := de.Info()
	if err != nil {
		return
	}
	if s.now().Sub(info.ModTime()) < s.opts.StaleTempAge {
		return
	}
	if err := os.Remove(filepath.Join(s.dir, de.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("Failed to remove abandoned download",
			zap.String("file", de.Name()),
			zap.Error(err))
		return
	}
	s.logger.Info("Removed abandoned download", zap.String("file", de.Name()))
}

func extOf(name string) string {
	return strings.TrimPrefix(filepath.Ext(name), ".")
}
