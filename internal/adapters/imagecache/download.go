package imagecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mikey/eposter/internal/core"
	"go.uber.org/zap"
)

const userAgent = "eposter-cache/1.0"

// fetch downloads rec into a temporary file and installs it under its final
// name. The final name only ever appears through a rename of a fully written,
// decoded file.
func (s *Synchronizer) fetch(ctx context.Context, rec core.PosterRecord) (string, error) {
	tmpPath, err := s.download(ctx, rec)
	if err != nil {
		return "", err
	}

	finalPath, err := s.install(rec.ID, tmpPath)
	if err != nil {
		s.discard(tmpPath)
		return "", err
	}
	return finalPath, nil
}

// download streams the image body into "<id>.<uuid>.part" inside the cache
// directory, so the later rename never crosses filesystems.
func (s *Synchronizer) download(ctx context.Context, rec core.PosterRecord) (string, error) {
	dctx, cancel := context.WithTimeout(ctx, s.opts.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(dctx, http.MethodGet, rec.SourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrDownloadTransport, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", transportError(dctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &core.HTTPStatusError{StatusCode: resp.StatusCode}
	}
	limit := s.opts.MaxImageBytes
	if limit > 0 && resp.ContentLength > limit {
		return "", fmt.Errorf("%w: content length %d over %d", core.ErrTooLarge, resp.ContentLength, limit)
	}

	tmpPath := filepath.Join(s.dir, fmt.Sprintf("%s.%s%s", rec.ID, uuid.NewString(), tempSuffix))
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %w", core.ErrWrite, err)
	}

	body := io.Reader(resp.Body)
	if limit > 0 {
		body = io.LimitReader(resp.Body, limit+1)
	}
	w := &recordingWriter{w: f}
	n, copyErr := io.Copy(w, body)
	syncErr := f.Sync()
	closeErr := f.Close()

	switch {
	case w.err != nil:
		err = fmt.Errorf("%w: %w", core.ErrWrite, w.err)
	case copyErr != nil:
		err = transportError(dctx, copyErr)
	case limit > 0 && n > limit:
		err = fmt.Errorf("%w: body over %d bytes", core.ErrTooLarge, limit)
	case syncErr != nil:
		err = fmt.Errorf("%w: %w", core.ErrWrite, syncErr)
	case closeErr != nil:
		err = fmt.Errorf("%w: %w", core.ErrWrite, closeErr)
	}
	if err != nil {
		s.discard(tmpPath)
		return "", err
	}
	return tmpPath, nil
}

// install validates the temp file and renames it to "<id>.<ext>"
func (s *Synchronizer) install(id, tmpPath string) (string, error) {
	ext, err := s.normalize(tmpPath)
	if err != nil {
		return "", err
	}

	finalPath := filepath.Join(s.dir, id+"."+ext)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("%w: install %s: %w", core.ErrWrite, filepath.Base(finalPath), err)
	}
	return finalPath, nil
}

func (s *Synchronizer) discard(tmpPath string) {
	if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Failed to remove temporary download",
			zap.String("file", filepath.Base(tmpPath)),
			zap.Error(err))
	}
}

func transportError(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", core.ErrDownloadTimeout, err)
	}
	return fmt.Errorf("%w: %w", core.ErrDownloadTransport, err)
}

// recordingWriter remembers write errors so disk failures are not reported
// as network failures
type recordingWriter struct {
	w   io.Writer
	err error
}

func (r *recordingWriter) Write(p []byte) (int, error) {
	n, err := r.w.Write(p)
	if err != nil {
		r.err = err
	}
	return n, err
}
