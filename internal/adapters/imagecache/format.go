package imagecache

import (
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"github.com/mikey/eposter/internal/core"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// extensions is the fixed probe order for cached images
var extensions = []string{"jpg", "png", "gif", "webp", "bmp", "tiff"}

// formatExtensions maps image.Decode format names onto cache extensions
var formatExtensions = map[string]string{
	"jpeg": "jpg",
	"png":  "png",
	"gif":  "gif",
	"webp": "webp",
	"bmp":  "bmp",
	"tiff": "tiff",
}

func extensionRank(ext string) int {
	for i, e := range extensions {
		if e == ext {
			return i
		}
	}
	return -1
}

// ExtensionForFormat returns the cache extension for a decoded format name
func ExtensionForFormat(format string) (string, bool) {
	ext, ok := formatExtensions[format]
	return ext, ok
}

// normalize decodes the downloaded file, detects its real format and
// applies the orientation policy. It returns the extension to install under.
func (s *Synchronizer) normalize(tmpPath string) (string, error) {
	img, format, err := decodeFile(tmpPath, s.opts.MaxPixels)
	if err != nil {
		return "", err
	}

	ext, ok := ExtensionForFormat(format)
	if !ok {
		return "", fmt.Errorf("%w: unsupported format %q", core.ErrDecode, format)
	}

	if s.opts.ForceLandscape && isPortrait(img) {
		ext, err = encodeFile(tmpPath, rotateCounterClockwise(img), format)
		if err != nil {
			return "", err
		}
	}

	return ext, nil
}

// decodeFile checks the header dimensions against maxPixels before decoding,
// since the decoder allocates whatever the header claims.
func decodeFile(path string, maxPixels int64) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", core.ErrWrite, err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", core.ErrDecode, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); maxPixels > 0 && pixels > maxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d image over %d pixels", core.ErrTooLarge, cfg.Width, cfg.Height, maxPixels)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, "", fmt.Errorf("%w: %w", core.ErrWrite, err)
	}

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", core.ErrDecode, err)
	}
	return img, format, nil
}

func isPortrait(img image.Image) bool {
	b := img.Bounds()
	return b.Dy() > b.Dx()
}

// rotateCounterClockwise turns img a quarter turn to the left
func rotateCounterClockwise(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	// dst.x = src.y - minY, dst.y = maxX - src.x
	m := f64.Aff3{
		0, 1, float64(-b.Min.Y),
		-1, 0, float64(b.Max.X),
	}
	draw.NearestNeighbor.Transform(dst, m, img, b, draw.Src, nil)
	return dst
}

// encodeFile rewrites path with img, keeping format when an encoder exists.
// GIF and WebP are written as PNG: re-encoding a GIF would drop its frames
// and quantize it to a fixed palette.
func encodeFile(path string, img image.Image, format string) (string, error) {
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrWrite, err)
	}

	ext, err := encode(f, img, format)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("%w: %w", core.ErrWrite, closeErr)
	}
	if err != nil {
		return "", err
	}
	return ext, nil
}

func encode(w io.Writer, img image.Image, format string) (string, error) {
	var err error
	ext := formatExtensions[format]
	switch format {
	case "jpeg":
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	case "bmp":
		err = bmp.Encode(w, img)
	case "tiff":
		err = tiff.Encode(w, img, nil)
	default:
		ext = "png"
		err = png.Encode(w, img)
	}
	if err != nil {
		return "", fmt.Errorf("%w: encode %s: %w", core.ErrWrite, format, err)
	}
	return ext, nil
}
