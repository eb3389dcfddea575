// Package render is the engine's default implementation of the image
// decode/render collaborator. It decodes supported photo formats, applies
// the geometric adjustments of an edit state (crop, rotate), and produces
// JPEG bitmaps at a requested bounding size. Pixel-level filter application
// (exposure, color) is out of scope and left to a real develop engine.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"

	"github.com/disintegration/imaging"

	"photo-library/internal/liberr"
	"photo-library/internal/logging"
	"photo-library/internal/mediatypes"
	"photo-library/internal/store"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

const jpegQuality = 85

// Renderer decodes source files and produces resized JPEG bitmaps.
type Renderer struct {
	useVips bool
}

// New creates a renderer. When vips has been initialized (see InitVips) the
// renderer decodes through libvips with decode-time shrinking, which avoids
// holding full-size bitmaps in memory; otherwise it falls back to pure-Go
// decoding.
func New() *Renderer {
	return &Renderer{useVips: IsVipsAvailable()}
}

// Render produces a JPEG no larger than sizePx on its longest side from the
// image's source file, honoring the geometric adjustments of edit (which
// may be nil).
func (r *Renderer) Render(ctx context.Context, img *store.Image, edit *store.EditState, sizePx int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", liberr.ErrCanceled, err)
	}

	if mediatypes.IsRaw(img.Path) {
		return nil, fmt.Errorf("raw decode not supported for %s", img.FileName)
	}

	decoded, err := r.decode(img.Path, sizePx)
	if err != nil {
		return nil, err
	}

	if edit != nil {
		decoded = applyGeometry(decoded, edit)
	}

	thumb := imaging.Fit(decoded, sizePx, sizePx, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode bitmap: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) decode(path string, sizePx int) (image.Image, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, liberr.NewIOError("render", path, err)
	}

	if r.useVips {
		img, err := LoadImageWithVips(path, sizePx, sizePx)
		if err == nil {
			return img, nil
		}
		logging.Debug("vips decode failed for %s: %v, falling back", path, err)
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	logging.Debug("imaging.Open failed for %s: %v, trying stdlib decode", path, err)

	f, err := os.Open(path)
	if err != nil {
		return nil, liberr.NewIOError("render", path, err)
	}
	defer f.Close()

	decoded, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("all decode methods failed for %s: %w", path, err)
	}
	logging.Debug("Decoded %s as %s", path, format)
	return decoded, nil
}

// applyGeometry applies enabled crop and rotate adjustments in stack order.
// Crop parameters are fractions of the current bounds.
func applyGeometry(img image.Image, edit *store.EditState) image.Image {
	for _, adj := range edit.Adjustments {
		if !adj.Enabled {
			continue
		}
		switch adj.Type {
		case store.AdjustCrop:
			bounds := img.Bounds()
			w := float64(bounds.Dx())
			h := float64(bounds.Dy())
			rect := image.Rect(
				bounds.Min.X+int(adj.Parameters["x"]*w),
				bounds.Min.Y+int(adj.Parameters["y"]*h),
				bounds.Min.X+int((adj.Parameters["x"]+adj.Parameters["width"])*w),
				bounds.Min.Y+int((adj.Parameters["y"]+adj.Parameters["height"])*h),
			)
			if rect.Dx() > 0 && rect.Dy() > 0 {
				img = imaging.Crop(img, rect)
			}
		case store.AdjustRotate:
			img = imaging.Rotate(img, adj.Parameters["degrees"], image.Transparent)
		}
	}
	return img
}
