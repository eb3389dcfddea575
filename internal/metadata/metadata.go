// Package metadata extracts capture metadata from photo files. It is the
// engine's default implementation of the metadata-extraction collaborator;
// the import pipeline only depends on the Extractor interface.
package metadata

import (
	"context"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"photo-library/internal/liberr"
	"photo-library/internal/logging"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Info holds the EXIF-derived fields of one photo. Absent fields stay at
// their zero values; CaptureDate is nil when the file carries no usable
// date.
type Info struct {
	CaptureDate  *time.Time
	Camera       string
	Lens         string
	ISO          int
	Aperture     float64
	ShutterSpeed string
	FocalLength  string
	Width        int
	Height       int
}

// Extractor is the metadata-extraction collaborator consumed by the import
// pipeline.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Info, error)
}

// ExifExtractor reads EXIF metadata with goexif, falling back to a bare
// image header decode for dimensions when EXIF is absent.
type ExifExtractor struct{}

// NewExifExtractor returns the default extractor.
func NewExifExtractor() *ExifExtractor {
	return &ExifExtractor{}
}

// Extract reads metadata from the file at path. A file without EXIF is not
// an error; the returned Info just has fewer fields set.
func (e *ExifExtractor) Extract(ctx context.Context, path string) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", liberr.ErrCanceled, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, liberr.NewIOError("extract metadata", path, err)
	}
	defer f.Close()

	info := &Info{}

	x, err := exif.Decode(f)
	if err != nil {
		logging.Debug("No EXIF in %s: %v", path, err)
	} else {
		fillFromExif(info, x)
	}

	// EXIF pixel dimensions are often missing or stale; prefer the image
	// header when it decodes.
	if _, err := f.Seek(0, 0); err == nil {
		if cfg, _, err := image.DecodeConfig(f); err == nil {
			info.Width = cfg.Width
			info.Height = cfg.Height
		}
	}

	return info, nil
}

func fillFromExif(info *Info, x *exif.Exif) {
	if dt, err := x.DateTime(); err == nil {
		info.CaptureDate = &dt
	}

	if tag, err := x.Get(exif.Model); err == nil {
		if s, err := tag.StringVal(); err == nil {
			info.Camera = s
		}
	}
	if tag, err := x.Get(exif.LensModel); err == nil {
		if s, err := tag.StringVal(); err == nil {
			info.Lens = s
		}
	}
	if tag, err := x.Get(exif.ISOSpeedRatings); err == nil {
		if v, err := tag.Int(0); err == nil {
			info.ISO = v
		}
	}
	if tag, err := x.Get(exif.FNumber); err == nil {
		if num, den, err := tag.Rat2(0); err == nil && den != 0 {
			info.Aperture = float64(num) / float64(den)
		}
	}
	if tag, err := x.Get(exif.ExposureTime); err == nil {
		if num, den, err := tag.Rat2(0); err == nil && num != 0 && den != 0 {
			if num == 1 {
				info.ShutterSpeed = fmt.Sprintf("1/%d", den)
			} else {
				info.ShutterSpeed = fmt.Sprintf("%d/%d", num, den)
			}
		}
	}
	if tag, err := x.Get(exif.FocalLength); err == nil {
		if num, den, err := tag.Rat2(0); err == nil && den != 0 {
			info.FocalLength = fmt.Sprintf("%gmm", float64(num)/float64(den))
		}
	}
	if info.Width == 0 {
		if tag, err := x.Get(exif.PixelXDimension); err == nil {
			if v, err := tag.Int(0); err == nil {
				info.Width = v
			}
		}
		if tag, err := x.Get(exif.PixelYDimension); err == nil {
			if v, err := tag.Int(0); err == nil {
				info.Height = v
			}
		}
	}
}
