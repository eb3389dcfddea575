package store

import (
	"fmt"
	"time"
)

// Flag is the pick/reject state of an image.
type Flag string

const (
	// FlagNone means the image has not been flagged.
	FlagNone Flag = "none"
	// FlagPick marks an image as a keeper.
	FlagPick Flag = "pick"
	// FlagReject marks an image for discard.
	FlagReject Flag = "reject"
)

// ValidFlag reports whether f is one of the known flag values.
func ValidFlag(f Flag) bool {
	return f == FlagNone || f == FlagPick || f == FlagReject
}

// Library is the root record of a catalog. Exactly one exists per bundle.
type Library struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"createdAt"`
	SchemaVersion int       `json:"schemaVersion"`
}

// Image is one photo in the library. The ID is immutable and never reused.
// The fingerprint is computed once at import and never recomputed.
type Image struct {
	ID           string     `json:"id"`
	Path         string     `json:"path"`
	FileName     string     `json:"fileName"`
	Size         int64      `json:"size"`
	Fingerprint  string     `json:"fingerprint"`
	Width        int        `json:"width"`
	Height       int        `json:"height"`
	CaptureDate  *time.Time `json:"captureDate,omitempty"`
	ImportDate   time.Time  `json:"importDate"`
	Rating       int        `json:"rating"`
	Flag         Flag       `json:"flag"`
	ColorLabel   string     `json:"colorLabel,omitempty"`
	Camera       string     `json:"camera,omitempty"`
	Lens         string     `json:"lens,omitempty"`
	ISO          int        `json:"iso,omitempty"`
	Aperture     float64    `json:"aperture,omitempty"`
	ShutterSpeed string     `json:"shutterSpeed,omitempty"`
	FocalLength  string     `json:"focalLength,omitempty"`
	EditVersion  int        `json:"editVersion"`

	// Keywords is populated from the keyword link table on load; it is not
	// a column of the images table.
	Keywords []string `json:"keywords,omitempty"`
}

// Clone returns a deep copy of the image. The facade hands copies to
// callers so no external holder can mutate shared state.
func (img *Image) Clone() *Image {
	out := *img
	if img.CaptureDate != nil {
		d := *img.CaptureDate
		out.CaptureDate = &d
	}
	if img.Keywords != nil {
		out.Keywords = append([]string(nil), img.Keywords...)
	}
	return &out
}

// AdjustmentType identifies one kind of non-destructive adjustment. Each
// type has a fixed parameter schema.
type AdjustmentType string

const (
	AdjustExposure     AdjustmentType = "exposure"
	AdjustContrast     AdjustmentType = "contrast"
	AdjustSaturation   AdjustmentType = "saturation"
	AdjustWhiteBalance AdjustmentType = "whiteBalance"
	AdjustCrop         AdjustmentType = "crop"
	AdjustRotate       AdjustmentType = "rotate"
	AdjustSharpen      AdjustmentType = "sharpen"
	AdjustVignette     AdjustmentType = "vignette"
)

// AdjustmentSchemas lists the exact parameter keys each adjustment type
// requires. An adjustment's parameter map must contain these keys and no
// others.
var AdjustmentSchemas = map[AdjustmentType][]string{
	AdjustExposure:     {"ev"},
	AdjustContrast:     {"amount"},
	AdjustSaturation:   {"amount"},
	AdjustWhiteBalance: {"temperature", "tint"},
	AdjustCrop:         {"x", "y", "width", "height"},
	AdjustRotate:       {"degrees"},
	AdjustSharpen:      {"amount", "radius"},
	AdjustVignette:     {"amount"},
}

// Adjustment is one parametrized develop operation. Order within the owning
// EditState's list determines application order.
type Adjustment struct {
	ID         string             `json:"id"`
	Type       AdjustmentType     `json:"type"`
	Parameters map[string]float64 `json:"parameters"`
	Enabled    bool               `json:"enabled"`
	Mask       string             `json:"mask,omitempty"`
}

// Validate checks the parameter map against the type's schema.
func (a *Adjustment) Validate() error {
	schema, ok := AdjustmentSchemas[a.Type]
	if !ok {
		return fmt.Errorf("unknown adjustment type %q", a.Type)
	}
	if len(a.Parameters) != len(schema) {
		return fmt.Errorf("adjustment %q requires exactly %d parameters, got %d",
			a.Type, len(schema), len(a.Parameters))
	}
	for _, key := range schema {
		if _, ok := a.Parameters[key]; !ok {
			return fmt.Errorf("adjustment %q missing parameter %q", a.Type, key)
		}
	}
	return nil
}

// EditState is one version of an image's adjustment stack. Versions are
// append-only: a change produces a new EditState with a higher version,
// never a mutation of an existing one.
type EditState struct {
	ID          string       `json:"id"`
	ImageID     string       `json:"imageId"`
	Version     int          `json:"version"`
	Adjustments []Adjustment `json:"adjustments"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Clone returns a deep copy of the edit state.
func (e *EditState) Clone() *EditState {
	out := *e
	out.Adjustments = make([]Adjustment, len(e.Adjustments))
	for i, a := range e.Adjustments {
		out.Adjustments[i] = a
		if a.Parameters != nil {
			params := make(map[string]float64, len(a.Parameters))
			for k, v := range a.Parameters {
				params[k] = v
			}
			out.Adjustments[i].Parameters = params
		}
	}
	return &out
}

// Album is either a manual album (ordered image id list) or a smart album
// (criteria only, membership always computed). A smart album never has a
// manual image list.
type Album struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ParentID  string    `json:"parentId,omitempty"`
	IsSmart   bool      `json:"isSmart"`
	Criteria  string    `json:"criteria,omitempty"` // JSON-encoded smart criteria
	ImageIDs  []string  `json:"imageIds,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy of the album.
func (a *Album) Clone() *Album {
	out := *a
	if a.ImageIDs != nil {
		out.ImageIDs = append([]string(nil), a.ImageIDs...)
	}
	return &out
}

// LibraryStats summarizes catalog contents for the stats endpoint.
type LibraryStats struct {
	TotalImages   int       `json:"totalImages"`
	TotalAlbums   int       `json:"totalAlbums"`
	TotalKeywords int       `json:"totalKeywords"`
	TotalEdits    int       `json:"totalEdits"`
	LastImport    time.Time `json:"lastImport,omitempty"`
}
