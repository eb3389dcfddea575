// Package sidecar reads and writes per-image XML sidecar files. Sidecars
// carry an image's descriptive metadata in vendor-neutral elements other
// tools can read, plus an opaque payload holding the full native edit
// state so a round trip through the sidecar loses nothing.
package sidecar

import (
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"photo-library/internal/liberr"
	"photo-library/internal/store"
)

// Sidecar is the XML document written next to (or for) an image.
type Sidecar struct {
	XMLName     xml.Name `xml:"photoSidecar"`
	Version     int      `xml:"version,attr"`
	ImageID     string   `xml:"imageId"`
	FileName    string   `xml:"fileName"`
	Fingerprint string   `xml:"fingerprint"`
	Rating      int      `xml:"rating"`
	Flag        string   `xml:"flag"`
	ColorLabel  string   `xml:"colorLabel,omitempty"`
	Keywords    []string `xml:"keywords>keyword"`
	CaptureDate string   `xml:"captureDate,omitempty"`

	// EditPayload is the base64-encoded native edit state. Foreign tools
	// ignore it; we prefer it over the neutral fields when reading back.
	EditPayload string `xml:"editPayload,omitempty"`
}

const formatVersion = 1

// Write renders a sidecar for img (with its latest edit, which may be nil)
// into dir, named <fileName>.xmp.
func Write(dir string, img *store.Image, edit *store.EditState) (string, error) {
	sc := &Sidecar{
		Version:     formatVersion,
		ImageID:     img.ID,
		FileName:    img.FileName,
		Fingerprint: img.Fingerprint,
		Rating:      img.Rating,
		Flag:        string(img.Flag),
		ColorLabel:  img.ColorLabel,
		Keywords:    img.Keywords,
	}
	if img.CaptureDate != nil {
		sc.CaptureDate = img.CaptureDate.UTC().Format(time.RFC3339)
	}
	if edit != nil {
		payload, err := json.Marshal(edit)
		if err != nil {
			return "", fmt.Errorf("failed to encode edit state: %w", err)
		}
		sc.EditPayload = base64.StdEncoding.EncodeToString(payload)
	}

	data, err := xml.MarshalIndent(sc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode sidecar: %w", err)
	}
	data = append([]byte(xml.Header), data...)

	path := filepath.Join(dir, img.FileName+".xmp")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", liberr.NewIOError("write sidecar", path, err)
	}
	return path, nil
}

// Read parses a sidecar file.
func Read(path string) (*Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, liberr.NewIOError("read sidecar", path, err)
	}
	var sc Sidecar
	if err := xml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("malformed sidecar %s: %w", path, err)
	}
	return &sc, nil
}

// EditState decodes the native edit payload, nil when the sidecar carries
// none.
func (sc *Sidecar) EditState() (*store.EditState, error) {
	if sc.EditPayload == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(sc.EditPayload)
	if err != nil {
		return nil, fmt.Errorf("corrupt edit payload: %w", err)
	}
	var edit store.EditState
	if err := json.Unmarshal(raw, &edit); err != nil {
		return nil, fmt.Errorf("corrupt edit payload: %w", err)
	}
	return &edit, nil
}

// Apply copies the sidecar's descriptive fields onto an image record.
// Identity fields (id, path, fingerprint) are left alone.
func (sc *Sidecar) Apply(img *store.Image) {
	img.Rating = sc.Rating
	if store.ValidFlag(store.Flag(sc.Flag)) {
		img.Flag = store.Flag(sc.Flag)
	}
	img.ColorLabel = sc.ColorLabel
	img.Keywords = append([]string(nil), sc.Keywords...)
}
