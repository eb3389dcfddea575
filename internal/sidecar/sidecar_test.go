package sidecar

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"photo-library/internal/store"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	captured := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	img := &store.Image{
		ID:          "img1",
		FileName:    "sunset.jpg",
		Fingerprint: "deadbeef00000001",
		CaptureDate: &captured,
		Rating:      4,
		Flag:        store.FlagPick,
		ColorLabel:  "red",
		Keywords:    []string{"alps", "landscape"},
	}
	edit := &store.EditState{
		ID:      "e1",
		ImageID: "img1",
		Version: 2,
		Adjustments: []store.Adjustment{
			{ID: "a1", Type: store.AdjustExposure, Parameters: map[string]float64{"ev": 0.7}, Enabled: true},
		},
		CreatedAt: captured,
	}

	dir := t.TempDir()
	path, err := Write(dir, img, edit)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	sc, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if sc.Rating != 4 || sc.Flag != "pick" || sc.ColorLabel != "red" {
		t.Errorf("descriptive fields = %d/%s/%s", sc.Rating, sc.Flag, sc.ColorLabel)
	}
	if !reflect.DeepEqual(sc.Keywords, img.Keywords) {
		t.Errorf("keywords = %v", sc.Keywords)
	}
	if sc.CaptureDate != "2024-03-15T10:00:00Z" {
		t.Errorf("captureDate = %q", sc.CaptureDate)
	}

	gotEdit, err := sc.EditState()
	if err != nil {
		t.Fatalf("EditState: %v", err)
	}
	if gotEdit.Version != 2 || len(gotEdit.Adjustments) != 1 {
		t.Errorf("edit payload = %+v", gotEdit)
	}
	if gotEdit.Adjustments[0].Parameters["ev"] != 0.7 {
		t.Error("adjustment parameters lost in round trip")
	}

	restored := &store.Image{ID: "img1", FileName: "sunset.jpg"}
	sc.Apply(restored)
	if restored.Rating != 4 || restored.Flag != store.FlagPick {
		t.Error("Apply did not restore descriptive fields")
	}
}

func TestNeutralFieldsReadableWithoutPayload(t *testing.T) {
	t.Parallel()

	img := &store.Image{ID: "img2", FileName: "plain.jpg", Rating: 2, Flag: store.FlagNone}
	dir := t.TempDir()
	path, err := Write(dir, img, nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// The neutral elements must be plain text, not buried in the payload.
	if !strings.Contains(string(data), "<rating>2</rating>") {
		t.Errorf("sidecar not vendor-readable:\n%s", data)
	}

	sc, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	edit, err := sc.EditState()
	if err != nil {
		t.Fatalf("EditState: %v", err)
	}
	if edit != nil {
		t.Error("payload-less sidecar produced an edit state")
	}
}

func TestReadRejectsMalformedXML(t *testing.T) {
	t.Parallel()

	path := t.TempDir() + "/bad.xmp"
	if err := os.WriteFile(path, []byte("<photoSidecar><rating>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Error("malformed sidecar accepted")
	}
}
