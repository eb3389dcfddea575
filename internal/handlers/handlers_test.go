package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"

	"photo-library/internal/bundle"
	"photo-library/internal/importer"
	"photo-library/internal/library"
	"photo-library/internal/metadata"
	"photo-library/internal/startup"
	"photo-library/internal/store"
	"photo-library/internal/thumbcache"
)

// stubRenderer emits a fixed JPEG-magic payload without decoding anything.
type stubRenderer struct{}

func (stubRenderer) Render(ctx context.Context, img *store.Image, edit *store.EditState, sizePx int) ([]byte, error) {
	return []byte{0xFF, 0xD8, 0xFF, 0xE0}, nil
}

type testEnv struct {
	router *mux.Router
	lib    *library.Library
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	b, err := bundle.Create(filepath.Join(t.TempDir(), "Library"))
	if err != nil {
		t.Fatalf("bundle.Create: %v", err)
	}
	st, err := store.Open(context.Background(), b.CatalogPath(), "Test Library")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cache := thumbcache.New(b.ThumbnailsDir(), stubRenderer{}, nil)
	lib, err := library.Open(context.Background(), st, cache)
	if err != nil {
		t.Fatalf("library.Open: %v", err)
	}
	t.Cleanup(func() { lib.Close() })

	imp := importer.New(lib, metadata.NewExifExtractor(), nil)
	config := &startup.Config{CopyOnImport: false, LogHealthChecks: true}

	h := New(lib, cache, imp, b, config)
	router := mux.NewRouter()
	h.RegisterRoutes(router)

	return &testEnv{router: router, lib: lib}
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func importTestPhotos(t *testing.T, env *testEnv, count int) []string {
	t.Helper()
	src := t.TempDir()
	for i := 0; i < count; i++ {
		name := filepath.Join(src, fmt.Sprintf("photo%02d.jpg", i))
		if err := os.WriteFile(name, []byte(fmt.Sprintf("pixels %d", i)), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	rec := env.do(t, "POST", "/api/import", map[string]interface{}{"paths": []string{src}})
	if rec.Code != http.StatusOK {
		t.Fatalf("import status %d: %s", rec.Code, rec.Body)
	}
	var resp ImportResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Imported != count {
		t.Fatalf("imported %d, want %d: %v", resp.Imported, count, resp.Errors)
	}

	var ids []string
	for _, img := range env.lib.Images() {
		ids = append(ids, img.ID)
	}
	return ids
}

func TestImageLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ids := importTestPhotos(t, env, 2)

	rec := env.do(t, "GET", "/api/images", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	var list struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 2 {
		t.Errorf("listed %d images", list.Count)
	}

	if rec := env.do(t, "PUT", "/api/images/"+ids[0]+"/rating",
		map[string]int{"rating": 4}); rec.Code != http.StatusNoContent {
		t.Fatalf("set rating status %d: %s", rec.Code, rec.Body)
	}
	if rec := env.do(t, "PUT", "/api/images/"+ids[0]+"/flag",
		map[string]string{"flag": "pick"}); rec.Code != http.StatusNoContent {
		t.Fatalf("set flag status %d: %s", rec.Code, rec.Body)
	}
	if rec := env.do(t, "POST", "/api/images/"+ids[0]+"/keywords",
		map[string]string{"keyword": "alps"}); rec.Code != http.StatusNoContent {
		t.Fatalf("add keyword status %d: %s", rec.Code, rec.Body)
	}

	rec = env.do(t, "GET", "/api/images/"+ids[0], nil)
	var img store.Image
	if err := json.Unmarshal(rec.Body.Bytes(), &img); err != nil {
		t.Fatal(err)
	}
	if img.Rating != 4 || img.Flag != store.FlagPick || len(img.Keywords) != 1 {
		t.Errorf("image after mutations: %+v", img)
	}

	// Out-of-range rating and unknown flag are client errors.
	if rec := env.do(t, "PUT", "/api/images/"+ids[0]+"/rating",
		map[string]int{"rating": 9}); rec.Code != http.StatusBadRequest {
		t.Errorf("rating 9 status %d", rec.Code)
	}
	if rec := env.do(t, "PUT", "/api/images/"+ids[0]+"/flag",
		map[string]string{"flag": "maybe"}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad flag status %d", rec.Code)
	}

	if rec := env.do(t, "DELETE", "/api/images/"+ids[1], nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status %d", rec.Code)
	}
	if rec := env.do(t, "GET", "/api/images/"+ids[1], nil); rec.Code != http.StatusNotFound {
		t.Errorf("deleted image status %d", rec.Code)
	}
}

func TestEditEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ids := importTestPhotos(t, env, 1)

	body := map[string]interface{}{
		"adjustments": []store.Adjustment{
			{ID: "a1", Type: store.AdjustExposure, Parameters: map[string]float64{"ev": 0.5}, Enabled: true},
		},
	}
	rec := env.do(t, "POST", "/api/images/"+ids[0]+"/edits", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("apply status %d: %s", rec.Code, rec.Body)
	}
	var applied map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &applied); err != nil {
		t.Fatal(err)
	}
	if applied["version"] != 1 {
		t.Errorf("version = %d", applied["version"])
	}

	// Invalid parameters are rejected before anything changes.
	bad := map[string]interface{}{
		"adjustments": []store.Adjustment{
			{ID: "a2", Type: store.AdjustCrop, Parameters: map[string]float64{"x": 0}, Enabled: true},
		},
	}
	if rec := env.do(t, "POST", "/api/images/"+ids[0]+"/edits", bad); rec.Code != http.StatusInternalServerError && rec.Code != http.StatusBadRequest {
		t.Errorf("invalid adjustment status %d", rec.Code)
	}

	rec = env.do(t, "GET", "/api/images/"+ids[0]+"/edits", nil)
	var history struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatal(err)
	}
	if history.Count != 1 {
		t.Errorf("history count = %d", history.Count)
	}
}

func TestAlbumEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ids := importTestPhotos(t, env, 1)

	rec := env.do(t, "POST", "/api/albums", map[string]interface{}{"name": "Trip"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create album status %d: %s", rec.Code, rec.Body)
	}
	var album store.Album
	if err := json.Unmarshal(rec.Body.Bytes(), &album); err != nil {
		t.Fatal(err)
	}

	if rec := env.do(t, "POST", "/api/albums/"+album.ID+"/images",
		map[string]string{"imageId": ids[0]}); rec.Code != http.StatusNoContent {
		t.Fatalf("add to album status %d: %s", rec.Code, rec.Body)
	}

	rec = env.do(t, "GET", "/api/albums/"+album.ID+"/images", nil)
	var members struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &members); err != nil {
		t.Fatal(err)
	}
	if members.Count != 1 {
		t.Errorf("album members = %d", members.Count)
	}

	smartBody := map[string]interface{}{
		"name":     "Picks",
		"smart":    true,
		"criteria": `{"match":"all","rules":[{"field":"flag","compare":"equals","value":"pick"}]}`,
	}
	rec = env.do(t, "POST", "/api/albums", smartBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create smart album status %d: %s", rec.Code, rec.Body)
	}
	var smart store.Album
	if err := json.Unmarshal(rec.Body.Bytes(), &smart); err != nil {
		t.Fatal(err)
	}

	// Empty before flagging, populated after.
	rec = env.do(t, "GET", "/api/albums/"+smart.ID+"/images", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &members); err != nil {
		t.Fatal(err)
	}
	if members.Count != 0 {
		t.Errorf("smart album prematurely matched %d", members.Count)
	}
	env.do(t, "PUT", "/api/images/"+ids[0]+"/flag", map[string]string{"flag": "pick"})
	rec = env.do(t, "GET", "/api/albums/"+smart.ID+"/images", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &members); err != nil {
		t.Fatal(err)
	}
	if members.Count != 1 {
		t.Errorf("smart album matched %d after flag", members.Count)
	}

	// Manual membership ops on a smart album are rejected.
	if rec := env.do(t, "POST", "/api/albums/"+smart.ID+"/images",
		map[string]string{"imageId": ids[0]}); rec.Code != http.StatusBadRequest {
		t.Errorf("manual add to smart album status %d", rec.Code)
	}

	if rec := env.do(t, "DELETE", "/api/albums/"+album.ID, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete album status %d", rec.Code)
	}
	if rec := env.do(t, "GET", "/api/images/"+ids[0], nil); rec.Code != http.StatusOK {
		t.Error("image vanished with its album")
	}
}

func TestThumbnailEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ids := importTestPhotos(t, env, 1)

	rec := env.do(t, "GET", "/api/images/"+ids[0]+"/thumbnail?size=256", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("thumbnail status %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type %s", ct)
	}
	if body := rec.Body.Bytes(); len(body) < 2 || body[0] != 0xFF || body[1] != 0xD8 {
		t.Error("response is not a JPEG")
	}

	if rec := env.do(t, "GET", "/api/images/"+ids[0]+"/thumbnail?size=300", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("unsupported size status %d", rec.Code)
	}
	if rec := env.do(t, "GET", "/api/images/no-such-id/thumbnail", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing image thumbnail status %d", rec.Code)
	}
}

func TestSidecarExport(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ids := importTestPhotos(t, env, 1)
	env.do(t, "PUT", "/api/images/"+ids[0]+"/rating", map[string]int{"rating": 5})

	rec := env.do(t, "POST", "/api/images/"+ids[0]+"/sidecar", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status %d: %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(resp["path"])
	if err != nil {
		t.Fatalf("sidecar file: %v", err)
	}
	if !bytes.Contains(data, []byte("<rating>5</rating>")) {
		t.Errorf("sidecar missing rating:\n%s", data)
	}
}

func TestHealthVersionStats(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	importTestPhotos(t, env, 2)

	rec := env.do(t, "GET", "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status %d", rec.Code)
	}
	var health HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != statusHealthy || health.TotalImages != 2 {
		t.Errorf("health = %+v", health)
	}

	if rec := env.do(t, "GET", "/readyz", nil); rec.Code != http.StatusOK {
		t.Errorf("ready status %d", rec.Code)
	}
	if rec := env.do(t, "GET", "/api/version", nil); rec.Code != http.StatusOK {
		t.Errorf("version status %d", rec.Code)
	}

	rec = env.do(t, "GET", "/api/stats", nil)
	var stats store.LibraryStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalImages != 2 {
		t.Errorf("stats images = %d", stats.TotalImages)
	}
}
