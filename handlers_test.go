package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kwv/distcarto/carto"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func handlerInputs() carto.Inputs {
	codes := []string{"o", "a", "b"}
	bg := geojson.NewFeatureCollection()
	bg.Append(geojson.NewFeature(orb.LineString{{1, 1}, {9, 9}}))
	return carto.Inputs{
		Source:     pointLayer(codes, []orb.Point{{0, 0}, {10, 0}, {0, 10}}),
		Target:     pointLayer(codes, []orb.Point{{0, 0}, {15, 0}, {0, 8}}),
		Background: bg,
		Options:    carto.Options{SourceID: "code", TargetID: "code", Precision: 1},
	}
}

// populatedTracker returns a StateTracker holding one computed cartogram.
func populatedTracker(t *testing.T) *carto.StateTracker {
	t.Helper()
	st := carto.NewStateTracker()
	st.SetInputs(handlerInputs())
	if _, err := st.Recompute(nil); err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	return st
}

func serve(h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// GET endpoints
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	tests := []struct {
		name         string
		tracker      func(t *testing.T) *carto.StateTracker
		hasCartogram bool
	}{
		{"empty", func(*testing.T) *carto.StateTracker { return carto.NewStateTracker() }, false},
		{"populated", populatedTracker, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newHTTPServer(tt.tracker(t), nil), http.MethodGet, "/health", nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			var body struct {
				Status       string          `json:"status"`
				HasCartogram bool            `json:"hasCartogram"`
				Last         *carto.Snapshot `json:"last"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != "ok" {
				t.Errorf("status = %q, want ok", body.Status)
			}
			if body.HasCartogram != tt.hasCartogram {
				t.Errorf("hasCartogram = %v, want %v", body.HasCartogram, tt.hasCartogram)
			}
			if tt.hasCartogram && (body.Last == nil || body.Last.Summary.Anchors != 3) {
				t.Errorf("last = %+v, want a 3 anchor summary", body.Last)
			}
		})
	}
}

func TestGrid(t *testing.T) {
	h := newHTTPServer(populatedTracker(t), nil)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/grid/source.geojson", http.StatusOK},
		{"/grid/interp.geojson", http.StatusOK},
		{"/grid/other.geojson", http.StatusBadRequest},
		{"/grid/interp", http.StatusNotFound},
		{"/grid/interp.json", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := serve(h, http.MethodGet, tt.path, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/geo+json" {
				t.Errorf("Content-Type = %q", ct)
			}
			fc, err := carto.ParseCollection(rec.Body.Bytes())
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if len(fc.Features) == 0 {
				t.Error("expected grid cells")
			}
		})
	}
}

func TestEndpoints_NoCartogram(t *testing.T) {
	h := newHTTPServer(carto.NewStateTracker(), nil)
	for _, path := range []string{"/grid/interp.geojson", "/background.geojson", "/cartogram.svg", "/cartogram.png"} {
		t.Run(path, func(t *testing.T) {
			rec := serve(h, http.MethodGet, path, nil)
			if rec.Code != http.StatusServiceUnavailable {
				t.Errorf("status = %d, want 503", rec.Code)
			}
		})
	}
}

func TestBackground(t *testing.T) {
	rec := serve(newHTTPServer(populatedTracker(t), nil), http.MethodGet, "/background.geojson", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	fc, err := carto.ParseCollection(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("got %d features, want 1", len(fc.Features))
	}
	if _, ok := fc.Features[0].Geometry.(orb.LineString); !ok {
		t.Errorf("geometry = %T, want LineString", fc.Features[0].Geometry)
	}
}

func TestPreviews(t *testing.T) {
	h := newHTTPServer(populatedTracker(t), nil)

	rec := serve(h, http.MethodGet, "/cartogram.svg", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("svg status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("svg Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "<svg") {
		t.Error("expected SVG document")
	}

	rec = serve(h, http.MethodGet, "/cartogram.png", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("png status = %d", rec.Code)
	}
	if _, err := png.Decode(rec.Body); err != nil {
		t.Errorf("decode png: %v", err)
	}
}

func TestIndex(t *testing.T) {
	h := newHTTPServer(carto.NewStateTracker(), nil)

	rec := serve(h, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `src="/cartogram.svg"`) {
		t.Error("index should embed the SVG preview")
	}

	if rec := serve(h, http.MethodGet, "/nope", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", rec.Code)
	}
	if rec := serve(h, http.MethodPost, "/health", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /health status = %d, want 405", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /cartogram
// ---------------------------------------------------------------------------

func cartogramBody(t *testing.T, mutate func(map[string]interface{})) []byte {
	t.Helper()
	in := handlerInputs()
	req := map[string]interface{}{
		"source":     in.Source,
		"target":     in.Target,
		"background": in.Background,
		"options":    map[string]interface{}{"sourceId": "code"},
	}
	if mutate != nil {
		mutate(req)
	}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestPostCartogram(t *testing.T) {
	st := carto.NewStateTracker()
	mockClient := carto.NewMockClient()
	mockClient.SetConnected(true)
	publisher := carto.NewPublisherWithPrefix(mockClient, "test")
	h := newHTTPServer(st, publisher)

	rec := serve(h, http.MethodPost, "/cartogram", cartogramBody(t, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var snap carto.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Summary.Anchors != 3 || len(snap.Anchors) != 3 {
		t.Errorf("snapshot = %+v, want 3 anchors", snap.Summary)
	}
	if st.Cartogram() == nil {
		t.Error("tracker should hold the new cartogram")
	}
	if st.Inputs().Options.TargetID != "code" {
		t.Errorf("TargetID = %q, want it to default to sourceId", st.Inputs().Options.TargetID)
	}
	if n := len(mockClient.PublishedMessages()); n != 3 {
		t.Errorf("published %d messages, want 3", n)
	}

	// the result is now served
	if rec := serve(h, http.MethodGet, "/grid/interp.geojson", nil); rec.Code != http.StatusOK {
		t.Errorf("grid status after POST = %d", rec.Code)
	}
}

func TestPostCartogram_WithBounds(t *testing.T) {
	st := carto.NewStateTracker()
	h := newHTTPServer(st, nil)

	body := cartogramBody(t, func(req map[string]interface{}) {
		req["bounds"] = []float64{-10, -10, 30, 30}
	})
	rec := serve(h, http.MethodPost, "/cartogram", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	b := st.Cartogram().Grid().Bound()
	if b.Min[0] > -10 || b.Max[0] < 30 {
		t.Errorf("grid bound %v does not cover the requested bounds", b)
	}
}

func TestPostCartogram_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   []byte
		status int
	}{
		{"invalid json", []byte("{"), http.StatusBadRequest},
		{"missing target", cartogramBody(t, func(req map[string]interface{}) { delete(req, "target") }), http.StatusBadRequest},
		{"bad bounds", cartogramBody(t, func(req map[string]interface{}) { req["bounds"] = []float64{1, 2} }), http.StatusBadRequest},
		{"unknown id field", cartogramBody(t, func(req map[string]interface{}) {
			req["options"] = map[string]interface{}{"sourceId": "code", "targetId": "insee"}
		}), http.StatusBadRequest},
		{"negative precision", cartogramBody(t, func(req map[string]interface{}) {
			req["options"] = map[string]interface{}{"sourceId": "code", "precision": -1}
		}), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := carto.NewStateTracker()
			rec := serve(newHTTPServer(st, nil), http.MethodPost, "/cartogram", tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			if st.Cartogram() != nil {
				t.Error("a failed request must not replace the cartogram")
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrapped: %w", carto.ErrOutOfDomain), http.StatusUnprocessableEntity},
		{carto.ErrDegenerateInput, http.StatusBadRequest},
		{carto.ErrInvalidPrecision, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
