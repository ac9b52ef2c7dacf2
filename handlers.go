package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kwv/distcarto/carto"
	"github.com/paulmach/orb/geojson"
)

// maxRequestBytes caps POST /cartogram bodies
const maxRequestBytes = 50 << 20

// cartogramRequest is the body of POST /cartogram
type cartogramRequest struct {
	Source     *geojson.FeatureCollection `json:"source"`
	Target     *geojson.FeatureCollection `json:"target"`
	Background *geojson.FeatureCollection `json:"background,omitempty"`
	Options    carto.Options              `json:"options"`
	Bounds     []float64                  `json:"bounds,omitempty"`
}

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(stateTracker *carto.StateTracker, publisher *carto.Publisher) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status := struct {
			Status       string          `json:"status"`
			Timestamp    time.Time       `json:"timestamp"`
			HasCartogram bool            `json:"hasCartogram"`
			Last         *carto.Snapshot `json:"last,omitempty"`
		}{
			Status:       "ok",
			Timestamp:    time.Now(),
			HasCartogram: stateTracker.Cartogram() != nil,
			Last:         stateTracker.Snapshot(),
		}
		writeJSON(w, http.StatusOK, status)
	})

	mux.HandleFunc("GET /grid/{file}", func(w http.ResponseWriter, r *http.Request) {
		name, ok := strings.CutSuffix(r.PathValue("file"), ".geojson")
		if !ok {
			http.NotFound(w, r)
			return
		}
		kind, err := carto.ParseMeshKind(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c := stateTracker.Cartogram()
		if c == nil {
			http.Error(w, "No cartogram available", http.StatusServiceUnavailable)
			return
		}
		fc, err := c.Mesh(kind)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeGeoJSON(w, fc)
	})

	mux.HandleFunc("GET /background.geojson", func(w http.ResponseWriter, r *http.Request) {
		c := stateTracker.Cartogram()
		if c == nil {
			http.Error(w, "No cartogram available", http.StatusServiceUnavailable)
			return
		}
		fc, err := c.TransformBackground()
		if err != nil {
			log.Printf("Error transforming background: %v", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeGeoJSON(w, fc)
	})

	mux.HandleFunc("GET /cartogram.svg", func(w http.ResponseWriter, r *http.Request) {
		c := stateTracker.Cartogram()
		if c == nil {
			http.Error(w, "No cartogram available", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := carto.NewVectorRenderer(c).RenderToSVG(w); err != nil {
			log.Printf("Error rendering cartogram SVG: %v", err)
		}
	})

	mux.HandleFunc("GET /cartogram.png", func(w http.ResponseWriter, r *http.Request) {
		c := stateTracker.Cartogram()
		if c == nil {
			http.Error(w, "No cartogram available", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := carto.NewRasterRenderer(c).RenderToPNG(w); err != nil {
			log.Printf("Error rendering cartogram PNG: %v", err)
		}
	})

	mux.HandleFunc("POST /cartogram", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
		if err != nil {
			http.Error(w, "reading body: "+err.Error(), http.StatusBadRequest)
			return
		}
		var req cartogramRequest
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "decoding body: "+err.Error(), http.StatusBadRequest)
			return
		}

		in, err := req.inputs()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c, err := in.Compute()
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		stateTracker.SetInputs(in)
		stateTracker.Update(c)

		if publisher != nil {
			if err := publisher.PublishCartogram(c); err != nil {
				log.Printf("Error publishing cartogram: %v", err)
			}
		}
		writeJSON(w, http.StatusOK, stateTracker.Snapshot())
	})

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = fmt.Fprint(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>distcarto</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
html,body{width:100%;height:100%;overflow:hidden;background:#fff}
img{display:block;width:100vw;height:100vh;object-fit:contain}
</style>
</head>
<body>
<img src="/cartogram.svg" alt="Cartogram">
</body>
</html>`)
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		mux.ServeHTTP(w, r)
	})
}

func (req cartogramRequest) inputs() (carto.Inputs, error) {
	if req.Source == nil || req.Target == nil {
		return carto.Inputs{}, fmt.Errorf("source and target collections are required")
	}
	opts := req.Options
	if opts.Precision == 0 {
		opts.Precision = carto.DefaultPrecision
	}
	if opts.TargetID == "" {
		opts.TargetID = opts.SourceID
	}
	if len(req.Bounds) > 0 {
		b, err := carto.BoundFromValues(req.Bounds)
		if err != nil {
			return carto.Inputs{}, err
		}
		opts.Bound = b
	}
	return carto.Inputs{
		Source:     req.Source,
		Target:     req.Target,
		Background: req.Background,
		Options:    opts,
	}, nil
}

// statusFor maps a computation error to a response status. Every failure
// comes from the posted layers, so anything but a lookup outside the grid is
// a bad request.
func statusFor(err error) int {
	if errors.Is(err, carto.ErrOutOfDomain) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeGeoJSON(w http.ResponseWriter, fc *geojson.FeatureCollection) {
	data, err := json.Marshal(fc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}
