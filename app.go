package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kwv/distcarto/carto"
	"github.com/paulmach/orb/geojson"
	"github.com/tdewolff/canvas"
)

// App encapsulates the application state and dependencies
type App struct {
	Config       *carto.Config
	StateTracker *carto.StateTracker
	MQTTClient   *carto.MQTTClient
	Publisher    *carto.Publisher

	opts      AppOptions
	fetchOpts []carto.FetchOption
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		StateTracker: carto.NewStateTracker(),
	}
}

// ApplyOptions stores the command line options
func (a *App) ApplyOptions(opts AppOptions) {
	a.opts = opts
}

// resolveConfig loads the configuration file, if any, and lays the command
// line over it
func (a *App) resolveConfig() (*carto.Config, error) {
	cfg := &carto.Config{}
	if a.opts.ConfigFile != "" {
		loaded, err := carto.LoadConfig(a.opts.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		log.Printf("Loaded config from %s", a.opts.ConfigFile)
	}

	o := a.opts
	if o.SourcePath != "" {
		cfg.Layers.Source = carto.LayerSource{Path: o.SourcePath}
	}
	if o.TargetPath != "" {
		cfg.Layers.Target = carto.LayerSource{Path: o.TargetPath}
	}
	if o.BackgroundPath != "" {
		cfg.Layers.Background = carto.LayerSource{Path: o.BackgroundPath}
	}
	if o.SourceID != "" {
		cfg.Cartogram.SourceID = o.SourceID
	}
	if o.TargetID != "" {
		cfg.Cartogram.TargetID = o.TargetID
	}
	if o.Precision != 0 {
		cfg.Cartogram.Precision = o.Precision
	}
	if o.IterationCoefficient != 0 {
		cfg.Cartogram.IterationCoefficient = o.IterationCoefficient
	}
	if o.Simplify != 0 {
		cfg.Cartogram.Simplify = o.Simplify
	}
	if o.Bounds != "" {
		b, err := carto.ParseBounds(o.Bounds)
		if err != nil {
			return nil, err
		}
		cfg.Bounds = []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	}
	if o.OutDir != "" {
		cfg.Output.Dir = o.OutDir
	}
	if o.Format != "" {
		cfg.Output.Format = o.Format
	}
	if o.HttpPort != 0 {
		cfg.HTTP.Port = o.HttpPort
	}
	if o.MatrixPath != "" || o.Origin != "" || o.Factor != nil {
		if cfg.ImageLayer == nil {
			cfg.ImageLayer = &carto.ImageLayerConfig{}
		}
		if o.MatrixPath != "" {
			cfg.ImageLayer.Matrix = o.MatrixPath
		}
		if o.Origin != "" {
			cfg.ImageLayer.Origin = o.Origin
		}
		if o.Factor != nil {
			factor := *o.Factor
			cfg.ImageLayer.Factor = &factor
		}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	bound, _ := cfg.Bound()
	cfg.Cartogram.Bound = bound
	a.Config = cfg
	return cfg, nil
}

// loadInputs reads the three layers. Without a target layer the targets are
// derived from the configured travel-time matrix.
func (a *App) loadInputs(ctx context.Context, cfg *carto.Config) (carto.Inputs, error) {
	in := carto.Inputs{Options: cfg.Cartogram}

	if !cfg.Layers.Source.IsSet() {
		return in, fmt.Errorf("no source layer configured")
	}
	source, err := carto.LoadLayer(ctx, cfg.Layers.Source, a.fetchOpts...)
	if err != nil {
		return in, fmt.Errorf("loading source layer: %w", err)
	}
	in.Source = source

	switch {
	case cfg.Layers.Target.IsSet():
		if in.Target, err = carto.LoadLayer(ctx, cfg.Layers.Target, a.fetchOpts...); err != nil {
			return in, fmt.Errorf("loading target layer: %w", err)
		}
	case cfg.ImageLayer != nil:
		if in.Target, err = deriveTargets(source, cfg); err != nil {
			return in, err
		}
	default:
		return in, fmt.Errorf("no target layer or image layer configured")
	}

	if cfg.Layers.Background.IsSet() {
		if in.Background, err = carto.LoadLayer(ctx, cfg.Layers.Background, a.fetchOpts...); err != nil {
			return in, fmt.Errorf("loading background layer: %w", err)
		}
	} else {
		log.Println("Warning: no background layer, only the grids will be written")
		in.Background = geojson.NewFeatureCollection()
	}

	log.Printf("Loaded %d source, %d target and %d background features",
		len(in.Source.Features), len(in.Target.Features), len(in.Background.Features))
	return in, nil
}

func deriveTargets(source *geojson.FeatureCollection, cfg *carto.Config) (*geojson.FeatureCollection, error) {
	il := cfg.ImageLayer
	f, err := os.Open(il.Matrix)
	if err != nil {
		return nil, fmt.Errorf("opening time matrix: %w", err)
	}
	defer func() { _ = f.Close() }()

	m, err := carto.ParseTimeMatrix(f)
	if err != nil {
		return nil, err
	}
	return carto.ImageLayer(source, cfg.Cartogram.SourceID, il.Origin, m, il.DisplacementFactor())
}

// RunCompute computes one cartogram and writes the grids, the deformed
// background and the previews to the output directory
func (a *App) RunCompute() error {
	cfg, err := a.resolveConfig()
	if err != nil {
		return err
	}
	in, err := a.loadInputs(context.Background(), cfg)
	if err != nil {
		return err
	}

	c, err := in.Compute()
	if err != nil {
		var missing *carto.MissingCorrespondenceError
		if errors.As(err, &missing) {
			return fmt.Errorf("anchor layers do not match: %w", err)
		}
		return err
	}
	a.StateTracker.SetInputs(in)
	a.StateTracker.Update(c)

	return writeOutputs(c, cfg.Output)
}

func writeOutputs(c *carto.Cartogram, out carto.OutputConfig) error {
	if err := os.MkdirAll(out.Dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	background, err := c.TransformBackground()
	if err != nil {
		return err
	}
	layers := []struct {
		name string
		fc   *geojson.FeatureCollection
	}{
		{"source-grid.geojson", c.SourceMesh()},
		{"interp-grid.geojson", c.InterpMesh()},
		{"background.geojson", background},
	}
	for _, l := range layers {
		path := filepath.Join(out.Dir, l.name)
		if err := carto.WriteCollection(path, l.fc); err != nil {
			return err
		}
		fmt.Printf("Wrote %s (%d features)\n", path, len(l.fc.Features))
	}

	r := carto.NewVectorRenderer(c)
	if out.Resolution > 0 {
		r.Resolution = canvas.DPI(out.Resolution)
	}
	if out.Format == "svg" || out.Format == "both" {
		if err := writeFile(filepath.Join(out.Dir, "cartogram.svg"), r.RenderToSVG); err != nil {
			return err
		}
	}
	if out.Format == "png" || out.Format == "both" {
		if err := writeFile(filepath.Join(out.Dir, "cartogram.png"), r.RenderToPNG); err != nil {
			return err
		}
	}

	for _, ar := range c.Anchors() {
		fmt.Printf("  %-12s (%.4g, %.4g) -> (%.4g, %.4g) residual %.3g\n",
			ar.ID, ar.Source.X, ar.Source.Y, ar.Result.X, ar.Result.Y, ar.Residual)
	}
	return nil
}

func writeFile(path string, render func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := render(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

// RunImageLayer derives target anchors from travel times and writes them
func (a *App) RunImageLayer() error {
	cfg, err := a.resolveConfig()
	if err != nil {
		return err
	}
	if cfg.ImageLayer == nil {
		return fmt.Errorf("-image-layer needs -matrix and -origin")
	}
	if !cfg.Layers.Source.IsSet() {
		return fmt.Errorf("-image-layer needs a source layer")
	}
	source, err := carto.LoadLayer(context.Background(), cfg.Layers.Source, a.fetchOpts...)
	if err != nil {
		return fmt.Errorf("loading source layer: %w", err)
	}
	target, err := deriveTargets(source, cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(cfg.Output.Dir, "image-layer.geojson")
	if err := carto.WriteCollection(path, target); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d features, origin %s)\n", path, len(target.Features), cfg.ImageLayer.Origin)
	return nil
}

// RunService serves the latest cartogram over HTTP and, with -mqtt,
// recomputes it whenever new target anchors are published
func (a *App) RunService() error {
	fmt.Println("Starting distcarto service...")

	cfg, err := a.resolveConfig()
	if err != nil {
		return err
	}
	if a.opts.Snapshot != "" {
		a.StateTracker = carto.NewStateTrackerWithSnapshot(a.opts.Snapshot)
	}

	// The publisher must exist before the broker connection starts, since
	// target updates arrive on the client's goroutines.
	if a.opts.MqttMode {
		mqttClient, err := carto.InitMQTT(cfg, a.onTargets)
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if mqttClient == nil {
			return fmt.Errorf("MQTT broker not configured (set MQTT_BROKER or mqtt.broker)")
		}
		a.MQTTClient = mqttClient
		prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
		if prefix == "" {
			prefix = cfg.MQTT.PublishPrefix
		}
		a.Publisher = carto.NewPublisherWithPrefix(mqttClient.GetClient(), prefix)
		mqttClient.OnConnect(a.publishLatest)
		fmt.Println("MQTT publisher initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	in, err := a.loadInputs(ctx, cfg)
	cancel()
	if err != nil {
		log.Printf("Warning: no initial cartogram: %v", err)
		log.Println("POST /cartogram to compute one")
	} else {
		a.StateTracker.SetInputs(in)
		if _, err := a.StateTracker.Recompute(nil); err != nil {
			log.Printf("Warning: initial cartogram failed: %v", err)
		}
	}

	// The initial result goes out from the connect hook
	if a.MQTTClient != nil {
		a.MQTTClient.Start()
	}

	if a.opts.Serve {
		handler := newHTTPServer(a.StateTracker, a.Publisher)
		go func() {
			addr := fmt.Sprintf("0.0.0.0:%d", cfg.HTTP.Port)
			log.Printf("[HTTP] Starting server on %s", addr)
			if err := http.ListenAndServe(addr, handler); err != nil {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
		}()
	}

	fmt.Println("\nService Running")
	fmt.Println("===============")
	if a.opts.MqttMode {
		fmt.Println("\nMQTT:")
		if cfg.MQTT.TargetTopic != "" {
			fmt.Printf("  Target anchors from: %s\n", cfg.MQTT.TargetTopic)
		}
		fmt.Printf("  Publishing to: %s/{background,grid/interp,status}\n", a.Publisher.Prefix())
	}
	if a.opts.Serve {
		fmt.Printf("\nHTTP endpoints (port %d):\n", cfg.HTTP.Port)
		fmt.Println("  GET  /health               - Health check and last summary")
		fmt.Println("  GET  /grid/source.geojson  - Undeformed grid")
		fmt.Println("  GET  /grid/interp.geojson  - Deformed grid")
		fmt.Println("  GET  /background.geojson   - Deformed background")
		fmt.Println("  GET  /cartogram.svg        - Vector preview")
		fmt.Println("  GET  /cartogram.png        - Raster preview")
		fmt.Println("  POST /cartogram            - Compute from posted layers")
	}
	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down service...")
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Println("Service stopped")
	return nil
}

// onTargets recomputes the cartogram for a target collection received over
// MQTT and publishes the result
// publishLatest republishes the current cartogram, if any
func (a *App) publishLatest() {
	c := a.StateTracker.Cartogram()
	if c == nil || a.Publisher == nil {
		return
	}
	if err := a.Publisher.PublishCartogram(c); err != nil {
		log.Printf("Error publishing cartogram: %v", err)
		return
	}
	log.Println("Published current cartogram")
}

func (a *App) onTargets(target *geojson.FeatureCollection, err error) {
	if err != nil {
		log.Printf("Ignoring target update: %v", err)
		return
	}
	c, err := a.StateTracker.Recompute(target)
	if err != nil {
		log.Printf("Error recomputing cartogram: %v", err)
		return
	}
	if a.Publisher != nil {
		if err := a.Publisher.PublishCartogram(c); err != nil {
			log.Printf("Error publishing cartogram: %v", err)
		}
	}
}
