package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions carries the command line. Zero values mean "not given", so the
// configuration file or the built-in defaults apply.
type AppOptions struct {
	ConfigFile string

	SourcePath     string
	TargetPath     string
	BackgroundPath string
	SourceID       string
	TargetID       string

	Precision            float64
	IterationCoefficient float64
	Bounds               string
	Simplify             float64

	OutDir string
	Format string

	ImageLayer bool
	MatrixPath string
	Origin     string
	Factor     *float64 // nil when -factor is not given

	Serve    bool
	HttpPort int
	MqttMode bool
	Snapshot string
}

// Runner is what run dispatches to
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunCompute() error
	RunImageLayer() error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("Error: %v", err)
	}
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("distcarto", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "", "Path to YAML configuration file")
	fs.StringVar(&opts.SourcePath, "source", "", "Source anchor GeoJSON (points)")
	fs.StringVar(&opts.TargetPath, "target", "", "Target anchor GeoJSON (points)")
	fs.StringVar(&opts.BackgroundPath, "background", "", "Background GeoJSON to deform")
	fs.StringVar(&opts.SourceID, "id", "", "Identifier property of source anchors (default: feature id)")
	fs.StringVar(&opts.TargetID, "target-id", "", "Identifier property of target anchors (default: same as -id)")
	fs.Float64Var(&opts.Precision, "precision", 0, "Grid precision, larger is finer (default 1)")
	fs.Float64Var(&opts.IterationCoefficient, "iter-coef", 0, "Iteration coefficient, K = coef*sqrt(n) (default 4)")
	fs.StringVar(&opts.Bounds, "bounds", "", "Grid extent: minx,miny,maxx,maxy (default: background and anchors)")
	fs.Float64Var(&opts.Simplify, "simplify", 0, "Douglas-Peucker tolerance for the deformed background (0 disables)")
	fs.StringVar(&opts.OutDir, "out-dir", "", "Output directory (default .)")
	fs.StringVar(&opts.Format, "format", "", "Preview format: svg, png, both or none (default svg)")
	fs.BoolVar(&opts.ImageLayer, "image-layer", false, "Derive target anchors from a travel-time matrix and exit")
	fs.StringVar(&opts.MatrixPath, "matrix", "", "Travel-time matrix CSV for -image-layer")
	fs.StringVar(&opts.Origin, "origin", "", "Origin anchor id for -image-layer")
	var factor float64
	fs.Float64Var(&factor, "factor", 1, "Displacement factor for -image-layer, 0..1")
	fs.BoolVar(&opts.Serve, "serve", false, "Run the HTTP service")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "HTTP server port (default 8080)")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Subscribe to target anchors and publish results over MQTT")
	fs.StringVar(&opts.Snapshot, "snapshot", "", "Persist the latest result summary to this JSON file (service mode)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "factor" {
			opts.Factor = &factor
		}
	})
	if opts.TargetID == "" {
		opts.TargetID = opts.SourceID
	}

	_, _ = fmt.Fprintf(out, "distcarto version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.ImageLayer:
		return app.RunImageLayer()
	case opts.Serve || opts.MqttMode:
		return app.RunService()
	case opts.SourcePath == "" && opts.ConfigFile == "":
		_, _ = fmt.Fprintln(out, "Nothing to do.")
		_, _ = fmt.Fprintln(out, "Use -source/-target/-background (or -config) to compute a cartogram")
		_, _ = fmt.Fprintln(out, "Use -image-layer -matrix FILE -origin ID to derive targets from travel times")
		_, _ = fmt.Fprintln(out, "Use -serve and/or -mqtt to run the service")
		return nil
	}
	return app.RunCompute()
}
