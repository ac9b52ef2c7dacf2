package carto

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// Default configuration values
const (
	DefaultPrecision     = 1.0
	DefaultOutputFormat  = "svg"
	DefaultHTTPPort      = 8080
	DefaultPublishPrefix = "distcarto"
	DefaultClientID      = "distcarto"
)

// LayerSource locates a GeoJSON layer on disk or over HTTP
type LayerSource struct {
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	URL  string `yaml:"url,omitempty" json:"url,omitempty"`
}

// IsSet reports whether a path or URL is configured
func (l LayerSource) IsSet() bool {
	return l.Path != "" || l.URL != ""
}

// LayersConfig holds the three input layers
type LayersConfig struct {
	Source     LayerSource `yaml:"source" json:"source"`
	Target     LayerSource `yaml:"target,omitempty" json:"target,omitempty"`
	Background LayerSource `yaml:"background" json:"background"`
}

// ImageLayerConfig derives the target layer from a travel-time matrix
// instead of reading it
type ImageLayerConfig struct {
	Matrix string  `yaml:"matrix" json:"matrix"`
	Origin string  `yaml:"origin" json:"origin"`
	// Factor blends between no move (0) and the full move (1); unset means 1
	Factor *float64 `yaml:"factor,omitempty" json:"factor,omitempty"`
}

// DisplacementFactor returns the configured factor, 1 when unset
func (c *ImageLayerConfig) DisplacementFactor() float64 {
	if c.Factor == nil {
		return 1
	}
	return *c.Factor
}

// OutputConfig controls what compute mode writes
type OutputConfig struct {
	Dir        string  `yaml:"dir,omitempty" json:"dir,omitempty"`
	Format     string  `yaml:"format,omitempty" json:"format,omitempty"` // svg, png, both or none
	Resolution float64 `yaml:"resolution,omitempty" json:"resolution,omitempty"` // PNG DPI
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty" json:"broker,omitempty"`
	ClientID      string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty"`
	TargetTopic   string `yaml:"targetTopic,omitempty" json:"targetTopic,omitempty"` // target anchors arrive here
}

// HTTPConfig holds the HTTP server settings
type HTTPConfig struct {
	Port int `yaml:"port,omitempty" json:"port,omitempty"`
}

// Config represents the full configuration file
type Config struct {
	Cartogram  Options           `yaml:"cartogram" json:"cartogram"`
	Bounds     []float64         `yaml:"bounds,omitempty" json:"bounds,omitempty"` // minx, miny, maxx, maxy
	Layers     LayersConfig      `yaml:"layers" json:"layers"`
	ImageLayer *ImageLayerConfig `yaml:"imageLayer,omitempty" json:"imageLayer,omitempty"`
	Output     OutputConfig      `yaml:"output,omitempty" json:"output,omitempty"`
	MQTT       MQTTConfig        `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
	HTTP       HTTPConfig        `yaml:"http,omitempty" json:"http,omitempty"`
}

// ApplyDefaults fills unset fields
func (c *Config) ApplyDefaults() {
	if c.Cartogram.Precision == 0 {
		c.Cartogram.Precision = DefaultPrecision
	}
	if c.Cartogram.IterationCoefficient == 0 {
		c.Cartogram.IterationCoefficient = DefaultIterationCoefficient
	}
	if c.Output.Format == "" {
		c.Output.Format = DefaultOutputFormat
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "."
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.MQTT.PublishPrefix == "" {
		c.MQTT.PublishPrefix = DefaultPublishPrefix
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = DefaultClientID
	}
	if c.ImageLayer != nil && c.ImageLayer.Factor == nil {
		factor := 1.0
		c.ImageLayer.Factor = &factor
	}
}

// Validate checks the configuration for usage errors
func (c *Config) Validate() error {
	if !(c.Cartogram.Precision > 0) {
		return fmt.Errorf("cartogram.precision must be > 0")
	}
	if c.Cartogram.IterationCoefficient < 0 {
		return fmt.Errorf("cartogram.iterationCoefficient must be >= 0")
	}
	if c.Cartogram.Simplify < 0 {
		return fmt.Errorf("cartogram.simplify must be >= 0")
	}
	if _, err := c.Bound(); err != nil {
		return err
	}
	switch c.Output.Format {
	case "svg", "png", "both", "none":
	default:
		return fmt.Errorf("output.format must be svg, png, both or none, got %q", c.Output.Format)
	}
	if c.ImageLayer != nil {
		if c.ImageLayer.Matrix == "" {
			return fmt.Errorf("imageLayer.matrix is required")
		}
		if c.ImageLayer.Origin == "" {
			return fmt.Errorf("imageLayer.origin is required")
		}
		if f := c.ImageLayer.DisplacementFactor(); !(f >= 0) {
			return fmt.Errorf("imageLayer.factor must be >= 0, got %v", f)
		}
	}
	return nil
}

// Bound returns the configured bounding rectangle, or nil when unset
func (c *Config) Bound() (*orb.Bound, error) {
	if len(c.Bounds) == 0 {
		return nil, nil
	}
	return BoundFromValues(c.Bounds)
}

// ParseBounds parses "minx,miny,maxx,maxy"
func ParseBounds(s string) (*orb.Bound, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	values := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("bounds %q: %w", s, err)
		}
		values[i] = v
	}
	return BoundFromValues(values)
}

// BoundFromValues builds a bound from minx, miny, maxx, maxy
func BoundFromValues(v []float64) (*orb.Bound, error) {
	if len(v) != 4 {
		return nil, fmt.Errorf("bounds must have 4 values (minx, miny, maxx, maxy), got %d", len(v))
	}
	if !(v[0] < v[2]) || !(v[1] < v[3]) {
		return nil, fmt.Errorf("bounds %v: min must be below max on both axes", v)
	}
	return &orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}
