// Package config handles vrmtool configuration loading and management.
package config

import (
	"fmt"

	"github.com/Faultbox/vrmslim/internal/logger"
	"github.com/Faultbox/vrmslim/pkg/decimate"
	"github.com/Faultbox/vrmslim/pkg/imageproc"
	"github.com/Faultbox/vrmslim/pkg/reduce"
)

// Config holds all tool settings.
type Config struct {
	Reduce   ReduceConfig   `yaml:"reduce" toml:"reduce"`
	Decimate DecimateConfig `yaml:"decimate" toml:"decimate"`
	Image    ImageConfig    `yaml:"image" toml:"image"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// ReduceConfig selects the reduction steps.
type ReduceConfig struct {
	TextureMaxSide   int     `yaml:"texture_max_side" toml:"texture_max_side"` // 0 disables resizing
	MeshTargetRatio  float64 `yaml:"mesh_target_ratio" toml:"mesh_target_ratio"`
	PruneBones       bool    `yaml:"prune_bones" toml:"prune_bones"`
	RemoveThumbnail  bool    `yaml:"remove_thumbnail" toml:"remove_thumbnail"`
	StripBlendShapes bool    `yaml:"strip_blend_shapes" toml:"strip_blend_shapes"`
}

// DecimateConfig tunes the mesh decimator.
type DecimateConfig struct {
	BoundaryWeight float64 `yaml:"boundary_weight" toml:"boundary_weight"`
}

// ImageConfig tunes texture re-encoding.
type ImageConfig struct {
	JPEGQuality int    `yaml:"jpeg_quality" toml:"jpeg_quality"`
	Filter      string `yaml:"filter" toml:"filter"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level"`
	LogFile string `yaml:"log_file" toml:"log_file"`
	// Quiet turns off console output. The log file still receives entries.
	Quiet bool `yaml:"quiet" toml:"quiet"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	opts := reduce.DefaultOptions()
	return &Config{
		Reduce: ReduceConfig{
			TextureMaxSide:   opts.TextureMaxSide,
			MeshTargetRatio:  opts.MeshTargetRatio,
			PruneBones:       opts.PruneBones,
			RemoveThumbnail:  opts.RemoveThumbnail,
			StripBlendShapes: opts.StripBlendShapes,
		},
		Decimate: DecimateConfig{
			BoundaryWeight: decimate.DefaultBoundaryWeight,
		},
		Image: ImageConfig{
			JPEGQuality: imageproc.DefaultJPEGQuality,
			Filter:      "lanczos",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate reports settings the pipeline would reject.
func (c *Config) Validate() error {
	if r := c.Reduce.MeshTargetRatio; !(r > 0 && r <= 1) {
		return fmt.Errorf("reduce.mesh_target_ratio %v outside (0, 1]", r)
	}
	if c.Reduce.TextureMaxSide < 0 {
		return fmt.Errorf("reduce.texture_max_side %d is negative", c.Reduce.TextureMaxSide)
	}
	if c.Decimate.BoundaryWeight < 0 {
		return fmt.Errorf("decimate.boundary_weight %v is negative", c.Decimate.BoundaryWeight)
	}
	if q := c.Image.JPEGQuality; q < 1 || q > 100 {
		return fmt.Errorf("image.jpeg_quality %d outside [1, 100]", q)
	}
	if _, err := imageproc.FilterByName(c.Image.Filter); err != nil {
		return fmt.Errorf("image.filter: %w", err)
	}
	return nil
}

// ReduceOptions converts the settings into pipeline options.
func (c *Config) ReduceOptions() reduce.Options {
	return reduce.Options{
		TextureMaxSide:   c.Reduce.TextureMaxSide,
		MeshTargetRatio:  c.Reduce.MeshTargetRatio,
		BoundaryWeight:   c.Decimate.BoundaryWeight,
		PruneBones:       c.Reduce.PruneBones,
		RemoveThumbnail:  c.Reduce.RemoveThumbnail,
		StripBlendShapes: c.Reduce.StripBlendShapes,
	}
}

// LoggerOptions converts the logging section into logger options.
func (c *Config) LoggerOptions() logger.Options {
	opts := logger.Options{Level: c.Logging.Level, Console: !c.Logging.Quiet}
	if c.Logging.LogFile != "" {
		opts.File = logger.DefaultFileConfig(c.Logging.LogFile)
	}
	return opts
}

// Resizer builds the image resizer described by the image section.
func (c *Config) Resizer() (*imageproc.Resizer, error) {
	return imageproc.NewResizer(c.Image.Filter, c.Image.JPEGQuality)
}
