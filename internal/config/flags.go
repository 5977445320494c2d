package config

import "flag"

// Flags are the command-line overrides shared by the vrmtool subcommands.
// Zero values mean "not set".
type Flags struct {
	Config          string
	Debug           bool
	LogFile         string
	Quiet           bool
	MaxSide         int
	Ratio           float64
	KeepBones       bool
	KeepThumbnail   bool
	KeepBlendShapes bool
}

// RegisterFlags defines the override flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.Config, "config", "", "Path to config file (.yaml or .toml)")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.LogFile, "log-file", "", "Write logs to this file as well")
	fs.BoolVar(&f.Quiet, "quiet", false, "Do not log to stderr")
	fs.IntVar(&f.MaxSide, "max-side", 0, "Maximum texture width/height")
	fs.Float64Var(&f.Ratio, "ratio", 0, "Mesh target ratio in (0, 1]")
	fs.BoolVar(&f.KeepBones, "keep-bones", false, "Do not prune unused bones")
	fs.BoolVar(&f.KeepThumbnail, "keep-thumbnail", false, "Keep the VRM thumbnail")
	fs.BoolVar(&f.KeepBlendShapes, "keep-blendshapes", false, "Keep blendshape groups")
	return f
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config, f *Flags) {
	if f == nil {
		return
	}
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.LogFile != "" {
		cfg.Logging.LogFile = f.LogFile
	}
	if f.Quiet {
		cfg.Logging.Quiet = true
	}
	if f.MaxSide > 0 {
		cfg.Reduce.TextureMaxSide = f.MaxSide
	}
	if f.Ratio > 0 {
		cfg.Reduce.MeshTargetRatio = f.Ratio
	}
	if f.KeepBones {
		cfg.Reduce.PruneBones = false
	}
	if f.KeepThumbnail {
		cfg.Reduce.RemoveThumbnail = false
	}
	if f.KeepBlendShapes {
		cfg.Reduce.StripBlendShapes = false
	}
}
