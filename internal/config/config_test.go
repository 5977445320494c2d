package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Test reduce defaults
	if cfg.Reduce.TextureMaxSide != 1024 {
		t.Errorf("expected texture max side 1024, got %d", cfg.Reduce.TextureMaxSide)
	}
	if cfg.Reduce.MeshTargetRatio != 0.5 {
		t.Errorf("expected mesh target ratio 0.5, got %f", cfg.Reduce.MeshTargetRatio)
	}
	if !cfg.Reduce.PruneBones || !cfg.Reduce.RemoveThumbnail || !cfg.Reduce.StripBlendShapes {
		t.Error("expected every pruning step to be enabled by default")
	}

	// Test decimate and image defaults
	if cfg.Decimate.BoundaryWeight != 10 {
		t.Errorf("expected boundary weight 10, got %f", cfg.Decimate.BoundaryWeight)
	}
	if cfg.Image.JPEGQuality != 90 {
		t.Errorf("expected jpeg quality 90, got %d", cfg.Image.JPEGQuality)
	}
	if cfg.Image.Filter != "lanczos" {
		t.Errorf("expected filter 'lanczos', got %s", cfg.Image.Filter)
	}

	// Test logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "" {
		t.Errorf("expected empty log file, got %s", cfg.Logging.LogFile)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "vrmtool.yaml",
			content: `
reduce:
  texture_max_side: 512
  mesh_target_ratio: 0.25
  prune_bones: false

decimate:
  boundary_weight: 4

image:
  jpeg_quality: 75
  filter: "box"

logging:
  level: "debug"
  log_file: "vrmtool.log"
`,
		},
		{
			name: "toml",
			file: "vrmtool.toml",
			content: `
[reduce]
texture_max_side = 512
mesh_target_ratio = 0.25
prune_bones = false

[decimate]
boundary_weight = 4.0

[image]
jpeg_quality = 75
filter = "box"

[logging]
level = "debug"
log_file = "vrmtool.log"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(configPath, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}

			cfg := Default()
			if err := loadFromFile(cfg, configPath); err != nil {
				t.Fatalf("failed to load config: %v", err)
			}

			if cfg.Reduce.TextureMaxSide != 512 {
				t.Errorf("expected texture max side 512, got %d", cfg.Reduce.TextureMaxSide)
			}
			if cfg.Reduce.MeshTargetRatio != 0.25 {
				t.Errorf("expected ratio 0.25, got %f", cfg.Reduce.MeshTargetRatio)
			}
			if cfg.Reduce.PruneBones {
				t.Error("expected prune_bones to be false")
			}
			if !cfg.Reduce.RemoveThumbnail {
				t.Error("expected remove_thumbnail to keep its default")
			}
			if cfg.Decimate.BoundaryWeight != 4 {
				t.Errorf("expected boundary weight 4, got %f", cfg.Decimate.BoundaryWeight)
			}
			if cfg.Image.JPEGQuality != 75 || cfg.Image.Filter != "box" {
				t.Errorf("unexpected image config %+v", cfg.Image)
			}
			if cfg.Logging.Level != "debug" {
				t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
			}
			if cfg.Logging.LogFile != "vrmtool.log" {
				t.Errorf("expected log file 'vrmtool.log', got %s", cfg.Logging.LogFile)
			}
		})
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
reduce:
  texture_max_side: not a number
  invalid syntax here
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFromFile(cfg, "/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()

	// Actual path depends on OS
	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	if err := os.WriteFile("vrmtool.toml", []byte("[reduce]\ntexture_max_side = 256\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}
	if path := findConfigFile(); path != "./vrmtool.toml" {
		t.Errorf("expected ./vrmtool.toml, got %q", path)
	}

	if err := os.WriteFile("vrmtool.yaml", []byte("reduce:\n  texture_max_side: 128\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}
	if path := findConfigFile(); path != "./vrmtool.yaml" {
		t.Errorf("expected yaml to win over toml, got %q", path)
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		verify  func(t *testing.T, cfg *Config)
	}{
		{
			name: "all overrides",
			env: map[string]string{
				EnvLogLevel:       "WARN",
				EnvTextureMaxSide: "256",
				EnvTargetRatio:    "0.3",
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "warn" {
					t.Errorf("expected level 'warn', got %s", cfg.Logging.Level)
				}
				if cfg.Reduce.TextureMaxSide != 256 {
					t.Errorf("expected max side 256, got %d", cfg.Reduce.TextureMaxSide)
				}
				if cfg.Reduce.MeshTargetRatio != 0.3 {
					t.Errorf("expected ratio 0.3, got %f", cfg.Reduce.MeshTargetRatio)
				}
			},
		},
		{
			name: "empty leaves defaults",
			env:  map[string]string{},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Reduce.TextureMaxSide != 1024 {
					t.Errorf("expected default max side, got %d", cfg.Reduce.TextureMaxSide)
				}
			},
		},
		{
			name:    "bad integer",
			env:     map[string]string{EnvTextureMaxSide: "big"},
			wantErr: true,
		},
		{
			name:    "bad float",
			env:     map[string]string{EnvTargetRatio: "half"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			err := applyEnv(cfg, func(k string) string { return tt.env[k] })
			if (err != nil) != tt.wantErr {
				t.Fatalf("applyEnv error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.verify != nil {
				tt.verify(t, cfg)
			}
		})
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name   string
		flags  Flags
		verify func(t *testing.T, cfg *Config)
	}{
		{
			name:  "debug flag",
			flags: Flags{Debug: true},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
		},
		{
			name:  "size and ratio",
			flags: Flags{MaxSide: 2048, Ratio: 0.8},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Reduce.TextureMaxSide != 2048 {
					t.Errorf("expected max side 2048, got %d", cfg.Reduce.TextureMaxSide)
				}
				if cfg.Reduce.MeshTargetRatio != 0.8 {
					t.Errorf("expected ratio 0.8, got %f", cfg.Reduce.MeshTargetRatio)
				}
			},
		},
		{
			name:  "keep flags",
			flags: Flags{KeepBones: true, KeepThumbnail: true, KeepBlendShapes: true},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Reduce.PruneBones || cfg.Reduce.RemoveThumbnail || cfg.Reduce.StripBlendShapes {
					t.Errorf("expected keep flags to disable steps, got %+v", cfg.Reduce)
				}
			},
		},
		{
			name:  "quiet with log file",
			flags: Flags{Quiet: true, LogFile: "run.log"},
			verify: func(t *testing.T, cfg *Config) {
				opts := cfg.LoggerOptions()
				if opts.Console {
					t.Error("expected console logging off")
				}
				if opts.File.Path != "run.log" || opts.File.MaxSizeMB != 50 {
					t.Errorf("expected rotating file run.log, got %+v", opts.File)
				}
			},
		},
		{
			name:  "unset flags",
			flags: Flags{},
			verify: func(t *testing.T, cfg *Config) {
				if *cfg != *Default() {
					t.Errorf("expected defaults, got %+v", cfg)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			applyFlags(cfg, &tt.flags)
			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	t.Chdir(t.TempDir())
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	yamlContent := `
reduce:
  texture_max_side: 512
  mesh_target_ratio: 0.9
image:
  jpeg_quality: 80
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if err := os.WriteFile(".env", []byte(EnvTargetRatio+"=0.4\n"), 0644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Setenv(EnvTargetRatio, "")
	os.Unsetenv(EnvTargetRatio)

	cfg, err := Load(&Flags{Config: configPath, MaxSide: 2048})
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Max side from flag (2048), not file (512)
	if cfg.Reduce.TextureMaxSide != 2048 {
		t.Errorf("expected max side 2048 from flag, got %d", cfg.Reduce.TextureMaxSide)
	}
	// Ratio from .env (0.4), not file (0.9)
	if cfg.Reduce.MeshTargetRatio != 0.4 {
		t.Errorf("expected ratio 0.4 from .env, got %f", cfg.Reduce.MeshTargetRatio)
	}
	// JPEG quality from file since nothing overrides it
	if cfg.Image.JPEGQuality != 80 {
		t.Errorf("expected jpeg quality 80 from file, got %d", cfg.Image.JPEGQuality)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(EnvTargetRatio, "1.5")

	if _, err := Load(nil); err == nil {
		t.Error("expected out-of-range ratio to be rejected")
	}
}

func TestSaveTo(t *testing.T) {
	for _, name := range []string{"out.yaml", "out.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := Default()
			cfg.Reduce.TextureMaxSide = 333
			cfg.Image.Filter = "nearest"
			if err := cfg.SaveTo(path); err != nil {
				t.Fatalf("SaveTo: %v", err)
			}

			loaded := Default()
			if err := loadFromFile(loaded, path); err != nil {
				t.Fatalf("reload: %v", err)
			}
			if *loaded != *cfg {
				t.Errorf("round trip mismatch: got %+v, want %+v", loaded, cfg)
			}
		})
	}
}
