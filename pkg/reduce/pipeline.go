// Package reduce shrinks a VRM avatar: it prunes bones, morph targets and
// textures, decimates meshes and finally garbage-collects and repacks the
// binary buffer.
package reduce

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Faultbox/vrmslim/pkg/decimate"
	"github.com/Faultbox/vrmslim/pkg/imageproc"
	"github.com/Faultbox/vrmslim/pkg/vrm"
)

// Options select and tune the reduction steps.
type Options struct {
	// TextureMaxSide limits the width and height of every image. Zero skips resizing.
	TextureMaxSide int
	// MeshTargetRatio in (0, 1]. 1 skips decimation.
	MeshTargetRatio float64
	// BoundaryWeight of open edge constraint planes during decimation.
	BoundaryWeight float64

	PruneBones       bool
	RemoveThumbnail  bool
	StripBlendShapes bool
}

// DefaultOptions returns the settings used by the command line tool.
func DefaultOptions() Options {
	return Options{
		TextureMaxSide:   1024,
		MeshTargetRatio:  0.5,
		BoundaryWeight:   decimate.DefaultBoundaryWeight,
		PruneBones:       true,
		RemoveThumbnail:  true,
		StripBlendShapes: true,
	}
}

// ImageResizer scales encoded images down to a maximum side length.
type ImageResizer interface {
	ResizeImage(ctx context.Context, data []byte, mimeType string, maxSide int) (imageproc.Result, error)
}

// Report describes what a reduction changed.
type Report struct {
	Before vrm.Stats
	After  vrm.Stats

	RemovedNodes        int
	RemovedBlendShapes  int
	RemovedMorphTargets int
	ResizedImages       int
	Collapses           int

	Steps    []string
	Warnings []string
	Duration time.Duration
}

// Pipeline runs the reduction steps in a fixed order. It is not reentrant.
type Pipeline struct {
	opts    Options
	resizer ImageResizer
	log     *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for progress and warnings.
func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// WithResizer replaces the image resizer.
func WithResizer(r ImageResizer) Option {
	return func(p *Pipeline) {
		p.resizer = r
	}
}

// New creates a Pipeline. Without WithResizer images are resized with a
// Lanczos filter.
func New(opts Options, options ...Option) *Pipeline {
	p := &Pipeline{opts: opts, log: zap.NewNop()}
	for _, o := range options {
		o(p)
	}
	if p.resizer == nil {
		p.resizer = &imageproc.Resizer{Filter: imageproc.DefaultFilter, JPEGQuality: imageproc.DefaultJPEGQuality}
	}
	return p
}

type step struct {
	name    string
	enabled bool
	run     func(ctx context.Context, a *vrm.Asset, r *Report) error
}

func (p *Pipeline) steps() []step {
	return []step{
		{"prune bones", p.opts.PruneBones, p.pruneBones},
		{"remove thumbnail", p.opts.RemoveThumbnail, p.removeThumbnail},
		{"resize textures", p.opts.TextureMaxSide > 0, p.resizeTextures},
		{"strip blend shapes", p.opts.StripBlendShapes, p.stripBlendShapes},
		{"prune morph targets", true, p.pruneMorphTargets},
		{"decimate meshes", p.opts.MeshTargetRatio < 1, p.decimateMeshes},
		{"collect garbage", true, p.collectGarbage},
		{"repack buffer", true, repackBuffer},
	}
}

// Reduce mutates a in place. A failed or cancelled run can leave the asset
// half reduced; callers must discard it.
func (p *Pipeline) Reduce(ctx context.Context, a *vrm.Asset) (*Report, error) {
	if !(p.opts.MeshTargetRatio > 0 && p.opts.MeshTargetRatio <= 1) {
		return nil, fmt.Errorf("mesh target ratio %v outside (0, 1]", p.opts.MeshTargetRatio)
	}
	start := time.Now()
	r := &Report{Before: a.Stats()}

	for _, s := range p.steps() {
		if !s.enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return r, err
		}
		p.log.Debug("reduce step", zap.String("step", s.name))
		if err := s.run(ctx, a, r); err != nil {
			return r, fmt.Errorf("%s: %w", s.name, err)
		}
		r.Steps = append(r.Steps, s.name)
	}

	r.After = a.Stats()
	r.Duration = time.Since(start)
	p.log.Info("reduction finished",
		zap.Int("triangles_before", r.Before.Triangles),
		zap.Int("triangles_after", r.After.Triangles),
		zap.Int("bytes_before", r.Before.BufferBytes),
		zap.Int("bytes_after", r.After.BufferBytes),
		zap.Int("warnings", len(r.Warnings)),
		zap.Duration("took", r.Duration),
	)
	return r, nil
}

// Reduce runs a default pipeline over a and returns the same asset.
func Reduce(ctx context.Context, a *vrm.Asset, opts Options) (*vrm.Asset, error) {
	if _, err := New(opts).Reduce(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// warn records a recoverable data problem; the step that found it skips
// the affected element.
func (p *Pipeline) warn(r *Report, msg string, fields ...zap.Field) {
	p.log.Warn(msg, fields...)

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	parts := make([]string, 0, len(enc.Fields))
	for _, k := range slices.Sorted(maps.Keys(enc.Fields)) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, enc.Fields[k]))
	}
	if len(parts) > 0 {
		msg += " (" + strings.Join(parts, " ") + ")"
	}
	r.Warnings = append(r.Warnings, msg)
}

// collectGarbage removes everything the usage graph cannot reach. Textures
// and images named by unmodeled extensions are all kept.
func (p *Pipeline) collectGarbage(_ context.Context, a *vrm.Asset, r *Report) error {
	if refs := vrm.OpaqueTextureRefs(a.Doc); len(refs) > 0 {
		p.warn(r, "extensions reference textures, keeping every texture and image", zap.Strings("extensions", refs))
	}
	return a.CollectGarbage()
}

func repackBuffer(_ context.Context, a *vrm.Asset, _ *Report) error {
	return a.RepackBuffer()
}
