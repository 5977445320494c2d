package reduce

import (
	"context"

	"go.uber.org/zap"

	"github.com/Faultbox/vrmslim/pkg/vrm"
)

// removeThumbnail drops the VRM meta thumbnail reference. The texture and
// image go away during garbage collection unless a material uses them.
func (p *Pipeline) removeThumbnail(_ context.Context, a *vrm.Asset, _ *Report) error {
	v := a.Doc.VRM
	if v == nil || v.Meta == nil || v.Meta.Texture == nil {
		return nil
	}
	v.Meta.Texture = nil
	a.Touch()
	return nil
}

// resizeTextures scales every used image down to the configured side
// length. Images the resizer cannot decode are left untouched.
func (p *Pipeline) resizeTextures(ctx context.Context, a *vrm.Asset, r *Report) error {
	maxSide := p.opts.TextureMaxSide
	for _, i := range vrm.BuildUsage(a.Doc).DirectlyUsedImages() {
		data, err := a.GetImageBytes(i)
		if err != nil {
			return err
		}
		mime, err := a.GetImageMimeType(i)
		if err != nil {
			return err
		}
		res, err := p.resizer.ResizeImage(ctx, data, mime, maxSide)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.warn(r, "image not resized", zap.Int("image", i), zap.String("mime", mime), zap.Error(err))
			continue
		}
		if !res.Resized {
			continue
		}
		if err := a.SetImageData(i, res.Data, res.MimeType); err != nil {
			return err
		}
		r.ResizedImages++
		p.log.Debug("image resized",
			zap.Int("image", i),
			zap.Int("width", res.Width),
			zap.Int("height", res.Height),
			zap.Int("bytes_before", len(data)),
			zap.Int("bytes_after", len(res.Data)),
		)
	}
	return nil
}
