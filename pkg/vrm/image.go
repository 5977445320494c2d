package vrm

import (
	"encoding/base64"
	"strings"

	"github.com/Faultbox/vrmslim/pkg/invariant"
)

// GetImageBytes returns the encoded bytes of image i, read from its
// bufferView or from a base64 data URI.
func (a *Asset) GetImageBytes(i int) ([]byte, error) {
	if err := invariant.CheckIndex("image", i, len(a.Doc.Images)); err != nil {
		return nil, err
	}
	img := a.Doc.Images[i]
	if img.BufferView != nil {
		return a.BufferViewData(*img.BufferView)
	}
	if strings.HasPrefix(img.URI, "data:") {
		return decodeDataURI(img.URI)
	}
	return nil, invariant.Errorf("image %d has no embedded data", i)
}

// GetImageMimeType returns the declared MIME type of image i, falling back to
// sniffing a data URI.
func (a *Asset) GetImageMimeType(i int) (string, error) {
	if err := invariant.CheckIndex("image", i, len(a.Doc.Images)); err != nil {
		return "", err
	}
	img := a.Doc.Images[i]
	if img.MimeType != "" {
		return img.MimeType, nil
	}
	if rest, ok := strings.CutPrefix(img.URI, "data:"); ok {
		if semi := strings.IndexAny(rest, ";,"); semi > 0 {
			return rest[:semi], nil
		}
	}
	return "", nil
}

// GetImageAsDataURL returns image i as a base64 data URL. The MIME tag is
// always image/png whatever the source format.
func (a *Asset) GetImageAsDataURL(i int) (string, error) {
	key := dataURLKey{image: i, version: a.version}
	if url, ok := a.dataURLs.Get(key); ok {
		return url, nil
	}
	data, err := a.GetImageBytes(i)
	if err != nil {
		return "", err
	}
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
	a.dataURLs.Add(key, url)
	return url, nil
}

// SetImageData replaces the encoded bytes of image i. An image stored as a
// URI is moved into a new bufferView.
func (a *Asset) SetImageData(i int, data []byte, mimeType string) error {
	if err := invariant.CheckIndex("image", i, len(a.Doc.Images)); err != nil {
		return err
	}
	img := a.Doc.Images[i]
	if img.BufferView != nil && a.imageOwnsView(i) {
		if err := a.SetBufferViewData(*img.BufferView, data); err != nil {
			return err
		}
	} else {
		view, err := a.AddBufferView(data, 0)
		if err != nil {
			return err
		}
		img.BufferView = &view
		img.URI = ""
	}
	if mimeType != "" {
		img.MimeType = mimeType
	}
	return nil
}

func (a *Asset) imageOwnsView(i int) bool {
	view := *a.Doc.Images[i].BufferView
	for j, img := range a.Doc.Images {
		if j != i && img.BufferView != nil && *img.BufferView == view {
			return false
		}
	}
	for _, acc := range a.Doc.Accessors {
		if acc.BufferView != nil && *acc.BufferView == view {
			return false
		}
	}
	return true
}
