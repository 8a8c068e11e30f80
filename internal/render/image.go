package render

import (
	"context"
	"fmt"
	"image"

	"thumbnailer/internal/filesystem"
	"thumbnailer/internal/logging"
	"thumbnailer/internal/mediatypes"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxImagePixels is the largest image decoded in Go memory. Anything bigger
// goes through libvips, which shrinks while decoding. 20MP is ~80MB as RGBA.
const MaxImagePixels = 20_000_000

// ImageRenderer renders raster images and SVG.
type ImageRenderer struct {
	MaxPixels int
}

// NewImageRenderer returns an ImageRenderer with the default pixel ceiling.
func NewImageRenderer() *ImageRenderer {
	return &ImageRenderer{MaxPixels: MaxImagePixels}
}

// Render decodes the image and scales it down to fit the bound. Images that
// already fit are kept at their size; SVG is always scaled to the bound.
func (r *ImageRenderer) Render(_ context.Context, path string, m mediatypes.MIME, bound int) Result {
	svg := m.Name == mediatypes.SVG

	viaVips := svg
	if !viaVips {
		width, height, err := imageDimensions(path)
		switch {
		case err != nil:
			logging.Debug("Go decoders cannot read %s (%s): %v", path, m.Name, err)
			viaVips = true
		case width*height > r.MaxPixels:
			logging.Debug("Image %s is %dx%d, decoding through libvips", path, width, height)
			viaVips = IsVipsAvailable()
		}
	}

	var img image.Image
	var err error
	if viaVips {
		img, _, err = loadWithVips(vipsLoad{path: path, page: -1, bound: bound, grow: svg})
	} else {
		img, err = imaging.Open(path, imaging.AutoOrientation(true))
	}
	if err != nil {
		return failed(&DecodeError{Path: path, Err: err})
	}

	// Decoders may ignore the requested size.
	return Result{Image: shrinkToFit(img, bound)}
}

// imageDimensions reads the header only.
func imageDimensions(path string) (int, int, error) {
	file, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	config, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, fmt.Errorf("unsupported image format: %w", err)
	}
	return config.Width, config.Height, nil
}

// fitSize scales width×height to the largest size that fits bound×bound
// keeping the aspect ratio. Neither side drops below 1.
func fitSize(width, height, bound int) (int, int) {
	if width <= 0 || height <= 0 {
		return bound, bound
	}
	if width >= height {
		h := height * bound / width
		if h < 1 {
			h = 1
		}
		return bound, h
	}
	w := width * bound / height
	if w < 1 {
		w = 1
	}
	return w, bound
}

// shrinkToFit scales img down to fit the bound and leaves smaller images
// untouched.
func shrinkToFit(img image.Image, bound int) image.Image {
	b := img.Bounds()
	if b.Dx() <= bound && b.Dy() <= bound {
		return img
	}
	return imaging.Fit(img, bound, bound, imaging.Lanczos)
}

// scaleToFit scales img up or down so its larger side equals bound.
func scaleToFit(img image.Image, bound int) image.Image {
	b := img.Bounds()
	w, h := fitSize(b.Dx(), b.Dy(), bound)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}
