package render

import (
	"context"
	"image"

	"thumbnailer/internal/mediatypes"
)

// Result is the outcome of one render. Exactly one of Image and Err is set.
type Result struct {
	Image image.Image
	Err   error
}

func failed(err error) Result {
	return Result{Err: err}
}

// Renderer draws a preview of the file at path that fits in a bound×bound
// box.
type Renderer interface {
	Render(ctx context.Context, path string, m mediatypes.MIME, bound int) Result
}

// Provider is a generic thumbnail source consulted before external tools.
type Provider interface {
	// Supports reports whether the provider can handle mime.
	Supports(mime string) bool
	// Thumbnail renders path to fit within bound×bound.
	Thumbnail(ctx context.Context, path string, bound int) (image.Image, error)
}

// Dispatcher routes a file to the renderer for its kind.
type Dispatcher struct {
	Image    Renderer
	Text     Renderer
	PDF      Renderer
	Fallback Renderer
}

// NewDispatcher wires the built-in renderers. fallback handles every mime
// the others do not.
func NewDispatcher(fallback *Fallback) *Dispatcher {
	return &Dispatcher{
		Image:    NewImageRenderer(),
		Text:     NewTextRenderer(),
		PDF:      NewPDFRenderer(),
		Fallback: fallback,
	}
}

// Render renders path with the strategy selected by the mime's kind.
func (d *Dispatcher) Render(ctx context.Context, path string, m mediatypes.MIME, bound int) Result {
	return d.For(m.Kind()).Render(ctx, path, m, bound)
}

// For returns the renderer used for kind.
func (d *Dispatcher) For(kind mediatypes.Kind) Renderer {
	switch kind {
	case mediatypes.KindImage:
		return d.Image
	case mediatypes.KindText:
		return d.Text
	case mediatypes.KindPDF:
		return d.PDF
	default:
		return d.Fallback
	}
}

// Label names the renderer for a kind in metrics and logs.
func Label(kind mediatypes.Kind) string {
	switch kind {
	case mediatypes.KindImage, mediatypes.KindText, mediatypes.KindPDF:
		return string(kind)
	default:
		return "external"
	}
}
