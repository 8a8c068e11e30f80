package render

import (
	"context"
	"errors"
	"fmt"

	"thumbnailer/internal/filesystem"
	"thumbnailer/internal/logging"
	"thumbnailer/internal/mediatypes"

	"rsc.io/pdf"
)

// PDFRenderer rasterizes the first page of a PDF document. rsc.io/pdf
// validates the document structure; libvips draws the page.
type PDFRenderer struct{}

// NewPDFRenderer returns a PDFRenderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// Render checks the document, draws page 0 and scales it to fit the bound.
func (r *PDFRenderer) Render(_ context.Context, path string, _ mediatypes.MIME, bound int) Result {
	if err := checkPDF(path); err != nil {
		return failed(err)
	}

	img, bands, err := loadWithVips(vipsLoad{path: path, page: 0})
	if err != nil {
		var vipsErr *vipsDecodeError
		if errors.As(err, &vipsErr) {
			return failed(&PDFError{Path: path, Reason: ReasonRender, Err: err})
		}
		return failed(&PDFError{Path: path, Reason: ReasonInvalidFormat, Err: err})
	}
	if bands < 1 || bands > 4 {
		return failed(&PDFError{
			Path:   path,
			Reason: ReasonInvalidFormat,
			Err:    fmt.Errorf("unexpected band count %d", bands),
		})
	}

	return Result{Image: scaleToFit(img, bound)}
}

// checkPDF opens the document and confirms page 0 exists. Encrypted
// documents fail to open.
func checkPDF(path string) (err error) {
	file, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return &PDFError{Path: path, Reason: ReasonUnreadable, Err: err}
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			logging.Warn("failed to close pdf file %s: %v", path, cerr)
		}
	}()

	info, err := file.Stat()
	if err != nil {
		return &PDFError{Path: path, Reason: ReasonUnreadable, Err: err}
	}

	// rsc.io/pdf panics on some malformed cross reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = &PDFError{Path: path, Reason: ReasonUnreadable, Err: fmt.Errorf("malformed pdf: %v", r)}
		}
	}()

	doc, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return &PDFError{Path: path, Reason: ReasonUnreadable, Err: err}
	}

	if doc.NumPage() < 1 {
		return &PDFError{Path: path, Reason: ReasonNoPages}
	}

	// Pages are numbered from 1.
	if doc.Page(1).V.IsNull() {
		return &PDFError{Path: path, Reason: ReasonNoFirstPage}
	}

	return nil
}
