package render

import "fmt"

// PDF failure reasons carried by PDFError.
const (
	ReasonUnreadable    = "cannot read this pdf file"
	ReasonNoPages       = "this stream is invalid"
	ReasonNoFirstPage   = "cannot get page at index 0"
	ReasonRender        = "render error"
	ReasonInvalidFormat = "image format is invalid"
)

// DecodeError reports an image the decoders could not read.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// TextError reports a text file that could not be read.
type TextError struct {
	Path string
	Err  error
}

func (e *TextError) Error() string {
	return e.Err.Error()
}

func (e *TextError) Unwrap() error {
	return e.Err
}

// PDFError reports a PDF that could not be opened or rasterized. Reason is
// one of the Reason constants.
type PDFError struct {
	Path   string
	Reason string
	Err    error
}

func (e *PDFError) Error() string {
	if e.Reason == ReasonUnreadable {
		return e.Reason + ": " + e.Path
	}
	return e.Reason
}

func (e *PDFError) Unwrap() error {
	return e.Err
}

// ToolError reports a failure of the generic provider or an external tool.
// Tool is empty when no tool was found for the mime.
type ToolError struct {
	Mime    string
	Tool    string
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	return e.Message
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// WriteError reports a thumbnail that rendered but could not be saved.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return "can not save image to " + e.Path
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func noSupportError(mime string, cause error) *ToolError {
	return &ToolError{
		Mime:    mime,
		Message: fmt.Sprintf("no thumbnail support for mime %s", mime),
		Err:     cause,
	}
}
