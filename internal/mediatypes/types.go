package mediatypes

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind selects the renderer used for a file. The set is closed.
type Kind string

const (
	// KindImage is any image/* mime.
	KindImage Kind = "image"
	// KindText is exactly text/plain.
	KindText Kind = "text"
	// KindPDF is application/pdf or any mime that inherits from it.
	KindPDF Kind = "pdf"
	// KindOther is handed to the generic provider and external tools.
	KindOther Kind = "other"
)

// Well known mime names.
const (
	OctetStream = "application/octet-stream"
	TextPlain   = "text/plain"
	PDF         = "application/pdf"
	SVG         = "image/svg+xml"
	RealMedia   = "application/vnd.rn-realmedia"
	ASF         = "application/vnd.ms-asf"
	MXF         = "application/mxf"
)

// MIME is a detected mime name together with its parent chain, nearest
// parent first. The root application/octet-stream is not listed.
type MIME struct {
	Name    string
	Parents []string
}

// Is reports whether the mime is name or inherits from it.
func (m MIME) Is(name string) bool {
	if m.Name == name {
		return true
	}
	for _, p := range m.Parents {
		if p == name {
			return true
		}
	}
	return false
}

// String returns the mime name.
func (m MIME) String() string {
	return m.Name
}

// Kind classifies the mime.
func (m MIME) Kind() Kind {
	return Classify(m.Name, m.Parents)
}

// Classify maps a mime name and its parents to a renderer kind.
func Classify(name string, parents []string) Kind {
	switch {
	case strings.HasPrefix(name, "image/"):
		return KindImage
	case name == TextPlain:
		return KindText
	case name == PDF:
		return KindPDF
	}
	for _, p := range parents {
		if p == PDF {
			return KindPDF
		}
	}
	return KindOther
}

// Detect sniffs the mime of the file at path from its content. When the
// content is not recognized the extension decides, and failing that the
// result is application/octet-stream.
func Detect(path string) (MIME, error) {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return MIME{}, err
	}

	name := Normalize(m.String())
	if name == OctetStream {
		if byExt, ok := MimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
			return Lookup(byExt), nil
		}
	}

	return MIME{Name: name, Parents: parentsOf(m)}, nil
}

// Lookup returns the parent chain for a mime name without reading a file.
// Unknown names get no parents.
func Lookup(name string) MIME {
	name = Normalize(name)
	m := mimetype.Lookup(name)
	if m == nil {
		return MIME{Name: name}
	}
	return MIME{Name: name, Parents: parentsOf(m)}
}

// Normalize lower-cases a mime and drops parameters such as charset.
func Normalize(name string) string {
	name, _, _ = strings.Cut(name, ";")
	return strings.ToLower(strings.TrimSpace(name))
}

func parentsOf(m *mimetype.MIME) []string {
	var parents []string
	for p := m.Parent(); p != nil; p = p.Parent() {
		name := Normalize(p.String())
		if name == OctetStream {
			break
		}
		parents = append(parents, name)
	}
	return parents
}

// IsVideo reports whether name is a video mime, either by major type or by
// membership in extra.
func IsVideo(name string, extra []string) bool {
	if strings.HasPrefix(name, "video/") {
		return true
	}
	for _, e := range extra {
		if e == name {
			return true
		}
	}
	return false
}

// IsImage reports whether name has the image major type.
func IsImage(name string) bool {
	return strings.HasPrefix(name, "image/")
}

// IsDocument reports whether the mime belongs to the document preview
// family gated by the document toggle.
func IsDocument(m MIME) bool {
	return m.Is(PDF) || m.Name == RealMedia || m.Name == MXF
}

// GeneralKey returns the "major/*" wildcard for a mime, e.g. "image/*".
func GeneralKey(name string) string {
	major, _, _ := strings.Cut(name, "/")
	return major + "/*"
}

// MimeTypes maps file extensions to mime names for content the sniffer
// cannot identify.
var MimeTypes = map[string]string{
	// Images
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".svg":  SVG,
	".ico":  "image/x-icon",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".dng":  "image/x-adobe-dng",
	".ief":  "image/ief",

	// Videos
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
	".ts":   "video/mp2t",

	// Containers gated by the document toggle
	".rm":   RealMedia,
	".rmvb": RealMedia,
	".asf":  ASF,
	".mxf":  MXF,

	".txt": TextPlain,
	".pdf": PDF,
}
