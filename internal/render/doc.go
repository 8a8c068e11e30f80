// Package render turns a source file into a preview image.
//
// A [Dispatcher] picks one of four strategies from the file's
// [mediatypes.Kind]:
//
//   - [ImageRenderer]: Go decoders through disintegration/imaging, with
//     libvips for SVG, formats Go cannot read and very large images
//   - [TextRenderer]: the first 2000 bytes drawn onto a white page in Go
//     Regular at 12px
//   - [PDFRenderer]: rsc.io/pdf checks the document, libvips draws page 0
//   - [Fallback]: a generic [Provider] (ffmpeg frames for video), then an
//     external tool from the [ToolRegistry]
//
// Every strategy returns a [Result]. Failures carry a typed error
// ([DecodeError], [TextError], [PDFError], [ToolError]) whose message is what
// callers show to users.
//
// # External tools
//
// A tool is an executable next to a JSON manifest under <root>/thumbnail:
//
//	/usr/lib/thumbnailer/tools/thumbnail/raw-preview
//	/usr/lib/thumbnailer/tools/thumbnail/raw-preview.json   {"Keys": ["image/x-canon-cr2", "image/*"]}
//
// It is run as `raw-preview <size> <path>` and must print a base64 PNG on
// stdout. The first manifest to claim a key wins.
//
// # libvips
//
// Call [InitVips] once at startup and [ShutdownVips] on exit. govips cannot
// restart libvips in the same process.
package render
