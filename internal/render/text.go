package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"thumbnailer/internal/filesystem"
	"thumbnailer/internal/logging"
	"thumbnailer/internal/mediatypes"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

const (
	// textPreviewBytes is how much of a text file is drawn.
	textPreviewBytes = 2000
	// textAspect is the page width relative to its height.
	textAspect = 0.70707070
	// textFontPixels is the glyph size on the page.
	textFontPixels = 12
)

var (
	textFontOnce sync.Once
	textFont     *opentype.Font
	textFontErr  error
)

func loadTextFont() (*opentype.Font, error) {
	textFontOnce.Do(func() {
		textFont, textFontErr = opentype.Parse(goregular.TTF)
	})
	return textFont, textFontErr
}

// TextRenderer draws the start of a plain text file onto a white page.
type TextRenderer struct{}

// NewTextRenderer returns a TextRenderer.
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{}
}

// PageSize returns the canvas dimensions used for a bound.
func PageSize(bound int) (int, int) {
	return int(textAspect * float64(bound)), bound
}

// Render reads up to 2000 bytes and draws them black on white, wrapping at
// word boundaries and inside words that do not fit on a line.
func (r *TextRenderer) Render(_ context.Context, path string, _ mediatypes.MIME, bound int) Result {
	file, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return failed(&TextError{Path: path, Err: err})
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close text file %s: %v", path, err)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(file, textPreviewBytes))
	if err != nil {
		return failed(&TextError{Path: path, Err: err})
	}

	f, err := loadTextFont()
	if err != nil {
		return failed(&TextError{Path: path, Err: fmt.Errorf("failed to load font: %w", err)})
	}

	// Faces keep per-glyph scratch buffers, so each render gets its own.
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    textFontPixels,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return failed(&TextError{Path: path, Err: fmt.Errorf("failed to create font face: %w", err)})
	}
	defer face.Close()

	width, height := PageSize(bound)
	text := decodeText(data, len(data) == textPreviewBytes)
	return Result{Image: drawPage(face, text, width, height)}
}

// decodeText converts the bytes to UTF-8, guessing the charset from a BOM
// or the content itself. truncated marks data cut short by the read limit.
func decodeText(data []byte, truncated bool) string {
	if truncated {
		data = trimPartialRune(data)
	}

	enc, name, _ := charset.DetermineEncoding(data, "text/plain")
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		logging.Debug("Failed to decode text as %s: %v", name, err)
		return string(data)
	}
	return strings.TrimPrefix(string(out), "\ufeff")
}

// trimPartialRune drops a UTF-8 sequence cut off by the read limit so a
// truncated but valid file is not mistaken for a legacy charset.
func trimPartialRune(data []byte) []byte {
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if utf8.RuneStart(data[i]) {
			if !utf8.FullRune(data[i:]) {
				return data[:i]
			}
			break
		}
	}
	return data
}

func drawPage(face font.Face, text string, width, height int) *image.RGBA {
	page := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(page, page.Bounds(), image.White, image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  page,
		Src:  image.NewUniform(color.Black),
		Face: face,
	}

	metrics := face.Metrics()
	y := metrics.Ascent
	for _, line := range wrapText(face, text, width) {
		if (y - metrics.Ascent).Ceil() >= height {
			break
		}
		d.Dot = fixed.Point26_6{X: 0, Y: y}
		d.DrawString(line)
		y += metrics.Height
	}

	return page
}

// wrapText splits text into lines no wider than width pixels. Words move to
// the next line when they do not fit; a word wider than a whole line is
// broken between runes.
func wrapText(face font.Face, text string, width int) []string {
	limit := fixed.I(width)
	fits := func(s string) bool {
		return font.MeasureString(face, s) <= limit
	}

	var lines []string
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, para := range strings.Split(text, "\n") {
		para = strings.ReplaceAll(para, "\t", "    ")

		line := ""
		for _, word := range strings.Fields(para) {
			candidate := word
			if line != "" {
				candidate = line + " " + word
			}
			if fits(candidate) {
				line = candidate
				continue
			}
			if line != "" {
				lines = append(lines, line)
			}
			for !fits(word) {
				n := fittingPrefix(word, fits)
				lines = append(lines, word[:n])
				word = word[n:]
			}
			line = word
		}
		lines = append(lines, line)
	}

	return lines
}

// fittingPrefix returns the byte length of the longest prefix of s that
// fits, and never less than one rune.
func fittingPrefix(s string, fits func(string) bool) int {
	end := 0
	for i := 0; i < len(s); {
		_, size := utf8.DecodeRuneInString(s[i:])
		if !fits(s[:i+size]) {
			break
		}
		i += size
		end = i
	}
	if end == 0 {
		_, end = utf8.DecodeRuneInString(s)
	}
	return end
}
