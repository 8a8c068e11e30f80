package render

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"thumbnailer/internal/mediatypes"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

func testFace(t *testing.T) font.Face {
	t.Helper()

	f, err := loadTextFont()
	if err != nil {
		t.Fatalf("failed to load font: %v", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: textFontPixels, DPI: 72})
	if err != nil {
		t.Fatalf("failed to create face: %v", err)
	}
	t.Cleanup(func() { face.Close() })
	return face
}

func TestPageSize(t *testing.T) {
	tests := []struct {
		bound        int
		wantW, wantH int
	}{
		{64, 45, 64},
		{128, 90, 128},
		{256, 181, 256},
	}

	for _, tt := range tests {
		w, h := PageSize(tt.bound)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("PageSize(%d) = (%d, %d), want (%d, %d)", tt.bound, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestTextRendererSmallFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abc.txt")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	res := NewTextRenderer().Render(context.Background(), path, mediatypes.MIME{Name: mediatypes.TextPlain}, 64)
	if res.Err != nil {
		t.Fatalf("Render() error = %v", res.Err)
	}

	b := res.Image.Bounds()
	if b.Dx() != 45 || b.Dy() != 64 {
		t.Fatalf("Render() size = %dx%d, want 45x64", b.Dx(), b.Dy())
	}

	// Bottom-right corner stays white; some pixel near the top left is ink.
	if r, g, bl, _ := res.Image.At(44, 63).RGBA(); r != 0xffff || g != 0xffff || bl != 0xffff {
		t.Errorf("corner pixel = (%x, %x, %x), want white", r, g, bl)
	}
	if !hasInk(res.Image, image.Rect(0, 0, 30, 16)) {
		t.Error("expected text to be drawn near the top left")
	}
}

func hasInk(img image.Image, area image.Rectangle) bool {
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			if r, _, _, _ := img.At(x, y).RGBA(); r < 0x8000 {
				return true
			}
		}
	}
	return false
}

func TestTextRendererMissingFile(t *testing.T) {
	res := NewTextRenderer().Render(context.Background(), filepath.Join(t.TempDir(), "gone.txt"), mediatypes.MIME{Name: mediatypes.TextPlain}, 64)

	var textErr *TextError
	if !errors.As(res.Err, &textErr) {
		t.Fatalf("error = %v (%T), want *TextError", res.Err, res.Err)
	}
}

func TestWrapText(t *testing.T) {
	face := testFace(t)
	const width = 45

	t.Run("short line kept", func(t *testing.T) {
		lines := wrapText(face, "abc", width)
		if len(lines) != 1 || lines[0] != "abc" {
			t.Errorf("wrapText = %q, want [abc]", lines)
		}
	})

	t.Run("newlines split paragraphs", func(t *testing.T) {
		lines := wrapText(face, "a\r\n\nb", width)
		if len(lines) != 3 || lines[0] != "a" || lines[1] != "" || lines[2] != "b" {
			t.Errorf("wrapText = %q, want [a  b]", lines)
		}
	})

	t.Run("every line fits", func(t *testing.T) {
		text := "the quick brown fox jumps over the lazy dog " + strings.Repeat("W", 40)
		lines := wrapText(face, text, width)
		if len(lines) < 3 {
			t.Fatalf("expected several lines, got %q", lines)
		}
		for _, line := range lines {
			if font.MeasureString(face, line) > fixed.I(width) {
				t.Errorf("line %q is wider than %d px", line, width)
			}
		}
		if joined := strings.Join(lines, ""); !strings.Contains(joined, strings.Repeat("W", 40)) {
			t.Error("long word should be broken across lines without losing runes")
		}
	})
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name      string
		in        []byte
		truncated bool
		want      string
	}{
		{"utf8", []byte("héllo"), false, "héllo"},
		{"utf8 bom", []byte("\xef\xbb\xbfhi"), false, "hi"},
		{"latin1", []byte("caf\xe9"), false, "café"},
		{"truncated utf8", []byte("ok \xe2\x82"), true, "ok "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decodeText(tt.in, tt.truncated); got != tt.want {
				t.Errorf("decodeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
