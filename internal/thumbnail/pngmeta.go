package thumbnail

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"io"
	"os"
)

// Text chunk keys carried by every cache entry.
const (
	KeyURL   = "Thumb::URL"
	KeyMTime = "Thumb::MTime"
)

const pngSignature = "\x89PNG\r\n\x1a\n"

// ihdrEnd is the offset just past the IHDR chunk: signature, then a
// 13-byte IHDR payload framed by length, type and CRC.
const ihdrEnd = 8 + 4 + 4 + 13 + 4

type textEntry struct {
	key, value string
}

var errNotPNG = errors.New("not a png file")

// encodePNG encodes img and inserts one tEXt chunk per entry right after
// IHDR.
func encodePNG(img image.Image, entries []textEntry) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	data := buf.Bytes()
	if len(data) < ihdrEnd || string(data[:8]) != pngSignature {
		return nil, errNotPNG
	}

	var out bytes.Buffer
	out.Grow(len(data) + 64*len(entries))
	out.Write(data[:ihdrEnd])
	for _, e := range entries {
		writeChunk(&out, "tEXt", []byte(e.key+"\x00"+e.value))
	}
	out.Write(data[ihdrEnd:])
	return out.Bytes(), nil
}

func writeChunk(w *bytes.Buffer, typ string, payload []byte) {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(payload)))
	copy(hdr[4:], typ)
	w.Write(hdr[:])
	w.Write(payload)

	crc := crc32.NewIEEE()
	crc.Write(hdr[4:])
	crc.Write(payload)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	w.Write(sum[:])
}

// readPNGText returns the textual metadata of the PNG at path. tEXt, zTXt
// and iTXt chunks are understood; a later chunk overrides an earlier one
// with the same key.
func readPNGText(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parsePNGText(data)
}

func parsePNGText(data []byte) (map[string]string, error) {
	if len(data) < 8 || string(data[:8]) != pngSignature {
		return nil, errNotPNG
	}

	text := make(map[string]string)
	for off := 8; ; {
		if off+8 > len(data) {
			return nil, io.ErrUnexpectedEOF
		}
		n := int(binary.BigEndian.Uint32(data[off : off+4]))
		typ := string(data[off+4 : off+8])
		start := off + 8
		end := start + n
		if n < 0 || end+4 > len(data) {
			return nil, io.ErrUnexpectedEOF
		}
		payload := data[start:end]
		if crc32.ChecksumIEEE(data[off+4:end]) != binary.BigEndian.Uint32(data[end:end+4]) {
			return nil, fmt.Errorf("%s chunk: checksum mismatch", typ)
		}

		switch typ {
		case "tEXt":
			if k, v, ok := bytes.Cut(payload, []byte{0}); ok {
				text[string(k)] = latin1(v)
			}
		case "zTXt":
			if k, v, ok := bytes.Cut(payload, []byte{0}); ok && len(v) > 0 {
				if s, err := inflate(v[1:]); err == nil {
					text[string(k)] = latin1(s)
				}
			}
		case "iTXt":
			if k, v, ok := parseITXt(payload); ok {
				text[k] = v
			}
		case "IEND":
			return text, nil
		}
		off = end + 4
	}
}

// parseITXt decodes keyword, compression flag, method, language tag and
// translated keyword, then the UTF-8 text.
func parseITXt(payload []byte) (string, string, bool) {
	key, rest, ok := bytes.Cut(payload, []byte{0})
	if !ok || len(rest) < 2 {
		return "", "", false
	}
	compressed := rest[0] == 1
	rest = rest[2:]
	if _, rest, ok = bytes.Cut(rest, []byte{0}); !ok {
		return "", "", false
	}
	if _, rest, ok = bytes.Cut(rest, []byte{0}); !ok {
		return "", "", false
	}
	if compressed {
		s, err := inflate(rest)
		if err != nil {
			return "", "", false
		}
		rest = s
	}
	return string(key), string(rest), true
}

func inflate(b []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func latin1(b []byte) string {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}
