package upload

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"stylegen/internal/domain"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func encodeGIF(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.Black, color.White})
	if err := gif.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode gif: %v", err)
	}
	return buf.Bytes()
}

// withPNGDimensions rewrites the IHDR chunk so the header claims w x h
// without the pixel data to match.
func withPNGDimensions(t *testing.T, data []byte, w, h uint32) []byte {
	t.Helper()
	out := append([]byte(nil), data...)
	if len(out) < 33 || string(out[12:16]) != "IHDR" {
		t.Fatal("unexpected png layout")
	}
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func encodeGrayPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestIngestNormalizesToSquarePNG(t *testing.T) {
	ing := NewIngestor(0)
	ref, err := ing.Ingest("photo.jpg", bytes.NewReader(encodeJPEG(t, 40, 20)))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if ref.MIME != "image/png" || ref.SourceMIME != "image/jpeg" {
		t.Fatalf("mime = %q source = %q", ref.MIME, ref.SourceMIME)
	}
	if ref.Width != 40 || ref.Height != 20 {
		t.Fatalf("dimensions = %dx%d", ref.Width, ref.Height)
	}
	out, err := png.Decode(bytes.NewReader(ref.Data))
	if err != nil {
		t.Fatalf("normalized data is not png: %v", err)
	}
	if b := out.Bounds(); b.Dx() != 40 || b.Dy() != 40 {
		t.Fatalf("normalized bounds = %v, want 40x40", b)
	}
}

func TestIngestCapsCanvasSize(t *testing.T) {
	ing := NewIngestor(0)
	ref, err := ing.Ingest("wide.png", bytes.NewReader(encodePNG(t, MaxEditDimension*2, 10)))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(ref.Data))
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.Width != MaxEditDimension || cfg.Height != MaxEditDimension {
		t.Fatalf("canvas = %dx%d", cfg.Width, cfg.Height)
	}
}

func TestIngestRejections(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     func(t *testing.T) []byte
		max      int64
		want     error
		status   int
	}{
		{name: "gif", filename: "a.gif", data: encodeGIF, want: domain.ErrUnsupportedMedia, status: http.StatusBadRequest},
		{name: "text", filename: "a.png", data: func(*testing.T) []byte { return []byte("hello there") }, want: domain.ErrUnsupportedMedia, status: http.StatusBadRequest},
		{name: "extension mismatch", filename: "a.webp", data: func(t *testing.T) []byte { return encodePNG(t, 2, 2) }, want: domain.ErrUnsupportedMedia, status: http.StatusBadRequest},
		{name: "too large", filename: "a.png", data: func(t *testing.T) []byte { return encodePNG(t, 64, 64) }, max: 16, want: domain.ErrFileTooLarge, status: http.StatusRequestEntityTooLarge},
		{name: "empty", filename: "a.png", data: func(*testing.T) []byte { return nil }, want: domain.ErrReferenceRequired, status: http.StatusBadRequest},
		{name: "header claims huge canvas", filename: "a.png", data: func(t *testing.T) []byte { return withPNGDimensions(t, encodeGrayPNG(t, 8, 8), 16000, 16000) }, want: domain.ErrUnsupportedMedia, status: http.StatusRequestEntityTooLarge},
		{name: "side past limit", filename: "a.png", data: func(t *testing.T) []byte { return encodeGrayPNG(t, MaxSourceDimension+1, 1) }, want: domain.ErrUnsupportedMedia, status: http.StatusRequestEntityTooLarge},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewIngestor(tc.max).Ingest(tc.filename, bytes.NewReader(tc.data(t)))
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if domain.StatusOf(err) != tc.status {
				t.Fatalf("status = %d, want %d", domain.StatusOf(err), tc.status)
			}
		})
	}
}

func multipartRequest(t *testing.T, files map[string][][]byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for field, contents := range files {
		for _, data := range contents {
			fw, err := mw.CreateFormFile(field, "ref.png")
			if err != nil {
				t.Fatalf("create form file: %v", err)
			}
			_, _ = fw.Write(data)
		}
	}
	_ = mw.WriteField("prompt", "ignored")
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/generate-image5", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatalf("parse multipart: %v", err)
	}
	t.Cleanup(func() { _ = req.MultipartForm.RemoveAll() })
	return req
}

func TestFromRequest(t *testing.T) {
	ing := NewIngestor(0)
	pngData := encodePNG(t, 4, 4)

	ref, err := ing.FromRequest(multipartRequest(t, map[string][][]byte{"referenceImage": {pngData}}), "referenceImage")
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	if ref.Filename != "ref.png" || len(ref.Data) == 0 {
		t.Fatalf("ref = %#v", ref)
	}

	_, err = ing.FromRequest(multipartRequest(t, nil), "referenceImage")
	if !errors.Is(err, domain.ErrReferenceRequired) {
		t.Fatalf("missing file err = %v", err)
	}
	var de *domain.Error
	if !errors.As(err, &de) || de.Message != "Reference image is required." {
		t.Fatalf("missing file message = %v", err)
	}

	_, err = ing.FromRequest(multipartRequest(t, map[string][][]byte{"referenceImage": {pngData, pngData}}), "referenceImage")
	if err == nil || !strings.Contains(err.Error(), "Only one") {
		t.Fatalf("two files err = %v", err)
	}

	_, err = ing.FromRequest(multipartRequest(t, map[string][][]byte{"referenceImage": {pngData}, "other": {pngData}}), "referenceImage")
	if !errors.Is(err, domain.ErrUnsupportedMedia) {
		t.Fatalf("unexpected field err = %v", err)
	}
}

func TestPlaceholderMask(t *testing.T) {
	data, err := PlaceholderMask()
	if err != nil {
		t.Fatalf("PlaceholderMask returned error: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("mask is not png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 1 || b.Dy() != 1 {
		t.Fatalf("mask bounds = %v", b)
	}
	r, g, b, a := img.At(0, 0).RGBA()
	if r != 0xffff || g != 0xffff || b != 0xffff || a != 0xffff {
		t.Fatalf("mask pixel = %d,%d,%d,%d", r, g, b, a)
	}
}
