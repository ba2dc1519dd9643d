package upload

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"stylegen/internal/domain"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultMaxBytes matches the provider's upload ceiling for edits.
	DefaultMaxBytes int64 = 4 << 20
	// MaxEditDimension is the side of the square canvas sent for edits.
	MaxEditDimension = 1024
	// MaxSourceDimension bounds each side of an upload before it is decoded,
	// since compressed size says little about decoded size.
	MaxSourceDimension = 4096
)

var allowedTypes = map[string][]string{
	"image/png":  {".png"},
	"image/jpeg": {".jpg", ".jpeg"},
	"image/webp": {".webp"},
}

// Ingestor validates reference image uploads and converts them into the
// square PNG the edit endpoint accepts.
type Ingestor struct {
	maxBytes int64
}

func NewIngestor(maxBytes int64) *Ingestor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Ingestor{maxBytes: maxBytes}
}

func (i *Ingestor) MaxBytes() int64 {
	return i.maxBytes
}

// FromRequest reads the single file under field from an already parsed
// multipart form. Files under any other field are rejected.
func (i *Ingestor) FromRequest(r *http.Request, field string) (*domain.ReferenceImage, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return nil, domain.NewValidation("Reference image is required.", domain.ErrReferenceRequired)
	}
	for name, headers := range r.MultipartForm.File {
		if name != field && len(headers) > 0 {
			return nil, domain.NewValidation(fmt.Sprintf("Unexpected file field '%s'.", name), domain.ErrUnsupportedMedia)
		}
	}
	headers := r.MultipartForm.File[field]
	if len(headers) > 1 {
		return nil, domain.NewValidation("Only one reference image is allowed.", domain.ErrUnsupportedMedia)
	}
	return i.FromHeader(headers[0])
}

// FromHeader opens and ingests one uploaded file.
func (i *Ingestor) FromHeader(fh *multipart.FileHeader) (*domain.ReferenceImage, error) {
	if fh.Size > i.maxBytes {
		return nil, i.tooLarge()
	}
	f, err := fh.Open()
	if err != nil {
		return nil, domain.NewValidation("Reference image is unreadable.", err)
	}
	defer f.Close()
	return i.Ingest(fh.Filename, f)
}

// Ingest validates and normalizes raw upload bytes.
func (i *Ingestor) Ingest(filename string, r io.Reader) (*domain.ReferenceImage, error) {
	data, err := io.ReadAll(io.LimitReader(r, i.maxBytes+1))
	if err != nil {
		return nil, domain.NewValidation("Reference image is unreadable.", err)
	}
	if int64(len(data)) > i.maxBytes {
		return nil, i.tooLarge()
	}
	if len(data) == 0 {
		return nil, domain.NewValidation("Reference image is required.", domain.ErrReferenceRequired)
	}
	mime, err := checkType(filename, data)
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, domain.NewValidation("Reference image could not be decoded.", errors.Join(domain.ErrUnsupportedMedia, err))
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > MaxSourceDimension || cfg.Height > MaxSourceDimension {
		e := domain.NewValidation(fmt.Sprintf("Reference image must be at most %dx%d pixels.", MaxSourceDimension, MaxSourceDimension), domain.ErrUnsupportedMedia)
		e.Status = http.StatusRequestEntityTooLarge
		return nil, e
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.NewValidation("Reference image could not be decoded.", errors.Join(domain.ErrUnsupportedMedia, err))
	}
	normalized, err := squarePNG(src)
	if err != nil {
		return nil, domain.NewValidation("Reference image could not be converted.", err)
	}
	if int64(len(normalized)) > i.maxBytes {
		return nil, i.tooLarge()
	}
	b := src.Bounds()
	return &domain.ReferenceImage{
		Filename:   filepath.Base(filename),
		MIME:       "image/png",
		SourceMIME: mime,
		Data:       normalized,
		Width:      b.Dx(),
		Height:     b.Dy(),
	}, nil
}

func (i *Ingestor) tooLarge() error {
	e := domain.NewValidation(fmt.Sprintf("Reference image exceeds %d bytes.", i.maxBytes), domain.ErrFileTooLarge)
	e.Status = http.StatusRequestEntityTooLarge
	return e
}

// checkType sniffs the content and cross-checks the declared extension.
func checkType(filename string, data []byte) (string, error) {
	detected := mimetype.Detect(data)
	var mime string
	for allowed := range allowedTypes {
		if detected.Is(allowed) {
			mime = allowed
			break
		}
	}
	if mime == "" {
		return "", domain.NewValidation("Only PNG, JPEG or WebP images are allowed.", domain.ErrUnsupportedMedia)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return mime, nil
	}
	for _, allowedExt := range allowedTypes[mime] {
		if ext == allowedExt {
			return mime, nil
		}
	}
	return "", domain.NewValidation("Only PNG, JPEG or WebP images are allowed.", domain.ErrUnsupportedMedia)
}

// squarePNG scales src to fit a square canvas of at most MaxEditDimension,
// centered on a transparent background.
func squarePNG(src image.Image) ([]byte, error) {
	b := src.Bounds()
	longest := max(b.Dx(), b.Dy())
	if longest <= 0 {
		return nil, errors.New("empty image")
	}
	side := min(longest, MaxEditDimension)
	w := max(b.Dx()*side/longest, 1)
	h := max(b.Dy()*side/longest, 1)
	dst := image.NewNRGBA(image.Rect(0, 0, side, side))
	off := image.Pt((side-w)/2, (side-h)/2)
	draw.CatmullRom.Scale(dst, image.Rectangle{Min: off, Max: off.Add(image.Pt(w, h))}, src, b, draw.Over, nil)

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, dst); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
