package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"stylegen/internal/domain"
	"stylegen/internal/middleware"
	"stylegen/internal/routes"
)

// multipartOverhead leaves room for form fields and boundaries on top of the
// file size limit.
const multipartOverhead int64 = 1 << 20

type generateBody struct {
	Prompt  string `json:"prompt"`
	Size    string `json:"size"`
	Quality string `json:"quality"`
	Color1  string `json:"color1"`
	Color2  string `json:"color2"`
	Color3  string `json:"color3"`
}

func (b generateBody) request(requestID string) domain.GenerationRequest {
	return domain.GenerationRequest{
		Prompt:    b.Prompt,
		Size:      domain.Size(b.Size),
		Quality:   domain.Quality(b.Quality),
		Colors:    [domain.MaxColors]string{b.Color1, b.Color2, b.Color3},
		RequestID: requestID,
	}
}

// GenerateImage serves one numbered endpoint. Bodies are JSON, or multipart
// form data when a reference image is uploaded.
func (a *App) GenerateImage(route routes.Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := middleware.RequestIDFromContext(r.Context())
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

		var req domain.GenerationRequest
		switch mediaType {
		case "multipart/form-data":
			defer func() {
				if r.MultipartForm != nil {
					_ = r.MultipartForm.RemoveAll()
				}
			}()
			var err error
			req, err = a.readMultipart(w, r, route, rid)
			if err != nil {
				a.error(w, err)
				return
			}
		case "application/x-www-form-urlencoded":
			r.Body = http.MaxBytesReader(w, r.Body, a.jsonMaxBytes())
			if err := r.ParseForm(); err != nil {
				a.error(w, bodyError(err))
				return
			}
			req = formBody(r).request(rid)
		default:
			var body generateBody
			r.Body = http.MaxBytesReader(w, r.Body, a.jsonMaxBytes())
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
				a.error(w, bodyError(err))
				return
			}
			req = body.request(rid)
		}

		res, err := a.Service.Handle(r.Context(), route, req)
		if err != nil {
			a.error(w, err)
			return
		}
		a.json(w, http.StatusOK, res)
	}
}

func (a *App) readMultipart(w http.ResponseWriter, r *http.Request, route routes.Route, rid string) (domain.GenerationRequest, error) {
	maxBytes := a.Ingestor.MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return domain.GenerationRequest{}, bodyError(err)
	}
	req := formBody(r).request(rid)
	if route.RequiresUpload() {
		ref, err := a.Ingestor.FromRequest(r, route.Upload)
		if err != nil {
			return domain.GenerationRequest{}, err
		}
		req.Reference = ref
	}
	return req, nil
}

func formBody(r *http.Request) generateBody {
	return generateBody{
		Prompt:  r.FormValue("prompt"),
		Size:    r.FormValue("size"),
		Quality: r.FormValue("quality"),
		Color1:  r.FormValue("color1"),
		Color2:  r.FormValue("color2"),
		Color3:  r.FormValue("color3"),
	}
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		e := domain.NewValidation(fmt.Sprintf("Request body exceeds %d bytes.", tooLarge.Limit), errors.Join(domain.ErrFileTooLarge, err))
		e.Status = http.StatusRequestEntityTooLarge
		return e
	}
	return domain.NewValidation("Invalid request body.", err)
}
