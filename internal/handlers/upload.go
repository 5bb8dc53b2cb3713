package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"reflect"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/quillpress/apiserver/internal/storage"
	"github.com/quillpress/apiserver/internal/store"
)

const (
	defaultMaxUploadBytes = 10 << 20
	maxMultipartMemory    = 1 << 20
)

// ImageStore saves, serves and removes uploaded images.
// Implemented by *storage.Storage.
type ImageStore interface {
	SaveImage(ctx context.Context, header *multipart.FileHeader, now time.Time) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	RemoveImage(ctx context.Context, url string)
}

// UploadRouter serves stored uploads by filename.
func UploadRouter(r chi.Router, images ImageStore) {
	r.Get("/{filename}", func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "filename")
		body, err := images.Get(r.Context(), key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeMessage(w, http.StatusNotFound, "File not found")
				return
			}
			writeErrors(w, r, err)
			return
		}
		defer body.Close()

		w.Header().Set("Content-Type", storage.ContentType(key))
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, body); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Str("key", key).Msg("stream upload")
		}
	})
}

var stringType = reflect.TypeOf("")

// requestForm holds the text fields and optional file of a request that
// may be sent either as JSON or as multipart/form-data.
type requestForm struct {
	fields map[string]string
	file   *multipart.FileHeader
}

// value returns nil when the field was not sent.
func (f requestForm) value(key string) *string {
	v, ok := f.fields[key]
	if !ok {
		return nil
	}
	return &v
}

func parseRequestForm(w http.ResponseWriter, r *http.Request, fileField string, maxBytes int64) (requestForm, error) {
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	form := requestForm{fields: make(map[string]string)}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return requestForm{}, multipartError(err)
		}
		for key, values := range r.MultipartForm.Value {
			if len(values) > 0 {
				form.fields[key] = values[0]
			}
		}
		if files := r.MultipartForm.File[fileField]; len(files) > 0 {
			form.file = files[0]
		}
		return form, nil
	}

	raw := make(map[string]any)
	if err := decodeJSON(r, &raw); err != nil {
		return requestForm{}, err
	}
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
		case string:
			form.fields[key] = v
		case bool, float64:
			form.fields[key] = fmt.Sprint(v)
		default:
			return requestForm{}, &json.UnmarshalTypeError{Value: "object", Field: key, Type: stringType}
		}
	}
	return form, nil
}

// multipartError keeps size errors for the 413 path and reports any other
// parse failure as a client error on the form field.
func multipartError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
		return err
	}
	verr := store.NewValidationError()
	verr.Add("form", "Invalid multipart form")
	return verr
}

// saveUpload stores the form's file, if any, and returns its public URL.
func saveUpload(r *http.Request, images ImageStore, file *multipart.FileHeader) (string, error) {
	if file == nil {
		return "", nil
	}
	key, err := images.SaveImage(r.Context(), file, time.Now())
	if err != nil {
		return "", err
	}
	return storage.PublicURL(r, key), nil
}

// writeFormError reports a failure from parseRequestForm or saveUpload.
func writeFormError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeMessage(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body must not exceed %d bytes", tooLarge.Limit))
		return
	}
	if errors.Is(err, multipart.ErrMessageTooLarge) {
		writeMessage(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeErrors(w, r, err)
}
