package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
)

// PublicPrefix is the URL path under which uploaded files are served.
const PublicPrefix = "/public/uploads/"

// ErrInvalidImageType is returned for uploads that are not PNG or JPEG.
var ErrInvalidImageType = errors.New("invalid image type")

var imageExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpeg",
	"image/jpg":  "jpg",
}

// ImageExtension returns the stored extension for an accepted image MIME type.
func ImageExtension(contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", ErrInvalidImageType
	}
	ext, ok := imageExtensions[strings.ToLower(mediaType)]
	if !ok {
		return "", ErrInvalidImageType
	}
	return ext, nil
}

// ImageFilename builds "<original-name>-<unix millis>.<ext>" with whitespace
// in the original name replaced by hyphens.
func ImageFilename(original, ext string, now time.Time) string {
	name := filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	if name == "." || name == "/" {
		name = "upload"
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '-'
		}
		return r
	}, name)
	return name + "-" + strconv.FormatInt(now.UnixMilli(), 10) + "." + ext
}

// CheckImage validates the declared MIME type of an uploaded image.
func CheckImage(header *multipart.FileHeader) (string, error) {
	return ImageExtension(header.Header.Get("Content-Type"))
}

// SaveImage stores an uploaded image and returns its object key.
func (s *Storage) SaveImage(ctx context.Context, header *multipart.FileHeader, now time.Time) (string, error) {
	ext, err := CheckImage(header)
	if err != nil {
		return "", err
	}

	file, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	key := ImageFilename(header.Filename, ext, now)
	if err := s.Put(ctx, key, file, header.Size, "image/"+ext); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	return key, nil
}

// PublicURL builds the absolute URL of key for the request's scheme and host.
func PublicURL(r *http.Request, key string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	return scheme + "://" + r.Host + PublicPrefix + key
}

// KeyFromURL returns the object key of a URL built by PublicURL, or "" when
// the URL does not point into the uploads prefix.
func KeyFromURL(rawURL string) string {
	i := strings.Index(rawURL, PublicPrefix)
	if i < 0 {
		return ""
	}
	key := rawURL[i+len(PublicPrefix):]
	if key == "" || strings.Contains(key, "/") {
		return ""
	}
	return path.Clean(key)
}

// ContentType guesses the MIME type of a stored key from its extension.
func ContentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// RemoveImage deletes the object behind an upload URL. Failures are logged
// and otherwise ignored.
func (s *Storage) RemoveImage(ctx context.Context, url string) {
	key := KeyFromURL(url)
	if key == "" {
		return
	}
	if err := s.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("remove upload")
	}
}
