// Package upload validates multipart file uploads by size, count and sniffed
// content type, and stores accepted files.
package upload

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/keithlinneman/invitegate/internal/apierr"
)

type Policy struct {
	Field    string
	MaxBytes int64
	MaxFiles int
	// AllowedTypes are MIME types compared against the sniffed type, never
	// the client supplied Content-Type.
	AllowedTypes []string
}

// ImagePolicy accepts common photo formats for invitation galleries.
func ImagePolicy() Policy {
	return Policy{
		Field:        "photos",
		MaxBytes:     5 << 20,
		MaxFiles:     10,
		AllowedTypes: []string{"image/jpeg", "image/png", "image/webp", "image/gif"},
	}
}

type File struct {
	Name        string
	Size        int64
	ContentType string
	Ext         string
	Data        []byte
}

// multipart overhead allowed on top of the file bytes
const formSlack = 1 << 20

// Check parses the multipart form in r and returns the accepted files. Any
// rejected file fails the whole request.
func (p Policy) Check(w http.ResponseWriter, r *http.Request) ([]File, *apierr.Error) {
	limit := p.MaxBytes*int64(max(p.MaxFiles, 1)) + formSlack
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(p.MaxBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, apierr.Upload(http.StatusRequestEntityTooLarge, "Upload too large")
		}
		return nil, apierr.Upload(http.StatusBadRequest, "Invalid multipart form")
	}
	headers := r.MultipartForm.File[p.Field]
	if len(headers) == 0 {
		return nil, apierr.Upload(http.StatusBadRequest, "No file uploaded")
	}
	if p.MaxFiles > 0 && len(headers) > p.MaxFiles {
		return nil, apierr.Upload(http.StatusBadRequest, "Too many files")
	}

	files := make([]File, 0, len(headers))
	for _, fh := range headers {
		f, aerr := p.read(fh)
		if aerr != nil {
			return nil, aerr
		}
		files = append(files, f)
	}
	return files, nil
}

func (p Policy) read(fh *multipart.FileHeader) (File, *apierr.Error) {
	if fh.Size > p.MaxBytes {
		return File{}, apierr.Upload(http.StatusRequestEntityTooLarge, "File too large: "+safeName(fh.Filename))
	}
	src, err := fh.Open()
	if err != nil {
		return File{}, apierr.Upload(http.StatusBadRequest, "Unreadable file")
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, p.MaxBytes+1))
	if err != nil {
		return File{}, apierr.Upload(http.StatusBadRequest, "Unreadable file")
	}
	if int64(len(data)) > p.MaxBytes {
		return File{}, apierr.Upload(http.StatusRequestEntityTooLarge, "File too large: "+safeName(fh.Filename))
	}

	mt := mimetype.Detect(data)
	if !p.allowed(mt) {
		return File{}, apierr.Upload(http.StatusUnsupportedMediaType, "File type not allowed: "+mt.String())
	}
	return File{
		Name:        safeName(fh.Filename),
		Size:        int64(len(data)),
		ContentType: mt.String(),
		Ext:         mt.Extension(),
		Data:        data,
	}, nil
}

func (p Policy) allowed(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		for _, a := range p.AllowedTypes {
			if m.Is(a) {
				return true
			}
		}
	}
	return false
}

// safeName drops any directory component and control characters from a
// client supplied filename.
func safeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return name
}
