package handler

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"
)

type fileResponse struct {
	contentType string
	filename    string
	inline      bool
	data        []byte
}

func (f fileResponse) Render(w http.ResponseWriter, r *http.Request) error {
	disposition := "attachment"
	if f.inline {
		disposition = "inline"
	}
	if f.filename != "" {
		disposition = mime.FormatMediaType(disposition, map[string]string{"filename": f.filename})
	}

	w.Header().Set("Content-Type", f.contentType)
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Length", strconv.Itoa(len(f.data)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := w.Write(f.data); err != nil {
		return fmt.Errorf("write file response: %w", err)
	}
	return nil
}

// FileOption configures a file response.
type FileOption func(*fileResponse)

// Inline serves the file for in-browser display instead of download.
func Inline() FileOption {
	return func(f *fileResponse) { f.inline = true }
}

// File serves data as a download named filename.
func File(data []byte, contentType, filename string, opts ...FileOption) Response {
	f := &fileResponse{contentType: contentType, filename: filename, data: data}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// PDF is File with the application/pdf content type.
//
//	return handler.PDF(pdf, "INV-2602013F2A9C1E.pdf")
func PDF(data []byte, filename string, opts ...FileOption) Response {
	return File(data, "application/pdf", filename, opts...)
}
