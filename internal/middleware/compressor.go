package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/drstein77/luxestore/internal/compress"
)

// ArchiveResponse packs successful responses into a zip or tar archive holding
// one entry called name. The archive type comes from the archiveType query
// parameter, zip by default, and is used only when Accept-Encoding lists it.
func ArchiveResponse(name string) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			archiveType := r.URL.Query().Get("archiveType")
			if !compress.Supported(archiveType) {
				archiveType = compress.Zip
			}

			if !accepts(r.Header.Get("Accept-Encoding"), archiveType) {
				h.ServeHTTP(w, r)
				return
			}

			aw := &archiveWriter{ResponseWriter: w, kind: archiveType, name: name}
			defer aw.Close()
			h.ServeHTTP(aw, r)
		})
	}
}

// ArchiveRequest replaces a zip or tar request body, as named by Content-Encoding,
// with the first CSV entry of the archive. Archives larger than limit bytes are
// refused before they are buffered.
func ArchiveRequest(limit int64) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			archiveType := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding")))
			if !compress.Supported(archiveType) {
				h.ServeHTTP(w, r)
				return
			}

			body, err := compress.NewReader(archiveType, http.MaxBytesReader(w, r.Body, limit))
			if err != nil {
				rejectArchive(w, err)
				return
			}
			defer body.Close()

			r.Body = body
			r.Header.Del("Content-Encoding")
			h.ServeHTTP(w, r)
		})
	}
}

// accepts reports whether an Accept-Encoding header lists coding by name.
func accepts(header, coding string) bool {
	for _, part := range strings.Split(header, ",") {
		name, _, _ := strings.Cut(part, ";")
		if strings.EqualFold(strings.TrimSpace(name), coding) {
			return true
		}
	}
	return false
}

func rejectArchive(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		status = http.StatusRequestEntityTooLarge
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "invalid_archive",
		"message": err.Error(),
	})
}

// archiveWriter packs the body of a 2xx response into an archive. Other
// responses pass through untouched.
type archiveWriter struct {
	http.ResponseWriter
	kind string
	name string

	wroteHeader bool
	archive     io.WriteCloser
	err         error
}

func (a *archiveWriter) WriteHeader(code int) {
	if a.wroteHeader {
		return
	}
	a.wroteHeader = true

	if code >= 200 && code < 300 {
		header := a.Header()
		header.Set("Content-Type", compress.ContentType(a.kind))
		header.Set("Content-Encoding", a.kind)
		header.Set("Content-Disposition", `attachment; filename="`+strings.TrimSuffix(a.name, ".csv")+"."+a.kind+`"`)
		header.Del("Content-Length")
		a.archive, a.err = compress.NewWriter(a.kind, a.ResponseWriter, a.name)
	}
	a.ResponseWriter.WriteHeader(code)
}

func (a *archiveWriter) Write(p []byte) (int, error) {
	if !a.wroteHeader {
		a.WriteHeader(http.StatusOK)
	}
	if a.err != nil {
		return 0, a.err
	}
	if a.archive == nil {
		return a.ResponseWriter.Write(p)
	}
	return a.archive.Write(p)
}

// Close finishes the archive. A handler that wrote nothing still yields an empty entry.
func (a *archiveWriter) Close() error {
	if !a.wroteHeader {
		a.WriteHeader(http.StatusOK)
	}
	if a.archive == nil {
		return a.err
	}
	return a.archive.Close()
}
