// Package compress packs and unpacks single-file zip and tar archives
// carrying CSV documents.
package compress

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

const (
	Zip = "zip"
	Tar = "tar"
)

var (
	ErrUnsupported = errors.New("unsupported archive type")
	ErrNoEntry     = errors.New("no csv entry in archive")
)

// Supported reports whether kind names an archive type this package handles.
func Supported(kind string) bool {
	return kind == Zip || kind == Tar
}

// ContentType is the media type of an archive of the given kind.
func ContentType(kind string) string {
	switch kind {
	case Zip:
		return "application/zip"
	case Tar:
		return "application/x-tar"
	}
	return "application/octet-stream"
}

// NewReader opens the first CSV entry of an archive read from r. r is consumed
// and closed before NewReader returns.
func NewReader(kind string, r io.ReadCloser) (io.ReadCloser, error) {
	switch kind {
	case Zip:
		zr, err := NewZipReader(r)
		if err != nil {
			return nil, err
		}
		return zr, nil
	case Tar:
		tr, err := NewTarReader(r)
		if err != nil {
			return nil, err
		}
		return tr, nil
	}
	r.Close()
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, kind)
}

// NewWriter returns a writer that stores everything written to it as the
// entry name of an archive written to w. The archive is complete only after Close.
func NewWriter(kind string, w io.Writer, name string) (io.WriteCloser, error) {
	switch kind {
	case Zip:
		zw, err := NewZipWriter(w, name)
		if err != nil {
			return nil, err
		}
		return zw, nil
	case Tar:
		return NewTarWriter(w, name), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, kind)
}

func isCSV(name string) bool {
	return strings.EqualFold(path.Ext(name), ".csv")
}
