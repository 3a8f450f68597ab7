package compress

import (
	"archive/zip"
	"bytes"
	"io"
)

// ZipReader reads the first CSV entry of a zip archive.
type ZipReader struct {
	entry io.ReadCloser
}

// NewZipReader buffers the archive, since zip needs random access, and opens its first CSV entry.
func NewZipReader(r io.ReadCloser) (*ZipReader, error) {
	defer r.Close()

	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, err
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !isCSV(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		return &ZipReader{entry: rc}, nil
	}

	return nil, ErrNoEntry
}

func (z *ZipReader) Read(p []byte) (int, error) {
	return z.entry.Read(p)
}

func (z *ZipReader) Close() error {
	return z.entry.Close()
}

// ZipWriter writes a zip archive holding a single entry.
type ZipWriter struct {
	archive *zip.Writer
	entry   io.Writer
}

// NewZipWriter starts an archive on w with one entry called name.
func NewZipWriter(w io.Writer, name string) (*ZipWriter, error) {
	zw := zip.NewWriter(w)
	entry, err := zw.Create(name)
	if err != nil {
		return nil, err
	}
	return &ZipWriter{archive: zw, entry: entry}, nil
}

func (z *ZipWriter) Write(p []byte) (int, error) {
	return z.entry.Write(p)
}

// Close writes the central directory. It does not close the underlying writer.
func (z *ZipWriter) Close() error {
	return z.archive.Close()
}
