package compress

import (
	"archive/tar"
	"bytes"
	"io"
	"time"
)

// TarReader reads the first CSV entry of a tar archive.
type TarReader struct {
	entry io.Reader
}

// NewTarReader buffers the archive and positions on its first regular CSV entry.
func NewTarReader(r io.ReadCloser) (*TarReader, error) {
	defer r.Close()

	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	tr := tar.NewReader(bytes.NewReader(buf))
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil, ErrNoEntry
		}
		if err != nil {
			return nil, err
		}
		if header.Typeflag == tar.TypeReg && isCSV(header.Name) {
			return &TarReader{entry: tr}, nil
		}
	}
}

func (t *TarReader) Read(p []byte) (int, error) {
	return t.entry.Read(p)
}

func (t *TarReader) Close() error {
	return nil
}

// TarWriter writes a tar archive holding a single entry. A tar header carries
// the entry size, so the content is buffered until Close.
type TarWriter struct {
	w    io.Writer
	name string
	buf  bytes.Buffer
	now  func() time.Time
}

func NewTarWriter(w io.Writer, name string) *TarWriter {
	return &TarWriter{w: w, name: name, now: time.Now}
}

func (t *TarWriter) Write(p []byte) (int, error) {
	return t.buf.Write(p)
}

// Close writes the header, the buffered entry and the archive trailer to the underlying writer.
func (t *TarWriter) Close() error {
	tw := tar.NewWriter(t.w)
	err := tw.WriteHeader(&tar.Header{
		Typeflag: tar.TypeReg,
		Name:     t.name,
		Mode:     0o644,
		Size:     int64(t.buf.Len()),
		ModTime:  t.now(),
	})
	if err != nil {
		return err
	}
	if _, err := tw.Write(t.buf.Bytes()); err != nil {
		return err
	}
	return tw.Close()
}
