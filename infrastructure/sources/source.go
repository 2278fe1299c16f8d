// Package sources provides ports.Source implementations for local files,
// in-memory text, HTTP endpoints and Cloud Storage objects, plus middleware
// that adds rate limiting, timeouts, retries, circuit breaking, tracing and
// metrics around any source.
package sources

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ahrav/go-mqm/internal/ports"
)

// maxSourceBytes caps how much of one source is read into memory.
const maxSourceBytes = 512 << 20

// FileSource reads ratings from a local file.
type FileSource struct {
	path string
}

// NewFileSource returns a source for the file at path.
func NewFileSource(path string) *FileSource { return &FileSource{path: path} }

// Name returns the file path.
func (f *FileSource) Name() string { return f.path }

// Path returns the file path.
func (f *FileSource) Path() string { return f.path }

// Fetch reads the whole file.
func (f *FileSource) Fetch(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	file, err := os.Open(f.path)
	if err != nil {
		return "", ports.NewSourceFetchError(f.path, err)
	}
	defer file.Close()

	text, err := readAll(ctx, file)
	if err != nil {
		return "", ports.NewSourceFetchError(f.path, err)
	}
	return text, nil
}

// InlineSource serves text held in memory, such as a request body or stdin.
type InlineSource struct {
	name string
	text string
}

// NewInlineSource returns a source named name that yields text.
func NewInlineSource(name, text string) *InlineSource {
	return &InlineSource{name: name, text: text}
}

// Name returns the name given at construction.
func (s *InlineSource) Name() string { return s.name }

// Fetch returns the text.
func (s *InlineSource) Fetch(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.text, nil
}

// ReaderSource drains an io.Reader once. A second Fetch returns an empty text.
type ReaderSource struct {
	name string
	r    io.Reader
}

// NewReaderSource returns a source that reads r.
func NewReaderSource(name string, r io.Reader) *ReaderSource {
	return &ReaderSource{name: name, r: r}
}

// Name returns the name given at construction.
func (s *ReaderSource) Name() string { return s.name }

// Fetch reads r to the end.
func (s *ReaderSource) Fetch(ctx context.Context) (string, error) {
	text, err := readAll(ctx, s.r)
	if err != nil {
		return "", ports.NewSourceFetchError(s.name, err)
	}
	return text, nil
}

// ctxReader stops a read loop once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readAll(ctx context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(ctxReader{ctx: ctx, r: r}, maxSourceBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxSourceBytes {
		return "", fmt.Errorf("%w: larger than %d bytes", ports.ErrInvalidResponse, maxSourceBytes)
	}
	return string(data), nil
}
