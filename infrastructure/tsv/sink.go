package tsv

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ahrav/go-mqm/internal/domain"
	"github.com/ahrav/go-mqm/internal/ports"
)

// FileSink appends submitted ratings to a TSV file, writing the header when
// the file is empty. Submissions are serialized.
type FileSink struct {
	path string
	mu   sync.Mutex
}

// NewFileSink creates a sink writing to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: filepath.Clean(path)}
}

// Path returns the file the sink appends to.
func (s *FileSink) Path() string { return s.path }

// Submit validates record and appends it as one line.
func (s *FileSink) Submit(ctx context.Context, record domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open ratings file: %w", err)
	}
	prefix, err := appendPrefix(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to inspect ratings file: %w", err)
	}
	w := bufio.NewWriter(f)
	w.WriteString(prefix)
	w.WriteString(record.TSV() + "\n")
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to append rating: %w", err)
	}
	return f.Close()
}

// appendPrefix returns what must precede the next row: the header for an
// empty file, a newline when the last line is unterminated.
func appendPrefix(f *os.File) (string, error) {
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if info.Size() == 0 {
		return Header + "\n", nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return "", err
	}
	if last[0] != '\n' {
		return "\n", nil
	}
	return "", nil
}

var _ ports.RatingSink = (*FileSink)(nil)
