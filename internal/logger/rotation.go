package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RotatingWriter is a log file that is renamed aside once it grows past
// maxSize. Rotated files older than maxAge days are removed.
type RotatingWriter struct {
	filename string
	maxSize  int64 // bytes
	maxAge   int   // days
	compress bool

	mu          sync.Mutex
	currentFile *os.File
	currentSize int64
	now         func() time.Time
}

// NewRotatingWriter opens filename for appending
func NewRotatingWriter(filename string, maxSizeMB int, maxAge int, compress bool) (*RotatingWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	rw := &RotatingWriter{
		filename:    filename,
		maxSize:     int64(maxSizeMB) * 1024 * 1024,
		maxAge:      maxAge,
		compress:    compress,
		currentFile: file,
		currentSize: info.Size(),
		now:         time.Now,
	}

	go rw.cleanup()

	return rw, nil
}

// Write appends p, rotating first when p would push the file past maxSize.
// A write into an empty file never rotates.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return 0, os.ErrClosed
	}

	if w.currentSize > 0 && w.currentSize+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.currentFile.Write(p)
	w.currentSize += int64(n)
	return n, err
}

// Close closes the current log file
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return nil
	}
	err := w.currentFile.Close()
	w.currentFile = nil
	return err
}

// rotate must be called with mu held.
func (w *RotatingWriter) rotate() error {
	if err := w.currentFile.Close(); err != nil {
		return err
	}

	rotatedName := fmt.Sprintf("%s.%s", w.filename, w.now().Format("20060102-150405.000000"))
	if err := os.Rename(w.filename, rotatedName); err != nil {
		return err
	}

	if w.compress {
		go func() {
			if err := compressFile(rotatedName); err != nil {
				log.Warn().Err(err).Str("file", rotatedName).Msg("Failed to compress rotated log")
			}
		}()
	}

	file, err := os.OpenFile(w.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	w.currentFile = file
	w.currentSize = 0
	return nil
}

// compressFile gzips filename next to itself and removes the original.
func compressFile(filename string) error {
	src, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(filename + ".gz")
	if err != nil {
		return err
	}
	defer dst.Close()

	gzw := gzip.NewWriter(dst)
	if _, err := io.Copy(gzw, src); err != nil {
		gzw.Close()
		return err
	}
	if err := gzw.Close(); err != nil {
		return err
	}

	return os.Remove(filename)
}

// cleanup removes rotated files older than maxAge
func (w *RotatingWriter) cleanup() {
	if w.maxAge <= 0 {
		return
	}

	files, err := filepath.Glob(w.filename + ".*")
	if err != nil {
		return
	}

	cutoff := w.now().AddDate(0, 0, -w.maxAge)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(file)
			if !strings.HasSuffix(file, ".gz") {
				os.Remove(file + ".gz")
			}
		}
	}
}

func ensureDir(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}
