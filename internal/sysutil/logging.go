package sysutil

import (
	"io"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rs/zerolog"
)

// LogOptions describes where process logs are written.
type LogOptions struct {
	Pretty bool          // human-readable console output instead of JSON
	File   string        // optional file path; rotated daily when set
	MaxAge time.Duration // how long rotated files are kept
}

// NewLogger builds the process logger. Console output goes to stderr; when
// File is set every record is also appended to a daily rotated file whose
// current generation is reachable through a symlink at File.
//
// The returned closer releases the file handle and is never nil.
func NewLogger(opts LogOptions) (zerolog.Logger, io.Closer, error) {
	var console io.Writer = os.Stderr
	if opts.Pretty {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	if opts.File == "" {
		return zerolog.New(console).With().Timestamp().Logger(), nopCloser{}, nil
	}

	rl, err := newRotatingFile(opts.File, opts.MaxAge)
	if err != nil {
		return zerolog.Logger{}, nopCloser{}, err
	}
	w := zerolog.MultiLevelWriter(console, rl)
	return zerolog.New(w).With().Timestamp().Logger(), rl, nil
}

func newRotatingFile(path string, maxAge time.Duration) (*rotatelogs.RotateLogs, error) {
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return rotatelogs.New(
		abs+".%Y%m%d",
		rotatelogs.WithLinkName(abs),
		rotatelogs.WithMaxAge(maxAge),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
