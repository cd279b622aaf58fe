package maze

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// LogFileName is the file written under Options.LogDir when FileLog is set.
const LogFileName = "lambda-e2e.log"

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger returns the suite logger. With FileLog unset it writes to
// console; otherwise it appends to LogFileName under LogDir. The returned
// closer releases the log file.
func NewLogger(opts Options, console io.Writer, verbose bool) (*slog.Logger, io.Closer, error) {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}

	w := console
	var closer io.Closer = nopCloser{}
	if opts.FileLog {
		if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(opts.LogDir, LogFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	}

	handler := log.NewWithOptions(w, log.Options{
		Level:           level,
		Prefix:          "lambda-e2e",
		ReportTimestamp: true,
	})
	return slog.New(handler), closer, nil
}
