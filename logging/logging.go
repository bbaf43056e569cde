// Package logging configures the process-wide zerolog logger.
package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
	// FormatPretty prints each event as indented JSON.
	FormatPretty = "pretty"
)

type Options struct {
	Level  string
	Format string
	// Output defaults to stderr.
	Output io.Writer
}

// New builds a logger without touching the global one.
func New(opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("parse log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	switch strings.ToLower(opts.Format) {
	case "", FormatConsole:
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	case FormatJSON:
	case FormatPretty:
		out = &prettyWriter{w: out}
	default:
		return zerolog.Logger{}, fmt.Errorf("unknown log format %q", opts.Format)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// Setup replaces the global logger used through github.com/rs/zerolog/log.
func Setup(opts Options) error {
	logger, err := New(opts)
	if err != nil {
		return err
	}
	log.Logger = logger
	return nil
}

// prettyWriter re-indents each JSON event. Writes that are not valid JSON
// pass through unchanged.
type prettyWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *prettyWriter) Write(b []byte) (int, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(b), "", "  "); err != nil {
		buf.Reset()
		buf.Write(b)
	} else {
		buf.WriteByte('\n')
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.w.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return len(b), nil
}
