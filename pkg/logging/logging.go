// Package logging routes the standard logger to stderr or a rotating file.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	// File enables rotation into this path; empty logs to stderr only.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Quiet drops stderr output when a file is set.
	Quiet bool
}

// Setup points the standard logger at the configured destination and
// returns it. The returned closer flushes the rotating file, if any.
func Setup(opts Options) (io.Writer, func() error) {
	if opts.File == "" {
		log.SetOutput(os.Stderr)
		return os.Stderr, func() error { return nil }
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o750); err != nil {
		log.Printf("log directory unavailable, logging to stderr: %v", err)
		return os.Stderr, func() error { return nil }
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}

	var w io.Writer = rotator
	if !opts.Quiet {
		w = io.MultiWriter(os.Stderr, rotator)
	}
	log.SetOutput(w)
	return w, rotator.Close
}

// New returns a component logger writing to w with the given prefix.
func New(w io.Writer, component string) *log.Logger {
	return log.New(w, "["+component+"] ", log.LstdFlags)
}
