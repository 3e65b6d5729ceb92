// ABOUTME: Builds the process logger from the configured level and format.
package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
)

// newLogger returns a timestamped logger writing to w. format is text,
// json, or logfmt.
func newLogger(w io.Writer, level, format string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log_level: %w", err)
	}
	opts := log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		Prefix:          "kodejam",
	}
	switch format {
	case "", "text":
		opts.Formatter = log.TextFormatter
	case "json":
		opts.Formatter = log.JSONFormatter
	case "logfmt":
		opts.Formatter = log.LogfmtFormatter
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return log.NewWithOptions(w, opts), nil
}
