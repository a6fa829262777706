// Package convert re-encodes files whose tags cannot be read, using ffmpeg.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"trackrename/internal/logger"
	"trackrename/pkg/utils"
)

// ErrUnsupported is returned for files the converter does not handle.
var ErrUnsupported = errors.New("conversion not supported")

// Converter turns unreadable MP3 files into AIFF copies with ffmpeg.
type Converter struct {
	Command string
	Logger  *logger.Logger
}

// New creates a Converter using the ffmpeg found in PATH.
func New(log *logger.Logger) *Converter {
	return &Converter{Command: "ffmpeg", Logger: log}
}

// Available reports whether the ffmpeg binary can be found.
func (c *Converter) Available() error {
	return utils.CheckDependencies(c.Command)
}

// Target returns the path Convert would write for src.
func Target(src string) string {
	return strings.TrimSuffix(src, filepath.Ext(src)) + ".aif"
}

// Convert writes an AIFF copy of src next to it and returns its path. The
// source file is left in place. An existing target is never overwritten.
func (c *Converter) Convert(ctx context.Context, src string) (string, error) {
	if !strings.EqualFold(filepath.Ext(src), ".mp3") {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, src)
	}
	dst := Target(src)
	if _, err := os.Stat(dst); err == nil {
		return "", fmt.Errorf("conversion target already exists: %s", dst)
	}

	args := []string{
		"-v", "error",
		"-n",
		"-i", src,
		"-map_metadata", "0",
		"-write_id3v2", "1",
		dst,
	}
	c.Logger.Debug("Running: %s %s", c.Command, strings.Join(args, " "))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Command, args...)
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		os.Remove(dst)
		return "", fmt.Errorf("conversion cancelled")
	}
	if err != nil {
		os.Remove(dst)
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("ffmpeg failed for %s: %w", src, err)
		}
		return "", fmt.Errorf("ffmpeg failed for %s: %w: %s", src, err, msg)
	}

	c.Logger.Debug("Converted %s -> %s", filepath.Base(src), filepath.Base(dst))
	return dst, nil
}
