package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultMaxBytes    int64 = 100 << 20
	DefaultMaxDuration       = 3 * time.Minute
)

// mimeTypes lists the accepted extensions and the Content-Type sent for each.
var mimeTypes = map[string]string{
	"mp4":  "video/mp4",
	"m4v":  "video/mp4",
	"mov":  "video/quicktime",
	"webm": "video/webm",
	"mpeg": "video/mpeg",
	"mpg":  "video/mpeg",
}

// Limits bounds what Validate accepts. Zero fields fall back to defaults.
type Limits struct {
	MaxBytes    int64
	MaxDuration time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.MaxBytes <= 0 {
		l.MaxBytes = DefaultMaxBytes
	}
	if l.MaxDuration <= 0 {
		l.MaxDuration = DefaultMaxDuration
	}
	return l
}

// MediaInfo describes a file that passed validation.
type MediaInfo struct {
	Path     string
	Name     string
	MimeType string
	Size     int64
	Duration time.Duration
}

// SupportedExtension reports whether ext (with or without the dot, any
// case) is an accepted video container.
func SupportedExtension(ext string) bool {
	_, ok := mimeTypes[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return ok
}

// Validate checks extension, size and, when prober is non-nil, duration.
// Checks run cheapest first.
func Validate(ctx context.Context, path string, limits Limits, prober Prober) (MediaInfo, error) {
	limits = limits.withDefaults()

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	mime, ok := mimeTypes[ext]
	if !ok {
		return MediaInfo{}, fmt.Errorf("%w: %q", ErrInvalidFormat, filepath.Ext(path))
	}

	st, err := os.Stat(path)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("stat video: %w", err)
	}
	if !st.Mode().IsRegular() || st.Size() == 0 {
		return MediaInfo{}, fmt.Errorf("%w: %s is not a non-empty file", ErrInvalidFormat, path)
	}
	if st.Size() > limits.MaxBytes {
		return MediaInfo{}, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, st.Size(), limits.MaxBytes)
	}

	info := MediaInfo{
		Path:     path,
		Name:     filepath.Base(path),
		MimeType: mime,
		Size:     st.Size(),
	}

	if prober == nil {
		return info, nil
	}
	d, err := prober.Duration(ctx, path)
	if err != nil {
		return MediaInfo{}, err
	}
	if d > limits.MaxDuration {
		return MediaInfo{}, fmt.Errorf("%w: %s, limit %s", ErrDurationTooLong, d.Round(time.Second), limits.MaxDuration)
	}
	info.Duration = d
	return info, nil
}
