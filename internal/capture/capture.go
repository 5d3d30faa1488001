// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package capture persists captured slides.
package capture

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/evolution-gaming/vid2slides/internal/logging"
)

// Supported image formats.
const (
	FormatPNG = "png"
	FormatJPG = "jpg"
)

// Quality used for jpg output.
const jpegQuality = 95

// Record is a single captured slide.
type Record struct {
	// Zero-based capture index, strictly increasing in temporal order.
	Index int
	// Sampler clock of the captured frame.
	Seconds float64
	// Image at original resolution.
	Image image.Image
}

// Minutes returns elapsed time in minutes rounded to 2 decimals.
func (r Record) Minutes() float64 {
	return RoundMinutes(r.Seconds)
}

// RoundMinutes converts seconds to minutes rounded to 2 decimals, halves go to
// the even neighbour.
func RoundMinutes(seconds float64) float64 {
	return math.RoundToEven(seconds/60*100) / 100
}

// FileName returns deterministic slide file name like "003_1.25.png".
//
// Minutes always carry a decimal point, so 1 minute is rendered as "1.0".
func FileName(index int, minutes float64, ext string) string {
	m := strconv.FormatFloat(minutes, 'f', -1, 64)
	if !strings.Contains(m, ".") {
		m += ".0"
	}
	return fmt.Sprintf("%03d_%s.%s", index, m, ext)
}

// invalidChars are removed from output folder names.
const invalidChars = `<>:"/\|?*[]`

// Sanitize removes characters not allowed in Windows paths from name.
func Sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidChars, r) {
			return -1
		}
		return r
	}, name)
}

// FolderName returns output folder name for a video: sanitized base name
// without extension.
func FolderName(videoFile string) string {
	base := filepath.Base(videoFile)
	return Sanitize(strings.TrimSuffix(base, filepath.Ext(base)))
}

// InitOutputFolder destroys and re-creates output folder for videoFile under
// root and returns its path.
func InitOutputFolder(root, videoFile string) (string, error) {
	name := FolderName(videoFile)
	if name == "" {
		return "", fmt.Errorf("InitOutputFolder() empty folder name for %q", videoFile)
	}
	dir := filepath.Join(root, name)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("InitOutputFolder() clearing %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("InitOutputFolder() creating %s: %w", dir, err)
	}
	logging.Infof("Initialized output folder: %s", dir)
	return dir, nil
}

// Sink writes captured slides into Dir.
type Sink struct {
	Dir    string
	Format string
}

// NewSink creates Sink for an existing directory. Empty format means png.
func NewSink(dir, format string) (*Sink, error) {
	if format == "" {
		format = FormatPNG
	}
	if err := CheckFormat(format); err != nil {
		return nil, err
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("NewSink(): %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("NewSink(): %s is not a directory", dir)
	}
	return &Sink{Dir: dir, Format: format}, nil
}

// CheckFormat returns error for unsupported image format.
func CheckFormat(format string) error {
	switch format {
	case FormatPNG, FormatJPG:
		return nil
	default:
		return fmt.Errorf("unsupported image format %q (must be %s or %s)", format, FormatPNG, FormatJPG)
	}
}

// Save writes r into the sink directory and returns file path.
func (s *Sink) Save(r Record) (path string, err error) {
	path = filepath.Join(s.Dir, FileName(r.Index, r.Minutes(), s.Format))
	logging.Infof("Saving: %s", path)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("Save(): %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("Save() closing %s: %w", path, cerr)
		}
	}()

	switch s.Format {
	case FormatJPG:
		err = jpeg.Encode(f, r.Image, &jpeg.Options{Quality: jpegQuality})
	default:
		err = png.Encode(f, r.Image)
	}
	if err != nil {
		return "", fmt.Errorf("Save() encoding %s: %w", path, err)
	}
	return path, nil
}
