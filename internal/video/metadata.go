// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Video metadata related constructs.

package video

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// SupportedExtensions lists container extensions picked up in directory mode.
var SupportedExtensions = []string{".mp4", ".avi", ".mov", ".webm"}

// Metadata type contains useful video stream metadata.
type Metadata struct {
	CodecName  string  `json:"codec_name,omitempty"`
	FrameRate  string  `json:"r_frame_rate,omitempty"`
	Duration   float64 `json:"duration,omitempty,string"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	BitRate    int     `json:"bit_rate,omitempty,string"`
	FrameCount int     `json:"nb_frames,omitempty,string"`
}

// FPS returns native frame rate parsed from FrameRate fraction like "30000/1001".
func (m Metadata) FPS() (float64, error) {
	return ParseFraction(m.FrameRate)
}

// MetadataExtractor is the interface that wraps ExtractMetadata method.
type MetadataExtractor interface {
	ExtractMetadata(videoFile string) (Metadata, error)
}

// ParseFraction parses strings like "24/1" or "25" into float64.
func ParseFraction(s string) (float64, error) {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing numerator of %q: %w", s, err)
	}
	if !found {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing denominator of %q: %w", s, err)
	}
	if d == 0 {
		return 0, fmt.Errorf("zero denominator in %q", s)
	}
	return n / d, nil
}

// IsSupported reports whether file name has one of SupportedExtensions. The
// comparison is case sensitive, same as the extension list.
func IsSupported(name string) bool {
	ext := filepath.Ext(name)
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
