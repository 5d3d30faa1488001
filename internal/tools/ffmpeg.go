// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Ffmpeg family related tools.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"

	"github.com/evolution-gaming/vid2slides/internal/logging"
	"github.com/evolution-gaming/vid2slides/internal/video"
)

var (
	ffprobeCmd = "ffprobe"
	ffmpegCmd  = "ffmpeg"
	// Environment variables to point at specific ffmpeg build.
	ffmpegEnv  = "VID2SLIDES_FFMPEG"
	ffprobeEnv = "VID2SLIDES_FFPROBE"
)

// FfmpegPath will return path to ffmpeg binary and error if path is not found.
func FfmpegPath() (string, error) {
	p, err := FindTool(ffmpegCmd, ffmpegEnv)
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found: %w", err)
	}
	return p, nil
}

// FfprobePath will return path to ffprobe binary and error if path is not found.
func FfprobePath() (string, error) {
	p, err := FindTool(ffprobeCmd, ffprobeEnv)
	if err != nil {
		return "", fmt.Errorf("ffprobe not found: %w", err)
	}
	return p, nil
}

// Ffprobe implements video.MetadataExtractor using ffprobe binary at Path.
type Ffprobe struct {
	Path string
}

var _ video.MetadataExtractor = Ffprobe{}

// ExtractMetadata implements video.MetadataExtractor.
func (f Ffprobe) ExtractMetadata(videoFile string) (video.Metadata, error) {
	return FfprobeExtractMetadata(f.Path, videoFile)
}

// FfprobeExtractMetadata will query metadata of first video stream via ffprobe.
func FfprobeExtractMetadata(ffprobePath, videoFile string) (video.Metadata, error) {
	var vmeta video.Metadata

	if _, err := os.Stat(videoFile); err != nil {
		return vmeta, fmt.Errorf("FfprobeExtractMetadata() os.Stat: %w", err)
	}

	ffprobeArgs := []string{
		"-v", "quiet",
		"-select_streams", "v:0",
		"-of", "json",
		"-show_format",
		"-show_streams",
		videoFile,
	}
	cmd := exec.Command(ffprobePath, ffprobeArgs...)
	logging.Debugf("Running: %s\n", cmd)
	out, err := cmd.Output()
	if err != nil {
		return vmeta, fmt.Errorf("FfprobeExtractMetadata() exec error: %w", err)
	}

	// Unmarshal metadata from both "streams" and "format" JSON objects.
	meta := &struct {
		Streams []video.Metadata
		Format  video.Metadata
	}{}
	if err := json.Unmarshal(out, &meta); err != nil {
		return vmeta, fmt.Errorf("FfprobeExtractMetadata() json.Unmarshal: %w", err)
	}
	if len(meta.Streams) == 0 {
		return vmeta, errors.New("FfprobeExtractMetadata() no video stream")
	}

	vmeta = meta.Streams[0]
	// For mkv and webm containers Streams does not contain duration, so we have
	// to look into Format.
	vmeta.Duration = math.Max(vmeta.Duration, meta.Format.Duration)
	if vmeta.Width <= 0 || vmeta.Height <= 0 {
		return vmeta, fmt.Errorf("FfprobeExtractMetadata() invalid frame size %dx%d", vmeta.Width, vmeta.Height)
	}
	// Some containers do not carry frame count, estimate from duration.
	if vmeta.FrameCount == 0 {
		if fps, err := vmeta.FPS(); err == nil {
			vmeta.FrameCount = int(math.Round(vmeta.Duration * fps))
		}
	}
	logging.Debugf("%s %+v", videoFile, vmeta)

	return vmeta, nil
}
